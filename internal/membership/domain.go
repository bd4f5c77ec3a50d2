// internal/membership/domain.go
package membership

import (
	"errors"
	"fmt"
	"time"

	"onlinelibrary/internal/platform/sentinel"

	"github.com/shopspring/decimal"
)

var (
	ErrUserNotFound       = fmt.Errorf("user %w", sentinel.ErrNotFound)
	ErrUserExists         = fmt.Errorf("user already exists: %w", sentinel.ErrDuplicate)
	ErrInvalidUser        = fmt.Errorf("user: %w", sentinel.ErrInvalidInput)
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("rate limit exceeded")
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 3

// User is a library account. UserName is the e-mail address the user
// registered with and is unique.
type User struct {
	ID           int64           `json:"id"`
	UserName     string          `json:"user_name"`
	PasswordHash string          `json:"-"`
	Salt         string          `json:"-"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
}
