// internal/lending/errors.go
package lending

import (
	"errors"
	"fmt"

	"onlinelibrary/internal/platform/sentinel"
)

var (
	ErrNotFound          = fmt.Errorf("record %w", sentinel.ErrNotFound)
	ErrAlreadyBorrowed   = errors.New("book already borrowed by this user")
	ErrNoActiveBorrowing = errors.New("no active borrowing of this book")
	ErrAlreadyPaid       = errors.New("fee already paid")
	ErrOutOfStock        = errors.New("book out of stock")
	ErrTransient         = errors.New("transaction kept conflicting, try again")
)

// outcome names an error for metrics labels.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyBorrowed):
		return "already_borrowed"
	case errors.Is(err, ErrNoActiveBorrowing):
		return "no_active_borrowing"
	case errors.Is(err, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
