// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"onlinelibrary/internal/platform/sentinel"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// service implements the Service interface.
type service struct {
	repo   Repository
	logger *slog.Logger

	mu        sync.Mutex
	limiters  map[string]*attempts
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// attempts is the limiter for one user name and when it was last used.
type attempts struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewService creates a new membership service instance. Register and
// Authenticate allow attemptsPerMinute per user name with the given burst.
// A non-positive attemptsPerMinute disables the limit.
func NewService(repo Repository, logger *slog.Logger, attemptsPerMinute, burst int) Service {
	limit := rate.Inf
	idle := time.Minute
	if attemptsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(attemptsPerMinute))
		// A limiter untouched this long has refilled to its burst and is
		// indistinguishable from a new one.
		if refill := time.Duration(float64(burst) / float64(limit) * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &service{
		repo:     repo,
		logger:   logger,
		limiters: make(map[string]*attempts),
		limit:    limit,
		burst:    burst,
		idle:     idle,
		now:      time.Now,
	}
}

func (s *service) allow(userName string) bool {
	if s.limit == rate.Inf {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.idle {
		s.sweep(now)
	}

	a, ok := s.limiters[userName]
	if !ok {
		a = &attempts{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[userName] = a
	}
	a.lastSeen = now
	return a.limiter.AllowN(now, 1)
}

// sweep drops limiters idle for at least s.idle. Callers hold s.mu.
func (s *service) sweep(now time.Time) {
	for name, a := range s.limiters {
		if now.Sub(a.lastSeen) >= s.idle {
			delete(s.limiters, name)
		}
	}
	s.lastSweep = now
}

func normalizeUserName(userName string) string {
	return strings.ToLower(strings.TrimSpace(userName))
}

// Register creates a new account with a zero balance.
func (s *service) Register(ctx context.Context, userName, password string) (*User, error) {
	userName = normalizeUserName(userName)
	if addr, err := mail.ParseAddress(userName); err != nil || addr.Address != userName {
		return nil, fmt.Errorf("%w: user name must be an e-mail address", ErrInvalidUser)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidUser, MinPasswordLength)
	}
	if !s.allow(userName) {
		return nil, ErrRateLimited
	}

	passwordHash, salt, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		UserName:     userName,
		PasswordHash: passwordHash,
		Salt:         salt,
		Balance:      decimal.Zero,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Authenticate verifies a user's credentials and returns the user if successful.
func (s *service) Authenticate(ctx context.Context, userName, password string) (*User, error) {
	userName = normalizeUserName(userName)
	if !s.allow(userName) {
		return nil, ErrRateLimited
	}

	user, err := s.repo.FindUserByName(ctx, userName)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	ok, err := verifyPassword(password, user.Salt, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		s.logger.WarnContext(ctx, "login rejected", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *service) GetUser(ctx context.Context, id int64) (*User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrUserNotFound, id)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *service) FindByName(ctx context.Context, userName string) (*User, error) {
	user, err := s.repo.FindUserByName(ctx, normalizeUserName(userName))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userName)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}
