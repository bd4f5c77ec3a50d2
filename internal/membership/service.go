// internal/membership/service.go
package membership

import (
	"context"
)

// Service defines the interface for the membership service.
type Service interface {
	Register(ctx context.Context, userName, password string) (*User, error)
	Authenticate(ctx context.Context, userName, password string) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	FindByName(ctx context.Context, userName string) (*User, error)
}

// Repository is the storage membership needs. CreateUser returns
// sentinel.ErrDuplicate when the user name is taken.
type Repository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	FindUserByName(ctx context.Context, userName string) (*User, error)
}
