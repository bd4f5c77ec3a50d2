// internal/catalog/service.go
package catalog

import (
	"context"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddBook(ctx context.Context, title, author string, available int, cover string) (*Book, error)
	GetBook(ctx context.Context, id int64) (*Book, error)
	ListBooks(ctx context.Context) ([]Book, error)
	AddRating(ctx context.Context, bookID int64, rating int) (*Review, error)
	AddReview(ctx context.Context, bookID int64, author, text string) (*Review, error)
	Reviews(ctx context.Context, bookID int64) (*ReviewSummary, error)
}

// Repository is the storage the catalog needs.
type Repository interface {
	CreateBook(ctx context.Context, book *Book) error
	GetBook(ctx context.Context, id int64) (*Book, error)
	ListBooks(ctx context.Context) ([]Book, error)
	CreateReview(ctx context.Context, review *Review) error
	ListReviews(ctx context.Context, bookID int64) ([]Review, error)
}
