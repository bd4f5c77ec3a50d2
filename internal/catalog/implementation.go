// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"onlinelibrary/internal/platform/sentinel"
)

// service implements the Service interface.
type service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new catalog service instance.
func NewService(repo Repository, logger *slog.Logger) Service {
	return &service{
		repo:   repo,
		logger: logger,
	}
}

// AddBook creates a new book in the catalog.
func (s *service) AddBook(ctx context.Context, title, author string, available int, cover string) (*Book, error) {
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if title == "" || author == "" {
		return nil, fmt.Errorf("%w: title and author are required", ErrInvalidBook)
	}
	if available < 0 {
		return nil, fmt.Errorf("%w: available must not be negative", ErrInvalidBook)
	}
	if strings.TrimSpace(cover) == "" {
		cover = DefaultCover
	}

	book := &Book{
		Title:     title,
		Author:    author,
		Available: available,
		Cover:     cover,
	}
	if err := s.repo.CreateBook(ctx, book); err != nil {
		return nil, fmt.Errorf("failed to create book: %w", err)
	}

	s.logger.InfoContext(ctx, "book added", "book_id", book.ID, "title", book.Title, "available", book.Available)
	return book, nil
}

// GetBook retrieves a book by its ID.
func (s *service) GetBook(ctx context.Context, id int64) (*Book, error) {
	book, err := s.repo.GetBook(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrBookNotFound, id)
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

func (s *service) ListBooks(ctx context.Context) ([]Book, error) {
	books, err := s.repo.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// AddRating records a 1 to 5 star rating.
func (s *service) AddRating(ctx context.Context, bookID int64, rating int) (*Review, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidReview)
	}
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	review := &Review{BookID: bookID, Rating: &rating}
	if err := s.repo.CreateReview(ctx, review); err != nil {
		return nil, fmt.Errorf("failed to save rating: %w", err)
	}
	return review, nil
}

// AddReview records a written review signed by author.
func (s *service) AddReview(ctx context.Context, bookID int64, author, text string) (*Review, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: review text is required", ErrInvalidReview)
	}
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	review := &Review{BookID: bookID, Text: &text, Author: &author}
	if err := s.repo.CreateReview(ctx, review); err != nil {
		return nil, fmt.Errorf("failed to save review: %w", err)
	}
	return review, nil
}

// Reviews returns the book's reviews and the mean of its ratings.
func (s *service) Reviews(ctx context.Context, bookID int64) (*ReviewSummary, error) {
	book, err := s.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	reviews, err := s.repo.ListReviews(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}

	summary := &ReviewSummary{Book: *book, Reviews: reviews}
	total := 0
	for _, r := range reviews {
		if r.Rating != nil {
			total += *r.Rating
			summary.RatingCount++
		}
	}
	if summary.RatingCount > 0 {
		summary.AverageRating = float64(total) / float64(summary.RatingCount)
	}
	return summary, nil
}
