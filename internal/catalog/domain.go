// internal/catalog/domain.go
package catalog

import (
	"fmt"
	"time"

	"onlinelibrary/internal/platform/sentinel"
)

// DefaultCover is used when a book is added without a cover.
const DefaultCover = "default.jpg"

var (
	ErrBookNotFound  = fmt.Errorf("book %w", sentinel.ErrNotFound)
	ErrInvalidBook   = fmt.Errorf("book: %w", sentinel.ErrInvalidInput)
	ErrInvalidReview = fmt.Errorf("review: %w", sentinel.ErrInvalidInput)
)

// Book is a lendable title. Available counts the copies not on loan and is
// written only by the lending ledger once the book exists.
type Book struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Available int       `json:"available"`
	Cover     string    `json:"cover"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Review is either a star rating or a written review of a book.
type Review struct {
	ID        int64     `json:"id"`
	BookID    int64     `json:"book_id"`
	Rating    *int      `json:"rating,omitempty"`
	Text      *string   `json:"review,omitempty"`
	Author    *string   `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewSummary is a book with its reviews and mean rating. AverageRating is
// zero when nobody rated the book.
type ReviewSummary struct {
	Book          Book     `json:"book"`
	AverageRating float64  `json:"average_rating"`
	RatingCount   int      `json:"rating_count"`
	Reviews       []Review `json:"reviews"`
}
