package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"onlinelibrary/internal/catalog"
	"onlinelibrary/internal/platform/logger"
)

const bookColumns = `id, title, author, available, cover, version, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(row scanner) (*catalog.Book, error) {
	b := &catalog.Book{}
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Available, &b.Cover, &b.Version, &b.CreatedAt); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) CreateBook(ctx context.Context, book *catalog.Book) error {
	query := `INSERT INTO books (title, author, available, cover)
	          VALUES ($1, $2, $3, $4) RETURNING id, version, created_at`
	logger.DatabaseCall("create_book", query, "title", book.Title)
	err := s.db.QueryRowContext(ctx, query, book.Title, book.Author, book.Available, book.Cover).
		Scan(&book.ID, &book.Version, &book.CreatedAt)
	logger.DatabaseResult("create_book", 1, err, "book_id", book.ID)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) GetBook(ctx context.Context, id int64) (*catalog.Book, error) {
	book, err := scanBook(s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return book, nil
}

func (s *Store) ListBooks(ctx context.Context) ([]catalog.Book, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var books []catalog.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

func (s *Store) CreateReview(ctx context.Context, review *catalog.Review) error {
	query := `INSERT INTO reviews (book_id, rating, review, author)
	          VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	logger.DatabaseCall("create_review", query, "book_id", review.BookID)
	err := s.db.QueryRowContext(ctx, query, review.BookID, review.Rating, review.Text, review.Author).
		Scan(&review.ID, &review.CreatedAt)
	logger.DatabaseResult("create_review", 1, err, "review_id", review.ID)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) ListReviews(ctx context.Context, bookID int64) ([]catalog.Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_id, rating, review, author, created_at
		FROM reviews
		WHERE book_id = $1
		ORDER BY id`, bookID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var reviews []catalog.Review
	for rows.Next() {
		var (
			r      catalog.Review
			rating sql.NullInt32
			text   sql.NullString
			author sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.BookID, &rating, &text, &author, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		if rating.Valid {
			v := int(rating.Int32)
			r.Rating = &v
		}
		if text.Valid {
			r.Text = &text.String
		}
		if author.Valid {
			r.Author = &author.String
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}
