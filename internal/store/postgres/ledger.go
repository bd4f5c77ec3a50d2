package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"onlinelibrary/internal/catalog"
	"onlinelibrary/internal/journal"
	"onlinelibrary/internal/lending"
	"onlinelibrary/internal/membership"
	"onlinelibrary/internal/platform/logger"
	"onlinelibrary/internal/platform/sentinel"

	"github.com/shopspring/decimal"
)

// tx implements lending.Tx over one SERIALIZABLE transaction.
type tx struct {
	q     querier
	store *Store
}

const (
	borrowingColumns = `id, book_id, user_id, borrow_date, borrowed_for_days, returned, return_date`
	feeColumns       = `id, user_id, borrow_id, amount, deadline, already_paid`
)

func scanBorrowing(row scanner, extra ...any) (*lending.Borrowing, error) {
	var (
		b          lending.Borrowing
		returnDate sql.NullTime
	)
	dest := append([]any{&b.ID, &b.BookID, &b.UserID, &b.BorrowDate, &b.BorrowedForDays, &b.Returned, &returnDate}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if returnDate.Valid {
		b.ReturnDate = &returnDate.Time
	}
	return &b, nil
}

func scanFee(row scanner) (*lending.Fee, error) {
	f := &lending.Fee{}
	if err := row.Scan(&f.ID, &f.UserID, &f.BorrowID, &f.Amount, &f.Deadline, &f.AlreadyPaid); err != nil {
		return nil, err
	}
	return f, nil
}

func (t *tx) GetBookForUpdate(ctx context.Context, id int64) (*catalog.Book, error) {
	book, err := scanBook(t.q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return book, nil
}

func (t *tx) UpdateBookAvailability(ctx context.Context, id int64, available, expectedVersion int) error {
	query := `UPDATE books SET available = $1, version = version + 1 WHERE id = $2 AND version = $3`
	logger.DatabaseCall("update_book_availability", query, "book_id", id, "available", available)
	res, err := t.q.ExecContext(ctx, query, available, id, expectedVersion)
	if err != nil {
		logger.DatabaseResult("update_book_availability", 0, err)
		return classify(err)
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("update_book_availability", n, err)
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: book %d changed since version %d", sentinel.ErrConflict, id, expectedVersion)
	}
	return nil
}

func (t *tx) GetUser(ctx context.Context, id int64) (*membership.User, error) {
	return getUser(ctx, t.q, id)
}

func (t *tx) GetBorrowing(ctx context.Context, id int64) (*lending.Borrowing, error) {
	b, err := scanBorrowing(t.q.QueryRowContext(ctx, `SELECT `+borrowingColumns+` FROM borrowings WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

func (t *tx) GetActiveBorrowing(ctx context.Context, bookID, userID int64) (*lending.Borrowing, error) {
	b, err := scanBorrowing(t.q.QueryRowContext(ctx, `
		SELECT `+borrowingColumns+`
		FROM borrowings
		WHERE book_id = $1 AND user_id = $2 AND NOT returned`, bookID, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

func (t *tx) CreateBorrowing(ctx context.Context, b *lending.Borrowing) error {
	query := `INSERT INTO borrowings (book_id, user_id, borrow_date, borrowed_for_days)
	          VALUES ($1, $2, $3, $4) RETURNING id`
	logger.DatabaseCall("create_borrowing", query, "book_id", b.BookID, "user_id", b.UserID)
	err := t.q.QueryRowContext(ctx, query, b.BookID, b.UserID, b.BorrowDate, b.BorrowedForDays).Scan(&b.ID)
	logger.DatabaseResult("create_borrowing", 1, err, "borrowing_id", b.ID)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (t *tx) MarkReturned(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE borrowings SET returned = TRUE, return_date = $1 WHERE id = $2 AND NOT returned`
	res, err := t.q.ExecContext(ctx, query, at, id)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: borrowing %d already returned", sentinel.ErrConflict, id)
	}
	return nil
}

func (t *tx) ListBorrowings(ctx context.Context, userID int64, activeOnly bool) ([]lending.HistoryEntry, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT b.id, b.book_id, b.user_id, b.borrow_date, b.borrowed_for_days, b.returned, b.return_date,
		       k.title, k.author, k.cover
		FROM borrowings b
		JOIN books k ON k.id = b.book_id
		WHERE b.user_id = $1 AND (NOT $2 OR NOT b.returned)
		ORDER BY b.borrow_date DESC, b.id DESC`, userID, activeOnly)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var entries []lending.HistoryEntry
	for rows.Next() {
		var e lending.HistoryEntry
		b, err := scanBorrowing(rows, &e.Title, &e.Author, &e.Cover)
		if err != nil {
			return nil, fmt.Errorf("scan borrowing: %w", err)
		}
		e.Borrowing = *b
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (t *tx) CreateFee(ctx context.Context, f *lending.Fee) error {
	query := `INSERT INTO fees (user_id, borrow_id, amount, deadline, already_paid)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id`
	logger.DatabaseCall("create_fee", query, "borrow_id", f.BorrowID)
	err := t.q.QueryRowContext(ctx, query, f.UserID, f.BorrowID, f.Amount, f.Deadline, f.AlreadyPaid).Scan(&f.ID)
	logger.DatabaseResult("create_fee", 1, err, "fee_id", f.ID)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (t *tx) GetFee(ctx context.Context, id int64) (*lending.Fee, error) {
	f, err := scanFee(t.q.QueryRowContext(ctx, `SELECT `+feeColumns+` FROM fees WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return f, nil
}

func (t *tx) GetFeeByBorrowing(ctx context.Context, borrowID int64) (*lending.Fee, error) {
	f, err := scanFee(t.q.QueryRowContext(ctx, `SELECT `+feeColumns+` FROM fees WHERE borrow_id = $1`, borrowID))
	if err != nil {
		return nil, notFound(err)
	}
	return f, nil
}

func (t *tx) ListFees(ctx context.Context, userID int64) ([]lending.Fee, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT `+feeColumns+` FROM fees WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var fees []lending.Fee
	for rows.Next() {
		f, err := scanFee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fee: %w", err)
		}
		fees = append(fees, *f)
	}
	return fees, rows.Err()
}

func (t *tx) UpdateUnpaidFeeAmount(ctx context.Context, id int64, amount decimal.Decimal) (bool, error) {
	return t.execFlag(ctx, "update_fee_amount",
		`UPDATE fees SET amount = $1 WHERE id = $2 AND NOT already_paid`, amount, id)
}

func (t *tx) MarkFeePaid(ctx context.Context, id int64) (bool, error) {
	return t.execFlag(ctx, "mark_fee_paid",
		`UPDATE fees SET already_paid = TRUE WHERE id = $1 AND NOT already_paid`, id)
}

// execFlag runs a conditional update and reports whether it matched a row.
func (t *tx) execFlag(ctx context.Context, op, query string, args ...any) (bool, error) {
	logger.DatabaseCall(op, query)
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		logger.DatabaseResult(op, 0, err)
		return false, classify(err)
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult(op, n, err)
	if err != nil {
		return false, classify(err)
	}
	return n == 1, nil
}

func (t *tx) AppendEvents(ctx context.Context, events ...journal.Event) error {
	return t.store.appendEvents(ctx, t.q, events)
}
