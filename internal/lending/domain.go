// internal/lending/domain.go
package lending

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StockPolicy decides whether Borrow may take the last copy below zero.
type StockPolicy string

const (
	// StockStrict refuses to lend a book with no copies available.
	StockStrict StockPolicy = "strict"
	// StockLegacy lends unconditionally and lets availability go negative,
	// matching the behaviour of the system this service replaced.
	StockLegacy StockPolicy = "legacy"
)

// ParseStockPolicy validates s.
func ParseStockPolicy(s string) (StockPolicy, error) {
	switch p := StockPolicy(s); p {
	case StockStrict, StockLegacy:
		return p, nil
	default:
		return "", fmt.Errorf("unknown stock policy %q", s)
	}
}

// Borrowing is one loan of a book to a user. It is never deleted.
// ReturnDate is set exactly when Returned is true.
type Borrowing struct {
	ID              int64      `json:"id"`
	BookID          int64      `json:"book_id"`
	UserID          int64      `json:"user_id"`
	BorrowDate      time.Time  `json:"borrow_date"`
	BorrowedForDays int        `json:"borrowed_for_days"`
	Returned        bool       `json:"returned"`
	ReturnDate      *time.Time `json:"return_date,omitempty"`
}

// Active reports whether the book is still out.
func (b Borrowing) Active() bool {
	return !b.Returned
}

// Fee is the late fee paired one to one with a Borrowing. Amount is frozen
// once AlreadyPaid is set.
type Fee struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	BorrowID    int64           `json:"borrow_id"`
	Amount      decimal.Decimal `json:"amount"`
	Deadline    time.Time       `json:"deadline"`
	AlreadyPaid bool            `json:"already_paid"`
}

// HistoryEntry is a borrowing joined with the book it refers to.
type HistoryEntry struct {
	Borrowing
	Title  string `json:"title"`
	Author string `json:"author"`
	Cover  string `json:"cover"`
}

// Journal payloads.

type borrowedPayload struct {
	BookID   int64     `json:"book_id"`
	UserID   int64     `json:"user_id"`
	FeeID    int64     `json:"fee_id"`
	Days     int       `json:"days"`
	Deadline time.Time `json:"deadline"`
}

type returnedPayload struct {
	BookID     int64     `json:"book_id"`
	UserID     int64     `json:"user_id"`
	ReturnDate time.Time `json:"return_date"`
}

type feePayload struct {
	BorrowID int64           `json:"borrow_id"`
	UserID   int64           `json:"user_id"`
	Amount   decimal.Decimal `json:"amount"`
}
