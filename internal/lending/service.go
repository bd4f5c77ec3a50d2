// internal/lending/service.go
package lending

import (
	"context"
	"time"

	"onlinelibrary/internal/catalog"
	"onlinelibrary/internal/invoice"
	"onlinelibrary/internal/journal"
	"onlinelibrary/internal/membership"

	"github.com/shopspring/decimal"
)

// Service defines the interface for the lending ledger. Every call that acts
// for a user takes that user's id explicitly.
type Service interface {
	Borrow(ctx context.Context, bookID, userID int64, days int) (*Borrowing, error)
	Return(ctx context.Context, bookID, userID int64) error
	ViewInvoices(ctx context.Context, userID int64) ([]Fee, error)
	Pay(ctx context.Context, feeID, userID int64) (*Fee, error)
	BuildInvoiceMessage(ctx context.Context, borrowingID, userID int64) (*invoice.Message, error)
	ParseInboundMessage(text string) (invoice.Fields, error)
	ActiveBorrowings(ctx context.Context, userID int64) ([]HistoryEntry, error)
	History(ctx context.Context, userID int64) ([]HistoryEntry, error)
}

// Store runs fn inside one transaction. If fn returns an error nothing it
// wrote survives. Stores report lost races as sentinel.ErrConflict.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of the store inside a transaction. Lookups return
// sentinel.ErrNotFound for missing rows.
type Tx interface {
	// GetBookForUpdate locks the book row until the transaction ends.
	GetBookForUpdate(ctx context.Context, id int64) (*catalog.Book, error)
	// UpdateBookAvailability writes available and bumps the version when the
	// stored version still equals expectedVersion, else sentinel.ErrConflict.
	UpdateBookAvailability(ctx context.Context, id int64, available, expectedVersion int) error
	GetUser(ctx context.Context, id int64) (*membership.User, error)

	GetBorrowing(ctx context.Context, id int64) (*Borrowing, error)
	GetActiveBorrowing(ctx context.Context, bookID, userID int64) (*Borrowing, error)
	// CreateBorrowing returns sentinel.ErrDuplicate when the pair already has
	// an active borrowing.
	CreateBorrowing(ctx context.Context, b *Borrowing) error
	// MarkReturned flips an active borrowing; sentinel.ErrConflict if it was
	// returned concurrently.
	MarkReturned(ctx context.Context, id int64, at time.Time) error
	ListBorrowings(ctx context.Context, userID int64, activeOnly bool) ([]HistoryEntry, error)

	CreateFee(ctx context.Context, f *Fee) error
	GetFee(ctx context.Context, id int64) (*Fee, error)
	GetFeeByBorrowing(ctx context.Context, borrowID int64) (*Fee, error)
	ListFees(ctx context.Context, userID int64) ([]Fee, error)
	// UpdateUnpaidFeeAmount sets the amount only while the fee is unpaid and
	// reports whether it did.
	UpdateUnpaidFeeAmount(ctx context.Context, id int64, amount decimal.Decimal) (bool, error)
	// MarkFeePaid flips already_paid from false to true and reports whether
	// this call did it.
	MarkFeePaid(ctx context.Context, id int64) (bool, error)

	AppendEvents(ctx context.Context, events ...journal.Event) error
}

// Config is the ledger policy.
type Config struct {
	StockPolicy   StockPolicy
	DefaultDays   int
	LateFeePerDay decimal.Decimal
	MaxTxRetries  int
	Location      *time.Location
}

// DefaultConfig is one day per loan, 0.5 per late day and the strict stock
// policy.
func DefaultConfig() Config {
	return Config{
		StockPolicy:   StockStrict,
		DefaultDays:   1,
		LateFeePerDay: DefaultLateFeePerDay,
		MaxTxRetries:  3,
		Location:      time.UTC,
	}
}
