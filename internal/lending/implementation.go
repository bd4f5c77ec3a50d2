// internal/lending/implementation.go
package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"onlinelibrary/internal/invoice"
	"onlinelibrary/internal/journal"
	"onlinelibrary/internal/platform/sentinel"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// service implements the Service interface.
type service struct {
	store   Store
	builder *invoice.Builder
	cfg     Config
	metrics *Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option customises a service.
type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates the lending ledger. Zero config fields take their
// DefaultConfig values.
func NewService(store Store, builder *invoice.Builder, cfg Config, metrics *Metrics, logger *slog.Logger, opts ...Option) Service {
	def := DefaultConfig()
	if cfg.StockPolicy == "" {
		cfg.StockPolicy = def.StockPolicy
	}
	if cfg.DefaultDays <= 0 {
		cfg.DefaultDays = def.DefaultDays
	}
	if cfg.MaxTxRetries <= 0 {
		cfg.MaxTxRetries = def.MaxTxRetries
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	s := &service{
		store:   store,
		builder: builder,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		tracer:  otel.Tracer("onlinelibrary/lending"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) clock() time.Time {
	return s.now().In(s.cfg.Location)
}

// run executes fn in a store transaction, retrying lost races up to
// MaxTxRetries attempts in total.
func (s *service) run(ctx context.Context, op string, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.cfg.MaxTxRetries; attempt++ {
		err = s.store.RunInTx(ctx, fn)
		if err == nil || !errors.Is(err, sentinel.ErrConflict) {
			return err
		}
		s.metrics.TxConflicts.WithLabelValues(op).Inc()
		trace.SpanFromContext(ctx).AddEvent("tx.conflict", trace.WithAttributes(attribute.Int("attempt", attempt)))
		s.logger.WarnContext(ctx, "ledger transaction conflict", "operation", op, "attempt", attempt, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
}

func (s *service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	ctx, span := s.tracer.Start(ctx, "lending."+op, trace.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

func (s *service) finish(span trace.Span, op string, started time.Time, err error) {
	s.metrics.observe(op, started, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
	}
	span.End()
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
	}
	return fmt.Errorf("failed to load %s %d: %w", what, id, err)
}

// Borrow lends one copy of the book to the user for days (DefaultDays when
// days <= 0) and opens the paired fee.
func (s *service) Borrow(ctx context.Context, bookID, userID int64, days int) (borrowing *Borrowing, err error) {
	ctx, span, started := s.start(ctx, "borrow",
		attribute.Int64("book.id", bookID),
		attribute.Int64("user.id", userID),
	)
	defer func() { s.finish(span, "borrow", started, err) }()

	if days <= 0 {
		days = s.cfg.DefaultDays
	}

	err = s.run(ctx, "borrow", func(tx Tx) error {
		borrowing = nil

		book, err := tx.GetBookForUpdate(ctx, bookID)
		if err != nil {
			return notFound(err, "book", bookID)
		}
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return notFound(err, "user", userID)
		}

		_, err = tx.GetActiveBorrowing(ctx, bookID, userID)
		switch {
		case err == nil:
			return ErrAlreadyBorrowed
		case !errors.Is(err, sentinel.ErrNotFound):
			return fmt.Errorf("failed to check active borrowing: %w", err)
		}

		if s.cfg.StockPolicy == StockStrict && book.Available <= 0 {
			return ErrOutOfStock
		}
		if err := tx.UpdateBookAvailability(ctx, bookID, book.Available-1, book.Version); err != nil {
			return fmt.Errorf("failed to update availability: %w", err)
		}

		now := s.clock()
		b := &Borrowing{
			BookID:          bookID,
			UserID:          userID,
			BorrowDate:      now,
			BorrowedForDays: days,
		}
		if err := tx.CreateBorrowing(ctx, b); err != nil {
			if errors.Is(err, sentinel.ErrDuplicate) {
				return ErrAlreadyBorrowed
			}
			return fmt.Errorf("failed to create borrowing: %w", err)
		}

		fee := &Fee{
			UserID:   userID,
			BorrowID: b.ID,
			Deadline: now.AddDate(0, 0, days),
		}
		if err := tx.CreateFee(ctx, fee); err != nil {
			return fmt.Errorf("failed to create fee: %w", err)
		}

		ev, err := journal.NewEvent(journal.AggregateBorrowing, b.ID, journal.BookBorrowed, borrowedPayload{
			BookID: bookID, UserID: userID, FeeID: fee.ID, Days: days, Deadline: fee.Deadline,
		}, now)
		if err != nil {
			return err
		}
		if err := tx.AppendEvents(ctx, ev); err != nil {
			return fmt.Errorf("failed to append journal: %w", err)
		}

		borrowing = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "book borrowed", "borrowing_id", borrowing.ID, "book_id", bookID, "user_id", userID, "days", days)
	return borrowing, nil
}

// Return closes the user's active borrowing of the book and puts the copy
// back. The fee is left for lazy accrual.
func (s *service) Return(ctx context.Context, bookID, userID int64) (err error) {
	ctx, span, started := s.start(ctx, "return",
		attribute.Int64("book.id", bookID),
		attribute.Int64("user.id", userID),
	)
	defer func() { s.finish(span, "return", started, err) }()

	var borrowingID int64
	err = s.run(ctx, "return", func(tx Tx) error {
		book, err := tx.GetBookForUpdate(ctx, bookID)
		if err != nil {
			return notFound(err, "book", bookID)
		}

		b, err := tx.GetActiveBorrowing(ctx, bookID, userID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return ErrNoActiveBorrowing
			}
			return fmt.Errorf("failed to find active borrowing: %w", err)
		}

		now := s.clock()
		if err := tx.MarkReturned(ctx, b.ID, now); err != nil {
			return fmt.Errorf("failed to mark returned: %w", err)
		}
		if err := tx.UpdateBookAvailability(ctx, bookID, book.Available+1, book.Version); err != nil {
			return fmt.Errorf("failed to update availability: %w", err)
		}

		ev, err := journal.NewEvent(journal.AggregateBorrowing, b.ID, journal.BookReturned, returnedPayload{
			BookID: bookID, UserID: userID, ReturnDate: now,
		}, now)
		if err != nil {
			return err
		}
		if err := tx.AppendEvents(ctx, ev); err != nil {
			return fmt.Errorf("failed to append journal: %w", err)
		}

		borrowingID = b.ID
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "book returned", "borrowing_id", borrowingID, "book_id", bookID, "user_id", userID)
	return nil
}

// accrue recomputes an unpaid fee and persists a changed amount. A fee paid
// in the meantime is reloaded and returned as paid.
func (s *service) accrue(ctx context.Context, tx Tx, fee Fee, now time.Time) (Fee, error) {
	recomputed := RecomputeFee(fee, now, s.cfg.LateFeePerDay)
	if recomputed.Amount.Equal(fee.Amount) {
		return fee, nil
	}

	updated, err := tx.UpdateUnpaidFeeAmount(ctx, fee.ID, recomputed.Amount)
	if err != nil {
		return Fee{}, fmt.Errorf("failed to update fee %d: %w", fee.ID, err)
	}
	if !updated {
		current, err := tx.GetFee(ctx, fee.ID)
		if err != nil {
			return Fee{}, notFound(err, "fee", fee.ID)
		}
		return *current, nil
	}

	ev, err := journal.NewEvent(journal.AggregateFee, fee.ID, journal.FeeAccrued, feePayload{
		BorrowID: fee.BorrowID, UserID: fee.UserID, Amount: recomputed.Amount,
	}, now)
	if err != nil {
		return Fee{}, err
	}
	if err := tx.AppendEvents(ctx, ev); err != nil {
		return Fee{}, fmt.Errorf("failed to append journal: %w", err)
	}
	s.metrics.FeesAccrued.Inc()
	return recomputed, nil
}

// ViewInvoices lists the user's fees after running each unpaid one through
// the accrual rule.
func (s *service) ViewInvoices(ctx context.Context, userID int64) (fees []Fee, err error) {
	ctx, span, started := s.start(ctx, "view_invoices", attribute.Int64("user.id", userID))
	defer func() { s.finish(span, "view_invoices", started, err) }()

	err = s.run(ctx, "view_invoices", func(tx Tx) error {
		fees = nil

		listed, err := tx.ListFees(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list fees: %w", err)
		}

		now := s.clock()
		for i := range listed {
			if listed[i].AlreadyPaid {
				continue
			}
			if listed[i], err = s.accrue(ctx, tx, listed[i], now); err != nil {
				return err
			}
		}
		fees = listed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fees, nil
}

// Pay marks the fee paid, freezing its current amount.
func (s *service) Pay(ctx context.Context, feeID, userID int64) (paid *Fee, err error) {
	ctx, span, started := s.start(ctx, "pay",
		attribute.Int64("fee.id", feeID),
		attribute.Int64("user.id", userID),
	)
	defer func() { s.finish(span, "pay", started, err) }()

	err = s.run(ctx, "pay", func(tx Tx) error {
		paid = nil

		fee, err := tx.GetFee(ctx, feeID)
		if err != nil {
			return notFound(err, "fee", feeID)
		}
		if fee.UserID != userID {
			return fmt.Errorf("%w: fee %d", ErrNotFound, feeID)
		}
		if fee.AlreadyPaid {
			return ErrAlreadyPaid
		}

		flipped, err := tx.MarkFeePaid(ctx, feeID)
		if err != nil {
			return fmt.Errorf("failed to mark fee paid: %w", err)
		}
		if !flipped {
			return ErrAlreadyPaid
		}
		fee.AlreadyPaid = true

		ev, err := journal.NewEvent(journal.AggregateFee, fee.ID, journal.FeePaid, feePayload{
			BorrowID: fee.BorrowID, UserID: userID, Amount: fee.Amount,
		}, s.clock())
		if err != nil {
			return err
		}
		if err := tx.AppendEvents(ctx, ev); err != nil {
			return fmt.Errorf("failed to append journal: %w", err)
		}

		paid = fee
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.FeesPaid.Inc()
	s.logger.InfoContext(ctx, "fee paid", "fee_id", feeID, "user_id", userID, "amount", paid.Amount.String())
	return paid, nil
}

// BuildInvoiceMessage renders the invoice for one of the user's borrowings
// with its fee brought up to date.
func (s *service) BuildInvoiceMessage(ctx context.Context, borrowingID, userID int64) (msg *invoice.Message, err error) {
	ctx, span, started := s.start(ctx, "build_invoice",
		attribute.Int64("borrowing.id", borrowingID),
		attribute.Int64("user.id", userID),
	)
	defer func() { s.finish(span, "build_invoice", started, err) }()

	var rec invoice.Record
	err = s.run(ctx, "build_invoice", func(tx Tx) error {
		b, err := tx.GetBorrowing(ctx, borrowingID)
		if err != nil {
			return notFound(err, "borrowing", borrowingID)
		}
		if b.UserID != userID {
			return fmt.Errorf("%w: borrowing %d", ErrNotFound, borrowingID)
		}

		fee, err := tx.GetFeeByBorrowing(ctx, borrowingID)
		if err != nil {
			return notFound(err, "fee for borrowing", borrowingID)
		}
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return notFound(err, "user", userID)
		}

		current, err := s.accrue(ctx, tx, *fee, s.clock())
		if err != nil {
			return err
		}

		rec = invoice.Record{
			BorrowingID: b.ID,
			BorrowDate:  b.BorrowDate.In(s.cfg.Location),
			UserName:    user.UserName,
			Amount:      current.Amount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.builder.Build(rec)
}

// ParseInboundMessage extracts the invoice fields from text. It touches no
// ledger state.
func (s *service) ParseInboundMessage(text string) (invoice.Fields, error) {
	return invoice.Parse(text)
}

func (s *service) ActiveBorrowings(ctx context.Context, userID int64) ([]HistoryEntry, error) {
	return s.listBorrowings(ctx, "active_borrowings", userID, true)
}

// History lists every borrowing of the user, newest first.
func (s *service) History(ctx context.Context, userID int64) ([]HistoryEntry, error) {
	return s.listBorrowings(ctx, "history", userID, false)
}

func (s *service) listBorrowings(ctx context.Context, op string, userID int64, activeOnly bool) (entries []HistoryEntry, err error) {
	ctx, span, started := s.start(ctx, op, attribute.Int64("user.id", userID))
	defer func() { s.finish(span, op, started, err) }()

	err = s.run(ctx, op, func(tx Tx) error {
		var err error
		entries, err = tx.ListBorrowings(ctx, userID, activeOnly)
		if err != nil {
			return fmt.Errorf("failed to list borrowings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
