// Package postgres stores the library in PostgreSQL through lib/pq. Ledger
// transactions run SERIALIZABLE and lost races surface as
// sentinel.ErrConflict.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"onlinelibrary/internal/lending"
	"onlinelibrary/internal/platform/config"
	"onlinelibrary/internal/platform/logger"
	"onlinelibrary/internal/platform/sentinel"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTxTimeout bounds a ledger transaction when the caller set no deadline.
const DefaultTxTimeout = 5 * time.Second

// Postgres error codes the store classifies.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements the catalog, membership, lending and journal stores.
type Store struct {
	db        *sql.DB
	txTimeout time.Duration
	tracer    trace.Tracer
}

// New wraps an open database. A zero txTimeout means DefaultTxTimeout.
func New(db *sql.DB, txTimeout time.Duration) *Store {
	if txTimeout <= 0 {
		txTimeout = DefaultTxTimeout
	}
	return &Store{
		db:        db,
		txTimeout: txTimeout,
		tracer:    otel.Tracer("onlinelibrary/store/postgres"),
	}
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", sentinel.ErrUnavailable, err)
	}
	return db, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

// RunInTx runs fn in a SERIALIZABLE transaction and commits if fn succeeds.
func (s *Store) RunInTx(ctx context.Context, fn func(tx lending.Tx) error) (err error) {
	ctx, span := s.tracer.Start(ctx, "store.tx")
	defer span.End()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Warn("rollback failed", "error", rbErr)
			}
			span.SetAttributes(attribute.Bool("tx.committed", false))
		}
	}()

	if err = fn(&tx{q: sqlTx, store: s}); err != nil {
		return classify(err)
	}
	if err = sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	span.SetAttributes(attribute.Bool("tx.committed", true))
	return nil
}

// classify maps driver errors onto the sentinel errors. Errors that already
// carry a domain meaning pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", sentinel.ErrNotFound, err)
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %v", sentinel.ErrConflict, err)
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", sentinel.ErrDuplicate, pqErr.Constraint)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %s", sentinel.ErrNotFound, pqErr.Constraint)
	default:
		return err
	}
}

// notFound turns sql.ErrNoRows into sentinel.ErrNotFound and classifies the
// rest.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	return classify(err)
}
