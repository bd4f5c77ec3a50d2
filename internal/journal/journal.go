// Package journal is the append-only audit trail of ledger writes. Events are
// appended inside the same store transaction as the change they describe;
// nothing reads them back for correctness.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	AggregateBorrowing = "borrowing"
	AggregateFee       = "fee"

	BookBorrowed = "BookBorrowed"
	BookReturned = "BookReturned"
	FeeAccrued   = "FeeAccrued"
	FeePaid      = "FeePaid"

	DefaultStreamLimit = 100
	MaxStreamLimit     = 1000
)

// Event is one journal entry. Sequence is assigned by the store on append and
// orders events globally.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	Sequence      int64           `json:"sequence"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   int64           `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewEvent marshals data into a new event with a fresh ID.
func NewEvent(aggregateType string, aggregateID int64, eventType string, data any, at time.Time) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s event data: %w", eventType, err)
	}
	return Event{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		EventData:     raw,
		CreatedAt:     at.UTC(),
	}, nil
}

// Store reads events back.
type Store interface {
	StreamEvents(ctx context.Context, afterSequence int64, limit int) ([]Event, error)
	LoadEvents(ctx context.Context, aggregateType string, aggregateID int64) ([]Event, error)
}

// Reader serves the journal to operators.
type Reader struct {
	store  Store
	tracer trace.Tracer
}

func NewReader(store Store) *Reader {
	return &Reader{
		store:  store,
		tracer: otel.Tracer("onlinelibrary/journal"),
	}
}

// Stream returns up to limit events with a sequence above afterSequence.
func (r *Reader) Stream(ctx context.Context, afterSequence int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultStreamLimit
	}
	if limit > MaxStreamLimit {
		limit = MaxStreamLimit
	}

	ctx, span := r.tracer.Start(ctx, "journal.stream",
		trace.WithAttributes(
			attribute.Int64("after.sequence", afterSequence),
			attribute.Int("batch.size", limit),
		),
	)
	defer span.End()

	events, err := r.store.StreamEvents(ctx, afterSequence, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to stream events: %w", err)
	}
	span.SetAttributes(attribute.Int("events.streamed", len(events)))
	return events, nil
}

// Load returns every event of one aggregate in append order.
func (r *Reader) Load(ctx context.Context, aggregateType string, aggregateID int64) ([]Event, error) {
	ctx, span := r.tracer.Start(ctx, "journal.load",
		trace.WithAttributes(
			attribute.String("aggregate.type", aggregateType),
			attribute.Int64("aggregate.id", aggregateID),
		),
	)
	defer span.End()

	events, err := r.store.LoadEvents(ctx, aggregateType, aggregateID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}
