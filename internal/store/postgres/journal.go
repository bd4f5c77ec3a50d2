package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"onlinelibrary/internal/journal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const eventColumns = `sequence, id, aggregate_type, aggregate_id, event_type, event_data, metadata, created_at`

// appendEvents inserts events inside the caller's transaction. The journal
// sequence is assigned by the database.
func (s *Store) appendEvents(ctx context.Context, q querier, events []journal.Event) error {
	ctx, span := s.tracer.Start(ctx, "journal.append",
		trace.WithAttributes(attribute.Int("event.count", len(events))),
	)
	defer span.End()

	for i, ev := range events {
		var metadata any
		if ev.Metadata != nil {
			raw, err := json.Marshal(ev.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata of event %d: %w", i, err)
			}
			metadata = string(raw)
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = time.Now().UTC()
		}

		var sequence int64
		err := q.QueryRowContext(ctx, `
			INSERT INTO journal (id, aggregate_type, aggregate_id, event_type, event_data, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING sequence`,
			ev.ID, ev.AggregateType, ev.AggregateID, ev.EventType, string(ev.EventData), metadata, ev.CreatedAt,
		).Scan(&sequence)
		if err != nil {
			return classify(fmt.Errorf("insert event %d: %w", i, err))
		}

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.sequence", sequence),
			attribute.String("event.type", ev.EventType),
		))
	}
	return nil
}

func (s *Store) StreamEvents(ctx context.Context, afterSequence int64, limit int) ([]journal.Event, error) {
	return s.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM journal
		WHERE sequence > $1
		ORDER BY sequence ASC
		LIMIT $2`, afterSequence, limit)
}

func (s *Store) LoadEvents(ctx context.Context, aggregateType string, aggregateID int64) ([]journal.Event, error) {
	return s.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM journal
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY sequence ASC`, aggregateType, aggregateID)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]journal.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("query events: %w", err))
	}
	defer rows.Close()

	var events []journal.Event
	for rows.Next() {
		var (
			ev       journal.Event
			data     []byte
			metadata []byte
		)
		if err := rows.Scan(&ev.Sequence, &ev.ID, &ev.AggregateType, &ev.AggregateID, &ev.EventType,
			&data, &metadata, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.EventData = json.RawMessage(data)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of event %d: %w", ev.Sequence, err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
