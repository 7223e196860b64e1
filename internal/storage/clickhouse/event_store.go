package clickhouse

import (
	"context"
	"fmt"

	"sai-swap/internal/domain"
	"sai-swap/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists for the state.
func (s *EventStore) Insert(ctx context.Context, e *domain.Event) error {
	if e == nil || e.EventID == "" || !e.Kind.IsValid() {
		return storage.ErrInvalidInput
	}

	// MergeTree does not enforce uniqueness
	exists, err := s.exists(ctx, e.StateKey, e.EventID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO swap_events (
			event_id, state_key, kind, actor, asset, amount, price, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		e.EventID, e.StateKey.String(), string(e.Kind), e.Actor.String(),
		e.Asset, e.Amount, e.Price, e.TimestampMs,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByStateKey retrieves all events for a state, ordered by timestamp ASC.
func (s *EventStore) GetByStateKey(ctx context.Context, stateKey domain.PublicKey) ([]*domain.Event, error) {
	query := `
		SELECT event_id, state_key, kind, actor, asset, amount, price, timestamp_ms
		FROM swap_events FINAL
		WHERE state_key = ?
		ORDER BY timestamp_ms ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query, stateKey.String())
	if err != nil {
		return nil, fmt.Errorf("query by state key: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByTimeRange retrieves events for a state within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(ctx context.Context, stateKey domain.PublicKey, start, end int64) ([]*domain.Event, error) {
	query := `
		SELECT event_id, state_key, kind, actor, asset, amount, price, timestamp_ms
		FROM swap_events FINAL
		WHERE state_key = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query, stateKey.String(), start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// exists checks if an event with the given id exists.
func (s *EventStore) exists(ctx context.Context, stateKey domain.PublicKey, eventID string) (bool, error) {
	query := `
		SELECT count(*) FROM swap_events
		WHERE state_key = ? AND event_id = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, stateKey.String(), eventID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanEvents scans multiple rows.
func scanEvents(rows chRows) ([]*domain.Event, error) {
	var events []*domain.Event

	for rows.Next() {
		var (
			e                     domain.Event
			stateKey, kind, actor string
		)

		err := rows.Scan(
			&e.EventID, &stateKey, &kind, &actor,
			&e.Asset, &e.Amount, &e.Price, &e.TimestampMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan swap event row: %w", err)
		}

		if e.StateKey, err = domain.ParsePublicKey(stateKey); err != nil {
			return nil, fmt.Errorf("scan swap event row: %w", err)
		}
		if e.Actor, err = domain.ParsePublicKey(actor); err != nil {
			return nil, fmt.Errorf("scan swap event row: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap event rows: %w", err)
	}

	return events, nil
}

type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}
