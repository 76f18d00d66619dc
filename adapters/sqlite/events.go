package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/codewandler/cqrskit/core/es"
)

// EventStore keeps aggregate logs in the events table. seq numbers the
// events of one aggregate from 1; AppendExpect compares against the highest.
type EventStore struct {
	store    *Store
	registry *es.EventRegistry
}

func (s *Store) EventStore(registry *es.EventRegistry) *EventStore {
	return &EventStore{store: s, registry: registry}
}

func (e *EventStore) Load(ctx context.Context, aggType, aggID string) ([]es.DomainEvent, error) {
	return e.LoadAfter(ctx, aggType, aggID, 0)
}

func (e *EventStore) LoadAfter(ctx context.Context, aggType, aggID string, after es.Version) ([]es.DomainEvent, error) {
	rows, err := e.store.sqlDB.QueryContext(ctx,
		`SELECT event_id, event_type, version, occurred_at, user_id, correlation_id, data
		   FROM events
		  WHERE aggregate_type = ? AND aggregate_id = ? AND seq > ?
		  ORDER BY seq`,
		aggType, aggID, int64(after),
	)
	if err != nil {
		return nil, fmt.Errorf("load events %s/%s: %w", aggType, aggID, err)
	}
	defer rows.Close()

	var events []es.DomainEvent
	for rows.Next() {
		env := es.Envelope{AggregateType: aggType, AggregateID: aggID}
		var (
			version    int64
			occurredAt int64
			data       []byte
		)
		if err := rows.Scan(&env.ID, &env.Type, &version, &occurredAt, &env.UserID, &env.CorrelationID, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		env.Version = es.Version(version)
		env.OccurredAt = fromMillis(occurredAt)
		env.Data = json.RawMessage(data)
		ev, err := e.registry.Decode(env)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (e *EventStore) Append(ctx context.Context, aggType, aggID string, events []es.DomainEvent) error {
	return e.append(ctx, aggType, aggID, nil, events)
}

func (e *EventStore) AppendExpect(ctx context.Context, aggType, aggID string, expected es.Version, events []es.DomainEvent) error {
	return e.append(ctx, aggType, aggID, &expected, events)
}

func (e *EventStore) append(ctx context.Context, aggType, aggID string, expected *es.Version, events []es.DomainEvent) error {
	if len(events) == 0 && expected == nil {
		return nil
	}
	envs := make([]es.Envelope, 0, len(events))
	for _, ev := range events {
		env, err := e.registry.Encode(ev)
		if err != nil {
			return err
		}
		envs = append(envs, env)
	}

	tx, err := e.store.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE aggregate_type = ? AND aggregate_id = ?`,
		aggType, aggID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("read sequence: %w", err)
	}
	if expected != nil && uint64(seq) != expected.Uint64() {
		return fmt.Errorf("%w: %s/%s expected version %d, got %d", es.ErrConcurrencyConflict, aggType, aggID, *expected, seq)
	}

	// only a conditional append may report a conflict; for a plain append a
	// constraint or busy error is an ordinary failure
	conflict := func(err error) bool {
		return expected != nil && (isConstraintError(err) || isBusyError(err))
	}
	for _, env := range envs {
		seq++
		if err := insertEvent(ctx, tx, aggType, aggID, seq, env); err != nil {
			if conflict(err) {
				return fmt.Errorf("%w: %s/%s: %v", es.ErrConcurrencyConflict, aggType, aggID, err)
			}
			return fmt.Errorf("append event %s: %w", env.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		if conflict(err) {
			return fmt.Errorf("%w: %s/%s: %v", es.ErrConcurrencyConflict, aggType, aggID, err)
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, aggType, aggID string, seq int64, env es.Envelope) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO events (
		   aggregate_type, aggregate_id, seq, event_id, event_type, version,
		   occurred_at, user_id, correlation_id, data
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		aggType, aggID, seq, env.ID, env.Type, int64(env.Version),
		toMillis(env.OccurredAt), env.UserID, env.CorrelationID, []byte(env.Data),
	)
	return err
}

var (
	_ es.VersionedEventStore = (*EventStore)(nil)
	_ es.TailLoader          = (*EventStore)(nil)
)
