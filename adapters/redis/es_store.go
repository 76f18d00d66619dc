package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/codewandler/cqrskit/core/es"
)

type EventStoreOption func(*EventStore)

func WithPrefix(prefix string) EventStoreOption {
	return func(s *EventStore) { s.prefix = prefix }
}

func WithLog(log *slog.Logger) EventStoreOption {
	return func(s *EventStore) { s.log = log }
}

// EventStore keeps the log of an aggregate in the list <prefix><type>:<id>.
// Aggregate types must not contain ':'.
type EventStore struct {
	client   redis.UniversalClient
	registry *es.EventRegistry
	prefix   string
	log      *slog.Logger
}

func NewEventStore(client redis.UniversalClient, registry *es.EventRegistry, opts ...EventStoreOption) *EventStore {
	s := &EventStore{client: client, registry: registry, prefix: "es:", log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("store", "redis"))
	return s
}

func (s *EventStore) key(aggType, aggID string) string {
	return s.prefix + aggType + ":" + aggID
}

func (s *EventStore) Load(ctx context.Context, aggType, aggID string) ([]es.DomainEvent, error) {
	return s.LoadAfter(ctx, aggType, aggID, 0)
}

func (s *EventStore) LoadAfter(ctx context.Context, aggType, aggID string, after es.Version) ([]es.DomainEvent, error) {
	if err := es.CheckAggregateType(aggType, ":"); err != nil {
		return nil, err
	}
	raw, err := s.client.LRange(ctx, s.key(aggType, aggID), int64(after), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load %s/%s: %w", aggType, aggID, err)
	}
	events := make([]es.DomainEvent, 0, len(raw))
	for _, item := range raw {
		var env es.Envelope
		if err := json.Unmarshal([]byte(item), &env); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		ev, err := s.registry.Decode(env)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *EventStore) encode(events []es.DomainEvent) ([]any, error) {
	out := make([]any, 0, len(events))
	for _, ev := range events {
		env, err := s.registry.Encode(ev)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(env)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func (s *EventStore) Append(ctx context.Context, aggType, aggID string, events []es.DomainEvent) error {
	if err := es.CheckAggregateType(aggType, ":"); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	values, err := s.encode(events)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.key(aggType, aggID), values...).Err()
}

func (s *EventStore) AppendExpect(ctx context.Context, aggType, aggID string, expected es.Version, events []es.DomainEvent) error {
	if err := es.CheckAggregateType(aggType, ":"); err != nil {
		return err
	}
	values, err := s.encode(events)
	if err != nil {
		return err
	}
	key := s.key(aggType, aggID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.LLen(ctx, key).Result()
		if err != nil {
			return err
		}
		if uint64(n) != expected.Uint64() {
			return fmt.Errorf("%w: %s/%s expected version %d, got %d", es.ErrConcurrencyConflict, aggType, aggID, expected, n)
		}
		if len(values) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, key, values...)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %s/%s changed during append", es.ErrConcurrencyConflict, aggType, aggID)
	}
	return err
}

var (
	_ es.VersionedEventStore = (*EventStore)(nil)
	_ es.TailLoader          = (*EventStore)(nil)
)
