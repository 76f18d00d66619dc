package es

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrUnknownEventType = errors.New("unknown event type")

// Envelope is the storage form of a DomainEvent used by the durable stores.
type Envelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate"`
	AggregateID   string          `json:"aggregate_id"`
	Version       Version         `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	UserID        string          `json:"user_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

func (e Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("envelope id is empty")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("envelope occurred at is zero")
	}
	if e.AggregateID == "" {
		return fmt.Errorf("envelope aggregate id is empty")
	}
	if e.AggregateType == "" {
		return fmt.Errorf("envelope aggregate type is empty")
	}
	if e.Type == "" {
		return fmt.Errorf("envelope type is empty")
	}
	return nil
}

// EventRegistry maps event types to constructors so persisted events can be
// decoded back into their typed form.
type EventRegistry struct {
	mu   sync.RWMutex
	news map[string]func() DomainEvent
}

func NewEventRegistry() *EventRegistry {
	return &EventRegistry{news: map[string]func() DomainEvent{}}
}

func (r *EventRegistry) Register(eventType string, ctor func() DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.news[eventType] = ctor
}

// RegisterEvent registers Event[T] under EventTypeOf[T].
func RegisterEvent[T any](r *EventRegistry) {
	eventType := EventTypeOf[T]()
	r.Register(eventType, func() DomainEvent { return &Event[T]{Type: eventType} })
}

func (r *EventRegistry) Encode(ev DomainEvent) (Envelope, error) {
	data, err := json.Marshal(ev.Payload())
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	meta := ev.EventMeta()
	env := Envelope{
		ID:            meta.EventID,
		Type:          ev.EventType(),
		AggregateType: meta.AggregateType,
		AggregateID:   meta.AggregateID,
		Version:       meta.Version,
		OccurredAt:    meta.Timestamp,
		UserID:        meta.UserID,
		CorrelationID: meta.CorrelationID,
		Data:          data,
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	return env, nil
}

func (r *EventRegistry) Decode(env Envelope) (DomainEvent, error) {
	r.mu.RLock()
	ctor, ok := r.news[env.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.Type)
	}
	ev := ctor()
	if len(env.Data) > 0 {
		target := any(ev)
		if p, ok := ev.(interface{ payloadPtr() any }); ok {
			target = p.payloadPtr()
		}
		if err := json.Unmarshal(env.Data, target); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
	}
	*ev.EventMeta() = EventMetadata{
		EventID:       env.ID,
		Timestamp:     env.OccurredAt,
		AggregateID:   env.AggregateID,
		AggregateType: env.AggregateType,
		Version:       env.Version,
		UserID:        env.UserID,
		CorrelationID: env.CorrelationID,
	}
	return ev, nil
}
