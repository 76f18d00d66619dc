package es

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/cqrskit/internal/reflector"
)

type EventMetadata struct {
	// EventID is the deduplication key. It is unique across all events.
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateID   string    `json:"aggregate_id,omitempty"`
	AggregateType string    `json:"aggregate_type,omitempty"`
	// Version is the aggregate version this event produced.
	Version       Version `json:"version,omitempty"`
	UserID        string  `json:"user_id,omitempty"`
	CorrelationID string  `json:"correlation_id,omitempty"`
}

// DomainEvent is an immutable fact about one aggregate. EventType is the
// stable discriminant every registry is keyed by.
type DomainEvent interface {
	EventType() string
	EventMeta() *EventMetadata
	Payload() any
}

// Event is the generic DomainEvent carrying a typed payload.
type Event[T any] struct {
	Type     string        `json:"type"`
	Data     T             `json:"data"`
	Metadata EventMetadata `json:"metadata"`
}

func (e *Event[T]) EventType() string         { return e.Type }
func (e *Event[T]) EventMeta() *EventMetadata { return &e.Metadata }
func (e *Event[T]) Payload() any              { return e.Data }
func (e *Event[T]) payloadPtr() any           { return &e.Data }

type EventOption func(*EventMetadata)

func WithEventID(id string) EventOption {
	return func(m *EventMetadata) { m.EventID = id }
}

func WithTimestamp(ts time.Time) EventOption {
	return func(m *EventMetadata) { m.Timestamp = ts }
}

func WithAggregate(aggType, aggID string) EventOption {
	return func(m *EventMetadata) {
		m.AggregateType = aggType
		m.AggregateID = aggID
	}
}

func WithUserID(id string) EventOption {
	return func(m *EventMetadata) { m.UserID = id }
}

func WithCorrelationID(id string) EventOption {
	return func(m *EventMetadata) { m.CorrelationID = id }
}

// NewEvent wraps data in an Event with a fresh id and the current time,
// unless opts set them.
func NewEvent[T any](data T, opts ...EventOption) *Event[T] {
	ev := &Event[T]{Type: EventTypeOf[T](), Data: data}
	for _, opt := range opts {
		opt(&ev.Metadata)
	}
	if ev.Metadata.EventID == "" {
		ev.Metadata.EventID = gonanoid.Must()
	}
	if ev.Metadata.Timestamp.IsZero() {
		ev.Metadata.Timestamp = time.Now()
	}
	return ev
}

// EventTypeOf returns the discriminant for payloads of type T: the result of
// its EventType method if it has one, otherwise the qualified Go type name.
func EventTypeOf[T any]() string {
	var zero T
	if et, ok := any(zero).(interface{ EventType() string }); ok {
		return et.EventType()
	}
	if et, ok := any(&zero).(interface{ EventType() string }); ok {
		return et.EventType()
	}
	return reflector.TypeInfoFor[T]().Name
}
