package cqrs

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/cqrskit/core/es"
	"github.com/codewandler/cqrskit/internal/reflector"
)

type CommandMetadata struct {
	CommandID     string    `json:"command_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	UserID        string    `json:"user_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	// AggregateID addresses the target aggregate. Required for dispatch.
	AggregateID string `json:"aggregate_id"`
}

// Command is an intent to change one aggregate. CommandType is the stable
// discriminant bindings are keyed by.
type Command interface {
	CommandType() string
	CommandMeta() *CommandMetadata
	Payload() any
}

// Cmd is the generic Command carrying a typed payload.
type Cmd[T any] struct {
	Type     string          `json:"type"`
	Data     T               `json:"data"`
	Metadata CommandMetadata `json:"metadata"`
}

func (c *Cmd[T]) CommandType() string           { return c.Type }
func (c *Cmd[T]) CommandMeta() *CommandMetadata { return &c.Metadata }
func (c *Cmd[T]) Payload() any                  { return c.Data }

type CommandOption func(*CommandMetadata)

func WithCommandID(id string) CommandOption {
	return func(m *CommandMetadata) { m.CommandID = id }
}

func WithUser(id string) CommandOption {
	return func(m *CommandMetadata) { m.UserID = id }
}

func WithCorrelation(id string) CommandOption {
	return func(m *CommandMetadata) { m.CorrelationID = id }
}

// NewCommand addresses data to aggregateID.
func NewCommand[T any](data T, aggregateID string, opts ...CommandOption) *Cmd[T] {
	c := &Cmd[T]{
		Type: CommandTypeOf[T](),
		Data: data,
		Metadata: CommandMetadata{
			AggregateID: aggregateID,
			Timestamp:   time.Now(),
		},
	}
	for _, opt := range opts {
		opt(&c.Metadata)
	}
	if c.Metadata.CommandID == "" {
		c.Metadata.CommandID = gonanoid.Must()
	}
	return c
}

// CommandTypeOf returns the discriminant for payloads of type T: the result
// of its CommandType method if it has one, otherwise the qualified Go type
// name.
func CommandTypeOf[T any]() string {
	var zero T
	if ct, ok := any(zero).(interface{ CommandType() string }); ok {
		return ct.CommandType()
	}
	if ct, ok := any(&zero).(interface{ CommandType() string }); ok {
		return ct.CommandType()
	}
	return reflector.TypeInfoFor[T]().Name
}

// EventFor creates an event caused by cmd. User and correlation id are
// carried over; the command id correlates when cmd has no correlation id.
func EventFor[T any](cmd Command, data T, opts ...es.EventOption) *es.Event[T] {
	meta := cmd.CommandMeta()
	corr := meta.CorrelationID
	if corr == "" {
		corr = meta.CommandID
	}
	base := []es.EventOption{es.WithUserID(meta.UserID), es.WithCorrelationID(corr)}
	return es.NewEvent(data, append(base, opts...)...)
}
