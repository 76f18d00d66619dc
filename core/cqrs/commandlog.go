package cqrs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// CommandLogEntry records one committed command.
type CommandLogEntry struct {
	CommandID     string          `json:"command_id"`
	CommandType   string          `json:"command_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	UserID        string          `json:"user_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	EventIDs      []string        `json:"event_ids"`
	ExecutedAt    time.Time       `json:"executed_at"`
}

type CommandLogStore interface {
	Save(ctx context.Context, entry CommandLogEntry) error
}

// NewCommandLogEntry describes cmd and the events it committed.
func NewCommandLogEntry(cmd Command, res *Result) (CommandLogEntry, error) {
	payload, err := json.Marshal(cmd.Payload())
	if err != nil {
		return CommandLogEntry{}, fmt.Errorf("encode command %s: %w", cmd.CommandType(), err)
	}
	meta := cmd.CommandMeta()
	entry := CommandLogEntry{
		CommandID:     meta.CommandID,
		CommandType:   cmd.CommandType(),
		AggregateID:   meta.AggregateID,
		UserID:        meta.UserID,
		CorrelationID: meta.CorrelationID,
		Payload:       payload,
		EventIDs:      []string{},
		ExecutedAt:    time.Now(),
	}
	if res != nil {
		if res.Aggregate != nil {
			entry.AggregateType = res.Aggregate.GetAggType()
		}
		for _, ev := range res.Events {
			entry.EventIDs = append(entry.EventIDs, ev.EventMeta().EventID)
		}
	}
	return entry, nil
}

// NewCommandLogMiddleware records every command that completed the rest of
// the chain. A failure to record fails the dispatch, after the command was
// committed.
func NewCommandLogMiddleware(store CommandLogStore) Middleware {
	return Named("commandlog", func(ctx context.Context, cmd Command, next Next) (*Result, error) {
		res, err := next(ctx, cmd)
		if err != nil {
			return res, err
		}
		entry, err := NewCommandLogEntry(cmd, res)
		if err != nil {
			return res, err
		}
		if err := store.Save(ctx, entry); err != nil {
			return res, fmt.Errorf("command log: %w", err)
		}
		return res, nil
	})
}

// InMemoryCommandLog keeps entries in memory in save order.
type InMemoryCommandLog struct {
	mu      sync.Mutex
	entries []CommandLogEntry
}

func NewInMemoryCommandLog() *InMemoryCommandLog { return &InMemoryCommandLog{} }

func (l *InMemoryCommandLog) Save(_ context.Context, entry CommandLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *InMemoryCommandLog) Entries() []CommandLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CommandLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

var _ CommandLogStore = (*InMemoryCommandLog)(nil)
