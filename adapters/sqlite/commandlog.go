package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/codewandler/cqrskit/core/cqrs"
)

// CommandLog is a cqrs.CommandLogStore over the command_log table.
type CommandLog struct {
	store *Store
}

func (s *Store) CommandLog() *CommandLog { return &CommandLog{store: s} }

func (l *CommandLog) Save(ctx context.Context, entry cqrs.CommandLogEntry) error {
	err := l.store.exec(ctx,
		`INSERT INTO command_log (
		   command_id, command_type, aggregate_type, aggregate_id, user_id,
		   correlation_id, payload, event_ids, executed_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.CommandID, entry.CommandType, entry.AggregateType, entry.AggregateID, entry.UserID,
		entry.CorrelationID, []byte(entry.Payload), strings.Join(entry.EventIDs, ","), toMillis(entry.ExecutedAt),
	)
	if isConstraintError(err) {
		return fmt.Errorf("command %s already logged: %w", entry.CommandID, err)
	}
	return err
}

// ForAggregate returns the logged commands of one aggregate, oldest first.
func (l *CommandLog) ForAggregate(ctx context.Context, aggType, aggID string) ([]cqrs.CommandLogEntry, error) {
	rows, err := l.store.sqlDB.QueryContext(ctx,
		`SELECT command_id, command_type, user_id, correlation_id, payload, event_ids, executed_at
		   FROM command_log
		  WHERE aggregate_type = ? AND aggregate_id = ?
		  ORDER BY executed_at, rowid`,
		aggType, aggID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cqrs.CommandLogEntry
	for rows.Next() {
		e := cqrs.CommandLogEntry{AggregateType: aggType, AggregateID: aggID}
		var (
			payload    []byte
			eventIDs   string
			executedAt int64
		)
		if err := rows.Scan(&e.CommandID, &e.CommandType, &e.UserID, &e.CorrelationID, &payload, &eventIDs, &executedAt); err != nil {
			return nil, err
		}
		e.Payload = payload
		if eventIDs != "" {
			e.EventIDs = strings.Split(eventIDs, ",")
		}
		e.ExecutedAt = fromMillis(executedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ cqrs.CommandLogStore = (*CommandLog)(nil)
