package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/codewandler/cqrskit/core/es"
)

// StateStore keeps the latest snapshot per aggregate.
type StateStore struct {
	store *Store
}

func (s *Store) StateStore() *StateStore { return &StateStore{store: s} }

func (s *StateStore) Get(ctx context.Context, aggType, aggID string) (*es.Snapshot, error) {
	ss := &es.Snapshot{ObjType: aggType, ObjID: aggID}
	var (
		version   int64
		createdAt int64
		data      []byte
	)
	err := s.store.sqlDB.QueryRowContext(ctx,
		`SELECT snapshot_id, version, schema_version, encoding, created_at, data
		   FROM snapshots
		  WHERE aggregate_type = ? AND aggregate_id = ?`,
		aggType, aggID,
	).Scan(&ss.SnapshotID, &version, &ss.SchemaVersion, &ss.Encoding, &createdAt, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, es.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s/%s: %w", aggType, aggID, err)
	}
	ss.ObjVersion = es.Version(version)
	ss.CreatedAt = fromMillis(createdAt)
	ss.Data = data
	return ss, nil
}

func (s *StateStore) Save(ctx context.Context, aggType, aggID string, ss *es.Snapshot) error {
	err := s.store.exec(ctx,
		`INSERT INTO snapshots (
		   aggregate_type, aggregate_id, snapshot_id, version, schema_version, encoding, created_at, data
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (aggregate_type, aggregate_id) DO UPDATE SET
		   snapshot_id = excluded.snapshot_id,
		   version = excluded.version,
		   schema_version = excluded.schema_version,
		   encoding = excluded.encoding,
		   created_at = excluded.created_at,
		   data = excluded.data`,
		aggType, aggID, ss.SnapshotID, int64(ss.ObjVersion), ss.SchemaVersion, ss.Encoding,
		toMillis(ss.CreatedAt), []byte(ss.Data),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s/%s: %w", aggType, aggID, err)
	}
	return nil
}

var _ es.StateStore = (*StateStore)(nil)
