package es

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const snapshotSchemaVersion = 1

// Snapshot is a persisted materialization of an aggregate's state.
type Snapshot struct {
	SnapshotID string `json:"snapshot_id"`

	ObjID      string  `json:"obj_id"`
	ObjType    string  `json:"obj_type"`
	ObjVersion Version `json:"obj_version"`

	CreatedAt     time.Time       `json:"created_at"`
	SchemaVersion int             `json:"schema_version"`
	Encoding      string          `json:"encoding"`
	Data          json.RawMessage `json:"data"`
}

func (s *Snapshot) LogAttrs() slog.Attr {
	return slog.Group(
		"snapshot",
		slog.String("id", s.SnapshotID),
		slog.String("obj_type", s.ObjType),
		slog.String("obj_id", s.ObjID),
		s.ObjVersion.SlogAttrWithKey("obj_version"),
		slog.Int("size", len(s.Data)),
	)
}

// CreateSnapshot captures the current state and version of agg.
func CreateSnapshot(agg Aggregate) (*Snapshot, error) {
	data, err := agg.Serialize()
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	return &Snapshot{
		SnapshotID:    gonanoid.Must(),
		ObjID:         agg.GetID(),
		ObjType:       agg.GetAggType(),
		ObjVersion:    agg.GetVersion(),
		CreatedAt:     time.Now(),
		SchemaVersion: snapshotSchemaVersion,
		Encoding:      "json",
		Data:          data,
	}, nil
}

// RestoreSnapshot loads the state and version of ss into agg.
func RestoreSnapshot(agg Aggregate, ss *Snapshot) error {
	if ss.Encoding != "" && ss.Encoding != "json" {
		return fmt.Errorf("restore snapshot %s: unsupported encoding %q", ss.SnapshotID, ss.Encoding)
	}
	if err := agg.Deserialize(ss.Data); err != nil {
		return fmt.Errorf("restore snapshot %s: %w", ss.SnapshotID, err)
	}
	agg.setVersion(ss.ObjVersion)
	return nil
}
