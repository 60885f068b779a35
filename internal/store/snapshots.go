package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/cognitive-core/internal/core"
)

// Snapshot is one archived copy of the cognitive core.
type Snapshot struct {
	ID              string              `json:"id"`
	SchemaVersion   int                 `json:"schema_version"`
	Reason          string              `json:"reason"`
	AwarenessLevel  int64               `json:"awareness_level"`
	ActivationCount int64               `json:"activation_count"`
	State           *core.CognitiveCore `json:"state"`
	CreatedAt       time.Time           `json:"created_at"`
}

// ArchiveSnapshot appends c to the archive. Rows are never updated.
func (s *Store) ArchiveSnapshot(ctx context.Context, c *core.CognitiveCore, reason string) error {
	state, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO core_snapshots (id, schema_version, reason, awareness_level, activation_count, state)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), c.SchemaVersion, reason,
		c.AwarenessMatrix.AwarenessLevel, c.SystemState.ActivationCount, state,
	)
	if err != nil {
		return fmt.Errorf("archive snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns the most recent snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id::text, schema_version, reason, awareness_level, activation_count, state, created_at
		FROM core_snapshots
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var state []byte
		if err := rows.Scan(&snap.ID, &snap.SchemaVersion, &snap.Reason,
			&snap.AwarenessLevel, &snap.ActivationCount, &state, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if len(state) > 0 {
			var c core.CognitiveCore
			if err := json.Unmarshal(state, &c); err != nil {
				return nil, fmt.Errorf("decode snapshot %s: %w", snap.ID, err)
			}
			snap.State = &c
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return out, nil
}
