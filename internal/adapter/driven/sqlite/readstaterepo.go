package sqlite

import (
	"context"
	"fmt"

	"github.com/jonmartin721/devwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ReadStateStore = (*ReadStateRepo)(nil)

// ReadStateRepo is the SQLite implementation of the ReadStateStore port interface.
type ReadStateRepo struct {
	db *DB
}

// NewReadStateRepo creates a new ReadStateRepo backed by the given DB.
func NewReadStateRepo(db *DB) *ReadStateRepo {
	return &ReadStateRepo{db: db}
}

// MarkRead adds an activity ID to the read set. Idempotent -- marking an
// already-read ID succeeds silently.
func (r *ReadStateRepo) MarkRead(ctx context.Context, id string) error {
	const query = `INSERT OR IGNORE INTO read_state (activity_id) VALUES (?)`
	_, err := r.db.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark read %s: %w", id, err)
	}
	return nil
}

// MarkUnread removes an activity ID from the read set. No-op if absent.
func (r *ReadStateRepo) MarkUnread(ctx context.Context, id string) error {
	const query = `DELETE FROM read_state WHERE activity_id = ?`
	_, err := r.db.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark unread %s: %w", id, err)
	}
	return nil
}

// ReplaceAll replaces the read set with exactly the given IDs in a single
// transaction.
func (r *ReadStateRepo) ReplaceAll(ctx context.Context, ids []string) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace read state: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM read_state`); err != nil {
		return fmt.Errorf("clear read state: %w", err)
	}

	const query = `INSERT INTO read_state (activity_id) VALUES (?)`
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("insert read state %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace read state: %w", err)
	}
	return nil
}

// ListIDs returns the read set as a lookup map.
func (r *ReadStateRepo) ListIDs(ctx context.Context) (map[string]struct{}, error) {
	const query = `SELECT activity_id FROM read_state`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list read state: %w", err)
	}
	defer rows.Close()

	result := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan read state: %w", err)
		}
		result[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate read state: %w", err)
	}
	return result, nil
}
