package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonmartin721/devwatch/internal/domain/model"
	"github.com/jonmartin721/devwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SyncStateStore = (*SyncStateRepo)(nil)

// Keys in the sync_state table.
const (
	keyWatermark = "watermark"
	keyRateLimit = "rate_limit"
	keyLastError = "last_error"
)

// SyncStateRepo is the SQLite implementation of the SyncStateStore port
// interface: a small key-value table holding the watermark, the rate-limit
// snapshot, and the structured last error.
type SyncStateRepo struct {
	db *DB
}

// NewSyncStateRepo creates a new SyncStateRepo backed by the given DB.
func NewSyncStateRepo(db *DB) *SyncStateRepo {
	return &SyncStateRepo{db: db}
}

// Watermark returns the last successful sync completion time. ok is false
// when no pass has ever completed.
func (r *SyncStateRepo) Watermark(ctx context.Context) (time.Time, bool, error) {
	raw, ok, err := r.get(ctx, keyWatermark)
	if err != nil || !ok {
		return time.Time{}, false, err
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse watermark: %w", err)
	}
	return t, true, nil
}

// SetWatermark persists the sync completion time.
func (r *SyncStateRepo) SetWatermark(ctx context.Context, t time.Time) error {
	return r.set(ctx, keyWatermark, t.UTC().Format(time.RFC3339Nano))
}

// RateLimit returns the persisted rate-limit snapshot, if any.
func (r *SyncStateRepo) RateLimit(ctx context.Context) (model.RateLimitSnapshot, bool, error) {
	raw, ok, err := r.get(ctx, keyRateLimit)
	if err != nil || !ok {
		return model.RateLimitSnapshot{}, false, err
	}

	var snapshot model.RateLimitSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return model.RateLimitSnapshot{}, false, fmt.Errorf("unmarshal rate limit: %w", err)
	}
	return snapshot, true, nil
}

// SetRateLimit overwrites the persisted rate-limit snapshot.
func (r *SyncStateRepo) SetRateLimit(ctx context.Context, snapshot model.RateLimitSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal rate limit: %w", err)
	}
	return r.set(ctx, keyRateLimit, string(data))
}

// LastError returns the most recent sync error, or nil if none has been
// recorded.
func (r *SyncStateRepo) LastError(ctx context.Context) (*model.SyncError, error) {
	raw, ok, err := r.get(ctx, keyLastError)
	if err != nil || !ok {
		return nil, err
	}

	var syncErr model.SyncError
	if err := json.Unmarshal([]byte(raw), &syncErr); err != nil {
		return nil, fmt.Errorf("unmarshal last error: %w", err)
	}
	return &syncErr, nil
}

// SetLastError overwrites the structured last error record.
func (r *SyncStateRepo) SetLastError(ctx context.Context, syncErr model.SyncError) error {
	data, err := json.Marshal(syncErr)
	if err != nil {
		return fmt.Errorf("marshal last error: %w", err)
	}
	return r.set(ctx, keyLastError, string(data))
}

func (r *SyncStateRepo) get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM sync_state WHERE key = ?`

	var value string
	err := r.db.Reader.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get sync state %q: %w", key, err)
	}
	return value, true, nil
}

func (r *SyncStateRepo) set(ctx context.Context, key, value string) error {
	const query = `INSERT OR REPLACE INTO sync_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`
	_, err := r.db.Writer.ExecContext(ctx, query, key, value)
	if err != nil {
		return fmt.Errorf("set sync state %q: %w", key, err)
	}
	return nil
}
