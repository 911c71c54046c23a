package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jonmartin721/devwatch/internal/domain/model"
	"github.com/jonmartin721/devwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ExclusionStore = (*ExclusionRepo)(nil)

// ExclusionRepo is the SQLite implementation of the ExclusionStore port
// interface, backing both the mute list and the snooze list.
type ExclusionRepo struct {
	db *DB
}

// NewExclusionRepo creates a new ExclusionRepo backed by the given DB.
func NewExclusionRepo(db *DB) *ExclusionRepo {
	return &ExclusionRepo{db: db}
}

// Mute adds a repository to the mute list. Idempotent -- muting an
// already-muted repository succeeds silently.
func (r *ExclusionRepo) Mute(ctx context.Context, repoFullName string) error {
	const query = `INSERT OR IGNORE INTO mutes (repo_full_name, muted_at) VALUES (?, ?)`
	_, err := r.db.Writer.ExecContext(ctx, query, repoFullName, time.Now().UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("mute %s: %w", repoFullName, err)
	}
	return nil
}

// Unmute removes a repository from the mute list. No-op if not muted.
func (r *ExclusionRepo) Unmute(ctx context.Context, repoFullName string) error {
	const query = `DELETE FROM mutes WHERE repo_full_name = ?`
	_, err := r.db.Writer.ExecContext(ctx, query, repoFullName)
	if err != nil {
		return fmt.Errorf("unmute %s: %w", repoFullName, err)
	}
	return nil
}

// ListMutes returns all mutes ordered by repository name.
func (r *ExclusionRepo) ListMutes(ctx context.Context) ([]model.Mute, error) {
	const query = `SELECT id, repo_full_name, muted_at FROM mutes ORDER BY repo_full_name`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list mutes: %w", err)
	}
	defer rows.Close()

	var mutes []model.Mute
	for rows.Next() {
		var m model.Mute
		var mutedAt string
		if err := rows.Scan(&m.ID, &m.RepoFullName, &mutedAt); err != nil {
			return nil, fmt.Errorf("scan mute: %w", err)
		}
		m.MutedAt, err = parseTime(mutedAt)
		if err != nil {
			return nil, fmt.Errorf("parse muted_at for %s: %w", m.RepoFullName, err)
		}
		mutes = append(mutes, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mutes: %w", err)
	}
	return mutes, nil
}

// Snooze sets or replaces a repository's snooze expiry.
func (r *ExclusionRepo) Snooze(ctx context.Context, repoFullName string, expiresAt time.Time) error {
	const query = `
		INSERT INTO snoozes (repo_full_name, expires_at) VALUES (?, ?)
		ON CONFLICT(repo_full_name) DO UPDATE SET expires_at = excluded.expires_at
	`
	_, err := r.db.Writer.ExecContext(ctx, query, repoFullName, expiresAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("snooze %s: %w", repoFullName, err)
	}
	return nil
}

// Unsnooze removes a repository's snooze. No-op if not snoozed.
func (r *ExclusionRepo) Unsnooze(ctx context.Context, repoFullName string) error {
	const query = `DELETE FROM snoozes WHERE repo_full_name = ?`
	_, err := r.db.Writer.ExecContext(ctx, query, repoFullName)
	if err != nil {
		return fmt.Errorf("unsnooze %s: %w", repoFullName, err)
	}
	return nil
}

// ListSnoozes returns all snoozes, including any expired entries that
// have not been pruned yet, ordered by repository name.
func (r *ExclusionRepo) ListSnoozes(ctx context.Context) ([]model.Snooze, error) {
	const query = `SELECT id, repo_full_name, expires_at FROM snoozes ORDER BY repo_full_name`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list snoozes: %w", err)
	}
	defer rows.Close()

	var snoozes []model.Snooze
	for rows.Next() {
		var s model.Snooze
		var expiresAt string
		if err := rows.Scan(&s.ID, &s.RepoFullName, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan snooze: %w", err)
		}
		s.ExpiresAt, err = parseTime(expiresAt)
		if err != nil {
			return nil, fmt.Errorf("parse expires_at for %s: %w", s.RepoFullName, err)
		}
		snoozes = append(snoozes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snoozes: %w", err)
	}
	return snoozes, nil
}

// DeleteExpiredSnoozes removes snoozes with expires_at <= now and returns
// how many were removed. The statement only touches lapsed rows, so no
// write happens when nothing has expired.
func (r *ExclusionRepo) DeleteExpiredSnoozes(ctx context.Context, now time.Time) (int, error) {
	const query = `DELETE FROM snoozes WHERE expires_at <= ?`

	result, err := r.db.Writer.ExecContext(ctx, query, now.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("delete expired snoozes: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return int(rows), nil
}
