package sqlite

import (
	"context"
	"fmt"

	"github.com/jonmartin721/devwatch/internal/domain/model"
	"github.com/jonmartin721/devwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ActivityStore = (*ActivityRepo)(nil)

// ActivityRepo is the SQLite implementation of the ActivityStore port
// interface. The feed is stored with an explicit position column so the
// application-defined insertion order survives round trips exactly.
type ActivityRepo struct {
	db *DB
}

// NewActivityRepo creates a new ActivityRepo backed by the given DB.
func NewActivityRepo(db *DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

// ReplaceAll atomically replaces the stored feed with the given sequence.
// Index 0 is persisted as position 0 (newest).
func (r *ActivityRepo) ReplaceAll(ctx context.Context, activities []model.Activity) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace activities: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM activities`); err != nil {
		return fmt.Errorf("clear activities: %w", err)
	}

	const query = `
		INSERT INTO activities (
			position, id, category, repo_full_name, number, title, url, body,
			author, author_avatar_url, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for i, a := range activities {
		_, err := tx.ExecContext(ctx, query,
			i, a.ID, string(a.Category), a.RepoFullName, a.Number, a.Title, a.URL, a.Body,
			a.Author, a.AuthorAvatarURL, a.CreatedAt.UTC().Format(timeFormat),
		)
		if err != nil {
			return fmt.Errorf("insert activity %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace activities: %w", err)
	}
	return nil
}

// ListAll returns the stored feed ordered newest first.
func (r *ActivityRepo) ListAll(ctx context.Context) ([]model.Activity, error) {
	const query = `
		SELECT id, category, repo_full_name, number, title, url, body,
		       author, author_avatar_url, created_at
		FROM activities ORDER BY position
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []model.Activity
	for rows.Next() {
		var a model.Activity
		var category, createdAt string

		err := rows.Scan(&a.ID, &category, &a.RepoFullName, &a.Number, &a.Title, &a.URL, &a.Body,
			&a.Author, &a.AuthorAvatarURL, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}

		a.Category = model.Category(category)
		a.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for activity %s: %w", a.ID, err)
		}

		activities = append(activities, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}

	return activities, nil
}
