package driven

import (
	"context"
	"time"

	"github.com/jonmartin721/devwatch/internal/domain/model"
)

// ExclusionStore defines the driven port for the mute and snooze lists.
// A repository may be both muted and snoozed at the same time; the
// resolver treats exclusion as their union.
type ExclusionStore interface {
	// Mute adds a repository to the mute list. Idempotent.
	Mute(ctx context.Context, repoFullName string) error
	// Unmute removes a repository from the mute list. No-op if absent.
	Unmute(ctx context.Context, repoFullName string) error
	// ListMutes returns all mutes ordered by repository name.
	ListMutes(ctx context.Context) ([]model.Mute, error)

	// Snooze sets or replaces a repository's snooze expiry.
	Snooze(ctx context.Context, repoFullName string, expiresAt time.Time) error
	// Unsnooze removes a repository's snooze. No-op if absent.
	Unsnooze(ctx context.Context, repoFullName string) error
	// ListSnoozes returns all snoozes, including expired ones not yet pruned.
	ListSnoozes(ctx context.Context) ([]model.Snooze, error)
	// DeleteExpiredSnoozes removes snoozes with expiresAt <= now and
	// returns how many were removed.
	DeleteExpiredSnoozes(ctx context.Context, now time.Time) (int, error)
}
