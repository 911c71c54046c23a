package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonmartin721/devwatch/internal/domain/model"
	"github.com/jonmartin721/devwatch/internal/domain/port/driven"
)

// ExclusionService manages the mute and snooze lists and resolves them
// into the set of repositories the sync pass must skip.
type ExclusionService struct {
	store driven.ExclusionStore
}

// NewExclusionService creates an ExclusionService backed by the given store.
func NewExclusionService(store driven.ExclusionStore) *ExclusionService {
	return &ExclusionService{store: store}
}

// Resolve computes the current exclusion set: muted repositories plus
// repositories with an active snooze. Snoozes with expiresAt <= now are
// pruned from storage as a side effect; the delete only touches expired
// rows, so no write happens when nothing has lapsed. Storage failures
// are non-fatal -- the best-effort set computed so far is still returned.
func (s *ExclusionService) Resolve(ctx context.Context, now time.Time) map[string]struct{} {
	excluded := make(map[string]struct{})

	mutes, err := s.store.ListMutes(ctx)
	if err != nil {
		slog.Error("list mutes failed", "error", err)
	}
	for _, m := range mutes {
		excluded[m.RepoFullName] = struct{}{}
	}

	if pruned, err := s.store.DeleteExpiredSnoozes(ctx, now); err != nil {
		slog.Error("prune expired snoozes failed", "error", err)
	} else if pruned > 0 {
		slog.Info("expired snoozes pruned", "count", pruned)
	}

	snoozes, err := s.store.ListSnoozes(ctx)
	if err != nil {
		slog.Error("list snoozes failed", "error", err)
	}
	for _, sn := range snoozes {
		if !sn.Expired(now) {
			excluded[sn.RepoFullName] = struct{}{}
		}
	}

	return excluded
}

// Mute adds a repository to the mute list. Idempotent.
func (s *ExclusionService) Mute(ctx context.Context, repoFullName string) error {
	if err := validateRepoName(repoFullName); err != nil {
		return err
	}
	return s.store.Mute(ctx, repoFullName)
}

// Unmute removes a repository from the mute list.
func (s *ExclusionService) Unmute(ctx context.Context, repoFullName string) error {
	return s.store.Unmute(ctx, repoFullName)
}

// Snooze sets or replaces a repository's snooze expiry. The expiry must
// be in the future relative to now.
func (s *ExclusionService) Snooze(ctx context.Context, repoFullName string, expiresAt, now time.Time) error {
	if err := validateRepoName(repoFullName); err != nil {
		return err
	}
	if !expiresAt.After(now) {
		return fmt.Errorf("snooze expiry %s is not in the future", expiresAt.Format(time.RFC3339))
	}
	return s.store.Snooze(ctx, repoFullName, expiresAt)
}

// Unsnooze removes a repository's snooze.
func (s *ExclusionService) Unsnooze(ctx context.Context, repoFullName string) error {
	return s.store.Unsnooze(ctx, repoFullName)
}

// List returns the mute list and the active snoozes, pruning any snooze
// that has already expired.
func (s *ExclusionService) List(ctx context.Context, now time.Time) ([]model.Mute, []model.Snooze, error) {
	mutes, err := s.store.ListMutes(ctx)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.store.DeleteExpiredSnoozes(ctx, now); err != nil {
		slog.Error("prune expired snoozes failed", "error", err)
	}

	snoozes, err := s.store.ListSnoozes(ctx)
	if err != nil {
		return nil, nil, err
	}

	active := make([]model.Snooze, 0, len(snoozes))
	for _, sn := range snoozes {
		if !sn.Expired(now) {
			active = append(active, sn)
		}
	}

	return mutes, active, nil
}

// validateRepoName rejects identifiers that are not in owner/name form.
func validateRepoName(fullName string) error {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return nil
}
