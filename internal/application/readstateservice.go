package application

import (
	"context"
	"fmt"

	"github.com/jonmartin721/devwatch/internal/domain/port/driven"
)

// ReadStateService tracks which feed entries the user has acknowledged
// and derives the unread count for the badge.
type ReadStateService struct {
	activities driven.ActivityStore
	readState  driven.ReadStateStore
}

// NewReadStateService creates a ReadStateService over the given stores.
func NewReadStateService(activities driven.ActivityStore, readState driven.ReadStateStore) *ReadStateService {
	return &ReadStateService{activities: activities, readState: readState}
}

// MarkRead marks one activity as read. Idempotent.
func (s *ReadStateService) MarkRead(ctx context.Context, id string) error {
	return s.readState.MarkRead(ctx, id)
}

// MarkUnread marks one activity as unread. No-op if it was never read.
func (s *ReadStateService) MarkUnread(ctx context.Context, id string) error {
	return s.readState.MarkUnread(ctx, id)
}

// MarkAllRead replaces the read set with exactly the IDs currently in the
// feed. Read marks for IDs that have been truncated out of the feed are
// deliberately forgotten by the replace.
func (s *ReadStateService) MarkAllRead(ctx context.Context) error {
	activities, err := s.activities.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list activities: %w", err)
	}

	ids := make([]string, 0, len(activities))
	for _, a := range activities {
		ids = append(ids, a.ID)
	}

	return s.readState.ReplaceAll(ctx, ids)
}

// UnreadCount returns the number of feed entries whose ID is absent from
// the read set.
func (s *ReadStateService) UnreadCount(ctx context.Context) (int, error) {
	activities, err := s.activities.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list activities: %w", err)
	}

	readSet, err := s.readState.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list read state: %w", err)
	}

	return CountUnread(activities, readSet), nil
}
