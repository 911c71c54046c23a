package driven

import (
	"context"

	"github.com/jonmartin721/devwatch/internal/domain/model"
)

// ActivityStore defines the driven port for the persisted activity feed.
// The feed is an ordered sequence, newest-first by insertion; the merge
// logic in the application layer owns deduplication, exclusion filtering,
// and the size bound, so the store only persists and reproduces order.
type ActivityStore interface {
	// ReplaceAll atomically replaces the stored feed with the given
	// sequence. Index 0 is the newest entry.
	ReplaceAll(ctx context.Context, activities []model.Activity) error
	// ListAll returns the stored feed, newest first.
	ListAll(ctx context.Context) ([]model.Activity, error)
}
