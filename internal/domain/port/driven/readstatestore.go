package driven

import "context"

// ReadStateStore defines the driven port for the set of acknowledged
// activity IDs. Its lifecycle is independent of the activity feed: an ID
// may remain marked read after its activity has been truncated out of
// the store, which is harmless.
type ReadStateStore interface {
	// MarkRead adds an ID to the read set. Idempotent.
	MarkRead(ctx context.Context, id string) error
	// MarkUnread removes an ID from the read set. No-op if absent.
	MarkUnread(ctx context.Context, id string) error
	// ReplaceAll replaces the read set with exactly the given IDs.
	ReplaceAll(ctx context.Context, ids []string) error
	// ListIDs returns the read set as a lookup map.
	ListIDs(ctx context.Context) (map[string]struct{}, error)
}
