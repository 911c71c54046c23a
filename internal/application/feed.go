package application

import "github.com/jonmartin721/devwatch/internal/domain/model"

// MergeActivities merges freshly fetched activities into the existing feed.
//
// Incoming activities whose ID is already present are dropped; the first-seen
// copy wins and is never overwritten. Activities belonging to an excluded
// repository are dropped from both incoming and existing entries, so muting a
// repository also scrubs history accumulated before the mute. Surviving
// incoming activities are prepended ahead of the existing feed with their
// relative order preserved, and the result is truncated from the tail to
// maxSize.
//
// It returns the merged feed and the accepted delta, which is exactly the
// batch the notification dispatcher should run over.
func MergeActivities(existing, incoming []model.Activity, excluded map[string]struct{}, maxSize int) (merged, accepted []model.Activity) {
	seen := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		seen[a.ID] = struct{}{}
	}

	for _, a := range incoming {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		if _, skip := excluded[a.RepoFullName]; skip {
			continue
		}
		seen[a.ID] = struct{}{}
		accepted = append(accepted, a)
	}

	merged = make([]model.Activity, 0, len(accepted)+len(existing))
	merged = append(merged, accepted...)
	for _, a := range existing {
		if _, skip := excluded[a.RepoFullName]; skip {
			continue
		}
		merged = append(merged, a)
	}

	if len(merged) > maxSize {
		merged = merged[:maxSize]
	}

	return merged, accepted
}

// CountUnread returns how many feed entries are not in the read set.
func CountUnread(activities []model.Activity, readSet map[string]struct{}) int {
	var unread int
	for _, a := range activities {
		if _, ok := readSet[a.ID]; !ok {
			unread++
		}
	}
	return unread
}
