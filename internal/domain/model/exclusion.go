package model

import "time"

// Mute excludes a repository from the feed indefinitely, until removed
// by the user.
type Mute struct {
	ID           int64
	RepoFullName string
	MutedAt      time.Time
}

// Snooze excludes a repository from the feed until ExpiresAt. Expired
// snoozes are pruned lazily when the exclusion set is resolved, not by
// a background sweep.
type Snooze struct {
	ID           int64
	RepoFullName string
	ExpiresAt    time.Time
}

// Expired reports whether the snooze has lapsed at the given instant.
// A snooze expiring exactly at now is treated as expired.
func (s Snooze) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
