package model

import (
	"fmt"
	"time"
)

// Category identifies the kind of repository event an Activity represents.
type Category string

const (
	CategoryPullRequest Category = "pull_request"
	CategoryIssue       Category = "issue"
	CategoryRelease     Category = "release"
)

// AllCategories lists every category in canonical order. The order matters
// for notification summaries, which preserve encounter order of categories.
var AllCategories = []Category{CategoryPullRequest, CategoryIssue, CategoryRelease}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryPullRequest, CategoryIssue, CategoryRelease:
		return true
	}
	return false
}

// Label returns the short human-readable noun used in notification
// summaries ("pr", "issue", "release").
func (c Category) Label() string {
	switch c {
	case CategoryPullRequest:
		return "pr"
	case CategoryIssue:
		return "issue"
	case CategoryRelease:
		return "release"
	}
	return string(c)
}

// Activity is the unit of the feed: one new pull request, issue, or
// release observed in a watched repository.
type Activity struct {
	ID              string
	Category        Category
	RepoFullName    string
	Number          int64 // PR/issue number, or release ID.
	Title           string
	URL             string
	Body            string // Release notes markdown; empty for PRs and issues.
	Author          string
	AuthorAvatarURL string
	CreatedAt       time.Time
}

// ActivityID derives the stable identity key for an activity. The same
// upstream event always maps to the same ID across fetches, which makes
// the ID the sole deduplication key for the feed.
func ActivityID(category Category, repoFullName string, number int64) string {
	return fmt.Sprintf("%s:%s:%d", category, repoFullName, number)
}
