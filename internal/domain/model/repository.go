package model

import "time"

// Repository represents a GitHub repository watched by devwatch.
// FullName is case-preserving and compared exactly as supplied.
type Repository struct {
	ID       int64
	FullName string
	Owner    string
	Name     string
	AddedAt  time.Time
}
