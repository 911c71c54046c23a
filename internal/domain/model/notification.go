package model

// Notification is one grouped, user-facing message summarizing the new
// activities accepted for a single repository during one sync pass.
type Notification struct {
	RepoFullName string `json:"repo_full_name"`
	Summary      string `json:"summary"` // e.g. "2 new prs, 1 new issue"
	URL          string `json:"url"`     // First activity's URL; click target.
	Count        int    `json:"count"`   // Total activities in the group.
}
