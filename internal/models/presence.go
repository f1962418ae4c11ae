package models

import "time"

// Tracked page names.
const (
	PageStudent = "student"
	PageAdmin   = "admin"
)

// PresenceRecord is a short-lived liveness row keyed by session id.
type PresenceRecord struct {
	SessionID  string    `db:"session_id" json:"session_id"`
	PageName   string    `db:"page_name" json:"page_name"`
	LastSeenAt time.Time `db:"last_seen_at" json:"last_seen_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
}

// PresenceSnapshot is the advisory online gauge shown to admins.
type PresenceSnapshot struct {
	Online     int            `json:"online"`
	ByPage     map[string]int `json:"by_page,omitempty"`
	Pruned     int64          `json:"pruned"`
	ComputedAt time.Time      `json:"computed_at"`
}
