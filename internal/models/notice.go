package models

import "time"

// NoticePriority defines ordering for notices.
type NoticePriority string

const (
	NoticePriorityLow    NoticePriority = "LOW"
	NoticePriorityNormal NoticePriority = "NORMAL"
	NoticePriorityHigh   NoticePriority = "HIGH"
)

// Notice represents a persisted notice board entry.
type Notice struct {
	ID          string         `db:"id" json:"id"`
	Title       string         `db:"title" json:"title"`
	Content     string         `db:"content" json:"content"`
	Category    string         `db:"category" json:"category"`
	Priority    NoticePriority `db:"priority" json:"priority"`
	IsPinned    bool           `db:"is_pinned" json:"is_pinned"`
	PublishedAt time.Time      `db:"published_at" json:"published_at"`
	ExpiresAt   *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
	CreatedBy   string         `db:"created_by" json:"created_by"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// NoticeFilter allows listing notices.
type NoticeFilter struct {
	Category     string
	UpdatedSince *time.Time
	Page         int
	PageSize     int
}
