package models

import "time"

// SystemMetrics is a point-in-time summary of the in-process counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	OnlineStudents           int       `json:"online_students"`
	HeartbeatsTotal          uint64    `json:"heartbeats_total"`
	HeartbeatFailures        uint64    `json:"heartbeat_failures"`
	PrunedSessions           uint64    `json:"pruned_sessions"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
