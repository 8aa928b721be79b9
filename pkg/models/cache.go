package models

import "time"

// CacheEntry is a persisted cached response. ID doubles as the cache key.
type CacheEntry struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// RecordID implements store.Record.
func (e CacheEntry) RecordID() string { return e.ID }

// CacheStats reports cache performance metrics.
// Hits, Misses and Requests reset on restart; Size is counted from the persistent tier.
type CacheStats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Requests int64 `json:"requests"`
	Size     int64 `json:"size"`
}

// ActivityType classifies an activity log entry.
type ActivityType string

const (
	ActivityHit     ActivityType = "hit"
	ActivityMiss    ActivityType = "miss"
	ActivityNoCache ActivityType = "no-cache"
)

// ActivityLogEntry is one event in the bounded recent-activity feed.
type ActivityLogEntry struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Type      ActivityType `json:"type"`
	Service   Service      `json:"model"`
	Prompt    string       `json:"prompt"`
}

// RecordID implements store.Record.
func (e ActivityLogEntry) RecordID() string { return e.ID }

// CacheDecision is the classifier verdict for a prompt.
type CacheDecision struct {
	ShouldCache bool   `json:"shouldCache"`
	Reason      string `json:"reason"`
}
