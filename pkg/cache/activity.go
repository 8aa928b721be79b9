package cache

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/cachegate/pkg/models"
	"github.com/pario-ai/cachegate/pkg/store"
)

const (
	// ActivityLimit bounds the number of retained activity entries.
	ActivityLimit = 20

	snippetMax = 50
	snippetCut = 47
)

// ActivityLog is a bounded feed of recent cache events.
type ActivityLog struct {
	entries *store.Collection[models.ActivityLogEntry]
	limit   int
	now     func() time.Time
}

// NewActivityLog returns a log over the activity-log collection of arena.
func NewActivityLog(arena *store.Arena, now func() time.Time) *ActivityLog {
	return &ActivityLog{
		entries: store.Open[models.ActivityLogEntry](arena, "activity-log"),
		limit:   ActivityLimit,
		now:     now,
	}
}

// Snippet shortens prompts longer than 50 characters to 47 characters plus "...".
func Snippet(prompt string) string {
	r := []rune(prompt)
	if len(r) <= snippetMax {
		return prompt
	}
	return string(r[:snippetCut]) + "..."
}

// Add appends an event and evicts the oldest entries beyond the limit.
func (l *ActivityLog) Add(ctx context.Context, typ models.ActivityType, service models.Service, prompt string) error {
	entry := models.ActivityLogEntry{
		ID:        uuid.NewString(),
		Timestamp: l.now().UTC(),
		Type:      typ,
		Service:   service,
		Prompt:    Snippet(prompt),
	}

	return l.entries.Update(ctx, func(items map[string]models.ActivityLogEntry) (bool, error) {
		items[entry.ID] = entry
		for len(items) > l.limit {
			var oldest models.ActivityLogEntry
			first := true
			for _, e := range items {
				if first || e.Timestamp.Before(oldest.Timestamp) {
					oldest = e
					first = false
				}
			}
			delete(items, oldest.ID)
		}
		return true, nil
	})
}

// Recent returns the retained entries, newest first.
func (l *ActivityLog) Recent(ctx context.Context) ([]models.ActivityLogEntry, error) {
	out, err := l.entries.Values(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Clear empties the log.
func (l *ActivityLog) Clear(ctx context.Context) error {
	return l.entries.Clear(ctx)
}
