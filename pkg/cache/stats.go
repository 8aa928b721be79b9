package cache

import (
	"sync/atomic"

	"github.com/pario-ai/cachegate/pkg/models"
)

// Stats holds process-lifetime counters. They start at zero on every
// process start; only the persistent size survives a restart.
type Stats struct {
	hits     atomic.Int64
	misses   atomic.Int64
	requests atomic.Int64
}

// Snapshot combines the counters with a freshly counted size.
func (s *Stats) Snapshot(size int64) models.CacheStats {
	return models.CacheStats{
		Hits:     s.hits.Load(),
		Misses:   s.misses.Load(),
		Requests: s.requests.Load(),
		Size:     size,
	}
}
