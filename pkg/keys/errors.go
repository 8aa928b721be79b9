// Package keys manages provider credentials (used by the proxy to call
// upstream services) and server keys (presented by callers of the proxy).
package keys

import (
	"errors"
	"fmt"

	"github.com/pario-ai/cachegate/pkg/models"
	"github.com/pario-ai/cachegate/pkg/store"
)

var (
	// ErrKeyNotFound is returned when no key has the requested id.
	ErrKeyNotFound = errors.New("key not found")
	// ErrInvalid wraps input validation failures.
	ErrInvalid = errors.New("invalid input")
)

const (
	minSecretLen = 10
	minNameLen   = 3
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func importStats(s store.MergeStats) models.ImportStats {
	return models.ImportStats{Added: s.Added, Updated: s.Updated, Conflicts: s.Conflicts}
}

func overwrite(policy models.ConflictPolicy) (bool, error) {
	switch policy {
	case models.ConflictKeep:
		return false, nil
	case models.ConflictOverwrite:
		return true, nil
	default:
		return false, invalid("unknown conflict policy %q", policy)
	}
}
