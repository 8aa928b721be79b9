// Package catalog keeps the list of models operators have registered
// per service.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/cachegate/pkg/models"
	"github.com/pario-ai/cachegate/pkg/store"
)

// ErrInvalid wraps input validation failures.
var ErrInvalid = errors.New("invalid input")

const minNameLen = 3

// ModelService stores model records.
type ModelService struct {
	models *store.Collection[models.ModelRecord]
	now    func() time.Time
}

// NewModelService opens the models collection in arena.
func NewModelService(arena *store.Arena) *ModelService {
	return &ModelService{
		models: store.Open[models.ModelRecord](arena, "models"),
		now:    time.Now,
	}
}

// List returns every model, newest first.
func (s *ModelService) List(ctx context.Context) ([]models.ModelRecord, error) {
	out, err := s.models.Values(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ForService returns the models registered for service, newest first.
func (s *ModelService) ForService(ctx context.Context, service models.Service) ([]models.ModelRecord, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, m := range all {
		if m.Service == service {
			out = append(out, m)
		}
	}
	return out, nil
}

// Add registers a model name for service.
func (s *ModelService) Add(ctx context.Context, name string, service models.Service) (models.ModelRecord, error) {
	name = strings.TrimSpace(name)
	if len(name) < minNameLen {
		return models.ModelRecord{}, fmt.Errorf("%w: model name must be at least %d characters", ErrInvalid, minNameLen)
	}
	if !service.Valid() {
		return models.ModelRecord{}, fmt.Errorf("%w: unknown service %q", ErrInvalid, service)
	}

	m := models.ModelRecord{
		ID:        uuid.NewString(),
		Name:      name,
		Service:   service,
		CreatedAt: s.now().UTC(),
	}
	if err := s.models.Set(ctx, m.ID, m); err != nil {
		return models.ModelRecord{}, err
	}
	return m, nil
}

// Delete removes a model and reports whether it existed.
func (s *ModelService) Delete(ctx context.Context, id string) (bool, error) {
	return s.models.Delete(ctx, id)
}

// Clear removes every model.
func (s *ModelService) Clear(ctx context.Context) error {
	return s.models.Clear(ctx)
}

// Import merges records according to policy.
func (s *ModelService) Import(ctx context.Context, recs []models.ModelRecord, policy models.ConflictPolicy) (models.ImportStats, error) {
	var overwrite bool
	switch policy {
	case models.ConflictKeep:
	case models.ConflictOverwrite:
		overwrite = true
	default:
		return models.ImportStats{}, fmt.Errorf("%w: unknown conflict policy %q", ErrInvalid, policy)
	}

	st, err := s.models.Merge(ctx, recs, overwrite)
	if err != nil {
		return models.ImportStats{}, err
	}
	return models.ImportStats{Added: st.Added, Updated: st.Updated, Conflicts: st.Conflicts}, nil
}
