package keys

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/cachegate/pkg/models"
	"github.com/pario-ai/cachegate/pkg/store"
)

// ProviderKeyService stores credentials for upstream providers.
type ProviderKeyService struct {
	keys *store.Collection[models.ProviderKey]
	now  func() time.Time
}

// NewProviderKeyService opens the ai-keys collection in arena.
func NewProviderKeyService(arena *store.Arena) *ProviderKeyService {
	return &ProviderKeyService{
		keys: store.Open[models.ProviderKey](arena, "ai-keys"),
		now:  time.Now,
	}
}

// List returns every key, newest first.
func (s *ProviderKeyService) List(ctx context.Context) ([]models.ProviderKey, error) {
	out, err := s.keys.Values(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Get returns the key with id or ErrKeyNotFound.
func (s *ProviderKeyService) Get(ctx context.Context, id string) (models.ProviderKey, error) {
	k, ok, err := s.keys.Get(ctx, id)
	if err != nil {
		return models.ProviderKey{}, err
	}
	if !ok {
		return models.ProviderKey{}, ErrKeyNotFound
	}
	return k, nil
}

// Add stores a new credential for service.
func (s *ProviderKeyService) Add(ctx context.Context, service models.Service, secret string) (models.ProviderKey, error) {
	if !service.Valid() {
		return models.ProviderKey{}, invalid("unknown service %q", service)
	}
	if len(secret) < minSecretLen {
		return models.ProviderKey{}, invalid("key must be at least %d characters", minSecretLen)
	}

	k := models.ProviderKey{
		ID:        uuid.NewString(),
		Service:   service,
		Key:       secret,
		CreatedAt: s.now().UTC(),
	}
	if err := s.keys.Set(ctx, k.ID, k); err != nil {
		return models.ProviderKey{}, err
	}
	return k, nil
}

// Update replaces the secret of an existing key.
func (s *ProviderKeyService) Update(ctx context.Context, id, secret string) (models.ProviderKey, error) {
	if len(secret) < minSecretLen {
		return models.ProviderKey{}, invalid("key must be at least %d characters", minSecretLen)
	}

	var updated models.ProviderKey
	err := s.keys.Update(ctx, func(items map[string]models.ProviderKey) (bool, error) {
		k, ok := items[id]
		if !ok {
			return false, ErrKeyNotFound
		}
		k.Key = secret
		items[id] = k
		updated = k
		return true, nil
	})
	if err != nil {
		return models.ProviderKey{}, err
	}
	return updated, nil
}

// Delete removes a key and reports whether it existed.
func (s *ProviderKeyService) Delete(ctx context.Context, id string) (bool, error) {
	return s.keys.Delete(ctx, id)
}

// Clear removes every key.
func (s *ProviderKeyService) Clear(ctx context.Context) error {
	return s.keys.Clear(ctx)
}

// Import merges keys according to policy.
func (s *ProviderKeyService) Import(ctx context.Context, keys []models.ProviderKey, policy models.ConflictPolicy) (models.ImportStats, error) {
	ow, err := overwrite(policy)
	if err != nil {
		return models.ImportStats{}, err
	}
	stats, err := s.keys.Merge(ctx, keys, ow)
	if err != nil {
		return models.ImportStats{}, err
	}
	return importStats(stats), nil
}

// NewestForService returns the most recently added key for service.
func (s *ProviderKeyService) NewestForService(ctx context.Context, service models.Service) (models.ProviderKey, bool, error) {
	all, err := s.List(ctx)
	if err != nil {
		return models.ProviderKey{}, false, err
	}
	for _, k := range all {
		if k.Service == service {
			return k, true, nil
		}
	}
	return models.ProviderKey{}, false, nil
}

// Coverage reports, per known service, whether at least one key exists.
func (s *ProviderKeyService) Coverage(ctx context.Context) (map[models.Service]bool, error) {
	all, err := s.keys.Values(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[models.Service]bool, len(models.Services))
	for _, svc := range models.Services {
		out[svc] = false
	}
	for _, k := range all {
		if _, known := out[k.Service]; known {
			out[k.Service] = true
		}
	}
	return out, nil
}
