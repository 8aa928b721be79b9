package keys

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/cachegate/pkg/models"
	"github.com/pario-ai/cachegate/pkg/store"
)

const (
	// ServerKeyPrefix starts every generated server key.
	ServerKeyPrefix = "aicsk_"

	serverKeyLen      = 40
	serverKeyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ServerKeyService issues and checks the keys callers present to the proxy.
type ServerKeyService struct {
	keys *store.Collection[models.ServerKey]
	now  func() time.Time
}

// NewServerKeyService opens the server-api-keys collection in arena.
func NewServerKeyService(arena *store.Arena) *ServerKeyService {
	return &ServerKeyService{
		keys: store.Open[models.ServerKey](arena, "server-api-keys"),
		now:  time.Now,
	}
}

func generateSecret() (string, error) {
	var b strings.Builder
	b.WriteString(ServerKeyPrefix)
	limit := big.NewInt(int64(len(serverKeyAlphabet)))
	for i := 0; i < serverKeyLen; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate server key: %w", err)
		}
		b.WriteByte(serverKeyAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func validName(name string) error {
	if len(strings.TrimSpace(name)) < minNameLen {
		return invalid("name must be at least %d characters", minNameLen)
	}
	return nil
}

// Generate creates a server key. The returned record is the only place
// the full secret is shown to an operator.
func (s *ServerKeyService) Generate(ctx context.Context, name string) (models.ServerKey, error) {
	if err := validName(name); err != nil {
		return models.ServerKey{}, err
	}
	secret, err := generateSecret()
	if err != nil {
		return models.ServerKey{}, err
	}

	k := models.ServerKey{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Key:       secret,
		CreatedAt: s.now().UTC(),
	}
	if err := s.keys.Set(ctx, k.ID, k); err != nil {
		return models.ServerKey{}, err
	}
	return k, nil
}

// List returns every server key, newest first.
func (s *ServerKeyService) List(ctx context.Context) ([]models.ServerKey, error) {
	out, err := s.keys.Values(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Rename changes the display name of a key.
func (s *ServerKeyService) Rename(ctx context.Context, id, name string) (models.ServerKey, error) {
	if err := validName(name); err != nil {
		return models.ServerKey{}, err
	}

	var renamed models.ServerKey
	err := s.keys.Update(ctx, func(items map[string]models.ServerKey) (bool, error) {
		k, ok := items[id]
		if !ok {
			return false, ErrKeyNotFound
		}
		k.Name = strings.TrimSpace(name)
		items[id] = k
		renamed = k
		return true, nil
	})
	if err != nil {
		return models.ServerKey{}, err
	}
	return renamed, nil
}

// Revoke deletes a key and reports whether it existed.
func (s *ServerKeyService) Revoke(ctx context.Context, id string) (bool, error) {
	return s.keys.Delete(ctx, id)
}

// Validate reports whether secret matches a stored key. An empty secret
// or an empty collection never validates.
func (s *ServerKeyService) Validate(ctx context.Context, secret string) (bool, error) {
	if secret == "" {
		return false, nil
	}
	all, err := s.keys.Values(ctx)
	if err != nil {
		return false, err
	}
	match := 0
	for _, k := range all {
		match |= subtle.ConstantTimeCompare([]byte(k.Key), []byte(secret))
	}
	return match == 1, nil
}

// Clear removes every server key.
func (s *ServerKeyService) Clear(ctx context.Context) error {
	return s.keys.Clear(ctx)
}

// Import merges keys according to policy.
func (s *ServerKeyService) Import(ctx context.Context, keys []models.ServerKey, policy models.ConflictPolicy) (models.ImportStats, error) {
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
