package classifier

import (
	"context"

	"github.com/pario-ai/cachegate/pkg/models"
)

// KeyLookup finds the most recently added provider key for a service.
type KeyLookup interface {
	NewestForService(ctx context.Context, service models.Service) (models.ProviderKey, bool, error)
}

// CredentialSource resolves the credential used for classification.
type CredentialSource struct {
	configured string
	keys       KeyLookup
}

// NewCredentialSource prefers configured; otherwise it falls back to the
// newest google-gemini provider key in keys. keys may be nil.
func NewCredentialSource(configured string, keys KeyLookup) *CredentialSource {
	return &CredentialSource{configured: configured, keys: keys}
}

// Resolve returns the credential or ErrNoCredential.
func (s *CredentialSource) Resolve(ctx context.Context) (string, error) {
	if s == nil {
		return "", ErrNoCredential
	}
	if s.configured != "" {
		return s.configured, nil
	}
	if s.keys == nil {
		return "", ErrNoCredential
	}
	k, ok, err := s.keys.NewestForService(ctx, models.ServiceGoogleGemini)
	if err != nil {
		return "", err
	}
	if !ok || k.Key == "" {
		return "", ErrNoCredential
	}
	return k.Key, nil
}
