package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pario-ai/cachegate/pkg/models"
	"github.com/pario-ai/cachegate/pkg/provider"
)

func newClassifier(t *testing.T, status int, text string) (*GeminiClassifier, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent"))

		var req provider.GeminiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.NotNil(t, req.GenerationConfig) {
			assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
		}

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{"text": text}}},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return NewGeminiClassifier(provider.NewGeminiClient(srv.URL, time.Second), "", zap.NewNop()), calls
}

func TestClassifyShouldCache(t *testing.T) {
	c, calls := newClassifier(t, http.StatusOK, `{"shouldCache": true, "reason": "general knowledge"}`)

	d, err := c.Classify(context.Background(), "Why is the sky blue?", "AIza-key")
	require.NoError(t, err)
	assert.Equal(t, models.CacheDecision{ShouldCache: true, Reason: "general knowledge"}, d)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClassifyFencedJSON(t *testing.T) {
	c, _ := newClassifier(t, http.StatusOK, "```json\n{\"shouldCache\": false, \"reason\": \"personal\"}\n```")

	d, err := c.Classify(context.Background(), "what is my name", "AIza-key")
	require.NoError(t, err)
	assert.False(t, d.ShouldCache)
}

func TestClassifyMalformed(t *testing.T) {
	tests := map[string]string{
		"not json":       "sure, cache it",
		"missing reason": `{"shouldCache": true}`,
		"missing flag":   `{"reason": "x"}`,
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			c, _ := newClassifier(t, http.StatusOK, text)
			_, err := c.Classify(context.Background(), "p", "AIza-key")
			assert.Error(t, err)
		})
	}
}

func TestClassifyUpstreamError(t *testing.T) {
	c, calls := newClassifier(t, http.StatusInternalServerError, "")
	_, err := c.Classify(context.Background(), "p", "AIza-key")

	var ue *provider.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, int32(1), calls.Load(), "no retries")
}

func TestClassifyWithoutCredential(t *testing.T) {
	c, calls := newClassifier(t, http.StatusOK, `{}`)
	_, err := c.Classify(context.Background(), "p", "")
	require.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, int32(0), calls.Load())
}

type stubKeys struct {
	key models.ProviderKey
	ok  bool
}

func (s stubKeys) NewestForService(_ context.Context, _ models.Service) (models.ProviderKey, bool, error) {
	return s.key, s.ok, nil
}

func TestCredentialSource(t *testing.T) {
	ctx := context.Background()
	stored := stubKeys{key: models.ProviderKey{Service: models.ServiceGoogleGemini, Key: "AIza-stored"}, ok: true}

	got, err := NewCredentialSource("AIza-config", stored).Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AIza-config", got)

	got, err = NewCredentialSource("", stored).Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AIza-stored", got)

	_, err = NewCredentialSource("", stubKeys{}).Resolve(ctx)
	assert.ErrorIs(t, err, ErrNoCredential)

	_, err = NewCredentialSource("", nil).Resolve(ctx)
	assert.ErrorIs(t, err, ErrNoCredential)

	var nilSource *CredentialSource
	_, err = nilSource.Resolve(ctx)
	assert.ErrorIs(t, err, ErrNoCredential)
}
