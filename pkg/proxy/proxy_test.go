package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pario-ai/cachegate/pkg/cache"
	"github.com/pario-ai/cachegate/pkg/classifier"
	"github.com/pario-ai/cachegate/pkg/config"
	"github.com/pario-ai/cachegate/pkg/keys"
	"github.com/pario-ai/cachegate/pkg/metrics"
	"github.com/pario-ai/cachegate/pkg/models"
	"github.com/pario-ai/cachegate/pkg/provider"
	"github.com/pario-ai/cachegate/pkg/store"
)

type testEnv struct {
	srv          *Server
	pipeline     *Pipeline
	cache        *cache.Cache
	providerKeys *keys.ProviderKeyService
	dir          string

	serverKey   string
	ollamaKeyID string
	geminiKeyID string

	ollamaCalls     atomic.Int32
	geminiCalls     atomic.Int32
	classifierCalls atomic.Int32

	shouldCache      atomic.Bool
	geminiBlocked    atomic.Bool
	classifierStatus atomic.Int32
	ollamaStatus     atomic.Int32
}

type envOptions struct {
	classifierKey string
	withGeminiKey bool
	noClassifier  bool
	configure     func(*config.Config)
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	e := &testEnv{dir: t.TempDir()}
	e.classifierStatus.Store(http.StatusOK)
	e.ollamaStatus.Store(http.StatusOK)

	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.ollamaCalls.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		status := int(e.ollamaStatus.Load())
		if status != http.StatusOK {
			http.Error(w, "upstream down", status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "ollama says: " + body["prompt"].(string)})
	}))
	t.Cleanup(ollama.Close)

	gemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req provider.GeminiRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		text := "gemini text"
		var parts []any
		if req.GenerationConfig != nil && req.GenerationConfig.ResponseMimeType == "application/json" {
			e.classifierCalls.Add(1)
			if status := int(e.classifierStatus.Load()); status != http.StatusOK {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":{"message":"classifier down","status":"UNAVAILABLE"}}`))
				return
			}
			verdict, _ := json.Marshal(map[string]any{"shouldCache": e.shouldCache.Load(), "reason": "test verdict"})
			text = string(verdict)
			parts = []any{map[string]any{"text": text}}
		} else {
			e.geminiCalls.Add(1)
			if e.geminiBlocked.Load() {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"candidates":     []any{},
					"promptFeedback": map[string]any{"blockReason": "SAFETY"},
				})
				return
			}
			parts = []any{map[string]any{"text": text}}
			if req.GenerationConfig != nil && len(req.GenerationConfig.ResponseModalities) > 0 {
				parts = append(parts, map[string]any{"inlineData": map[string]any{"mimeType": "image/png", "data": "Y2F0"}})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{"content": map[string]any{"parts": parts}}},
		})
	}))
	t.Cleanup(gemini.Close)

	cfg := config.Default()
	cfg.Listen = ":0"
	if opts.configure != nil {
		opts.configure(cfg)
	}

	logger := zap.NewNop()
	arena := store.NewArena(store.NewFileMedium(e.dir), logger)
	t.Cleanup(func() { _ = arena.Close() })

	e.providerKeys = keys.NewProviderKeyService(arena)
	serverKeys := keys.NewServerKeyService(arena)
	ctx := context.Background()

	sk, err := serverKeys.Generate(ctx, "test client")
	require.NoError(t, err)
	e.serverKey = sk.Key

	ok, err := e.providerKeys.Add(ctx, models.ServiceOllama, "ollama-upstream-key")
	require.NoError(t, err)
	e.ollamaKeyID = ok.ID
	if opts.withGeminiKey {
		gk, err := e.providerKeys.Add(ctx, models.ServiceGoogleGemini, "AIza-upstream-key")
		require.NoError(t, err)
		e.geminiKeyID = gk.ID
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewCollector("cachegate", reg, logger)
	e.cache = cache.New(arena, cfg.Cache.MemoryTTL, logger, cache.WithMetrics(m))

	geminiClient := provider.NewGeminiClient(gemini.URL, time.Second)
	deps := Deps{
		ProviderKeys: e.providerKeys,
		Providers: provider.NewRegistry(
			provider.NewOllamaProvider(ollama.URL, cfg.Providers.Ollama.DefaultModel, time.Second, logger),
			provider.NewGeminiProvider(geminiClient, "", "", logger),
		),
		Cache:        e.cache,
		Credentials:  classifier.NewCredentialSource(opts.classifierKey, e.providerKeys),
		Metrics:      m,
		Logger:       logger,
		DefaultModel: cfg.Providers.Ollama.DefaultModel,
	}
	if !opts.noClassifier {
		deps.Classifier = classifier.NewGeminiClassifier(geminiClient, "", logger)
	}

	e.pipeline = NewPipeline(deps)
	e.srv = New(cfg, e.pipeline, serverKeys, e.cache, WithMetrics(m, reg), WithLogger(logger))
	return e
}

func (e *testEnv) post(t *testing.T, authHeader, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/proxy", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func (e *testEnv) proxy(t *testing.T, service models.Service, model, prompt, keyID string) (*httptest.ResponseRecorder, models.ProxyResponse) {
	t.Helper()
	body, err := json.Marshal(models.ProxyRequest{Service: service, Model: model, Prompt: prompt, KeyID: keyID})
	require.NoError(t, err)
	w := e.post(t, "Bearer "+e.serverKey, string(body))
	var resp models.ProxyResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (e *testEnv) persistedEntries(t *testing.T) []models.CacheEntry {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.dir, "persistent-cache.json"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var entries []models.CacheEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	return entries
}

func (e *testEnv) activity(t *testing.T) []models.ActivityLogEntry {
	t.Helper()
	entries, err := e.cache.RecentActivity(context.Background())
	require.NoError(t, err)
	return entries
}

func TestScenarioA_ClassifierSaysCache(t *testing.T) {
	e := newTestEnv(t, envOptions{classifierKey: "AIza-classifier"})
	e.shouldCache.Store(true)

	w, resp := e.proxy(t, models.ServiceOllama, "llama3.1:8b", "Why is the sky blue?", e.ollamaKeyID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, resp.IsCached)
	assert.Equal(t, "ollama says: Why is the sky blue?", resp.Content)
	require.NotNil(t, resp.ShouldCache)
	assert.True(t, *resp.ShouldCache)
	assert.Equal(t, int32(1), e.ollamaCalls.Load())

	entries := e.persistedEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "ollama:llama3.1:8b:Why is the sky blue?", entries[0].ID)

	w, resp = e.proxy(t, models.ServiceOllama, "llama3.1:8b", "Why is the sky blue?", e.ollamaKeyID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.IsCached)
	assert.Equal(t, "ollama says: Why is the sky blue?", resp.Content)
	assert.Equal(t, int32(1), e.ollamaCalls.Load(), "adapter not invoked on hit")
}

func TestScenarioA_DefaultModel(t *testing.T) {
	e := newTestEnv(t, envOptions{classifierKey: "AIza-classifier"})
	e.shouldCache.Store(true)

	w, _ := e.proxy(t, models.ServiceOllama, "", "Why is the sky blue?", e.ollamaKeyID)
	require.Equal(t, http.StatusOK, w.Code)

	entries := e.persistedEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "ollama:llama3.1:8b:Why is the sky blue?", entries[0].ID)
}

func TestScenarioB_ClassifierSaysNoCache(t *testing.T) {
	e := newTestEnv(t, envOptions{classifierKey: "AIza-classifier"})
	e.shouldCache.Store(false)

	for i := 0; i < 2; i++ {
		w, resp := e.proxy(t, models.ServiceOllama, "llama3.1:8b", "Why is the sky blue?", e.ollamaKeyID)
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, resp.IsCached)
		require.NotNil(t, resp.ShouldCache)
		assert.False(t, *resp.ShouldCache)
		assert.Equal(t, "test verdict", resp.DecisionReason)
	}

	assert.Equal(t, int32(2), e.ollamaCalls.Load())
	assert.Empty(t, e.persistedEntries(t))

	activity := e.activity(t)
	require.Len(t, activity, 2)
	for _, a := range activity {
		assert.Equal(t, models.ActivityNoCache, a.Type)
	}
}

func TestScenarioC_ImageProviderCachesWithoutClassifier(t *testing.T) {
	e := newTestEnv(t, envOptions{withGeminiKey: true})

	w, resp := e.proxy(t, models.ServiceGoogleGemini, "", "a photo of a cat", e.geminiKeyID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, resp.IsCached)
	assert.Equal(t, "data:image/png;base64,Y2F0", resp.Content)
	assert.Nil(t, resp.ShouldCache)

	entries := e.persistedEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "google-gemini::a photo of a cat", entries[0].ID)

	w, resp = e.proxy(t, models.ServiceGoogleGemini, "", "a photo of a cat", e.geminiKeyID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.IsCached)
	assert.Equal(t, int32(1), e.geminiCalls.Load())
	assert.Equal(t, int32(0), e.classifierCalls.Load())
}

func TestScenarioD_MissingPrompt(t *testing.T) {
	e := newTestEnv(t, envOptions{classifierKey: "AIza-classifier"})

	w := e.post(t, "Bearer "+e.serverKey, `{"service":"ollama","keyId":"`+e.ollamaKeyID+`"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error map[string][]string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"Required"}, body.Error["prompt"])
	assert.Equal(t, int32(0), e.ollamaCalls.Load())
	assert.Empty(t, e.activity(t))
}

func TestValidationFieldErrors(t *testing.T) {
	e := newTestEnv(t, envOptions{})

	tests := []struct {
		name  string
		body  string
		field string
		msg   string
	}{
		{"empty prompt", `{"service":"ollama","prompt":"","keyId":"k"}`, "prompt", "Prompt cannot be empty."},
		{"empty keyId", `{"service":"ollama","prompt":"p","keyId":""}`, "keyId", "keyId cannot be empty."},
		{"unknown service", `{"service":"openai","prompt":"p","keyId":"k"}`, "service", "Invalid enum value. Expected 'ollama' | 'google-gemini', received 'openai'"},
		{"numeric prompt", `{"service":"ollama","prompt":42,"keyId":"k"}`, "prompt", "Expected string, received number"},
		{"null model", `{"service":"ollama","model":null,"prompt":"p","keyId":"k"}`, "model", "Expected string, received null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.post(t, "Bearer "+e.serverKey, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			var body struct {
				Error map[string][]string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, []string{tt.msg}, body.Error[tt.field])
		})
	}
	assert.Equal(t, int32(0), e.ollamaCalls.Load())
}

func TestInvalidJSONBody(t *testing.T) {
	e := newTestEnv(t, envOptions{})

	for _, body := range []string{`{not json`, `null`, `[1,2]`} {
		w := e.post(t, "Bearer "+e.serverKey, body)
		require.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.JSONEq(t, `{"error":"Invalid JSON body."}`, w.Body.String())
	}
}

func TestClassifierGating(t *testing.T) {
	e := newTestEnv(t, envOptions{classifierKey: "AIza-classifier"})
	e.shouldCache.Store(false)

	for i := 0; i < 3; i++ {
		w, _ := e.proxy(t, models.ServiceOllama, "llama3.1:8b", "what is my horoscope today", e.ollamaKeyID)
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, int32(3), e.ollamaCalls.Load())
	assert.Equal(t, int32(3), e.classifierCalls.Load())
	assert.Empty(t, e.persistedEntries(t))
}

func TestNoClassifierCredentialSkipsCache(t *testing.T) {
	e := newTestEnv(t, envOptions{})

	w, resp := e.proxy(t, models.ServiceOllama, "llama3.1:8b", "Why is the sky blue?", e.ollamaKeyID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, resp.IsCached)
	assert.Equal(t, reasonNoCredential, resp.DecisionReason)
	assert.Equal(t, int32(0), e.classifierCalls.Load())
	assert.Empty(t, e.persistedEntries(t))

	activity := e.activity(t)
	require.Len(t, activity, 1)
	assert.Equal(t, models.ActivityNoCache, activity[0].Type)
}

func TestClassifierFallsBackToStoredGeminiKey(t *testing.T) {
	e := newTestEnv(t, envOptions{withGeminiKey: true})
	e.shouldCache.Store(true)

	w, _ := e.proxy(t, models.ServiceOllama, "llama3.1:8b", "Why is the sky blue?", e.ollamaKeyID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), e.classifierCalls.Load())
	assert.Len(t, e.persistedEntries(t), 1)
}

func TestClassifierFailureDegradesToNoCache(t *testing.T) {
	e := newTestEnv(t, envOptions{classifierKey: "AIza-classifier"})
	e.classifierStatus.Store(http.StatusServiceUnavailable)

	w, resp := e.proxy(t, models.ServiceOllama, "llama3.1:8b", "Why is the sky blue?", e.ollamaKeyID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, resp.IsCached)
	assert.Equal(t, reasonUnavailable, resp.DecisionReason)
	assert.Equal(t, int32(1), e.ollamaCalls.Load())
	assert.Empty(t, e.persistedEntries(t))
}

func TestNoClassifierConfigured(t *testing.T) {
	e := newTestEnv(t, envOptions{classifierKey: "AIza-classifier", noClassifier: true})

	w, _ := e.proxy(t, models.ServiceOllama, "llama3.1:8b", "Why is the sky blue?", e.ollamaKeyID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(0), e.classifierCalls.Load())
	assert.Empty(t, e.persistedEntries(t))
}

func TestUpstreamFailureCachesNothing(t *testing.T) {
	e := newTestEnv(t, envOptions{classifierKey: "AIza-classifier"})
	e.shouldCache.Store(true)
	e.ollamaStatus.Store(http.StatusBadGateway)

	w, _ := e.proxy(t, models.ServiceOllama, "llama3.1:8b", "Why is the sky blue?", e.ollamaKeyID)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "502")
	assert.Empty(t, e.persistedEntries(t))
}

func TestUncachedUpstreamFailureLogsNoActivity(t *testing.T) {
	e := newTestEnv(t, envOptions{})
	e.ollamaStatus.Store(http.StatusInternalServerError)

	w, _ := e.proxy(t, models.ServiceOllama, "llama3.1:8b", "hello there", e.ollamaKeyID)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, e.activity(t))
}

func TestBlockedGeminiReplyIsNotCached(t *testing.T) {
	e := newTestEnv(t, envOptions{withGeminiKey: true})
	e.geminiBlocked.Store(true)

	for i := 0; i < 2; i++ {
		w, _ := e.proxy(t, models.ServiceGoogleGemini, "", "Explain TCP", e.geminiKeyID)
		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "no content")
	}

	assert.Equal(t, int32(2), e.geminiCalls.Load(), "every attempt reaches the upstream")
	assert.Empty(t, e.persistedEntries(t))

	stats, err := e.cache.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Size)
	assert.Zero(t, stats.Hits)

	// The lookup ran before the upstream failed, so each attempt logged a miss.
	activity := e.activity(t)
	require.Len(t, activity, 2)
	for _, a := range activity {
		assert.Equal(t, models.ActivityMiss, a.Type)
	}
}

func TestProcessOutlivesCallerCancellation(t *testing.T) {
	e := newTestEnv(t, envOptions{withGeminiKey: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := e.pipeline.Process(ctx, models.ProxyRequest{
		Service: models.ServiceGoogleGemini,
		Prompt:  "Explain TCP",
		KeyID:   e.geminiKeyID,
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini text", resp.Content)
	assert.Equal(t, int32(1), e.geminiCalls.Load())

	entries := e.persistedEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "google-gemini::Explain TCP", entries[0].ID)
}

func TestUnknownProviderKey(t *testing.T) {
	e := newTestEnv(t, envOptions{})

	w, _ := e.proxy(t, models.ServiceOllama, "", "hello", "no-such-key")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"The selected AI Key was not found."}`, w.Body.String())
	assert.Equal(t, int32(0), e.ollamaCalls.Load())
}

func TestFailClosedAuth(t *testing.T) {
	e := newTestEnv(t, envOptions{classifierKey: "AIza-classifier"})
	body := `{"service":"ollama","prompt":"hi","keyId":"` + e.ollamaKeyID + `"}`

	tests := []struct {
		name   string
		header string
		msg    string
	}{
		{"missing", "", "Unauthorized: Missing or invalid API key."},
		{"not bearer", "Basic " + e.serverKey, "Unauthorized: Missing or invalid API key."},
		{"empty bearer", "Bearer ", "Unauthorized: Missing or invalid API key."},
		{"unknown key", "Bearer aicsk_notarealkey", "Unauthorized: Invalid API key."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.post(t, tt.header, body)
			require.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"`+tt.msg+`"}`, w.Body.String())
		})
	}

	assert.Equal(t, int32(0), e.ollamaCalls.Load())
	assert.Equal(t, int32(0), e.classifierCalls.Load())
	assert.Empty(t, e.activity(t))
}

func TestAuthRunsBeforeBodyParsing(t *testing.T) {
	e := newTestEnv(t, envOptions{})
	w := e.post(t, "", `{not json`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatsAndActivityEndpoints(t *testing.T) {
	e := newTestEnv(t, envOptions{withGeminiKey: true})

	_, _ = e.proxy(t, models.ServiceGoogleGemini, "", "Explain TCP", e.geminiKeyID)
	_, _ = e.proxy(t, models.ServiceGoogleGemini, "", "Explain TCP", e.geminiKeyID)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer "+e.serverKey)
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var stats models.CacheStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, models.CacheStats{Hits: 1, Misses: 1, Requests: 2, Size: 1}, stats)

	req = httptest.NewRequest(http.MethodGet, "/api/activity", nil)
	req.Header.Set("Authorization", "Bearer "+e.serverKey)
	w = httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var activity []models.ActivityLogEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &activity))
	require.Len(t, activity, 2)
	assert.Equal(t, models.ActivityHit, activity[0].Type)
	assert.Equal(t, models.ActivityMiss, activity[1].Type)

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w = httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t, envOptions{withGeminiKey: true})
	_, _ = e.proxy(t, models.ServiceGoogleGemini, "", "Explain TCP", e.geminiKeyID)

	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	e.srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `cachegate_proxy_requests_total{outcome="miss",service="google-gemini"} 1`)
	assert.Contains(t, w.Body.String(), "cachegate_cache_misses_total 1")
}

func TestRateLimit(t *testing.T) {
	e := newTestEnv(t, envOptions{configure: func(c *config.Config) {
		c.RateLimit.RPS = 0.001
		c.RateLimit.Burst = 1
	}})

	w := e.post(t, "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.post(t, "", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
