package proxy

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/cachegate/pkg/cache"
	"github.com/pario-ai/cachegate/pkg/classifier"
	"github.com/pario-ai/cachegate/pkg/keys"
	"github.com/pario-ai/cachegate/pkg/metrics"
	"github.com/pario-ai/cachegate/pkg/models"
	"github.com/pario-ai/cachegate/pkg/provider"
)

const (
	reasonNoCredential = "No Google Gemini key available to determine caching strategy."
	reasonUnavailable  = "Cache classification unavailable; not caching."
)

// Proxy request outcomes reported to metrics.
const (
	outcomeHit      = "hit"
	outcomeMiss     = "miss"
	outcomeUncached = "uncached"
	outcomeError    = "error"
)

// ProviderKeys looks up provider credentials by id.
type ProviderKeys interface {
	Get(ctx context.Context, id string) (models.ProviderKey, error)
}

// Deps are the collaborators of a Pipeline. Classifier and Credentials
// may be nil, in which case classified services are never cached.
type Deps struct {
	ProviderKeys ProviderKeys
	Providers    *provider.Registry
	Cache        *cache.Cache
	Classifier   classifier.Classifier
	Credentials  *classifier.CredentialSource
	Metrics      *metrics.Collector
	Logger       *zap.Logger
	// DefaultModel is used for ollama requests that name no model.
	DefaultModel string
}

// Pipeline answers one validated, authenticated proxy request.
type Pipeline struct {
	keys         ProviderKeys
	providers    *provider.Registry
	cache        *cache.Cache
	classifier   classifier.Classifier
	credentials  *classifier.CredentialSource
	metrics      *metrics.Collector
	logger       *zap.Logger
	defaultModel string
}

// NewPipeline wires a Pipeline.
func NewPipeline(d Deps) *Pipeline {
	if d.DefaultModel == "" {
		d.DefaultModel = provider.DefaultOllamaModel
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		keys:         d.ProviderKeys,
		providers:    d.Providers,
		cache:        d.Cache,
		classifier:   d.Classifier,
		credentials:  d.Credentials,
		metrics:      d.Metrics,
		logger:       logger.With(zap.String("component", "pipeline")),
		defaultModel: d.DefaultModel,
	}
}

// Process resolves the provider credential, applies the caching policy
// for the service and returns the generated or cached content. Nothing
// is cached when generation fails.
//
// Cancellation of ctx is ignored: once started, upstream calls and the
// cache bookkeeping that follows them run to completion, bounded by the
// provider client timeouts.
func (p *Pipeline) Process(ctx context.Context, req models.ProxyRequest) (models.ProxyResponse, error) {
	ctx = context.WithoutCancel(ctx)
	resp, outcome, err := p.process(ctx, req)
	if err != nil {
		outcome = outcomeError
		p.logger.Warn("proxy request failed",
			zap.String("service", string(req.Service)),
			zap.Error(err),
		)
	}
	p.metrics.RecordProxyRequest(string(req.Service), outcome)
	return resp, err
}

func (p *Pipeline) process(ctx context.Context, req models.ProxyRequest) (models.ProxyResponse, string, error) {
	key, err := p.keys.Get(ctx, req.KeyID)
	if errors.Is(err, keys.ErrKeyNotFound) {
		return models.ProxyResponse{}, "", &Error{Kind: KindInternal, Message: "The selected AI Key was not found.", Err: err}
	}
	if err != nil {
		return models.ProxyResponse{}, "", &Error{Kind: KindInternal, Message: "failed to load AI key", Err: err}
	}

	prov, err := p.providers.Resolve(req.Service)
	if err != nil {
		return models.ProxyResponse{}, "", invalidFields(map[string][]string{"service": {err.Error()}})
	}

	gen := provider.GenerateRequest{Prompt: req.Prompt, Model: req.Model, APIKey: key.Key}
	if req.Service == models.ServiceOllama && gen.Model == "" {
		gen.Model = p.defaultModel
	}
	lookup := cache.Request{Service: req.Service, Model: gen.Model, Prompt: req.Prompt}

	if req.Service != models.ServiceOllama {
		return p.cached(ctx, prov, gen, lookup, nil)
	}

	decision := p.decide(ctx, req.Prompt)
	if !decision.ShouldCache {
		content, err := p.generate(ctx, prov, gen)
		if err != nil {
			return models.ProxyResponse{}, "", err
		}
		p.cache.RecordUncached(ctx, req.Service, req.Prompt)
		return withDecision(models.ProxyResponse{Content: content}, &decision), outcomeUncached, nil
	}
	return p.cached(ctx, prov, gen, lookup, &decision)
}

// cached serves lookup from the cache or generates and stores it. A
// failed cache write is logged and the fresh content still returned.
func (p *Pipeline) cached(ctx context.Context, prov provider.Provider, gen provider.GenerateRequest, lookup cache.Request, decision *models.CacheDecision) (models.ProxyResponse, string, error) {
	if v, ok, err := p.cache.Get(ctx, lookup); err != nil {
		p.logger.Warn("cache lookup failed", zap.Error(err))
	} else if ok {
		return withDecision(models.ProxyResponse{Content: v, IsCached: true}, decision), outcomeHit, nil
	}

	content, err := p.generate(ctx, prov, gen)
	if err != nil {
		return models.ProxyResponse{}, "", err
	}

	if err := p.cache.Set(ctx, lookup, content); err != nil {
		p.logger.Error("cache write failed",
			zap.String("service", string(lookup.Service)),
			zap.String("key", cache.Snippet(lookup.Key())),
			zap.Error(err),
		)
	}
	return withDecision(models.ProxyResponse{Content: content}, decision), outcomeMiss, nil
}

// decide consults the classifier. Any failure to obtain a verdict
// yields a do-not-cache decision.
func (p *Pipeline) decide(ctx context.Context, prompt string) models.CacheDecision {
	if p.classifier == nil {
		return models.CacheDecision{Reason: reasonNoCredential}
	}

	cred, err := p.credentials.Resolve(ctx)
	if errors.Is(err, classifier.ErrNoCredential) {
		return models.CacheDecision{Reason: reasonNoCredential}
	}
	if err != nil {
		p.logger.Warn("resolve classifier credential failed", zap.Error(err))
		return models.CacheDecision{Reason: reasonUnavailable}
	}

	d, err := p.classifier.Classify(ctx, prompt, cred)
	if err != nil {
		p.logger.Warn("classifier failed, not caching", zap.Error(err))
		return models.CacheDecision{Reason: reasonUnavailable}
	}
	return d
}

func (p *Pipeline) generate(ctx context.Context, prov provider.Provider, gen provider.GenerateRequest) (string, error) {
	start := time.Now()
	content, err := prov.Generate(ctx, gen)
	p.metrics.ObserveUpstream(string(prov.Name()), time.Since(start))
	if err != nil {
		return "", &Error{Kind: KindUpstream, Message: err.Error(), Err: err}
	}
	return content, nil
}

func withDecision(resp models.ProxyResponse, d *models.CacheDecision) models.ProxyResponse {
	if d == nil {
		return resp
	}
	should := d.ShouldCache
	resp.ShouldCache = &should
	resp.DecisionReason = d.Reason
	return resp
}
