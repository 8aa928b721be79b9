package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/cachegate/pkg/models"
)

// DefaultOllamaModel is used when a request names no model.
const DefaultOllamaModel = "llama3.1:8b"

// OllamaProvider calls an Ollama-compatible /api/generate endpoint.
type OllamaProvider struct {
	endpoint     string
	defaultModel string
	client       *http.Client
	logger       *zap.Logger
}

// NewOllamaProvider builds an Ollama provider for endpoint.
func NewOllamaProvider(endpoint, defaultModel string, timeout time.Duration, logger *zap.Logger) *OllamaProvider {
	if defaultModel == "" {
		defaultModel = DefaultOllamaModel
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaProvider{
		endpoint:     strings.TrimSpace(endpoint),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: timeout},
		logger:       logger.With(zap.String("provider", string(models.ServiceOllama))),
	}
}

// Name returns the service tag.
func (p *OllamaProvider) Name() models.Service { return models.ServiceOllama }

// DefaultModel returns the model used when a request names none.
func (p *OllamaProvider) DefaultModel() string { return p.defaultModel }

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Generate sends a non-streaming generate request.
func (p *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	body, err := json.Marshal(ollamaGenerateRequest{Model: model, Prompt: req.Prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("encode ollama request: %w", err)
	}

	headers := map[string]string{"Authorization": "Bearer " + req.APIKey}
	res, err := doUpstreamRequest(ctx, p.client, p.endpoint, headers, body)
	if err != nil {
		return "", &UpstreamError{Provider: "ollama", Err: err}
	}
	if !res.ok() {
		p.logger.Warn("upstream error", zap.Int("status", res.statusCode), zap.String("model", model))
		return "", &UpstreamError{
			Provider:   "ollama",
			StatusCode: res.statusCode,
			Message:    strings.TrimSpace(string(res.body)),
		}
	}

	var out ollamaGenerateResponse
	if err := json.Unmarshal(res.body, &out); err != nil {
		return "", &UpstreamError{Provider: "ollama", Message: "malformed response body", Err: err}
	}
	return out.Response, nil
}
