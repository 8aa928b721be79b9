// Package classifier decides whether a prompt's response is worth caching
// by asking a Gemini model for a structured verdict.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pario-ai/cachegate/pkg/models"
	"github.com/pario-ai/cachegate/pkg/provider"
)

// DefaultModel is the Gemini model used for classification.
const DefaultModel = "gemini-2.0-flash"

// ErrNoCredential means no classifier credential is configured.
var ErrNoCredential = errors.New("no classifier credential configured")

// Classifier returns a caching verdict for a prompt.
type Classifier interface {
	Classify(ctx context.Context, prompt, apiKey string) (models.CacheDecision, error)
}

const instructions = `You are an AI assistant that determines whether a given Ollama prompt should be cached or not.

Your goal is to optimize storage usage by avoiding caching prompts that are unlikely to be repeated or are low-value.

Consider the following factors when making your decision:

- Repetitiveness: Is the prompt likely to be repeated in the future?
- Value: Is the prompt valuable to cache? Prompts that require significant computation or access to external resources are generally more valuable to cache.
- Uniqueness: Prompts containing user-specific information or personalized content are less likely to be repeated and should not be cached.

Based on these factors, determine whether the prompt should be cached or not. Return a boolean value for
shouldCache (true if it should be cached, false otherwise) and provide a brief reason for your decision.

Prompt Content: `

var responseSchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "shouldCache": {"type": "BOOLEAN"},
    "reason": {"type": "STRING"}
  },
  "required": ["shouldCache", "reason"]
}`)

// GeminiClassifier asks a Gemini model for a JSON verdict. It makes a
// single attempt per call.
type GeminiClassifier struct {
	client *provider.GeminiClient
	model  string
	logger *zap.Logger
}

// NewGeminiClassifier builds a classifier over client.
func NewGeminiClassifier(client *provider.GeminiClient, model string, logger *zap.Logger) *GeminiClassifier {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiClassifier{
		client: client,
		model:  model,
		logger: logger.With(zap.String("component", "classifier")),
	}
}

// verdict mirrors CacheDecision with pointer fields so missing keys are detectable.
type verdict struct {
	ShouldCache *bool   `json:"shouldCache"`
	Reason      *string `json:"reason"`
}

// Classify fails when the call fails or the reply lacks either field.
func (c *GeminiClassifier) Classify(ctx context.Context, prompt, apiKey string) (models.CacheDecision, error) {
	if apiKey == "" {
		return models.CacheDecision{}, ErrNoCredential
	}

	resp, err := c.client.GenerateContent(ctx, c.model, apiKey, provider.GeminiRequest{
		Contents: []provider.GeminiContent{{
			Role:  "user",
			Parts: []provider.GeminiPart{{Text: instructions + prompt}},
		}},
		GenerationConfig: &provider.GeminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   responseSchema,
		},
	})
	if err != nil {
		return models.CacheDecision{}, fmt.Errorf("classify prompt: %w", err)
	}

	d, err := parseVerdict(resp.Text())
	if err != nil {
		return models.CacheDecision{}, err
	}
	c.logger.Debug("classified prompt", zap.Bool("should_cache", d.ShouldCache), zap.String("reason", d.Reason))
	return d, nil
}

func parseVerdict(text string) (models.CacheDecision, error) {
	text = strings.TrimSpace(text)
	// Models occasionally wrap JSON in a fenced block despite the mime type.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var v verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return models.CacheDecision{}, fmt.Errorf("parse classifier verdict: %w", err)
	}
	if v.ShouldCache == nil || v.Reason == nil {
		return models.CacheDecision{}, fmt.Errorf("parse classifier verdict: missing shouldCache or reason")
	}
	return models.CacheDecision{ShouldCache: *v.ShouldCache, Reason: *v.Reason}, nil
}
