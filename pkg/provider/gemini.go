package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/cachegate/pkg/models"
)

// DefaultGeminiBaseURL is the public Gemini REST endpoint.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini wire types.
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *GeminiInlineData `json:"inlineData,omitempty"`
}

type GeminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type GeminiGenerationConfig struct {
	ResponseModalities []string        `json:"responseModalities,omitempty"`
	ResponseMimeType   string          `json:"responseMimeType,omitempty"`
	ResponseSchema     json.RawMessage `json:"responseSchema,omitempty"`
}

type GeminiRequest struct {
	Contents         []GeminiContent         `json:"contents"`
	GenerationConfig *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type GeminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

// blockReason returns why the prompt was blocked, or "".
func (r *GeminiResponse) blockReason() string {
	if r.PromptFeedback == nil {
		return ""
	}
	return r.PromptFeedback.BlockReason
}

// Text concatenates the text parts of the first candidate.
func (r *GeminiResponse) Text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// Media returns the first inline media part of the first candidate.
func (r *GeminiResponse) Media() (*GeminiInlineData, bool) {
	if len(r.Candidates) == 0 {
		return nil, false
	}
	for _, p := range r.Candidates[0].Content.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			return p.InlineData, true
		}
	}
	return nil, false
}

type geminiErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func readGeminiErrMsg(body []byte) string {
	var errResp geminiErrorResp
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (status: %s)", errResp.Error.Message, errResp.Error.Status)
	}
	return strings.TrimSpace(string(body))
}

// GeminiClient issues generateContent calls. It is shared by the Gemini
// provider and the cache policy classifier.
type GeminiClient struct {
	baseURL string
	client  *http.Client
}

// NewGeminiClient creates a client for baseURL.
func NewGeminiClient(baseURL string, timeout time.Duration) *GeminiClient {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// GenerateContent calls models/<model>:generateContent.
func (c *GeminiClient) GenerateContent(ctx context.Context, model, apiKey string, req GeminiRequest) (*GeminiResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	headers := map[string]string{"x-goog-api-key": apiKey}

	res, err := doUpstreamRequest(ctx, c.client, url, headers, body)
	if err != nil {
		return nil, &UpstreamError{Provider: "gemini", Err: err}
	}
	if !res.ok() {
		return nil, &UpstreamError{
			Provider:   "gemini",
			StatusCode: res.statusCode,
			Message:    readGeminiErrMsg(res.body),
		}
	}

	var out GeminiResponse
	if err := json.Unmarshal(res.body, &out); err != nil {
		return nil, &UpstreamError{Provider: "gemini", Message: "malformed response body", Err: err}
	}
	return &out, nil
}

var imageKeywords = []string{
	"generate an image",
	"create an image",
	"draw a picture",
	"an image of",
	"a photo of",
}

// IsImagePrompt reports whether prompt asks for an image. Matching is a
// case-insensitive substring test against a fixed phrase list.
func IsImagePrompt(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, kw := range imageKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var (
	// ErrNoImage is returned when an image request succeeds without media.
	ErrNoImage = errors.New("image generation failed to produce an image")
	// ErrNoContent is returned when a text request succeeds without text,
	// as Gemini does for blocked prompts.
	ErrNoContent = errors.New("generation produced no content")
)

// GeminiProvider generates text, or an image data URI for image prompts.
type GeminiProvider struct {
	client     *GeminiClient
	textModel  string
	imageModel string
	logger     *zap.Logger
}

// NewGeminiProvider builds the Gemini adapter.
func NewGeminiProvider(client *GeminiClient, textModel, imageModel string, logger *zap.Logger) *GeminiProvider {
	if textModel == "" {
		textModel = "gemini-2.0-flash"
	}
	if imageModel == "" {
		imageModel = "gemini-2.0-flash-preview-image-generation"
	}
	return &GeminiProvider{
		client:     client,
		textModel:  textModel,
		imageModel: imageModel,
		logger:     logger.With(zap.String("provider", string(models.ServiceGoogleGemini))),
	}
}

// Name returns the service tag.
func (p *GeminiProvider) Name() models.Service { return models.ServiceGoogleGemini }

// Generate ignores req.Model; the model is chosen by prompt kind.
func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	contents := []GeminiContent{{Role: "user", Parts: []GeminiPart{{Text: req.Prompt}}}}

	if IsImagePrompt(req.Prompt) {
		resp, err := p.client.GenerateContent(ctx, p.imageModel, req.APIKey, GeminiRequest{
			Contents: contents,
			GenerationConfig: &GeminiGenerationConfig{
				ResponseModalities: []string{"TEXT", "IMAGE"},
			},
		})
		if err != nil {
			return "", err
		}
		media, ok := resp.Media()
		if !ok {
			p.logger.Warn("image response carried no media")
			return "", &UpstreamError{Provider: "gemini", Message: ErrNoImage.Error(), Err: ErrNoImage}
		}
		return "data:" + media.MimeType + ";base64," + media.Data, nil
	}

	resp, err := p.client.GenerateContent(ctx, p.textModel, req.APIKey, GeminiRequest{Contents: contents})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		msg := ErrNoContent.Error()
		if reason := resp.blockReason(); reason != "" {
			msg += " (blocked: " + reason + ")"
		}
		p.logger.Warn("text response carried no content", zap.String("block_reason", resp.blockReason()))
		return "", &UpstreamError{Provider: "gemini", Message: msg, Err: ErrNoContent}
	}
	return text, nil
}
