// Package provider translates generation requests into upstream AI
// provider calls. Adapters neither cache nor count; the proxy pipeline
// owns those side effects.
package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pario-ai/cachegate/pkg/models"
)

// GenerateRequest is one prompt sent to a provider.
type GenerateRequest struct {
	Prompt string
	// Model is a hint; providers that pick their own model ignore it.
	Model  string
	APIKey string
}

// Provider generates content for a prompt.
type Provider interface {
	Name() models.Service
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// UpstreamError reports a failed provider call. StatusCode is zero when
// the request never got a response.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// upstreamResult holds the response from a single upstream call.
type upstreamResult struct {
	statusCode int
	body       []byte
}

func (r *upstreamResult) ok() bool {
	return r.statusCode >= 200 && r.statusCode < 300
}

// doUpstreamRequest POSTs body to url and reads the whole response.
func doUpstreamRequest(ctx context.Context, client *http.Client, url string, headers map[string]string, body []byte) (*upstreamResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &upstreamResult{statusCode: resp.StatusCode, body: respBody}, nil
}
