// Package textgen provides implementations of the pipeline's
// TextGenerator contract: an HTTP client for a hosted generation service
// and a deterministic template generator used in development and as a
// dependency-free fallback.
package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/huddle/huddle/internal/pipeline/synthesis"
)

// HTTPGenerator calls a remote text-generation endpoint with the
// structured prompt and returns its plain-text summary. The caller (the
// synthesizer) bounds each call with a timeout via the context.
type HTTPGenerator struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPGenerator creates a generator client. A nil httpClient falls
// back to a default client; per-call deadlines come from the context.
func NewHTTPGenerator(endpoint, apiKey string, httpClient *http.Client) *HTTPGenerator {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPGenerator{endpoint: endpoint, apiKey: apiKey, httpClient: httpClient}
}

type generateResponse struct {
	Text string `json:"text"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, p synthesis.Prompt) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call text generator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("text generator returned status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}
	if out.Text == "" {
		return "", fmt.Errorf("text generator returned an empty summary")
	}
	return out.Text, nil
}
