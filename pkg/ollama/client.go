// Package ollama is a small client for a local Ollama server's HTTP API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable is returned when the server cannot be reached or answers with
// a non-success status.
var ErrUnavailable = errors.New("ollama: unavailable")

// Client talks to one Ollama server.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a Client. A zero timeout means 30s.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type embedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding of text produced by model.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	var result embedResp
	if err := c.post(ctx, "/api/embeddings", embedReq{Model: model, Prompt: text}, &result); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding for model %s", model)
	}
	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// GenerateRequest is a single non-streaming completion.
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	// Format "json" constrains the output to a JSON document.
	Format  string         `json:"format,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResp struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate runs a completion and returns the full response text.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	req.Stream = false
	var result generateResp
	if err := c.post(ctx, "/api/generate", req, &result); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return result.Response, nil
}

type tagsResp struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Models lists the models installed on the server.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	var result tagsResp
	if err := c.do(req, &result); err != nil {
		return nil, fmt.Errorf("ollama tags: %w", err)
	}
	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}

// Ping reports whether the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Models(ctx)
	return err
}

// HasModel reports whether model (with or without a ":tag" suffix) is installed.
func (c *Client) HasModel(ctx context.Context, model string) (bool, error) {
	names, err := c.Models(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == model || strings.TrimSuffix(n, ":latest") == model {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
