package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/miragesec/mirage/pkg/httputil"
)

// RemoteEmbedderConfig configures the OpenAI-compatible embedding client.
type RemoteEmbedderConfig struct {
	APIKey    string // API key (defaults to MIRAGE_EMBED_API_KEY env)
	BaseURL   string // API base URL (defaults to https://api.openai.com/v1)
	Model     string // Model name (defaults to text-embedding-3-small)
	Dimension int    // Embedding dimension (defaults to 512)
	Timeout   time.Duration
}

// DefaultRemoteEmbedderConfig returns sensible defaults.
func DefaultRemoteEmbedderConfig() RemoteEmbedderConfig {
	return RemoteEmbedderConfig{
		APIKey:    os.Getenv("MIRAGE_EMBED_API_KEY"),
		BaseURL:   "https://api.openai.com/v1",
		Model:     "text-embedding-3-small",
		Dimension: 512,
		Timeout:   30 * time.Second,
	}
}

// RemoteEmbedder calls an OpenAI-compatible /embeddings endpoint. Any provider
// exposing that shape works (OpenAI, OpenRouter, a local inference server).
type RemoteEmbedder struct {
	apiKey     string
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
}

// NewRemoteEmbedder creates a remote embedder, validating that a key is set.
func NewRemoteEmbedder(cfg RemoteEmbedderConfig) (*RemoteEmbedder, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("MIRAGE_EMBED_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key not configured (set MIRAGE_EMBED_API_KEY)")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 512
	}

	return &RemoteEmbedder{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		httpClient: httputil.MediumClient(),
	}, nil
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed requests a single embedding from the remote endpoint.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := embeddingRequest{
		Model:      e.model,
		Input:      []string{text},
		Dimensions: e.dimension,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding api call failed: %w", err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := httputil.ReadErrorBody(resp.Body)
		return nil, fmt.Errorf("embedding api returned %d: %s", resp.StatusCode, string(body))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	return result.Data[0].Embedding, nil
}

// Dimension returns the configured vector length.
func (e *RemoteEmbedder) Dimension() int {
	return e.dimension
}
