package embed

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/segmentio/encoding/json"
)

const (
	openAIDefaultModel   = "text-embedding-3-small"
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIRequestTimeout = 30 * time.Second
)

// OpenAIEmbedder produces vectors through the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	httpClient *http.Client
	apiKey     string
	model      string
	endpoint   string
}

// NewOpenAIEmbedder builds an embedder against the OpenAI API. The model
// defaults to text-embedding-3-small and BaseURL to the public endpoint.
func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: APIKey is required")
	}
	e := &OpenAIEmbedder{
		httpClient: &http.Client{Timeout: openAIRequestTimeout},
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		endpoint:   cfg.BaseURL,
	}
	if e.model == "" {
		e.model = openAIDefaultModel
	}
	if e.endpoint == "" {
		e.endpoint = openAIDefaultBaseURL
	}
	e.endpoint += "/embeddings"
	return e, nil
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

// embeddingPayload is the subset of the API response this package reads.
type embeddingPayload struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed returns the embedding vector for the given text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]string{"input": text, "model": e.model})
	if err != nil {
		return nil, fmt.Errorf("openai embed: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai embed: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embed: http: %w", err)
	}
	defer resp.Body.Close()

	var payload embeddingPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("openai embed: decode response: %w", err)
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("openai embed: API error (%s): %s", payload.Error.Type, payload.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai embed: unexpected status %d", resp.StatusCode)
	}
	if len(payload.Data) == 0 || len(payload.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embed: empty embedding in response")
	}
	return payload.Data[0].Embedding, nil
}
