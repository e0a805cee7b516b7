// Package embed produces vector embeddings for semantic similarity
// scoring, either via the OpenAI embeddings API or a local ONNX model.
package embed

import (
	"context"
	"errors"
	"fmt"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

var errONNXNotAvailable = errors.New("onnx embedding: not compiled, rebuild with -tags onnx")

// Config holds configuration for creating an Embedder.
type Config struct {
	Provider    string // "openai" or "onnx"
	Model       string
	APIKey      string
	BaseURL     string
	ModelPath   string // path to the .onnx model file
	LibraryPath string // path to the onnxruntime shared library
}

// New creates an Embedder for the configured provider.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIEmbedder(cfg)
	case "onnx":
		return NewONNXEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
