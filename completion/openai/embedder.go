package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/vectorstore"
)

// DefaultEmbeddingModel is used when EmbedderConfig.Model is empty.
const DefaultEmbeddingModel = "text-embedding-3-small"

// EmbedderConfig holds OpenAI embeddings configuration.
type EmbedderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Embedder implements vectorstore.Embedder using the OpenAI embeddings API.
type Embedder struct {
	client *openai.Client
	model  string
}

// NewEmbedder creates a new OpenAI embedder.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	return &Embedder{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
	}, nil
}

// Embed implements vectorstore.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings returned no data")
	}
	return resp.Data[0].Embedding, nil
}

// Compile-time check that Embedder implements vectorstore.Embedder.
var _ vectorstore.Embedder = (*Embedder)(nil)
