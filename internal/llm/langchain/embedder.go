package langchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms/ollama"
)

const DefaultEmbeddingModel = "nomic-embed-text"

// Embedder implements knowledge.Embedder with an Ollama embedding model. The
// client is built on first use and shared for the life of the process; a
// construction failure is returned by every later call.
type Embedder struct {
	model  string
	client func() (embeddingClient, error)
}

type embeddingClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// NewOllamaEmbedder returns a lazily initialized Ollama embedder.
func NewOllamaEmbedder(serverURL, model string) *Embedder {
	if serverURL == "" {
		serverURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{
		model: model,
		client: sync.OnceValues(func() (embeddingClient, error) {
			c, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(serverURL))
			if err != nil {
				return nil, fmt.Errorf("ollama embedding client: %w", err)
			}
			return c, nil
		}),
	}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

// Embed returns one vector per input text, in order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c, err := e.client()
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}
	return c.CreateEmbedding(ctx, texts)
}
