package knowledge

import "context"

// Index stores embedded chunks and answers nearest-neighbour queries by
// cosine similarity. Score is 1 - cosine distance, clamped to [0, 1].
// Implementations must be safe for concurrent use.
type Index interface {
	// Upsert inserts or replaces entries by id.
	Upsert(ctx context.Context, entries []Entry) error
	// Query returns at most k results with Score >= minScore in descending
	// score order. A non-empty typeFilter restricts results to that type.
	Query(ctx context.Context, vector []float32, k int, typeFilter string, minScore float64) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Embedder maps texts to fixed-length vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderFunc adapts a function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}
