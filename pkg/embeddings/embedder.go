// Package embeddings defines the text embedding capability behind semantic
// search, relevance filtering and tag similarity.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmbedding is returned when embedding generation fails.
var ErrEmbedding = errors.New("embedding failed")

// Embedder turns text into vectors. Implementations are deterministic for
// identical input and always return vectors of one size.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Close() error
}

// BatchEmbedder is implemented by embedders that accept several inputs in
// one request.
type BatchEmbedder interface {
	Embedder

	// EmbedBatch returns one vector per text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedAll embeds texts with a single request when e supports batching and
// one request per text otherwise.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if b, ok := e.(BatchEmbedder); ok {
		out, err := b.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(out) != len(texts) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrEmbedding, len(out), len(texts))
		}
		return out, nil
	}

	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, emb)
	}
	return out, nil
}
