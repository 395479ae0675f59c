package derive

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/threads/pkg/embeddings"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
	"github.com/papercomputeco/threads/pkg/vector"
)

// VectorIndexer embeds text entries into the vector index, carrying any tags
// already assigned so tag filtered search sees them.
type VectorIndexer struct {
	tags     storage.TagStore
	vectors  vector.Driver
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// NewVectorIndexer creates the vector derivation.
func NewVectorIndexer(tags storage.TagStore, vectors vector.Driver, embedder embeddings.Embedder, logger *slog.Logger) *VectorIndexer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &VectorIndexer{
		tags:     tags,
		vectors:  vectors,
		embedder: embedder,
		logger:   logger,
	}
}

func (v *VectorIndexer) Kind() string { return KindVector }

// Apply embeds every text entry of the batch in one call where the embedder
// supports it.
func (v *VectorIndexer) Apply(ctx context.Context, key stream.Key, entries []stream.Entry) (Commit, error) {
	var (
		texts []string
		text  []stream.Entry
	)
	for _, e := range entries {
		if e.Message.IsText() {
			texts = append(texts, e.Message.Content)
			text = append(text, e)
		}
	}
	if len(text) == 0 {
		return nil, nil
	}

	embs, err := embeddings.EmbedAll(ctx, v.embedder, texts)
	if err != nil {
		return nil, capabilityError("embedding", err)
	}

	docs := make([]vector.Document, 0, len(text))
	for i, e := range text {
		tags, err := v.tags.Tags(ctx, key, e.ID)
		if err != nil {
			return nil, err
		}
		docs = append(docs, vector.Document{
			ID:        e.ID.String(),
			Namespace: key.String(),
			Tags:      tags,
			Embedding: embs[i],
		})
	}

	v.logger.Debug("entries embedded", "stream", key.String(), "count", len(docs))
	return func(ctx context.Context) error {
		return v.vectors.Add(ctx, docs)
	}, nil
}
