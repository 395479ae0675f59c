package derive

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/papercomputeco/threads/pkg/embeddings"
	"github.com/papercomputeco/threads/pkg/llm"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
	"github.com/papercomputeco/threads/pkg/vector"
)

const tagSystemPrompt = "Generate up to 5 short topic tags. Return comma-separated tags only."

// MaxTags caps the tags kept per message.
const MaxTags = 5

// NormalizeTags parses a comma separated tag line into lower case tags with
// spaces replaced by underscores, dropping empties and duplicates.
func NormalizeTags(line string) []string {
	var out []string
	for _, t := range strings.Split(line, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		t = strings.Trim(t, `."'#`)
		if t == "" {
			continue
		}
		t = strings.Join(strings.Fields(t), "_")
		if slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}

// TagGenerator assigns topic tags to the untagged text messages of a recent
// window and re-embeds them with the tags attached.
type TagGenerator struct {
	tags     storage.TagStore
	client   llm.Client
	embedder embeddings.Embedder
	vectors  vector.Driver
	policy   *Policy
	logger   *slog.Logger
}

// NewTagGenerator creates the tag derivation. A nil embedder or vector
// driver skips the re-embed.
func NewTagGenerator(tags storage.TagStore, client llm.Client, embedder embeddings.Embedder, vectors vector.Driver, policy *Policy, logger *slog.Logger) *TagGenerator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if policy == nil {
		policy = NewPolicy(DefaultPolicyConfig())
	}
	return &TagGenerator{
		tags:     tags,
		client:   client,
		embedder: embedder,
		vectors:  vectors,
		policy:   policy,
		logger:   logger,
	}
}

func (t *TagGenerator) Kind() string { return KindTags }

// Window returns the most recent TagWindow entries, oldest first, or
// nothing when no entry was appended since the cursor.
func (t *TagGenerator) Window(ctx context.Context, streams storage.StreamStore, key stream.Key, cursor *stream.EntryID) ([]stream.Entry, error) {
	recent, err := streams.ReadRecent(ctx, key, t.policy.TagWindow())
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, nil
	}
	if cursor != nil && recent[0].ID.Compare(*cursor) <= 0 {
		return nil, nil
	}
	return reversed(recent), nil
}

type tagged struct {
	id   stream.EntryID
	tags []string
	doc  *vector.Document
}

func (t *TagGenerator) Apply(ctx context.Context, key stream.Key, entries []stream.Entry) (Commit, error) {
	if t.client == nil {
		return nil, nil
	}

	var batch []tagged
	for _, e := range entries {
		if !e.Message.IsText() {
			continue
		}
		existing, err := t.tags.Tags(ctx, key, e.ID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			continue
		}

		tags, err := t.generate(ctx, e.Message.Content)
		if err != nil {
			return nil, err
		}
		if len(tags) == 0 {
			continue
		}

		item := tagged{id: e.ID, tags: tags}
		if t.embedder != nil && t.vectors != nil {
			emb, err := t.embedder.Embed(ctx, e.Message.Content)
			if err != nil {
				return nil, capabilityError("embedding", err)
			}
			item.doc = &vector.Document{
				ID:        e.ID.String(),
				Namespace: key.String(),
				Tags:      tags,
				Embedding: emb,
			}
		}
		batch = append(batch, item)
	}

	if len(batch) == 0 {
		return nil, nil
	}
	return func(ctx context.Context) error {
		var docs []vector.Document
		for _, item := range batch {
			if err := t.tags.SetTags(ctx, key, item.id, item.tags); err != nil {
				return err
			}
			if item.doc != nil {
				docs = append(docs, *item.doc)
			}
		}
		if len(docs) == 0 {
			return nil
		}
		return t.vectors.Add(ctx, docs)
	}, nil
}

func (t *TagGenerator) generate(ctx context.Context, content string) ([]string, error) {
	maxTokens := 30
	temperature := 0.2
	resp, err := t.client.Chat(ctx, &llm.ChatRequest{
		System:      tagSystemPrompt,
		Messages:    []llm.Message{llm.NewTextMessage("user", content)},
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, capabilityError("llm", err)
	}
	return NormalizeTags(resp.Message.GetText()), nil
}
