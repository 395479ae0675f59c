package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/threads/pkg/compress"
	"github.com/papercomputeco/threads/pkg/embeddings"
	"github.com/papercomputeco/threads/pkg/llm"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
	"github.com/papercomputeco/threads/pkg/usage"
	"github.com/papercomputeco/threads/pkg/vector"
)

const filterSystemPrompt = "You are a filter. Return the arguments of filter_messages: " +
	"keep = indexes of relevant messages, drop = indexes of irrelevant ones, " +
	"confidence = a number from 0 to 1 for how sure you are that keep covers everything important."

var filterTool = llm.Tool{
	Name:        "filter_messages",
	Description: "Mark relevant message indexes and rate your confidence.",
	Parameters: llm.ObjectSchema([]string{"keep", "drop", "confidence"}, map[string]any{
		"keep": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		"drop": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		"confidence": map[string]any{
			"type":    "number",
			"minimum": 0.0,
			"maximum": 1.0,
		},
	}),
}

// ReconcilerConfig configures a Reconciler. Store, Tenants and Meter are
// required.
type ReconcilerConfig struct {
	Store   storage.Driver
	Tenants Tenants
	Meter   *usage.Meter
	Codec   *compress.Codec

	Embedder embeddings.Embedder
	Vectors  vector.Driver
	LLM      llm.Client

	Logger *slog.Logger
}

// Reconciler serves reads. Secondary indexes may lag behind the stream and
// behind each other; every read returns what is committed at read time.
type Reconciler struct {
	reader

	tenants  Tenants
	meter    *usage.Meter
	embedder embeddings.Embedder
	vectors  vector.Driver
	llm      llm.Client
}

// NewReconciler creates a Reconciler.
func NewReconciler(c *ReconcilerConfig) *Reconciler {
	return &Reconciler{
		reader: reader{
			store:  c.Store,
			codec:  c.Codec,
			logger: discard(c.Logger),
		},
		tenants:  c.Tenants,
		meter:    c.Meter,
		embedder: c.Embedder,
		vectors:  c.Vectors,
		llm:      c.LLM,
	}
}

// History returns the most recent limit live entries in chronological
// order.
func (r *Reconciler) History(ctx context.Context, key stream.Key, limit int) ([]stream.Entry, error) {
	if err := r.tenants.CheckBinding(ctx, key.Entity); err != nil {
		return nil, err
	}
	return r.recent(ctx, key, orDefault(limit, defaultHistoryLimit))
}

func (r *Reconciler) recent(ctx context.Context, key stream.Key, limit int) ([]stream.Entry, error) {
	entries, err := r.store.ReadRecent(ctx, key, limit)
	if err != nil {
		return nil, storage.Wrap("read stream", err)
	}
	slices.Reverse(entries)
	r.present(ctx, key, entries)
	return entries, nil
}

// Context is a history window enriched from the secondary indexes.
type Context struct {
	Messages []stream.Entry `json:"messages"`

	// Relevant are semantically related entries outside the window.
	Relevant []stream.Entry `json:"relevant"`

	// Facts folds every stored fact into one synthetic user message.
	Facts *stream.Message `json:"facts,omitempty"`

	Summary string `json:"summary,omitempty"`
}

// Context returns the history window plus relevant entries, facts and the
// summary. A failing embedding, vector lookup, fact or summary read leaves
// that part empty instead of failing the read.
func (r *Reconciler) Context(ctx context.Context, key stream.Key, limit, topK int) (*Context, error) {
	if err := r.tenants.CheckBinding(ctx, key.Entity); err != nil {
		return nil, err
	}

	window, err := r.recent(ctx, key, orDefault(limit, defaultContextLimit))
	if err != nil {
		return nil, err
	}
	out := &Context{Messages: window}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		relevant, err := r.relevant(gctx, key, window, orDefault(topK, defaultContextTopK))
		if err != nil {
			return err
		}
		out.Relevant = relevant
		return nil
	})
	g.Go(func() error {
		facts, err := r.store.Facts(gctx, key.Entity)
		if err != nil {
			r.logger.Warn("context without facts", "entity", key.Entity.String(), "error", err)
			return nil
		}
		if len(facts) > 0 {
			msg := stream.Message{
				Role:    stream.RoleUser,
				Content: strings.Join(facts, "; "),
				Type:    stream.TypeText,
			}
			out.Facts = &msg
		}
		return nil
	})
	g.Go(func() error {
		summary, ok, err := r.store.Summary(gctx, key.Entity)
		if err != nil {
			r.logger.Warn("context without summary", "entity", key.Entity.String(), "error", err)
			return nil
		}
		if ok {
			out.Summary = summary
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Reconciler) relevant(ctx context.Context, key stream.Key, window []stream.Entry, topK int) ([]stream.Entry, error) {
	text := stream.JoinContents(window)
	if text == "" || r.embedder == nil || r.vectors == nil {
		return nil, nil
	}

	ids, err := r.nearest(ctx, key, text, topK, "")
	if err != nil {
		r.logger.Warn("context enrichment degraded",
			"stream", key.String(),
			"error", err,
		)
		return nil, nil
	}

	seen := make(map[stream.EntryID]bool, len(window))
	for _, e := range window {
		seen[e.ID] = true
	}
	ids = slices.DeleteFunc(ids, func(id stream.EntryID) bool { return seen[id] })

	return r.fetch(ctx, key, ids)
}

// nearest embeds text and returns the IDs of the closest documents of the
// stream, most similar first.
func (r *Reconciler) nearest(ctx context.Context, key stream.Key, text string, topK int, tag string) ([]stream.EntryID, error) {
	emb, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, &storage.CapabilityError{Capability: "embedding", Err: err}
	}

	results, err := r.vectors.Query(ctx, vector.Query{
		Namespace: key.String(),
		Embedding: emb,
		TopK:      topK,
		Tag:       tag,
	})
	if err != nil {
		return nil, &storage.CapabilityError{Capability: "vector", Err: err}
	}
	return resultIDs(key, results, r.logger), nil
}

func resultIDs(key stream.Key, results []vector.QueryResult, logger *slog.Logger) []stream.EntryID {
	ids := make([]stream.EntryID, 0, len(results))
	for _, res := range results {
		id, err := stream.ParseEntryID(res.ID)
		if err != nil {
			logger.Warn("ignoring malformed vector document id",
				"stream", key.String(),
				"id", res.ID,
			)
			continue
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// SearchRequest is a semantic search.
type SearchRequest struct {
	Query string
	TopK  int

	// Tags restricts hits to entries carrying any of them.
	Tags []string
}

// Search returns the entries closest to the query text.
func (r *Reconciler) Search(ctx context.Context, key stream.Key, req SearchRequest) ([]stream.Entry, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, storage.ValidationError{Reason: "query is required"}
	}
	if err := r.tenants.CheckBinding(ctx, key.Entity); err != nil {
		return nil, err
	}
	if r.embedder == nil || r.vectors == nil {
		return nil, &storage.CapabilityError{Capability: "vector", Err: errors.New("no vector index configured")}
	}

	topK := orDefault(req.TopK, defaultSearchTopK)
	ids, err := r.search(ctx, key, req.Query, topK, req.Tags)
	if err != nil {
		return nil, err
	}

	hits, err := r.fetch(ctx, key, ids)
	if err != nil {
		return nil, err
	}
	r.recordQuery(ctx, key.Entity, req.Query)
	return hits, nil
}

func (r *Reconciler) search(ctx context.Context, key stream.Key, query string, topK int, tags []string) ([]stream.EntryID, error) {
	if len(tags) <= 1 {
		tag := ""
		if len(tags) == 1 {
			tag = tags[0]
		}
		return r.nearest(ctx, key, query, topK, tag)
	}

	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &storage.CapabilityError{Capability: "embedding", Err: err}
	}

	var merged []vector.QueryResult
	for _, tag := range tags {
		results, err := r.vectors.Query(ctx, vector.Query{
			Namespace: key.String(),
			Embedding: emb,
			TopK:      topK,
			Tag:       tag,
		})
		if err != nil {
			return nil, &storage.CapabilityError{Capability: "vector", Err: err}
		}
		merged = append(merged, results...)
	}
	slices.SortStableFunc(merged, func(a, b vector.QueryResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	ids := resultIDs(key, merged, r.logger)
	if len(ids) > topK {
		ids = ids[:topK]
	}
	return ids, nil
}

// SearchByTag returns up to limit entries tagged with tag, oldest first.
func (r *Reconciler) SearchByTag(ctx context.Context, key stream.Key, tag string, limit int) ([]stream.Entry, error) {
	if strings.TrimSpace(tag) == "" {
		return nil, storage.ValidationError{Reason: "tag is required"}
	}
	if err := r.tenants.CheckBinding(ctx, key.Entity); err != nil {
		return nil, err
	}

	ids, err := r.store.TaggedIDs(ctx, key, tag, orDefault(limit, defaultTagLimit))
	if err != nil {
		return nil, storage.Wrap("read tags", err)
	}
	return r.fetch(ctx, key, ids)
}

// FilterRequest asks the model which search hits are relevant.
type FilterRequest struct {
	Query string
	TopK  int

	// DeleteIrrelevant removes the dropped entries from the stream and the
	// vector index.
	DeleteIrrelevant bool
}

// FilterResult is the outcome of a relevance filter.
type FilterResult struct {
	Kept       []stream.Entry
	Removed    []stream.EntryID
	Confidence float64
}

// Filter runs a semantic search and lets the model keep the relevant hits.
func (r *Reconciler) Filter(ctx context.Context, key stream.Key, req FilterRequest) (*FilterResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, storage.ValidationError{Reason: "query is required"}
	}
	if err := r.tenants.CheckBinding(ctx, key.Entity); err != nil {
		return nil, err
	}
	if r.embedder == nil || r.vectors == nil {
		return nil, &storage.CapabilityError{Capability: "vector", Err: errors.New("no vector index configured")}
	}
	if r.llm == nil {
		return nil, &storage.CapabilityError{Capability: "llm", Err: errors.New("no chat completion provider configured")}
	}

	ids, err := r.nearest(ctx, key, req.Query, orDefault(req.TopK, defaultFilterTopK), "")
	if err != nil {
		return nil, err
	}
	candidates, err := r.fetch(ctx, key, ids)
	if err != nil {
		return nil, err
	}

	out := &FilterResult{Kept: []stream.Entry{}, Removed: []stream.EntryID{}}
	if len(candidates) == 0 {
		return out, nil
	}

	keep, confidence, err := r.decide(ctx, req.Query, candidates)
	if err != nil {
		return nil, err
	}
	out.Confidence = confidence

	for i, e := range candidates {
		if keep[i] {
			out.Kept = append(out.Kept, e)
			continue
		}
		out.Removed = append(out.Removed, e.ID)
	}

	if req.DeleteIrrelevant && len(out.Removed) > 0 {
		if err := r.remove(ctx, key, out.Removed); err != nil {
			return nil, err
		}
	}

	r.recordQuery(ctx, key.Entity, req.Query)
	return out, nil
}

func (r *Reconciler) decide(ctx context.Context, query string, candidates []stream.Entry) (map[int]bool, float64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "User query: %q. Messages:\n", query)
	for i, e := range candidates {
		line, err := json.Marshal(e.Message)
		if err != nil {
			return nil, 0, fmt.Errorf("encoding candidate: %w", err)
		}
		fmt.Fprintf(&b, "%d. %s\n", i, line)
	}

	temperature := 0.1
	resp, err := r.llm.Chat(ctx, &llm.ChatRequest{
		System:      filterSystemPrompt,
		Messages:    []llm.Message{llm.NewTextMessage("user", b.String())},
		Tools:       []llm.Tool{filterTool},
		Temperature: &temperature,
	})
	if err != nil {
		return nil, 0, &storage.CapabilityError{Capability: "llm", Err: err}
	}

	calls := resp.Message.ToolCalls()
	idx := slices.IndexFunc(calls, func(c llm.ToolCall) bool { return c.Name == filterTool.Name })
	if idx < 0 {
		return nil, 0, &storage.CapabilityError{Capability: "llm", Err: errors.New("model returned no filter decision")}
	}

	call := calls[idx]
	keep := make(map[int]bool)
	for _, i := range call.Ints("keep") {
		keep[i] = true
	}
	confidence, _ := call.Float("confidence")
	confidence = min(max(confidence, 0), 1)
	return keep, confidence, nil
}

func (r *Reconciler) remove(ctx context.Context, key stream.Key, ids []stream.EntryID) error {
	docs := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := r.store.Delete(ctx, key, id); err != nil {
			return storage.Wrap("delete entry", err)
		}
		if err := r.store.SetTags(ctx, key, id, nil); err != nil {
			r.logger.Warn("failed to clear entry tags",
				"stream", key.String(),
				"id", id.String(),
				"error", err,
			)
		}
		docs = append(docs, id.String())
	}

	if err := r.vectors.Delete(ctx, key.String(), docs); err != nil {
		r.logger.Warn("failed to delete vector documents",
			"stream", key.String(),
			"count", len(docs),
			"error", err,
		)
	}
	return nil
}

func (r *Reconciler) recordQuery(ctx context.Context, entity stream.Entity, query string) {
	if err := r.meter.RecordText(ctx, entity, query); err != nil {
		r.logger.Error("failed to record usage", "entity", entity.String(), "error", err)
	}
}
