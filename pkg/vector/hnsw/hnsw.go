// Package hnsw provides an in-process vector driver backed by an HNSW graph.
// It keeps nothing on disk and suits tests and single node deployments that
// run the memory storage driver.
package hnsw

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/fogfish/hnsw"
	hvector "github.com/fogfish/hnsw/vector"
	kvector "github.com/kshard/vector"

	"github.com/papercomputeco/threads/pkg/vector"
)

// efSearch floor for graph searches.
const minEF = 100

type entry struct {
	doc vector.Document
	key uint32
}

type namespace struct {
	index *hnsw.HNSW[hvector.VF32]
	docs  map[string]*entry

	// live maps graph keys to document IDs. The graph cannot remove nodes,
	// so replaced and deleted documents are dropped from live and skipped.
	live map[uint32]string
}

// Driver implements vector.Driver with one HNSW graph per namespace.
type Driver struct {
	mu         sync.RWMutex
	dimensions int
	nextKey    uint32
	namespaces map[string]*namespace
	logger     *slog.Logger
}

// New creates an empty driver. dimensions of zero accepts the size of the
// first embedding added.
func New(dimensions uint, logger *slog.Logger) *Driver {
	return &Driver{
		dimensions: int(dimensions),
		namespaces: make(map[string]*namespace),
		logger:     logger,
	}
}

func (d *Driver) check(v []float32) error {
	if d.dimensions == 0 {
		d.dimensions = len(v)
	}
	if len(v) != d.dimensions {
		return fmt.Errorf("%w: expected %d, got %d", vector.ErrDimensions, d.dimensions, len(v))
	}
	return nil
}

func (d *Driver) namespace(name string) *namespace {
	ns, ok := d.namespaces[name]
	if !ok {
		ns = &namespace{
			index: hnsw.New[hvector.VF32](hvector.SurfaceVF32(kvector.Cosine())),
			docs:  make(map[string]*entry),
			live:  make(map[uint32]string),
		}
		d.namespaces[name] = ns
	}
	return ns
}

// Add stores documents, replacing any with the same namespace and ID.
func (d *Driver) Add(_ context.Context, docs []vector.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, doc := range docs {
		if err := d.check(doc.Embedding); err != nil {
			return fmt.Errorf("doc %s: %w", doc.ID, err)
		}

		ns := d.namespace(doc.Namespace)
		if old, ok := ns.docs[doc.ID]; ok {
			delete(ns.live, old.key)
		}

		d.nextKey++
		key := d.nextKey
		doc.Embedding = slices.Clone(doc.Embedding)
		doc.Tags = slices.Clone(doc.Tags)

		ns.index.Insert(hvector.VF32{Key: key, Vec: doc.Embedding})
		ns.docs[doc.ID] = &entry{doc: doc, key: key}
		ns.live[key] = doc.ID
	}

	d.logger.Debug("added documents to hnsw", "count", len(docs))
	return nil
}

// Query searches the namespace graph. Tag filtered queries and graphs with
// stale nodes widen the search so filtering cannot starve the result set.
func (d *Driver) Query(_ context.Context, q vector.Query) ([]vector.QueryResult, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = vector.DefaultTopK
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ns, ok := d.namespaces[q.Namespace]
	if !ok || len(ns.live) == 0 {
		return nil, nil
	}
	if len(q.Embedding) != d.dimensions {
		return nil, fmt.Errorf("%w: expected %d, got %d", vector.ErrDimensions, d.dimensions, len(q.Embedding))
	}

	k := topK
	if q.Tag != "" || ns.index.Size() > len(ns.live) {
		k = ns.index.Size()
	}
	ef := max(k*2, minEF)

	found := ns.index.Search(hvector.VF32{Vec: q.Embedding}, k, ef)

	results := make([]vector.QueryResult, 0, topK)
	for _, item := range found {
		id, ok := ns.live[item.Key]
		if !ok {
			continue
		}
		e := ns.docs[id]
		if q.Tag != "" && !slices.Contains(e.doc.Tags, q.Tag) {
			continue
		}
		results = append(results, vector.QueryResult{
			Document: e.doc,
			Score:    cosine(q.Embedding, e.doc.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes documents of a namespace by ID.
func (d *Driver) Delete(_ context.Context, namespace string, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ns, ok := d.namespaces[namespace]
	if !ok {
		return nil
	}
	for _, id := range ids {
		if e, ok := ns.docs[id]; ok {
			delete(ns.live, e.key)
			delete(ns.docs, id)
		}
	}
	return nil
}

// Close drops every graph.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.namespaces = make(map[string]*namespace)
	return nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
