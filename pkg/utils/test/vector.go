package testutils

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/papercomputeco/threads/pkg/vector"
)

// MockVectorDriver is a test vector driver. Query returns Results when set,
// otherwise the stored documents of the namespace in insertion order.
type MockVectorDriver struct {
	mu sync.Mutex

	documents map[string][]vector.Document

	// Results overrides what Query returns.
	Results []vector.QueryResult

	FailAdd   bool
	FailQuery bool

	queries []vector.Query
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		documents: make(map[string][]vector.Document),
	}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAdd {
		return fmt.Errorf("mock vector add failure")
	}

	for _, doc := range docs {
		existing := m.documents[doc.Namespace]
		existing = slices.DeleteFunc(existing, func(d vector.Document) bool { return d.ID == doc.ID })
		m.documents[doc.Namespace] = append(existing, doc)
	}
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, q vector.Query) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries = append(m.queries, q)

	if m.FailQuery {
		return nil, fmt.Errorf("mock vector query failure")
	}

	topK := q.TopK
	if topK <= 0 {
		topK = vector.DefaultTopK
	}

	results := m.Results
	if results == nil {
		for _, doc := range m.documents[q.Namespace] {
			if q.Tag != "" && !slices.Contains(doc.Tags, q.Tag) {
				continue
			}
			results = append(results, vector.QueryResult{Document: doc, Score: 1})
		}
	}

	if len(results) < topK {
		return results, nil
	}
	return results[:topK], nil
}

func (m *MockVectorDriver) Delete(_ context.Context, namespace string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.documents[namespace] = slices.DeleteFunc(m.documents[namespace], func(d vector.Document) bool {
		return slices.Contains(ids, d.ID)
	})
	return nil
}

// Documents returns the stored documents of a namespace.
func (m *MockVectorDriver) Documents(namespace string) []vector.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]vector.Document(nil), m.documents[namespace]...)
}

// Queries returns every query received.
func (m *MockVectorDriver) Queries() []vector.Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]vector.Query(nil), m.queries...)
}

func (m *MockVectorDriver) Close() error {
	return nil
}
