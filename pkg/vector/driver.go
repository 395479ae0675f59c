// Package vector provides the nearest neighbour index used to search stream
// entries by meaning.
package vector

import "context"

// Document is one embedded stream entry.
type Document struct {
	// ID is the entry ID within its namespace.
	ID string

	// Namespace scopes the document to one stream. Queries never cross
	// namespaces.
	Namespace string

	// Tags are the topic tags assigned to the entry, used for filtered search.
	Tags []string

	// Embedding is the vector representation of the entry content.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score represents the similarity score (higher = more similar).
	Score float32
}

// Query describes a nearest neighbour lookup.
type Query struct {
	Namespace string
	Embedding []float32
	TopK      int

	// Tag, when set, restricts results to documents carrying it.
	Tag string
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings. A document with the same
	// namespace and ID is replaced, tags included.
	Add(ctx context.Context, docs []Document) error

	// Query returns up to TopK documents of the namespace ordered by
	// decreasing similarity.
	Query(ctx context.Context, q Query) ([]QueryResult, error)

	// Delete removes documents of a namespace by ID.
	Delete(ctx context.Context, namespace string, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}

// DefaultTopK is used when a query does not set TopK.
const DefaultTopK = 10
