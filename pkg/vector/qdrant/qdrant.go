// Package qdrant provides a vector driver backed by a Qdrant server.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/google/uuid"
	qc "github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/threads/pkg/vector"
)

const (
	// DefaultCollectionName is the collection used when none is configured.
	DefaultCollectionName = "threads"

	defaultPort = 6334

	payloadNamespace = "namespace"
	payloadDocID     = "doc_id"
	payloadTags      = "tags"
)

// pointNamespace derives stable point UUIDs from (namespace, doc ID).
var pointNamespace = uuid.MustParse("5b0f1f0e-6c35-4a8e-9d6e-0c7a1d2b9e41")

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is the host:port of the Qdrant gRPC endpoint.
	Target string

	APIKey string

	// CollectionName defaults to DefaultCollectionName.
	CollectionName string

	Dimensions uint
}

// Driver implements vector.Driver on a Qdrant collection. Namespaces and tags
// are point payload fields with keyword indexes.
type Driver struct {
	client     *qc.Client
	collection string
	logger     *slog.Logger
}

// NewDriver connects to Qdrant and creates the collection when missing.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.Target == "" {
		return nil, fmt.Errorf("qdrant target is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	host, port, err := splitTarget(c.Target)
	if err != nil {
		return nil, err
	}

	client, err := qc.NewClient(&qc.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}

	collection := c.CollectionName
	if collection == "" {
		collection = DefaultCollectionName
	}

	d := &Driver{client: client, collection: collection, logger: logger}
	if err := d.ensureCollection(ctx, c.Dimensions); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("connected to qdrant",
		"target", c.Target,
		"collection", collection,
	)
	return d, nil
}

func splitTarget(target string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return target, defaultPort, nil //nolint:nilerr // bare host uses the default port
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, nil
}

func (d *Driver) ensureCollection(ctx context.Context, dimensions uint) error {
	exists, err := d.client.CollectionExists(ctx, d.collection)
	if err != nil {
		return fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}
	if exists {
		return nil
	}

	err = d.client.CreateCollection(ctx, &qc.CreateCollection{
		CollectionName: d.collection,
		VectorsConfig: qc.NewVectorsConfig(&qc.VectorParams{
			Size:     uint64(dimensions),
			Distance: qc.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %q: %w", d.collection, err)
	}

	for _, field := range []string{payloadNamespace, payloadTags} {
		_, err := d.client.CreateFieldIndex(ctx, &qc.CreateFieldIndexCollection{
			CollectionName: d.collection,
			FieldName:      field,
			FieldType:      qc.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("indexing payload field %q: %w", field, err)
		}
	}
	return nil
}

func pointID(namespace, id string) *qc.PointId {
	return qc.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(namespace+"\x00"+id)).String())
}

// Add upserts documents as points.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qc.PointStruct, 0, len(docs))
	for _, doc := range docs {
		tags := make([]any, len(doc.Tags))
		for i, t := range doc.Tags {
			tags[i] = t
		}
		points = append(points, &qc.PointStruct{
			Id:      pointID(doc.Namespace, doc.ID),
			Vectors: qc.NewVectors(doc.Embedding...),
			Payload: qc.NewValueMap(map[string]any{
				payloadNamespace: doc.Namespace,
				payloadDocID:     doc.ID,
				payloadTags:      tags,
			}),
		})
	}

	wait := true
	_, err := d.client.Upsert(ctx, &qc.UpsertPoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant", "count", len(docs))
	return nil
}

// Query runs a filtered nearest neighbour search.
func (d *Driver) Query(ctx context.Context, q vector.Query) ([]vector.QueryResult, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = vector.DefaultTopK
	}

	must := []*qc.Condition{qc.NewMatch(payloadNamespace, q.Namespace)}
	if q.Tag != "" {
		must = append(must, qc.NewMatch(payloadTags, q.Tag))
	}

	points, err := d.client.Query(ctx, &qc.QueryPoints{
		CollectionName: d.collection,
		Query:          qc.NewQuery(q.Embedding...),
		Filter:         &qc.Filter{Must: must},
		Limit:          qc.PtrOf(uint64(topK)),
		WithPayload:    qc.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		doc := vector.Document{
			ID:        p.GetPayload()[payloadDocID].GetStringValue(),
			Namespace: q.Namespace,
		}
		for _, v := range p.GetPayload()[payloadTags].GetListValue().GetValues() {
			doc.Tags = append(doc.Tags, v.GetStringValue())
		}
		results = append(results, vector.QueryResult{Document: doc, Score: p.GetScore()})
	}
	return results, nil
}

// Delete removes points by document ID.
func (d *Driver) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qc.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(namespace, id)
	}

	wait := true
	_, err := d.client.Delete(ctx, &qc.DeletePoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         qc.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}
