// Package gcs implements a blob Store on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/papercomputeco/threads/pkg/blob"
)

// Store uploads objects to one bucket.
type Store struct {
	client *storage.Client
	bucket string
}

// New connects with application default credentials unless opts say otherwise.
func New(ctx context.Context, bucket string, opts ...option.ClientOption) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &Store{client: client, bucket: bucket}, nil
}

// Put uploads data and returns its public object URL.
func (s *Store) Put(ctx context.Context, data []byte, key, contentType string) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	return ObjectURL(s.bucket, key), nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// ObjectURL returns the storage.googleapis.com URL of an object.
func ObjectURL(bucket, key string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + (&url.URL{Path: key}).EscapedPath()
}

var _ blob.Store = (*Store)(nil)
