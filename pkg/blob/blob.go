// Package blob stores media attachments and returns retrievable URLs.
package blob

import (
	"context"
	"crypto/rand"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Store puts bytes under a key and returns a URL that serves them.
type Store interface {
	Put(ctx context.Context, data []byte, key, contentType string) (string, error)
}

// NewKey returns a time sortable unique object key under prefix that keeps
// the extension of filename.
func NewKey(prefix, filename string) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	ext := strings.ToLower(path.Ext(filename))
	if prefix == "" {
		return id + ext
	}
	return strings.TrimRight(prefix, "/") + "/" + id + ext
}
