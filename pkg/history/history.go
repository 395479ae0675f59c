// Package history is the write path and the read path over streams. The
// Writer records messages and hands them to the derivations; the Reconciler
// answers reads by combining the raw stream with whatever the secondary
// indexes have committed so far, never waiting for derivations.
package history

import (
	"context"
	"errors"
	"log/slog"

	"github.com/papercomputeco/threads/pkg/compress"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

// ErrFeatureDisabled is returned when the company switched off the feature
// an operation needs.
var ErrFeatureDisabled = errors.New("feature disabled")

// Tenants resolves the tenant binding and feature flags of an entity.
type Tenants interface {
	// CheckBinding fails unless entity is registered under its company.
	CheckBinding(ctx context.Context, entity stream.Entity) error

	Flags(ctx context.Context, company string) (storage.Flags, error)
}

// Attachment is a media payload sent along with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Input is one message of a write request.
type Input struct {
	Message    stream.Message
	Attachment *Attachment
}

const (
	defaultHistoryLimit = 20
	defaultContextLimit = 10
	defaultContextTopK  = 10
	defaultSearchTopK   = 5
	defaultFilterTopK   = 10
	defaultTagLimit     = 10
)

// reader holds what both sides need to present stored entries.
type reader struct {
	store  storage.Driver
	codec  *compress.Codec
	logger *slog.Logger
}

// present decompresses entries in place and attaches their stored tags.
// Failures are logged and leave the entry as stored.
func (r *reader) present(ctx context.Context, key stream.Key, entries []stream.Entry) {
	for i := range entries {
		msg := &entries[i].Message
		if r.codec != nil {
			if err := r.codec.Restore(msg); err != nil {
				r.logger.Warn("failed to decompress entry",
					"stream", key.String(),
					"id", entries[i].ID.String(),
					"error", err,
				)
			}
		}

		tags, err := r.store.Tags(ctx, key, entries[i].ID)
		if err != nil {
			r.logger.Warn("failed to read entry tags",
				"stream", key.String(),
				"id", entries[i].ID.String(),
				"error", err,
			)
			continue
		}
		if tags != nil {
			msg.Tags = tags
		}
	}
}

// fetch returns the live entries among ids in the given order, skipping
// ones that were deleted since they were indexed.
func (r *reader) fetch(ctx context.Context, key stream.Key, ids []stream.EntryID) ([]stream.Entry, error) {
	out := make([]stream.Entry, 0, len(ids))
	for _, id := range ids {
		e, err := r.store.Get(ctx, key, id)
		if storage.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, storage.Wrap("read entry", err)
		}
		out = append(out, e)
	}
	r.present(ctx, key, out)
	return out, nil
}

func orDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func discard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
