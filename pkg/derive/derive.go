// Package derive maintains the secondary indexes of a stream: embeddings,
// facts, calendar events, tags and summaries.
//
// Every derivation is an idempotent, incrementally resumable consumer of a
// stream. A Runner drives it through Idle → Fetching → Applying → Committing
// → Idle and advances the derivation's cursor only after the commit
// succeeded, so a failed batch is retried in full on the next trigger.
package derive

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

// Derivation kinds. Each kind owns exactly one secondary index.
const (
	KindUsage    = "usage"
	KindVector   = "vector"
	KindFacts    = "facts"
	KindCalendar = "calendar"
	KindTags     = "tags"
	KindSummary  = "summary"
)

// ErrSkip is returned by Apply when the batch needs no work yet and the
// cursor must stay where it is.
var ErrSkip = errors.New("derivation skipped")

// Commit writes the result of an applied batch to the secondary index.
// Writes must be idempotent: a commit may be replayed after a failure.
type Commit func(ctx context.Context) error

// Derivation turns a batch of stream entries into secondary index writes.
type Derivation interface {
	Kind() string

	// Apply computes the writes for entries without performing them. A nil
	// Commit with a nil error means the batch produced nothing but was
	// consumed.
	Apply(ctx context.Context, key stream.Key, entries []stream.Entry) (Commit, error)
}

// Windowed is implemented by derivations that choose their own window
// instead of consuming (cursor, +inf].
type Windowed interface {
	Window(ctx context.Context, streams storage.StreamStore, key stream.Key, cursor *stream.EntryID) ([]stream.Entry, error)
}

// FlagSource resolves the feature flags of a company.
type FlagSource interface {
	Flags(ctx context.Context, company string) (storage.Flags, error)
}

// Set holds one derivation per kind. Nil members are disabled.
type Set struct {
	Vector   Derivation
	Facts    Derivation
	Calendar Derivation
	Tags     Derivation
	Summary  Derivation
}

// ByKind returns the derivation of kind, or nil.
func (s Set) ByKind(kind string) Derivation {
	switch kind {
	case KindVector:
		return s.Vector
	case KindFacts:
		return s.Facts
	case KindCalendar:
		return s.Calendar
	case KindTags:
		return s.Tags
	case KindSummary:
		return s.Summary
	default:
		return nil
	}
}

// Enabled reports whether kind may run for a company with flags.
func Enabled(kind string, flags storage.Flags) bool {
	switch kind {
	case KindFacts:
		return flags.EnableFacts
	case KindCalendar:
		return flags.EnableCalendar
	case KindSummary:
		return flags.EnableSummary
	default:
		return true
	}
}

// CursorKind is the cursor name of kind for a stream. Chat streams keep
// cursors apart from the entity's default stream.
func CursorKind(kind string, key stream.Key) string {
	if key.IsDefault() {
		return kind
	}
	return kind + "#" + key.Chat
}

func capabilityError(name string, err error) error {
	var ce *storage.CapabilityError
	if errors.As(err, &ce) {
		return err
	}
	return &storage.CapabilityError{Capability: name, Err: err}
}

func userText(m stream.Message) bool {
	return m.Role == stream.RoleUser && m.IsText()
}

func reversed(entries []stream.Entry) []stream.Entry {
	out := make([]stream.Entry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

func errorf(kind string, state State, err error) error {
	return fmt.Errorf("%s derivation failed while %s: %w", kind, state, err)
}
