package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/threads/pkg/stream"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeEntryAppended is emitted after a message is appended to a stream.
	EventTypeEntryAppended = "threads.entry.appended"
)

// EntryAppendedEvent is a transport-neutral event payload for an appended
// entry. It carries metadata only; consumers read content through the API.
type EntryAppendedEvent struct {
	SchemaVersion int        `json:"schema_version"`
	EventType     string     `json:"event_type"`
	EventID       string     `json:"event_id"`
	EmittedAt     time.Time  `json:"emitted_at"`
	Stream        stream.Key `json:"stream"`
	Entry         EntryMeta  `json:"entry"`
}

// EntryMeta describes the appended entry.
type EntryMeta struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Type       string    `json:"type"`
	Importance int       `json:"importance"`
	Tokens     int       `json:"tokens"`
	Compressed bool      `json:"compressed,omitempty"`
	TS         time.Time `json:"ts"`
}

// NewEntryAppendedEvent builds the event for an entry. tokens is the token
// count of the uncompressed content.
func NewEntryAppendedEvent(key stream.Key, entry stream.Entry, tokens int, now time.Time) *EntryAppendedEvent {
	return &EntryAppendedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeEntryAppended,
		EventID:       uuid.NewString(),
		EmittedAt:     now.UTC(),
		Stream:        key,
		Entry: EntryMeta{
			ID:         entry.ID.String(),
			Role:       entry.Message.Role,
			Type:       entry.Message.Type,
			Importance: entry.Message.Importance,
			Tokens:     tokens,
			Compressed: entry.Message.Compressed(),
			TS:         entry.Message.TS,
		},
	}
}
