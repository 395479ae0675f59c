package schema

import (
	"encoding/json"

	"entgo.io/ent"
	entschema "entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
)

// Stream holds the schema definition for the Stream entity.
// One row per stream key tracks the allocation state of its entry IDs.
type Stream struct {
	ent.Schema
}

// Fields of the Stream.
func (Stream) Fields() []ent.Field {
	return []ent.Field{
		field.String("company"),
		field.String("entity"),
		field.String("chat"),

		// last_ms and last_seq are the greatest ID ever assigned, live or deleted
		field.Int64("last_ms").
			Default(0),
		field.Int64("last_seq").
			Default(0),

		field.Int64("length").
			Default(0),
	}
}

// Annotations of the Stream.
func (Stream) Annotations() []entschema.Annotation {
	return table("streams", "company", "entity", "chat")
}

// StreamEntry holds the schema definition for the StreamEntry entity.
// This is one appended message, addressed by its stream key and ID.
type StreamEntry struct {
	ent.Schema
}

// Fields of the StreamEntry.
func (StreamEntry) Fields() []ent.Field {
	return []ent.Field{
		field.String("company"),
		field.String("entity"),
		field.String("chat"),
		field.Int64("ms"),
		field.Int64("seq"),

		// data is the JSON encoded message
		field.JSON("data", json.RawMessage{}),
	}
}

// Annotations of the StreamEntry.
func (StreamEntry) Annotations() []entschema.Annotation {
	return table("stream_entries", "company", "entity", "chat", "ms", "seq")
}
