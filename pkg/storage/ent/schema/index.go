package schema

import (
	"encoding/json"

	"entgo.io/ent"
	entschema "entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Fact holds the schema definition for the Fact entity.
type Fact struct {
	ent.Schema
}

// Fields of the Fact.
func (Fact) Fields() []ent.Field {
	return []ent.Field{
		field.String("company"),
		field.String("entity"),
		field.String("fact").
			MaxLen(1024),
	}
}

// Annotations of the Fact.
func (Fact) Annotations() []entschema.Annotation {
	return table("facts", "company", "entity", "fact")
}

// MsgTags holds the schema definition for the MsgTags entity.
// This is the entry to tags direction of the tag index.
type MsgTags struct {
	ent.Schema
}

// Fields of the MsgTags.
func (MsgTags) Fields() []ent.Field {
	return []ent.Field{
		field.String("company"),
		field.String("entity"),
		field.String("chat"),
		field.Int64("ms"),
		field.Int64("seq"),
		field.JSON("tags", json.RawMessage{}),
	}
}

// Annotations of the MsgTags.
func (MsgTags) Annotations() []entschema.Annotation {
	return table("msg_tags", "company", "entity", "chat", "ms", "seq")
}

// TagIndex holds the schema definition for the TagIndex entity.
// This is the tag to entries direction of the tag index.
type TagIndex struct {
	ent.Schema
}

// Fields of the TagIndex.
func (TagIndex) Fields() []ent.Field {
	return []ent.Field{
		field.String("company"),
		field.String("entity"),
		field.String("chat"),
		field.String("tag"),
		field.Int64("ms"),
		field.Int64("seq"),
	}
}

// Annotations of the TagIndex.
func (TagIndex) Annotations() []entschema.Annotation {
	return table("tag_index", "company", "entity", "chat", "tag", "ms", "seq")
}

// CalendarEvent holds the schema definition for the CalendarEvent entity.
type CalendarEvent struct {
	ent.Schema
}

// Fields of the CalendarEvent.
func (CalendarEvent) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("id"),
		field.String("company"),
		field.String("entity"),

		// at_ms is the event instant in unix milliseconds, UTC
		field.Int64("at_ms"),

		field.Text("text"),
		field.String("tz").
			Default(""),
		field.String("chat").
			Default(""),
		field.Bool("notified").
			Default(false),
	}
}

// Indexes of the CalendarEvent.
func (CalendarEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("company", "entity", "at_ms").
			StorageKey("calendarevent_company_entity_at_ms"),
		index.Fields("notified", "at_ms").
			StorageKey("calendarevent_notified_at_ms"),
	}
}

// Annotations of the CalendarEvent.
func (CalendarEvent) Annotations() []entschema.Annotation {
	return table("calendar_events")
}

// Summary holds the schema definition for the Summary entity.
type Summary struct {
	ent.Schema
}

// Fields of the Summary.
func (Summary) Fields() []ent.Field {
	return []ent.Field{
		field.String("company"),
		field.String("entity"),
		field.Text("summary"),
	}
}

// Annotations of the Summary.
func (Summary) Annotations() []entschema.Annotation {
	return table("summaries", "company", "entity")
}
