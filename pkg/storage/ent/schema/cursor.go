package schema

import (
	"entgo.io/ent"
	entschema "entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
)

// Cursor holds the schema definition for the Cursor entity.
// It is the last entry ID a derivation kind committed for an entity.
type Cursor struct {
	ent.Schema
}

// Fields of the Cursor.
func (Cursor) Fields() []ent.Field {
	return []ent.Field{
		field.String("company"),
		field.String("entity"),
		field.String("kind"),
		field.Int64("ms"),
		field.Int64("seq"),
	}
}

// Annotations of the Cursor.
func (Cursor) Annotations() []entschema.Annotation {
	return table("cursors", "company", "entity", "kind")
}
