package schema

import (
	"entgo.io/ent"
	entschema "entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
)

// Usage holds the schema definition for the Usage entity.
// The company total is stored under an empty entity.
type Usage struct {
	ent.Schema
}

// Fields of the Usage.
func (Usage) Fields() []ent.Field {
	return []ent.Field{
		field.String("company"),
		field.String("entity"),
		field.Int64("messages").
			Default(0),
		field.Int64("tokens").
			Default(0),
	}
}

// Annotations of the Usage.
func (Usage) Annotations() []entschema.Annotation {
	return table("usage", "company", "entity")
}

// Stat holds the schema definition for the Stat entity.
// Each row counts one field of one dimension, e.g. role=user.
type Stat struct {
	ent.Schema
}

// Fields of the Stat.
func (Stat) Fields() []ent.Field {
	return []ent.Field{
		field.String("company"),
		field.String("entity"),
		field.String("dimension"),
		field.String("field"),
		field.Int64("count").
			Default(0),
	}
}

// Annotations of the Stat.
func (Stat) Annotations() []entschema.Annotation {
	return table("stats", "company", "entity", "dimension", "field")
}
