// Package schema holds the ent schema definitions of the tables behind the
// SQL storage drivers.
package schema

import (
	"entgo.io/ent/dialect/entsql"
	entschema "entgo.io/ent/schema"
)

// PrimaryKey names the columns of a composite primary key. Schemas without
// it are keyed by their "id" field.
type PrimaryKey []string

// Name implements the schema.Annotation interface.
func (PrimaryKey) Name() string { return "PrimaryKey" }

func table(name string, key ...string) []entschema.Annotation {
	out := []entschema.Annotation{entsql.Annotation{Table: name}}
	if len(key) > 0 {
		out = append(out, PrimaryKey(key))
	}
	return out
}
