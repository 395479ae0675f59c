// Package migrate turns the ent schema definitions into the relational
// tables shared by the SQL storage drivers and applies them through ent's
// auto-migration.
package migrate

import (
	"context"
	"fmt"
	"strings"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	entschema "github.com/papercomputeco/threads/pkg/storage/ent/schema"
)

// Schemas lists every ent schema, in creation order.
var Schemas = []ent.Interface{
	entschema.Stream{},
	entschema.StreamEntry{},
	entschema.Cursor{},
	entschema.Fact{},
	entschema.MsgTags{},
	entschema.TagIndex{},
	entschema.CalendarEvent{},
	entschema.Usage{},
	entschema.Stat{},
	entschema.Summary{},
	entschema.Company{},
	entschema.User{},
	entschema.Token{},
	entschema.LastSeen{},
}

// Tables holds all the tables in the schema.
var Tables = mustTables(Schemas...)

func mustTables(schemas ...ent.Interface) []*schema.Table {
	tables, err := BuildTables(schemas...)
	if err != nil {
		panic(err)
	}
	return tables
}

// BuildTables converts ent schema definitions into migration tables. A
// schema is keyed by its PrimaryKey annotation, or else by an "id" field,
// which auto-increments when it is an integer.
func BuildTables(schemas ...ent.Interface) ([]*schema.Table, error) {
	tables := make([]*schema.Table, 0, len(schemas))
	for _, s := range schemas {
		t, err := buildTable(s)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func buildTable(s ent.Interface) (*schema.Table, error) {
	var (
		name string
		key  entschema.PrimaryKey
	)
	for _, a := range s.Annotations() {
		switch a := a.(type) {
		case entsql.Annotation:
			name = a.Table
		case *entsql.Annotation:
			name = a.Table
		case entschema.PrimaryKey:
			key = a
		}
	}
	if name == "" {
		return nil, fmt.Errorf("schema %T has no table name", s)
	}

	t := &schema.Table{Name: name}
	columns := make(map[string]*schema.Column)
	for _, f := range s.Fields() {
		d := f.Descriptor()
		if d.Err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, d.Name, d.Err)
		}
		c := &schema.Column{
			Name:     d.Name,
			Type:     d.Info.Type,
			Size:     int64(d.Size),
			Nullable: d.Optional,
			Unique:   d.Unique,
			Default:  d.Default,
		}
		if len(key) == 0 && d.Name == "id" && isInteger(d.Info.Type) {
			c.Increment = true
		}
		t.Columns = append(t.Columns, c)
		columns[d.Name] = c
	}

	if len(key) == 0 {
		key = entschema.PrimaryKey{"id"}
	}
	for _, k := range key {
		c, ok := columns[k]
		if !ok {
			return nil, fmt.Errorf("%s: primary key column %q is not a field", name, k)
		}
		t.PrimaryKey = append(t.PrimaryKey, c)
	}

	for _, idx := range s.Indexes() {
		d := idx.Descriptor()
		index := &schema.Index{Name: d.StorageKey, Unique: d.Unique}
		if index.Name == "" {
			index.Name = name + "_" + strings.Join(d.Fields, "_")
		}
		for _, f := range d.Fields {
			c, ok := columns[f]
			if !ok {
				return nil, fmt.Errorf("%s: index column %q is not a field", name, f)
			}
			index.Columns = append(index.Columns, c)
		}
		t.Indexes = append(t.Indexes, index)
	}
	return t, nil
}

func isInteger(t field.Type) bool {
	switch t {
	case field.TypeInt, field.TypeInt8, field.TypeInt16, field.TypeInt32, field.TypeInt64,
		field.TypeUint, field.TypeUint8, field.TypeUint16, field.TypeUint32, field.TypeUint64:
		return true
	}
	return false
}

// Create runs the auto-migration for all tables. Changes are append-only:
// new tables, columns and indexes.
func Create(ctx context.Context, drv dialect.Driver, opts ...schema.MigrateOption) error {
	m, err := schema.NewMigrate(drv, opts...)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
