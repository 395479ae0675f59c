package migrate_test

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	entsqlschema "entgo.io/ent/dialect/sql/schema"
	entschema "entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/storage/ent/migrate"
	"github.com/papercomputeco/threads/pkg/storage/ent/schema"
)

func table(name string) *entsqlschema.Table {
	for _, t := range migrate.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func names(columns []*entsqlschema.Column) []string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, c.Name)
	}
	return out
}

// unnamed has fields but no table annotation.
type unnamed struct {
	ent.Schema
}

func (unnamed) Fields() []ent.Field {
	return []ent.Field{field.String("a")}
}

// badKey names a primary key column it does not define.
type badKey struct {
	ent.Schema
}

func (badKey) Fields() []ent.Field {
	return []ent.Field{field.String("a")}
}

func (badKey) Annotations() []entschema.Annotation {
	return []entschema.Annotation{
		entsql.Annotation{Table: "bad"},
		schema.PrimaryKey{"missing"},
	}
}

var _ = Describe("Tables", func() {
	It("builds one table per schema", func() {
		Expect(migrate.Tables).To(HaveLen(len(migrate.Schemas)))
	})

	It("uses the composite key of stream entries", func() {
		t := table("stream_entries")
		Expect(t).NotTo(BeNil())
		Expect(names(t.PrimaryKey)).To(Equal([]string{"company", "entity", "chat", "ms", "seq"}))
		Expect(t.Columns[5].Type).To(Equal(field.TypeJSON))
	})

	It("keys calendar events by an auto-incrementing id", func() {
		t := table("calendar_events")
		Expect(t).NotTo(BeNil())
		Expect(names(t.PrimaryKey)).To(Equal([]string{"id"}))
		Expect(t.PrimaryKey[0].Increment).To(BeTrue())

		Expect(t.Indexes).To(HaveLen(2))
		Expect(t.Indexes[0].Name).To(Equal("calendarevent_company_entity_at_ms"))
		Expect(names(t.Indexes[1].Columns)).To(Equal([]string{"notified", "at_ms"}))
	})

	It("carries defaults and sizes", func() {
		t := table("companies")
		Expect(t).NotTo(BeNil())
		for _, c := range t.Columns {
			if c.Name == "enable_summary" {
				Expect(c.Default).To(Equal(true))
			}
		}

		facts := table("facts")
		Expect(facts.Columns[2].Size).To(Equal(int64(1024)))
	})

	It("rejects schemas without a table name", func() {
		_, err := migrate.BuildTables(unnamed{})
		Expect(err).To(MatchError(ContainSubstring("no table name")))
	})

	It("rejects keys that name no field", func() {
		_, err := migrate.BuildTables(badKey{})
		Expect(err).To(MatchError(ContainSubstring(`primary key column "missing"`)))
	})
})
