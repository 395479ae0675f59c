package schema

import (
	"entgo.io/ent"
	entschema "entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Company holds the schema definition for the Company entity.
type Company struct {
	ent.Schema
}

// Fields of the Company.
func (Company) Fields() []ent.Field {
	return []ent.Field{
		field.String("name"),
		field.String("password_hash").
			Default("").
			Sensitive(),
		field.String("token").
			Default(""),
		field.Int64("idle_timeout_ms").
			Default(0),

		// feature flags
		field.Bool("enable_summary").
			Default(true),
		field.Bool("enable_facts").
			Default(true),
		field.Bool("enable_calendar").
			Default(true),

		field.Float("cost_per_message").
			Default(0),
		field.Float("cost_per_token").
			Default(0),
	}
}

// Annotations of the Company.
func (Company) Annotations() []entschema.Annotation {
	return table("companies", "name")
}

// User holds the schema definition for the User entity.
// Names are unique within a company only.
type User struct {
	ent.Schema
}

// Fields of the User.
func (User) Fields() []ent.Field {
	return []ent.Field{
		field.String("company"),
		field.String("name"),
		field.String("password_hash").
			Default("").
			Sensitive(),
		field.String("token").
			Default(""),
	}
}

// Indexes of the User.
func (User) Indexes() []ent.Index {
	return []ent.Index{
		// legacy tokens resolve the company by name
		index.Fields("name").
			StorageKey("user_name"),
	}
}

// Annotations of the User.
func (User) Annotations() []entschema.Annotation {
	return table("users", "company", "name")
}

// Token holds the schema definition for the Token entity.
type Token struct {
	ent.Schema
}

// Fields of the Token.
func (Token) Fields() []ent.Field {
	return []ent.Field{
		field.String("value").
			Sensitive(),
		field.String("kind"),
		field.String("payload"),
		field.Int64("expires_at_ms").
			Default(0),
	}
}

// Annotations of the Token.
func (Token) Annotations() []entschema.Annotation {
	return table("tokens", "value")
}

// LastSeen holds the schema definition for the LastSeen entity.
type LastSeen struct {
	ent.Schema
}

// Fields of the LastSeen.
func (LastSeen) Fields() []ent.Field {
	return []ent.Field{
		field.String("company"),
		field.String("entity"),
		field.Int64("at_ms"),
	}
}

// Annotations of the LastSeen.
func (LastSeen) Annotations() []entschema.Annotation {
	return table("last_seen", "company", "entity")
}
