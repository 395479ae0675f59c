package storage

import (
	"time"

	"github.com/papercomputeco/threads/pkg/stream"
)

// CalendarEvent is a reminder owned by one entity. Events are ordered by At
// and then by ID; an event's index is its position in that order.
type CalendarEvent struct {
	ID       int64         `json:"-"`
	Entity   stream.Entity `json:"-"`
	At       time.Time     `json:"when"`
	Text     string        `json:"text"`
	TZ       string        `json:"tz"`
	Chat     string        `json:"chat_id,omitempty"`
	Notified bool          `json:"-"`
}

// EventPatch updates selected fields of a calendar event.
type EventPatch struct {
	At   *time.Time
	Text *string
	TZ   *string
}

// Usage holds increment-only counters.
type Usage struct {
	Messages int64 `json:"messages"`
	Tokens   int64 `json:"tokens"`
}

// Stat dimensions recorded per entity on every append.
const (
	StatRole = "role"
	StatType = "type"
)

// Flags are the per-company feature switches. All default to enabled.
type Flags struct {
	EnableSummary  bool `json:"enable_summary"`
	EnableFacts    bool `json:"enable_facts"`
	EnableCalendar bool `json:"enable_calendar"`
}

// DefaultFlags enables every feature.
func DefaultFlags() Flags {
	return Flags{EnableSummary: true, EnableFacts: true, EnableCalendar: true}
}

// FlagsPatch updates selected flags.
type FlagsPatch struct {
	EnableSummary  *bool `json:"enable_summary,omitempty"`
	EnableFacts    *bool `json:"enable_facts,omitempty"`
	EnableCalendar *bool `json:"enable_calendar,omitempty"`
}

// Apply returns f with the set fields of p applied.
func (p FlagsPatch) Apply(f Flags) Flags {
	if p.EnableSummary != nil {
		f.EnableSummary = *p.EnableSummary
	}
	if p.EnableFacts != nil {
		f.EnableFacts = *p.EnableFacts
	}
	if p.EnableCalendar != nil {
		f.EnableCalendar = *p.EnableCalendar
	}
	return f
}

// Pricing converts usage into cost. Zero values fall back to process defaults.
type Pricing struct {
	CostPerMessage float64 `json:"cost_per_message"`
	CostPerToken   float64 `json:"cost_per_token"`
}

// Company is a tenant.
type Company struct {
	Name         string
	PasswordHash string
	Token        string

	// IdleTimeout enables the idle sweep for the company's entities when positive.
	IdleTimeout time.Duration

	Flags   Flags
	Pricing Pricing
}

// User is an entity registered under exactly one company. The binding is
// immutable once stored.
type User struct {
	Name         string
	Company      string
	PasswordHash string
	Token        string
}

// Entity returns the stream entity the user acts as.
func (u User) Entity() stream.Entity {
	return stream.Entity{Company: u.Company, ID: u.Name}
}

// Token kinds.
const (
	TokenKindUser    = "user"
	TokenKindCompany = "company"
)

// Token is a bearer credential. Payload is opaque to storage and parsed by
// the tenant package.
type Token struct {
	Value     string
	Kind      string
	Payload   string
	ExpiresAt time.Time
}

// Expired reports whether the token has a deadline in the past.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}
