// Package storage defines the persistence contracts of the history store: the
// append-only stream store, per-derivation cursors, the secondary indexes
// each derivation owns, and tenant records.
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/threads/pkg/stream"
)

// StreamStore is the durable, append-only, per-stream ordered log.
type StreamStore interface {
	// Append stores msg and returns the ID assigned to it. IDs assigned by a
	// stream are strictly increasing and never reused, including IDs of
	// deleted entries. Safe for concurrent use on the same stream.
	Append(ctx context.Context, key stream.Key, msg stream.Message) (stream.EntryID, error)

	// ReadRange returns live entries with from <= id <= to in ascending order.
	// A nil bound is open. A positive limit caps the number of entries.
	// A stream that was never written reads as empty.
	ReadRange(ctx context.Context, key stream.Key, from, to *stream.EntryID, limit int) ([]stream.Entry, error)

	// ReadRecent returns up to count live entries, newest first.
	ReadRecent(ctx context.Context, key stream.Key, count int) ([]stream.Entry, error)

	// Get returns a single live entry or a NotFoundError.
	Get(ctx context.Context, key stream.Key, id stream.EntryID) (stream.Entry, error)

	// Delete tombstones an entry. Returns false if no live entry had that ID.
	Delete(ctx context.Context, key stream.Key, id stream.EntryID) (bool, error)

	// Length returns the number of live entries.
	Length(ctx context.Context, key stream.Key) (int64, error)

	// Streams lists every stream that has ever been appended to.
	Streams(ctx context.Context) ([]stream.Key, error)
}

// CursorStore records, per entity and derivation kind, the last entry ID the
// derivation has committed.
type CursorStore interface {
	// Cursor returns the last processed ID, or nil when the derivation has
	// never committed for the entity.
	Cursor(ctx context.Context, entity stream.Entity, kind string) (*stream.EntryID, error)

	// Advance moves the cursor to id only if id is greater than the current
	// value. Returns whether the cursor moved.
	Advance(ctx context.Context, entity stream.Entity, kind string, id stream.EntryID) (bool, error)
}

// FactStore is the per-entity fact set.
type FactStore interface {
	// AddFacts inserts facts with set semantics. Returns how many were new.
	AddFacts(ctx context.Context, entity stream.Entity, facts ...string) (int, error)

	// DeleteFact removes a fact. Returns whether it existed.
	DeleteFact(ctx context.Context, entity stream.Entity, fact string) (bool, error)

	// Facts lists the entity's facts sorted lexically.
	Facts(ctx context.Context, entity stream.Entity) ([]string, error)
}

// TagStore keeps the message→tags map and the tag→messages reverse index
// consistent.
type TagStore interface {
	// SetTags replaces the tags of a message and updates the reverse index.
	SetTags(ctx context.Context, key stream.Key, id stream.EntryID, tags []string) error

	// Tags returns the tags of a message, or nil when it was never tagged.
	Tags(ctx context.Context, key stream.Key, id stream.EntryID) ([]string, error)

	// TaggedIDs returns up to limit message IDs carrying tag, ascending.
	TaggedIDs(ctx context.Context, key stream.Key, tag string, limit int) ([]stream.EntryID, error)
}

// CalendarStore is the per-entity time ordered event collection.
type CalendarStore interface {
	// AddEvent stores an event and returns it with its ID set.
	AddEvent(ctx context.Context, event CalendarEvent) (CalendarEvent, error)

	// Events lists an entity's events ordered by instant.
	Events(ctx context.Context, entity stream.Entity) ([]CalendarEvent, error)

	// UpdateEvent patches the event at index. Out of range is a NotFoundError.
	UpdateEvent(ctx context.Context, entity stream.Entity, index int, patch EventPatch) (CalendarEvent, error)

	// DeleteEvent removes the event at index. Out of range is a NotFoundError.
	DeleteEvent(ctx context.Context, entity stream.Entity, index int) error

	// DueEvents returns events across all entities with At <= now that have
	// not been delivered.
	DueEvents(ctx context.Context, now time.Time, limit int) ([]CalendarEvent, error)

	// MarkNotified flags an event as delivered.
	MarkNotified(ctx context.Context, id int64) error
}

// UsageStore holds increment-only counters.
type UsageStore interface {
	// IncrementUsage adds to the company counters and, when entity is
	// non-empty, to the entity's counters.
	IncrementUsage(ctx context.Context, company string, entity string, messages, tokens int64) error

	// Usage returns the company totals.
	Usage(ctx context.Context, company string) (Usage, error)

	// EntityUsage returns the counters of one entity of a company.
	EntityUsage(ctx context.Context, company string, entity string) (Usage, error)

	// IncrementStat bumps a per-entity counter such as role=user or type=text.
	IncrementStat(ctx context.Context, entity stream.Entity, dimension, field string) error

	// Stats returns dimension → field → count for an entity.
	Stats(ctx context.Context, entity stream.Entity) (map[string]map[string]int64, error)
}

// SummaryStore holds one summary per entity.
type SummaryStore interface {
	PutSummary(ctx context.Context, entity stream.Entity, summary string) error

	// Summary returns the stored summary and whether one exists.
	Summary(ctx context.Context, entity stream.Entity) (string, bool, error)
}

// TenantStore persists companies, users, tokens and activity timestamps.
type TenantStore interface {
	// CreateCompany fails with ConflictError when the name is taken.
	CreateCompany(ctx context.Context, c Company) error
	Company(ctx context.Context, name string) (Company, error)
	UpdateCompany(ctx context.Context, c Company) error

	// CreateUser fails with ConflictError when the name is taken within the company.
	CreateUser(ctx context.Context, u User) error
	User(ctx context.Context, company, name string) (User, error)

	// UsersNamed returns every user called name across all companies.
	UsersNamed(ctx context.Context, name string) ([]User, error)
	UpdateUserToken(ctx context.Context, company, name, token string) error

	// Users lists every registered user.
	Users(ctx context.Context) ([]User, error)

	PutToken(ctx context.Context, t Token) error
	Token(ctx context.Context, value string) (Token, error)
	DeleteToken(ctx context.Context, value string) error

	Touch(ctx context.Context, entity stream.Entity, at time.Time) error

	// LastSeen returns the last activity time, zero if never seen.
	LastSeen(ctx context.Context, entity stream.Entity) (time.Time, error)
}

// Driver is a complete storage backend.
type Driver interface {
	StreamStore
	CursorStore
	FactStore
	TagStore
	CalendarStore
	UsageStore
	SummaryStore
	TenantStore

	// Close releases any resources held by the driver.
	Close() error
}
