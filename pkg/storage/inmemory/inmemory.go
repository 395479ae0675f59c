// Package inmemory provides a storage.Driver backed by process memory. It is
// used for tests and for running the service without a database.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards every map below
	mu sync.RWMutex

	now func() time.Time

	streams   map[stream.Key]*streamLog
	cursors   map[cursorKey]stream.EntryID
	facts     map[stream.Entity]map[string]struct{}
	msgTags   map[stream.Key]map[stream.EntryID][]string
	tagIndex  map[stream.Key]map[string]map[stream.EntryID]struct{}
	events    map[int64]storage.CalendarEvent
	nextEvent int64
	usage     map[usageKey]storage.Usage
	stats     map[stream.Entity]map[string]map[string]int64
	summaries map[stream.Entity]string
	companies map[string]storage.Company
	users     map[userKey]storage.User
	tokens    map[string]storage.Token
	lastSeen  map[stream.Entity]time.Time
}

type streamLog struct {
	// entries holds live entries in ascending ID order
	entries []stream.Entry

	// last is the greatest ID ever assigned, live or deleted
	last stream.EntryID
}

type cursorKey struct {
	entity stream.Entity
	kind   string
}

type usageKey struct {
	company string
	entity  string
}

type userKey struct {
	company string
	name    string
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock overrides the time source used to assign entry IDs.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// NewDriver creates a new in-memory driver.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		now:       time.Now,
		streams:   make(map[stream.Key]*streamLog),
		cursors:   make(map[cursorKey]stream.EntryID),
		facts:     make(map[stream.Entity]map[string]struct{}),
		msgTags:   make(map[stream.Key]map[stream.EntryID][]string),
		tagIndex:  make(map[stream.Key]map[string]map[stream.EntryID]struct{}),
		events:    make(map[int64]storage.CalendarEvent),
		usage:     make(map[usageKey]storage.Usage),
		stats:     make(map[stream.Entity]map[string]map[string]int64),
		summaries: make(map[stream.Entity]string),
		companies: make(map[string]storage.Company),
		users:     make(map[userKey]storage.User),
		tokens:    make(map[string]storage.Token),
		lastSeen:  make(map[stream.Entity]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Append stores msg at the end of the stream.
func (d *Driver) Append(_ context.Context, key stream.Key, msg stream.Message) (stream.EntryID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	log, ok := d.streams[key]
	if !ok {
		log = &streamLog{}
		d.streams[key] = log
	}

	id := log.last.Next(uint64(d.now().UnixMilli()))
	log.last = id
	log.entries = append(log.entries, stream.Entry{ID: id, Message: msg.Clone()})

	return id, nil
}

// ReadRange returns live entries within the inclusive bounds.
func (d *Driver) ReadRange(_ context.Context, key stream.Key, from, to *stream.EntryID, limit int) ([]stream.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	log, ok := d.streams[key]
	if !ok {
		return nil, nil
	}

	start := 0
	if from != nil {
		start = sort.Search(len(log.entries), func(i int) bool {
			return !log.entries[i].ID.Less(*from)
		})
	}

	var out []stream.Entry
	for _, e := range log.entries[start:] {
		if to != nil && to.Less(e.ID) {
			break
		}
		out = append(out, cloneEntry(e))
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	return out, nil
}

// ReadRecent returns up to count entries, newest first.
func (d *Driver) ReadRecent(_ context.Context, key stream.Key, count int) ([]stream.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	log, ok := d.streams[key]
	if !ok || count <= 0 {
		return nil, nil
	}

	out := make([]stream.Entry, 0, min(count, len(log.entries)))
	for i := len(log.entries) - 1; i >= 0 && len(out) < count; i-- {
		out = append(out, cloneEntry(log.entries[i]))
	}

	return out, nil
}

// Get returns a single live entry.
func (d *Driver) Get(_ context.Context, key stream.Key, id stream.EntryID) (stream.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if log, ok := d.streams[key]; ok {
		if i, found := log.find(id); found {
			return cloneEntry(log.entries[i]), nil
		}
	}

	return stream.Entry{}, storage.NotFoundError{What: "entry", Key: key.String() + " " + id.String()}
}

// Delete tombstones an entry. The stream keeps its last assigned ID so the
// deleted ID is never handed out again.
func (d *Driver) Delete(_ context.Context, key stream.Key, id stream.EntryID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	log, ok := d.streams[key]
	if !ok {
		return false, nil
	}

	i, found := log.find(id)
	if !found {
		return false, nil
	}

	log.entries = append(log.entries[:i], log.entries[i+1:]...)
	return true, nil
}

// Length returns the number of live entries.
func (d *Driver) Length(_ context.Context, key stream.Key) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if log, ok := d.streams[key]; ok {
		return int64(len(log.entries)), nil
	}
	return 0, nil
}

// Streams lists every stream ever appended to.
func (d *Driver) Streams(_ context.Context) ([]stream.Key, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]stream.Key, 0, len(d.streams))
	for k := range d.streams {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})

	return keys, nil
}

// Count returns the total number of live entries across all streams.
func (d *Driver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := 0
	for _, log := range d.streams {
		n += len(log.entries)
	}
	return n
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func (l *streamLog) find(id stream.EntryID) (int, bool) {
	i := sort.Search(len(l.entries), func(i int) bool {
		return !l.entries[i].ID.Less(id)
	})
	if i < len(l.entries) && l.entries[i].ID == id {
		return i, true
	}
	return 0, false
}

func cloneEntry(e stream.Entry) stream.Entry {
	return stream.Entry{ID: e.ID, Message: e.Message.Clone()}
}
