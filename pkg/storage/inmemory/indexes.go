package inmemory

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

// Cursor returns the last committed ID for a derivation kind.
func (d *Driver) Cursor(_ context.Context, entity stream.Entity, kind string) (*stream.EntryID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.cursors[cursorKey{entity: entity, kind: kind}]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

// Advance moves the cursor forward only.
func (d *Driver) Advance(_ context.Context, entity stream.Entity, kind string, id stream.EntryID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := cursorKey{entity: entity, kind: kind}
	if cur, ok := d.cursors[k]; ok && !cur.Less(id) {
		return false, nil
	}

	d.cursors[k] = id
	return true, nil
}

// AddFacts inserts facts with set semantics.
func (d *Driver) AddFacts(_ context.Context, entity stream.Entity, facts ...string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.facts[entity]
	if !ok {
		set = make(map[string]struct{})
		d.facts[entity] = set
	}

	added := 0
	for _, f := range facts {
		if f == "" {
			continue
		}
		if _, exists := set[f]; !exists {
			set[f] = struct{}{}
			added++
		}
	}
	return added, nil
}

// DeleteFact removes a fact.
func (d *Driver) DeleteFact(_ context.Context, entity stream.Entity, fact string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.facts[entity]
	if !ok {
		return false, nil
	}
	if _, exists := set[fact]; !exists {
		return false, nil
	}
	delete(set, fact)
	return true, nil
}

// Facts returns the sorted fact set.
func (d *Driver) Facts(_ context.Context, entity stream.Entity) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]string, 0, len(d.facts[entity]))
	for f := range d.facts[entity] {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

// SetTags replaces a message's tags and keeps the reverse index in step.
func (d *Driver) SetTags(_ context.Context, key stream.Key, id stream.EntryID, tags []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	byID, ok := d.msgTags[key]
	if !ok {
		byID = make(map[stream.EntryID][]string)
		d.msgTags[key] = byID
	}
	index, ok := d.tagIndex[key]
	if !ok {
		index = make(map[string]map[stream.EntryID]struct{})
		d.tagIndex[key] = index
	}

	for _, old := range byID[id] {
		delete(index[old], id)
	}
	if len(tags) == 0 {
		delete(byID, id)
		return nil
	}

	byID[id] = append([]string(nil), tags...)
	for _, t := range tags {
		ids, ok := index[t]
		if !ok {
			ids = make(map[stream.EntryID]struct{})
			index[t] = ids
		}
		ids[id] = struct{}{}
	}
	return nil
}

// Tags returns a message's tags.
func (d *Driver) Tags(_ context.Context, key stream.Key, id stream.EntryID) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tags, ok := d.msgTags[key][id]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), tags...), nil
}

// TaggedIDs looks up the reverse index.
func (d *Driver) TaggedIDs(_ context.Context, key stream.Key, tag string, limit int) ([]stream.EntryID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]stream.EntryID, 0, len(d.tagIndex[key][tag]))
	for id := range d.tagIndex[key][tag] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// AddEvent stores a calendar event.
func (d *Driver) AddEvent(_ context.Context, event storage.CalendarEvent) (storage.CalendarEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextEvent++
	event.ID = d.nextEvent
	event.At = event.At.UTC()
	d.events[event.ID] = event
	return event, nil
}

// Events lists an entity's events ordered by instant.
func (d *Driver) Events(_ context.Context, entity stream.Entity) ([]storage.CalendarEvent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.eventsOf(entity), nil
}

// UpdateEvent patches the event at index.
func (d *Driver) UpdateEvent(_ context.Context, entity stream.Entity, index int, patch storage.EventPatch) (storage.CalendarEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	events := d.eventsOf(entity)
	if index < 0 || index >= len(events) {
		return storage.CalendarEvent{}, storage.NotFoundError{What: "calendar event", Key: strconv.Itoa(index)}
	}

	ev := events[index]
	if patch.Text != nil {
		ev.Text = *patch.Text
	}
	if patch.TZ != nil {
		ev.TZ = *patch.TZ
	}
	if patch.At != nil {
		ev.At = patch.At.UTC()
		ev.Notified = false
	}
	d.events[ev.ID] = ev
	return ev, nil
}

// DeleteEvent removes the event at index.
func (d *Driver) DeleteEvent(_ context.Context, entity stream.Entity, index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	events := d.eventsOf(entity)
	if index < 0 || index >= len(events) {
		return storage.NotFoundError{What: "calendar event", Key: strconv.Itoa(index)}
	}

	delete(d.events, events[index].ID)
	return nil
}

// DueEvents returns undelivered events due at or before now.
func (d *Driver) DueEvents(_ context.Context, now time.Time, limit int) ([]storage.CalendarEvent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []storage.CalendarEvent
	for _, ev := range d.events {
		if !ev.Notified && !ev.At.After(now) {
			out = append(out, ev)
		}
	}
	sortEvents(out)

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkNotified flags an event as delivered.
func (d *Driver) MarkNotified(_ context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ev, ok := d.events[id]
	if !ok {
		return storage.NotFoundError{What: "calendar event", Key: strconv.FormatInt(id, 10)}
	}
	ev.Notified = true
	d.events[id] = ev
	return nil
}

func (d *Driver) eventsOf(entity stream.Entity) []storage.CalendarEvent {
	var out []storage.CalendarEvent
	for _, ev := range d.events {
		if ev.Entity == entity {
			out = append(out, ev)
		}
	}
	sortEvents(out)
	return out
}

func sortEvents(events []storage.CalendarEvent) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].At.Equal(events[j].At) {
			return events[i].At.Before(events[j].At)
		}
		return events[i].ID < events[j].ID
	})
}

// IncrementUsage adds to company and entity counters.
func (d *Driver) IncrementUsage(_ context.Context, company string, entity string, messages, tokens int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	add := func(k usageKey) {
		u := d.usage[k]
		u.Messages += messages
		u.Tokens += tokens
		d.usage[k] = u
	}

	add(usageKey{company: company})
	if entity != "" {
		add(usageKey{company: company, entity: entity})
	}
	return nil
}

// Usage returns company totals.
func (d *Driver) Usage(_ context.Context, company string) (storage.Usage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.usage[usageKey{company: company}], nil
}

// EntityUsage returns one entity's counters.
func (d *Driver) EntityUsage(_ context.Context, company string, entity string) (storage.Usage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.usage[usageKey{company: company, entity: entity}], nil
}

// IncrementStat bumps a per-entity counter.
func (d *Driver) IncrementStat(_ context.Context, entity stream.Entity, dimension, field string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dims, ok := d.stats[entity]
	if !ok {
		dims = make(map[string]map[string]int64)
		d.stats[entity] = dims
	}
	fields, ok := dims[dimension]
	if !ok {
		fields = make(map[string]int64)
		dims[dimension] = fields
	}
	fields[field]++
	return nil
}

// Stats returns a copy of an entity's counters.
func (d *Driver) Stats(_ context.Context, entity stream.Entity) (map[string]map[string]int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]map[string]int64, len(d.stats[entity]))
	for dim, fields := range d.stats[entity] {
		cp := make(map[string]int64, len(fields))
		for f, n := range fields {
			cp[f] = n
		}
		out[dim] = cp
	}
	return out, nil
}

// PutSummary overwrites the entity's summary.
func (d *Driver) PutSummary(_ context.Context, entity stream.Entity, summary string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.summaries[entity] = summary
	return nil
}

// Summary returns the entity's summary.
func (d *Driver) Summary(_ context.Context, entity stream.Entity) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.summaries[entity]
	return s, ok, nil
}
