package entdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

func entityWhere(entity stream.Entity) *entsql.Predicate {
	return entsql.And(
		entsql.EQ("company", entity.Company),
		entsql.EQ("entity", entity.ID),
	)
}

// Cursor returns the last committed ID for a derivation kind.
func (ed *EntDriver) Cursor(ctx context.Context, entity stream.Entity, kind string) (*stream.EntryID, error) {
	b := ed.builder()

	var cur *stream.EntryID
	err := scan(ctx, ed.Driver, b.Select("ms", "seq").
		From(b.Table("cursors")).
		Where(entsql.And(entityWhere(entity), entsql.EQ("kind", kind))),
		func(rows *entsql.Rows) error {
			var ms, seq int64
			if err := rows.Scan(&ms, &seq); err != nil {
				return err
			}
			cur = &stream.EntryID{Ms: uint64(ms), Seq: uint64(seq)}
			return nil
		})
	if err != nil {
		return nil, storage.Wrap("cursor", err)
	}
	return cur, nil
}

// Advance moves the cursor forward only. The comparison happens inside the
// UPDATE so concurrent advances cannot regress it.
func (ed *EntDriver) Advance(ctx context.Context, entity stream.Entity, kind string, id stream.EntryID) (bool, error) {
	b := ed.builder()
	ms, seq := int64(id.Ms), int64(id.Seq)

	n, err := exec(ctx, ed.Driver, b.Insert("cursors").
		Columns("company", "entity", "kind", "ms", "seq").
		Values(entity.Company, entity.ID, kind, ms, seq).
		OnConflict(entsql.ConflictColumns("company", "entity", "kind"), entsql.DoNothing()))
	if err != nil {
		return false, storage.Wrap("advance cursor", err)
	}
	if n > 0 {
		return true, nil
	}

	n, err = exec(ctx, ed.Driver, b.Update("cursors").
		Set("ms", ms).
		Set("seq", seq).
		Where(entsql.And(
			entityWhere(entity),
			entsql.EQ("kind", kind),
			entsql.Or(
				entsql.LT("ms", ms),
				entsql.And(entsql.EQ("ms", ms), entsql.LT("seq", seq)),
			),
		)))
	if err != nil {
		return false, storage.Wrap("advance cursor", err)
	}
	return n > 0, nil
}

// AddFacts inserts facts with set semantics.
func (ed *EntDriver) AddFacts(ctx context.Context, entity stream.Entity, facts ...string) (int, error) {
	added := 0
	err := ed.withTx(ctx, func(tx dialect.Tx) error {
		for _, f := range facts {
			if f == "" {
				continue
			}
			n, err := exec(ctx, tx, ed.builder().Insert("facts").
				Columns("company", "entity", "fact").
				Values(entity.Company, entity.ID, f).
				OnConflict(entsql.ConflictColumns("company", "entity", "fact"), entsql.DoNothing()))
			if err != nil {
				return err
			}
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, storage.Wrap("add facts", err)
	}
	return added, nil
}

// DeleteFact removes a fact.
func (ed *EntDriver) DeleteFact(ctx context.Context, entity stream.Entity, fact string) (bool, error) {
	n, err := exec(ctx, ed.Driver, ed.builder().Delete("facts").
		Where(entsql.And(entityWhere(entity), entsql.EQ("fact", fact))))
	if err != nil {
		return false, storage.Wrap("delete fact", err)
	}
	return n > 0, nil
}

// Facts returns the sorted fact set.
func (ed *EntDriver) Facts(ctx context.Context, entity stream.Entity) ([]string, error) {
	b := ed.builder()

	facts := []string{}
	err := scan(ctx, ed.Driver, b.Select("fact").
		From(b.Table("facts")).
		Where(entityWhere(entity)).
		OrderBy(entsql.Asc("fact")),
		func(rows *entsql.Rows) error {
			var f string
			if err := rows.Scan(&f); err != nil {
				return err
			}
			facts = append(facts, f)
			return nil
		})
	if err != nil {
		return nil, storage.Wrap("facts", err)
	}
	return facts, nil
}

// SetTags replaces a message's tags and the matching reverse index rows in
// one transaction.
func (ed *EntDriver) SetTags(ctx context.Context, key stream.Key, id stream.EntryID, tags []string) error {
	data, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	err = ed.withTx(ctx, func(tx dialect.Tx) error {
		b := ed.builder()

		if _, err := exec(ctx, tx, b.Delete("tag_index").Where(entryWhere(key, id))); err != nil {
			return err
		}
		if _, err := exec(ctx, tx, b.Delete("msg_tags").Where(entryWhere(key, id))); err != nil {
			return err
		}
		if len(tags) == 0 {
			return nil
		}

		_, err := exec(ctx, tx, b.Insert("msg_tags").
			Columns("company", "entity", "chat", "ms", "seq", "tags").
			Values(key.Entity.Company, key.Entity.ID, key.Chat, int64(id.Ms), int64(id.Seq), string(data)))
		if err != nil {
			return err
		}

		for _, tag := range tags {
			_, err := exec(ctx, tx, b.Insert("tag_index").
				Columns("company", "entity", "chat", "tag", "ms", "seq").
				Values(key.Entity.Company, key.Entity.ID, key.Chat, tag, int64(id.Ms), int64(id.Seq)).
				OnConflict(entsql.ConflictColumns("company", "entity", "chat", "tag", "ms", "seq"), entsql.DoNothing()))
			if err != nil {
				return err
			}
		}
		return nil
	})
	return storage.Wrap("set tags", err)
}

// Tags returns a message's tags.
func (ed *EntDriver) Tags(ctx context.Context, key stream.Key, id stream.EntryID) ([]string, error) {
	b := ed.builder()

	var tags []string
	err := scan(ctx, ed.Driver, b.Select("tags").From(b.Table("msg_tags")).Where(entryWhere(key, id)),
		func(rows *entsql.Rows) error {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				return err
			}
			tags = []string{}
			return json.Unmarshal(data, &tags)
		})
	if err != nil {
		return nil, storage.Wrap("tags", err)
	}
	return tags, nil
}

// TaggedIDs looks up the reverse index.
func (ed *EntDriver) TaggedIDs(ctx context.Context, key stream.Key, tag string, limit int) ([]stream.EntryID, error) {
	b := ed.builder()
	sel := b.Select("ms", "seq").
		From(b.Table("tag_index")).
		Where(entsql.And(streamWhere(key), entsql.EQ("tag", tag))).
		OrderBy(entsql.Asc("ms"), entsql.Asc("seq"))
	if limit > 0 {
		sel.Limit(limit)
	}

	var ids []stream.EntryID
	err := scan(ctx, ed.Driver, sel, func(rows *entsql.Rows) error {
		var ms, seq int64
		if err := rows.Scan(&ms, &seq); err != nil {
			return err
		}
		ids = append(ids, stream.EntryID{Ms: uint64(ms), Seq: uint64(seq)})
		return nil
	})
	if err != nil {
		return nil, storage.Wrap("tagged ids", err)
	}
	return ids, nil
}

var eventColumns = []string{"id", "company", "entity", "at_ms", "text", "tz", "chat", "notified"}

func scanEvent(rows *entsql.Rows) (storage.CalendarEvent, error) {
	var (
		ev storage.CalendarEvent
		at int64
	)
	err := rows.Scan(&ev.ID, &ev.Entity.Company, &ev.Entity.ID, &at, &ev.Text, &ev.TZ, &ev.Chat, &ev.Notified)
	ev.At = timeOf(at)
	return ev, err
}

func (ed *EntDriver) selectEvents(ctx context.Context, q dialect.ExecQuerier, where *entsql.Predicate, limit int) ([]storage.CalendarEvent, error) {
	b := ed.builder()
	sel := b.Select(eventColumns...).
		From(b.Table("calendar_events")).
		Where(where).
		OrderBy(entsql.Asc("at_ms"), entsql.Asc("id"))
	if limit > 0 {
		sel.Limit(limit)
	}

	var events []storage.CalendarEvent
	err := scan(ctx, q, sel, func(rows *entsql.Rows) error {
		ev, err := scanEvent(rows)
		if err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	return events, err
}

// AddEvent stores a calendar event.
func (ed *EntDriver) AddEvent(ctx context.Context, event storage.CalendarEvent) (storage.CalendarEvent, error) {
	event.At = event.At.UTC()

	id, err := ed.insertID(ctx, ed.Driver, ed.builder().Insert("calendar_events").
		Columns("company", "entity", "at_ms", "text", "tz", "chat", "notified").
		Values(event.Entity.Company, event.Entity.ID, msOf(event.At), event.Text, event.TZ, event.Chat, false))
	if err != nil {
		return storage.CalendarEvent{}, storage.Wrap("add event", err)
	}

	event.ID = id
	return event, nil
}

// Events lists an entity's events ordered by instant.
func (ed *EntDriver) Events(ctx context.Context, entity stream.Entity) ([]storage.CalendarEvent, error) {
	events, err := ed.selectEvents(ctx, ed.Driver, entityWhere(entity), 0)
	return events, storage.Wrap("events", err)
}

// UpdateEvent patches the event at index.
func (ed *EntDriver) UpdateEvent(ctx context.Context, entity stream.Entity, index int, patch storage.EventPatch) (storage.CalendarEvent, error) {
	var ev storage.CalendarEvent
	err := ed.withTx(ctx, func(tx dialect.Tx) error {
		events, err := ed.selectEvents(ctx, tx, entityWhere(entity), 0)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(events) {
			return storage.NotFoundError{What: "calendar event", Key: strconv.Itoa(index)}
		}

		ev = events[index]
		upd := ed.builder().Update("calendar_events").Where(entsql.EQ("id", ev.ID))
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
		upd.Set("text", ev.Text).Set("tz", ev.TZ).Set("at_ms", msOf(ev.At)).Set("notified", ev.Notified)

		_, err = exec(ctx, tx, upd)
		return err
	})
	if err != nil {
		return storage.CalendarEvent{}, storage.Wrap("update event", err)
	}
	return ev, nil
}

// DeleteEvent removes the event at index.
func (ed *EntDriver) DeleteEvent(ctx context.Context, entity stream.Entity, index int) error {
	err := ed.withTx(ctx, func(tx dialect.Tx) error {
		events, err := ed.selectEvents(ctx, tx, entityWhere(entity), 0)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(events) {
			return storage.NotFoundError{What: "calendar event", Key: strconv.Itoa(index)}
		}

		_, err = exec(ctx, tx, ed.builder().Delete("calendar_events").Where(entsql.EQ("id", events[index].ID)))
		return err
	})
	return storage.Wrap("delete event", err)
}

// DueEvents returns undelivered events due at or before now.
func (ed *EntDriver) DueEvents(ctx context.Context, now time.Time, limit int) ([]storage.CalendarEvent, error) {
	events, err := ed.selectEvents(ctx, ed.Driver, entsql.And(
		entsql.EQ("notified", false),
		entsql.LTE("at_ms", msOf(now)),
	), limit)
	return events, storage.Wrap("due events", err)
}

// MarkNotified flags an event as delivered.
func (ed *EntDriver) MarkNotified(ctx context.Context, id int64) error {
	n, err := exec(ctx, ed.Driver, ed.builder().Update("calendar_events").
		Set("notified", true).
		Where(entsql.EQ("id", id)))
	if err != nil {
		return storage.Wrap("mark notified", err)
	}
	if n == 0 {
		return storage.NotFoundError{What: "calendar event", Key: strconv.FormatInt(id, 10)}
	}
	return nil
}

// IncrementUsage adds to company and entity counters.
func (ed *EntDriver) IncrementUsage(ctx context.Context, company string, entity string, messages, tokens int64) error {
	keys := []string{""}
	if entity != "" {
		keys = append(keys, entity)
	}

	err := ed.withTx(ctx, func(tx dialect.Tx) error {
		b := ed.builder()
		for _, e := range keys {
			_, err := exec(ctx, tx, b.Insert("usage").
				Columns("company", "entity", "messages", "tokens").
				Values(company, e, 0, 0).
				OnConflict(entsql.ConflictColumns("company", "entity"), entsql.DoNothing()))
			if err != nil {
				return err
			}

			_, err = exec(ctx, tx, b.Update("usage").
				Add("messages", messages).
				Add("tokens", tokens).
				Where(entsql.And(entsql.EQ("company", company), entsql.EQ("entity", e))))
			if err != nil {
				return err
			}
		}
		return nil
	})
	return storage.Wrap("increment usage", err)
}

// Usage returns company totals.
func (ed *EntDriver) Usage(ctx context.Context, company string) (storage.Usage, error) {
	return ed.EntityUsage(ctx, company, "")
}

// EntityUsage returns one entity's counters.
func (ed *EntDriver) EntityUsage(ctx context.Context, company string, entity string) (storage.Usage, error) {
	b := ed.builder()

	var u storage.Usage
	err := scan(ctx, ed.Driver, b.Select("messages", "tokens").
		From(b.Table("usage")).
		Where(entsql.And(entsql.EQ("company", company), entsql.EQ("entity", entity))),
		func(rows *entsql.Rows) error {
			return rows.Scan(&u.Messages, &u.Tokens)
		})
	if err != nil {
		return storage.Usage{}, storage.Wrap("usage", err)
	}
	return u, nil
}

// IncrementStat bumps a per-entity counter.
func (ed *EntDriver) IncrementStat(ctx context.Context, entity stream.Entity, dimension, field string) error {
	err := ed.withTx(ctx, func(tx dialect.Tx) error {
		b := ed.builder()
		_, err := exec(ctx, tx, b.Insert("stats").
			Columns("company", "entity", "dimension", "field", "count").
			Values(entity.Company, entity.ID, dimension, field, 0).
			OnConflict(entsql.ConflictColumns("company", "entity", "dimension", "field"), entsql.DoNothing()))
		if err != nil {
			return err
		}

		_, err = exec(ctx, tx, b.Update("stats").
			Add("count", 1).
			Where(entsql.And(entityWhere(entity), entsql.EQ("dimension", dimension), entsql.EQ("field", field))))
		return err
	})
	return storage.Wrap("increment stat", err)
}

// Stats returns an entity's counters.
func (ed *EntDriver) Stats(ctx context.Context, entity stream.Entity) (map[string]map[string]int64, error) {
	b := ed.builder()

	out := make(map[string]map[string]int64)
	err := scan(ctx, ed.Driver, b.Select("dimension", "field", "count").
		From(b.Table("stats")).
		Where(entityWhere(entity)),
		func(rows *entsql.Rows) error {
			var (
				dim, field string
				n          int64
			)
			if err := rows.Scan(&dim, &field, &n); err != nil {
				return err
			}
			if out[dim] == nil {
				out[dim] = make(map[string]int64)
			}
			out[dim][field] = n
			return nil
		})
	if err != nil {
		return nil, storage.Wrap("stats", err)
	}
	return out, nil
}

// PutSummary overwrites the entity's summary.
func (ed *EntDriver) PutSummary(ctx context.Context, entity stream.Entity, summary string) error {
	err := ed.withTx(ctx, func(tx dialect.Tx) error {
		b := ed.builder()
		if _, err := exec(ctx, tx, b.Delete("summaries").Where(entityWhere(entity))); err != nil {
			return err
		}
		_, err := exec(ctx, tx, b.Insert("summaries").
			Columns("company", "entity", "summary").
			Values(entity.Company, entity.ID, summary))
		return err
	})
	return storage.Wrap("put summary", err)
}

// Summary returns the entity's summary.
func (ed *EntDriver) Summary(ctx context.Context, entity stream.Entity) (string, bool, error) {
	b := ed.builder()

	var (
		s     string
		found bool
	)
	err := scan(ctx, ed.Driver, b.Select("summary").From(b.Table("summaries")).Where(entityWhere(entity)),
		func(rows *entsql.Rows) error {
			found = true
			return rows.Scan(&s)
		})
	if err != nil {
		return "", false, storage.Wrap("summary", err)
	}
	return s, found, nil
}
