package entdriver

import (
	"context"
	"encoding/json"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

func streamWhere(key stream.Key) *entsql.Predicate {
	return entsql.And(
		entsql.EQ("company", key.Entity.Company),
		entsql.EQ("entity", key.Entity.ID),
		entsql.EQ("chat", key.Chat),
	)
}

func entryWhere(key stream.Key, id stream.EntryID) *entsql.Predicate {
	return entsql.And(
		streamWhere(key),
		entsql.EQ("ms", int64(id.Ms)),
		entsql.EQ("seq", int64(id.Seq)),
	)
}

// fromWhere matches IDs >= id.
func fromWhere(id stream.EntryID) *entsql.Predicate {
	return entsql.Or(
		entsql.GT("ms", int64(id.Ms)),
		entsql.And(entsql.EQ("ms", int64(id.Ms)), entsql.GTE("seq", int64(id.Seq))),
	)
}

// toWhere matches IDs <= id.
func toWhere(id stream.EntryID) *entsql.Predicate {
	return entsql.Or(
		entsql.LT("ms", int64(id.Ms)),
		entsql.And(entsql.EQ("ms", int64(id.Ms)), entsql.LTE("seq", int64(id.Seq))),
	)
}

// Append stores msg at the end of the stream. The length increment runs
// first so the stream row is locked before its last ID is read.
func (ed *EntDriver) Append(ctx context.Context, key stream.Key, msg stream.Message) (stream.EntryID, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return stream.EntryID{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	var id stream.EntryID
	err = ed.withTx(ctx, func(tx dialect.Tx) error {
		b := ed.builder()

		_, err := exec(ctx, tx, b.Insert("streams").
			Columns("company", "entity", "chat", "last_ms", "last_seq", "length").
			Values(key.Entity.Company, key.Entity.ID, key.Chat, 0, 0, 0).
			OnConflict(entsql.ConflictColumns("company", "entity", "chat"), entsql.DoNothing()))
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}

		if _, err := exec(ctx, tx, b.Update("streams").Add("length", 1).Where(streamWhere(key))); err != nil {
			return fmt.Errorf("failed to lock stream: %w", err)
		}

		var lastMs, lastSeq int64
		err = scan(ctx, tx, b.Select("last_ms", "last_seq").From(b.Table("streams")).Where(streamWhere(key)),
			func(rows *entsql.Rows) error {
				return rows.Scan(&lastMs, &lastSeq)
			})
		if err != nil {
			return fmt.Errorf("failed to read last id: %w", err)
		}

		last := stream.EntryID{Ms: uint64(lastMs), Seq: uint64(lastSeq)}
		id = last.Next(uint64(ed.Now().UnixMilli()))

		_, err = exec(ctx, tx, b.Update("streams").
			Set("last_ms", int64(id.Ms)).
			Set("last_seq", int64(id.Seq)).
			Where(streamWhere(key)))
		if err != nil {
			return fmt.Errorf("failed to record last id: %w", err)
		}

		_, err = exec(ctx, tx, b.Insert("stream_entries").
			Columns("company", "entity", "chat", "ms", "seq", "data").
			Values(key.Entity.Company, key.Entity.ID, key.Chat, int64(id.Ms), int64(id.Seq), string(data)))
		if err != nil {
			return fmt.Errorf("failed to insert entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return stream.EntryID{}, storage.Wrap("append", err)
	}

	return id, nil
}

// ReadRange returns live entries within the inclusive bounds.
func (ed *EntDriver) ReadRange(ctx context.Context, key stream.Key, from, to *stream.EntryID, limit int) ([]stream.Entry, error) {
	b := ed.builder()

	where := []*entsql.Predicate{streamWhere(key)}
	if from != nil {
		where = append(where, fromWhere(*from))
	}
	if to != nil {
		where = append(where, toWhere(*to))
	}

	sel := b.Select("ms", "seq", "data").
		From(b.Table("stream_entries")).
		Where(entsql.And(where...)).
		OrderBy(entsql.Asc("ms"), entsql.Asc("seq"))
	if limit > 0 {
		sel.Limit(limit)
	}

	entries, err := ed.scanEntries(ctx, sel)
	return entries, storage.Wrap("read range", err)
}

// ReadRecent returns up to count entries, newest first.
func (ed *EntDriver) ReadRecent(ctx context.Context, key stream.Key, count int) ([]stream.Entry, error) {
	if count <= 0 {
		return nil, nil
	}

	b := ed.builder()
	sel := b.Select("ms", "seq", "data").
		From(b.Table("stream_entries")).
		Where(streamWhere(key)).
		OrderBy(entsql.Desc("ms"), entsql.Desc("seq")).
		Limit(count)

	entries, err := ed.scanEntries(ctx, sel)
	return entries, storage.Wrap("read recent", err)
}

// Get returns a single live entry.
func (ed *EntDriver) Get(ctx context.Context, key stream.Key, id stream.EntryID) (stream.Entry, error) {
	b := ed.builder()
	sel := b.Select("ms", "seq", "data").
		From(b.Table("stream_entries")).
		Where(entryWhere(key, id))

	entries, err := ed.scanEntries(ctx, sel)
	if err != nil {
		return stream.Entry{}, storage.Wrap("get", err)
	}
	if len(entries) == 0 {
		return stream.Entry{}, storage.NotFoundError{What: "entry", Key: key.String() + " " + id.String()}
	}
	return entries[0], nil
}

// Delete tombstones an entry. streams.last_ms and last_seq are left alone so
// the deleted ID is never assigned again.
func (ed *EntDriver) Delete(ctx context.Context, key stream.Key, id stream.EntryID) (bool, error) {
	var deleted bool
	err := ed.withTx(ctx, func(tx dialect.Tx) error {
		b := ed.builder()

		n, err := exec(ctx, tx, b.Delete("stream_entries").Where(entryWhere(key, id)))
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		deleted = true
		_, err = exec(ctx, tx, b.Update("streams").Add("length", -1).Where(streamWhere(key)))
		return err
	})
	if err != nil {
		return false, storage.Wrap("delete", err)
	}

	return deleted, nil
}

// Length returns the number of live entries.
func (ed *EntDriver) Length(ctx context.Context, key stream.Key) (int64, error) {
	b := ed.builder()

	var n int64
	err := scan(ctx, ed.Driver, b.Select("length").From(b.Table("streams")).Where(streamWhere(key)),
		func(rows *entsql.Rows) error {
			return rows.Scan(&n)
		})
	if err != nil {
		return 0, storage.Wrap("length", err)
	}
	return n, nil
}

// Streams lists every stream ever appended to.
func (ed *EntDriver) Streams(ctx context.Context) ([]stream.Key, error) {
	b := ed.builder()

	var keys []stream.Key
	err := scan(ctx, ed.Driver, b.Select("company", "entity", "chat").
		From(b.Table("streams")).
		OrderBy(entsql.Asc("company"), entsql.Asc("entity"), entsql.Asc("chat")),
		func(rows *entsql.Rows) error {
			var k stream.Key
			if err := rows.Scan(&k.Entity.Company, &k.Entity.ID, &k.Chat); err != nil {
				return err
			}
			keys = append(keys, k)
			return nil
		})
	if err != nil {
		return nil, storage.Wrap("streams", err)
	}
	return keys, nil
}

func (ed *EntDriver) scanEntries(ctx context.Context, sel *entsql.Selector) ([]stream.Entry, error) {
	var entries []stream.Entry
	err := scan(ctx, ed.Driver, sel, func(rows *entsql.Rows) error {
		var (
			ms, seq int64
			data    []byte
		)
		if err := rows.Scan(&ms, &seq, &data); err != nil {
			return err
		}

		var msg stream.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal entry: %w", err)
		}

		entries = append(entries, stream.Entry{
			ID:      stream.EntryID{Ms: uint64(ms), Seq: uint64(seq)},
			Message: msg,
		})
		return nil
	})
	return entries, err
}
