package derive

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/papercomputeco/threads/pkg/compress"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

// State is a step of the derivation lifecycle.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateApplying
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateApplying:
		return "applying"
	case StateCommitting:
		return "committing"
	default:
		return "unknown"
	}
}

// Observer is called on every lifecycle transition.
type Observer func(kind string, key stream.Key, from, to State)

const defaultBatchSize = 500

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Streams storage.StreamStore
	Cursors storage.CursorStore

	// Codec restores compressed content before entries reach a derivation.
	Codec *compress.Codec

	// BatchSize caps the entries applied per batch (defaults to 500).
	BatchSize int

	Observer Observer
	Logger   *slog.Logger
}

// Result describes a finished run.
type Result struct {
	Kind string
	Key  stream.Key

	// Processed counts entries whose batch was committed.
	Processed int

	// Cursor is the cursor after the run, nil if it was never set.
	Cursor *stream.EntryID

	// Coalesced is true when another run of the same kind and stream was
	// already in flight and was asked to go around once more instead.
	Coalesced bool
}

type flightKey struct {
	kind string
	key  stream.Key
}

type flight struct {
	again bool
}

// Runner drives derivations through their lifecycle. Concurrent runs of the
// same kind on the same stream are coalesced into the one in flight.
type Runner struct {
	streams   storage.StreamStore
	cursors   storage.CursorStore
	codec     *compress.Codec
	batchSize int
	observer  Observer
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[flightKey]*flight
}

// NewRunner creates a Runner.
func NewRunner(c *RunnerConfig) *Runner {
	batch := c.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Runner{
		streams:   c.Streams,
		cursors:   c.Cursors,
		codec:     c.Codec,
		batchSize: batch,
		observer:  c.Observer,
		logger:    logger,
		inflight:  make(map[flightKey]*flight),
	}
}

// Run consumes everything the derivation has not committed yet for key.
// On failure the batch is abandoned and the cursor is left untouched.
func (r *Runner) Run(ctx context.Context, d Derivation, key stream.Key) (Result, error) {
	fk := flightKey{kind: d.Kind(), key: key}

	r.mu.Lock()
	if f, ok := r.inflight[fk]; ok {
		f.again = true
		r.mu.Unlock()
		return Result{Kind: fk.kind, Key: key, Coalesced: true}, nil
	}
	f := &flight{}
	r.inflight[fk] = f
	r.mu.Unlock()

	total := Result{Kind: fk.kind, Key: key}
	for {
		res, err := r.drain(ctx, d, key)
		total.Processed += res.Processed
		if res.Cursor != nil {
			total.Cursor = res.Cursor
		}

		r.mu.Lock()
		if err != nil || !f.again || ctx.Err() != nil {
			delete(r.inflight, fk)
			r.mu.Unlock()
			return total, err
		}
		f.again = false
		r.mu.Unlock()
	}
}

// drain runs batches until the window is exhausted.
func (r *Runner) drain(ctx context.Context, d Derivation, key stream.Key) (Result, error) {
	_, windowed := d.(Windowed)

	var total Result
	for {
		res, fetched, err := r.runBatch(ctx, d, key)
		total.Processed += res.Processed
		if res.Cursor != nil {
			total.Cursor = res.Cursor
		}
		if err != nil {
			return total, err
		}
		if windowed || fetched < r.batchSize {
			return total, nil
		}
	}
}

func (r *Runner) runBatch(ctx context.Context, d Derivation, key stream.Key) (Result, int, error) {
	kind := d.Kind()
	cursorKind := CursorKind(kind, key)
	res := Result{Kind: kind, Key: key}
	state := StateIdle
	start := time.Now()

	move := func(to State) {
		if r.observer != nil {
			r.observer(kind, key, state, to)
		}
		state = to
	}
	fail := func(err error) (Result, int, error) {
		failed := state
		move(StateIdle)
		if errors.Is(err, ErrSkip) {
			return res, 0, nil
		}
		r.logger.Warn("derivation batch abandoned",
			"kind", kind,
			"company", key.Entity.Company,
			"entity", key.Entity.ID,
			"chat", key.Chat,
			"state", failed.String(),
			"error", err,
		)
		return res, 0, errorf(kind, failed, err)
	}

	move(StateFetching)
	cursor, err := r.cursors.Cursor(ctx, key.Entity, cursorKind)
	if err != nil {
		return fail(err)
	}
	res.Cursor = cursor

	entries, err := r.window(ctx, d, key, cursor)
	if err != nil {
		return fail(err)
	}
	if len(entries) == 0 {
		move(StateIdle)
		return res, 0, nil
	}
	r.restore(key, entries)

	move(StateApplying)
	commit, err := d.Apply(ctx, key, entries)
	if err != nil {
		return fail(err)
	}

	move(StateCommitting)
	if commit != nil {
		if err := commit(ctx); err != nil {
			return fail(err)
		}
	}

	last := entries[len(entries)-1].ID
	if _, err := r.cursors.Advance(ctx, key.Entity, cursorKind, last); err != nil {
		return fail(err)
	}
	res.Cursor = &last
	res.Processed = len(entries)
	move(StateIdle)

	r.logger.Debug("derivation batch committed",
		"kind", kind,
		"stream", key.String(),
		"entries", len(entries),
		"cursor", last.String(),
		"duration", time.Since(start),
	)
	return res, len(entries), nil
}

func (r *Runner) window(ctx context.Context, d Derivation, key stream.Key, cursor *stream.EntryID) ([]stream.Entry, error) {
	if w, ok := d.(Windowed); ok {
		return w.Window(ctx, r.streams, key, cursor)
	}

	var from *stream.EntryID
	if cursor != nil {
		next := stream.EntryID{Ms: cursor.Ms, Seq: cursor.Seq + 1}
		from = &next
	}
	return r.streams.ReadRange(ctx, key, from, nil, r.batchSize)
}

func (r *Runner) restore(key stream.Key, entries []stream.Entry) {
	if r.codec == nil {
		return
	}
	for i := range entries {
		if err := r.codec.Restore(&entries[i].Message); err != nil {
			r.logger.Warn("failed to decompress entry",
				"stream", key.String(),
				"id", entries[i].ID.String(),
				"error", err,
			)
		}
	}
}
