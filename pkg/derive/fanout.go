package derive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
	"github.com/papercomputeco/threads/pkg/worker"
)

// perWrite kinds run after every append; perBatch kinds run when the stream
// length crosses a multiple of the trigger policy.
var (
	perWrite = []string{KindVector, KindFacts, KindCalendar}
	perBatch = []string{KindSummary, KindTags}
)

// Fanout dispatches derivation runs into the worker pool. Dispatch never
// blocks the caller: when the queue is full the run is dropped and left to
// the sweeps.
type Fanout struct {
	pool   *worker.Pool
	runner *Runner
	set    Set
	policy *Policy
	logger *slog.Logger
}

// NewFanout creates a Fanout.
func NewFanout(pool *worker.Pool, runner *Runner, set Set, policy *Policy, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if policy == nil {
		policy = NewPolicy(DefaultPolicyConfig())
	}
	return &Fanout{
		pool:   pool,
		runner: runner,
		set:    set,
		policy: policy,
		logger: logger,
	}
}

// Policy returns the trigger policy.
func (f *Fanout) Policy() *Policy { return f.policy }

// Written dispatches the derivations due after a stream grew from before to
// after live entries. It returns the kinds that were queued.
func (f *Fanout) Written(key stream.Key, flags storage.Flags, before, after int64) []string {
	var queued []string
	for _, kind := range perWrite {
		if f.Trigger(kind, key, flags) {
			queued = append(queued, kind)
		}
	}

	if !f.policy.Crossed(before, after) {
		return queued
	}
	f.logger.Debug("batch trigger reached",
		"stream", key.String(),
		"length", after,
		"every", f.policy.TriggerEvery(),
	)
	for _, kind := range perBatch {
		if f.Trigger(kind, key, flags) {
			queued = append(queued, kind)
		}
	}
	return queued
}

// Trigger queues one run of kind for key. It reports whether a job was
// queued.
func (f *Fanout) Trigger(kind string, key stream.Key, flags storage.Flags) bool {
	d := f.set.ByKind(kind)
	if d == nil || !Enabled(kind, flags) {
		return false
	}

	return f.pool.Enqueue(worker.Job{
		Name: kind,
		Key:  key.String(),
		Run: func(ctx context.Context) error {
			_, err := f.runner.Run(ctx, d, key)
			return err
		},
	})
}

// Run runs kind for key on the calling goroutine.
func (f *Fanout) Run(ctx context.Context, kind string, key stream.Key) (Result, error) {
	d := f.set.ByKind(kind)
	if d == nil {
		return Result{Kind: kind, Key: key}, fmt.Errorf("no %s derivation configured", kind)
	}
	return f.runner.Run(ctx, d, key)
}

// Has reports whether kind is configured.
func (f *Fanout) Has(kind string) bool {
	return f.set.ByKind(kind) != nil
}
