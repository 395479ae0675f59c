// Package scheduler drives the periodic sweeps that run derivations
// independently of write traffic and deliver due reminders.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/threads/pkg/derive"
	"github.com/papercomputeco/threads/pkg/notify"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

const (
	DefaultCalendarInterval = 30 * time.Minute
	DefaultIdleInterval     = time.Minute
	DefaultReminderInterval = 30 * time.Second
	DefaultCatchupInterval  = 10 * time.Minute
	DefaultConcurrency      = 4

	// DefaultReminderBatch caps the reminders delivered per tick.
	DefaultReminderBatch = 100
)

// Config configures a Scheduler. Store and Fanout are required. A negative
// interval disables its sweep; zero selects the default.
type Config struct {
	Store  storage.Driver
	Fanout *derive.Fanout

	// Notifier delivers due reminders. Nil disables reminder dispatch.
	Notifier notify.Notifier

	CalendarInterval time.Duration
	IdleInterval     time.Duration
	ReminderInterval time.Duration
	CatchupInterval  time.Duration

	// Concurrency bounds the streams swept at once.
	Concurrency   int
	ReminderBatch int

	Clock  func() time.Time
	Logger *slog.Logger
}

// Scheduler runs the sweeps on fixed intervals.
type Scheduler struct {
	store    storage.Driver
	fanout   *derive.Fanout
	notifier notify.Notifier

	calendarInterval time.Duration
	idleInterval     time.Duration
	reminderInterval time.Duration
	catchupInterval  time.Duration
	concurrency      int
	reminderBatch    int

	now    func() time.Time
	logger *slog.Logger

	// finalized is the last activity time an idle pass already covered.
	mu        sync.Mutex
	finalized map[stream.Entity]time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a Scheduler.
func New(c *Config) *Scheduler {
	s := &Scheduler{
		store:            c.Store,
		fanout:           c.Fanout,
		notifier:         c.Notifier,
		calendarInterval: interval(c.CalendarInterval, DefaultCalendarInterval),
		idleInterval:     interval(c.IdleInterval, DefaultIdleInterval),
		reminderInterval: interval(c.ReminderInterval, DefaultReminderInterval),
		catchupInterval:  interval(c.CatchupInterval, DefaultCatchupInterval),
		concurrency:      c.Concurrency,
		reminderBatch:    c.ReminderBatch,
		now:              c.Clock,
		logger:           c.Logger,
		finalized:        make(map[stream.Entity]time.Time),
		stopCh:           make(chan struct{}),
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.reminderBatch <= 0 {
		s.reminderBatch = DefaultReminderBatch
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

func interval(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}

// Start launches one loop per enabled sweep and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler starting",
		"calendar_interval", s.calendarInterval.String(),
		"idle_interval", s.idleInterval.String(),
		"reminder_interval", s.reminderInterval.String(),
		"catchup_interval", s.catchupInterval.String(),
	)

	s.loop(ctx, "calendar", s.calendarInterval, func(ctx context.Context) error {
		_, err := s.CalendarSweep(ctx)
		return err
	})
	s.loop(ctx, "idle", s.idleInterval, func(ctx context.Context) error {
		_, err := s.IdleSweep(ctx)
		return err
	})
	if s.notifier != nil {
		s.loop(ctx, "reminders", s.reminderInterval, func(ctx context.Context) error {
			_, err := s.DispatchReminders(ctx)
			return err
		})
	}
	s.loop(ctx, "catchup", s.catchupInterval, func(ctx context.Context) error {
		_, err := s.CatchUp(ctx)
		return err
	})
}

// Stop signals every loop and waits for in-flight sweeps to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, sweep func(context.Context) error) {
	if every < 0 {
		s.logger.Debug("sweep disabled", "sweep", name)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := sweep(ctx); err != nil {
					s.logger.Error("sweep failed (will retry next interval)",
						"sweep", name,
						"error", err,
					)
				}
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// CalendarSweep runs calendar extraction over every stream whose company
// has the calendar enabled. It returns the number of entries consumed.
func (s *Scheduler) CalendarSweep(ctx context.Context) (int, error) {
	keys, err := s.store.Streams(ctx)
	if err != nil {
		return 0, storage.Wrap("list streams", err)
	}
	n, _, err := s.sweep(ctx, keys, []string{derive.KindCalendar})
	return n, err
}

// CatchUp runs fact extraction and vector indexing over every stream, so
// entries whose inline trigger was dropped are still derived.
func (s *Scheduler) CatchUp(ctx context.Context) (int, error) {
	keys, err := s.store.Streams(ctx)
	if err != nil {
		return 0, storage.Wrap("list streams", err)
	}
	n, _, err := s.sweep(ctx, keys, []string{derive.KindFacts, derive.KindVector})
	return n, err
}

// IdleSweep finalizes entities that stopped writing. For each entity whose
// company sets an idle timeout and whose last activity is older than it,
// the summary, facts and calendar derivations run over its streams once
// per period of inactivity.
func (s *Scheduler) IdleSweep(ctx context.Context) (int, error) {
	users, err := s.store.Users(ctx)
	if err != nil {
		return 0, storage.Wrap("list users", err)
	}

	now := s.now()
	timeouts := make(map[string]time.Duration)
	idle := make(map[stream.Entity]time.Time)
	for _, u := range users {
		timeout, ok := timeouts[u.Company]
		if !ok {
			c, err := s.store.Company(ctx, u.Company)
			if err != nil {
				return 0, storage.Wrap("read company", err)
			}
			timeout = c.IdleTimeout
			timeouts[u.Company] = timeout
		}
		if timeout <= 0 {
			continue
		}

		entity := u.Entity()
		seen, err := s.store.LastSeen(ctx, entity)
		if err != nil {
			return 0, storage.Wrap("read last activity", err)
		}
		if seen.IsZero() || now.Sub(seen) < timeout {
			continue
		}

		s.mu.Lock()
		done := s.finalized[entity].Equal(seen)
		s.mu.Unlock()
		if !done {
			idle[entity] = seen
		}
	}
	if len(idle) == 0 {
		return 0, nil
	}

	keys, err := s.store.Streams(ctx)
	if err != nil {
		return 0, storage.Wrap("list streams", err)
	}
	var owned []stream.Key
	for _, key := range keys {
		if _, ok := idle[key.Entity]; ok {
			owned = append(owned, key)
		}
	}

	n, failed, err := s.sweep(ctx, owned, []string{derive.KindSummary, derive.KindFacts, derive.KindCalendar})
	if err != nil {
		return n, err
	}

	// An entity with a failed run stays pending and is retried next tick.
	done := 0
	s.mu.Lock()
	for entity, seen := range idle {
		if failed[entity] {
			continue
		}
		s.finalized[entity] = seen
		done++
	}
	s.mu.Unlock()

	s.logger.Info("idle entities finalized",
		"entities", done,
		"pending", len(idle)-done,
		"processed", n,
	)
	return n, nil
}

// sweep runs kinds over keys with bounded concurrency. A failing run is
// logged and does not stop the sweep; the entities with a failed run are
// returned.
func (s *Scheduler) sweep(ctx context.Context, keys []stream.Key, kinds []string) (int, map[stream.Entity]bool, error) {
	flags, err := s.flags(ctx, keys)
	if err != nil {
		return 0, nil, err
	}

	var (
		mu     sync.Mutex
		total  int
		failed = make(map[stream.Entity]bool)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, key := range keys {
		for _, kind := range kinds {
			if !s.fanout.Has(kind) || !derive.Enabled(kind, flags[key.Entity.Company]) {
				continue
			}

			g.Go(func() error {
				res, err := s.fanout.Run(gctx, kind, key)
				if err != nil {
					s.logger.Warn("sweep run failed",
						"kind", kind,
						"stream", key.String(),
						"error", err,
					)
					mu.Lock()
					failed[key.Entity] = true
					mu.Unlock()
					return nil
				}
				mu.Lock()
				total += res.Processed
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return total, failed, err
	}
	return total, failed, ctx.Err()
}

func (s *Scheduler) flags(ctx context.Context, keys []stream.Key) (map[string]storage.Flags, error) {
	out := make(map[string]storage.Flags)
	for _, key := range keys {
		company := key.Entity.Company
		if _, ok := out[company]; ok {
			continue
		}
		c, err := s.store.Company(ctx, company)
		if storage.IsNotFound(err) {
			out[company] = storage.Flags{}
			continue
		}
		if err != nil {
			return nil, storage.Wrap("read company", err)
		}
		out[company] = c.Flags
	}
	return out, nil
}

// DispatchReminders notifies the owners of due, unnotified events and marks
// them notified. A failed delivery is retried on the next tick.
func (s *Scheduler) DispatchReminders(ctx context.Context) (int, error) {
	if s.notifier == nil {
		return 0, nil
	}

	due, err := s.store.DueEvents(ctx, s.now(), s.reminderBatch)
	if err != nil {
		return 0, storage.Wrap("read due events", err)
	}

	sent := 0
	for _, e := range due {
		err := s.notifier.Notify(ctx, notify.Notification{
			Entity: e.Entity,
			Chat:   e.Chat,
			Text:   e.Text,
			At:     e.At,
		})
		if err != nil {
			s.logger.Warn("reminder delivery failed",
				"event", e.ID,
				"entity", e.Entity.String(),
				"error", err,
			)
			continue
		}

		if err := s.store.MarkNotified(ctx, e.ID); err != nil {
			return sent, storage.Wrap("mark notified", err)
		}
		sent++
	}

	if sent > 0 {
		s.logger.Info("reminders dispatched", "count", sent)
	}
	return sent, nil
}
