// Package nop provides the publisher used when no event stream is
// configured. Events are counted and dropped.
package nop

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/papercomputeco/threads/pkg/eventstream"
)

type Publisher struct {
	dropped atomic.Uint64
	logger  *slog.Logger
}

// NewPublisher creates a publisher that drops every event. A nil logger
// discards the debug record written per event.
func NewPublisher(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{logger: logger}
}

func (p *Publisher) PublishEntry(ctx context.Context, event *eventstream.EntryAppendedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	p.dropped.Add(1)
	p.logger.DebugContext(ctx, "entry event dropped",
		"stream", event.Stream.String(),
		"entry", event.Entry.ID,
	)
	return nil
}

// Dropped returns the number of events accepted so far.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Publisher) Close() error {
	return nil
}

var _ eventstream.Publisher = (*Publisher)(nil)
