// Package eventstream publishes an event for every entry appended to a
// stream, for consumers outside the threads server.
package eventstream

import (
	"context"
	"errors"
)

// ErrNilEvent is returned when a publisher is handed a nil event.
var ErrNilEvent = errors.New("nil entry event")

// Publisher delivers entry events. Delivery is best effort; the write path
// logs a failure and keeps the append.
type Publisher interface {
	PublishEntry(ctx context.Context, event *EntryAppendedEvent) error
	Close() error
}
