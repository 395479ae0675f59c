// Package notify delivers reminder notifications to entities.
package notify

import (
	"context"
	"time"

	"github.com/papercomputeco/threads/pkg/stream"
)

// Notification is a message addressed to one entity.
type Notification struct {
	Entity stream.Entity
	Chat   string
	Text   string

	// At is when the reminder was due.
	At time.Time
}

// Notifier sends notifications. Delivery is fire-and-forget from the
// caller's point of view; an error only means this attempt failed.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
