package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/threads/pkg/notify"
)

// RecordingNotifier keeps every notification it is asked to send.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification

	// Fail makes Notify return an error without recording.
	Fail bool
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (r *RecordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Fail {
		return fmt.Errorf("mock notify failure")
	}
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns the recorded notifications.
func (r *RecordingNotifier) Sent() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}
