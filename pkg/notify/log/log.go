// Package log implements a Notifier that writes reminders to a logger.
package log

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/threads/pkg/notify"
)

// Notifier logs each notification at Info.
type Notifier struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Notifier {
	return &Notifier{logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, note notify.Notification) error {
	n.logger.InfoContext(ctx, "reminder",
		"company", note.Entity.Company,
		"entity", note.Entity.ID,
		"chat", note.Chat,
		"at", note.At,
		"text", note.Text,
	)
	return nil
}

var _ notify.Notifier = (*Notifier)(nil)
