// Package notifyutils builds notifiers from configuration.
package notifyutils

import (
	"fmt"
	"log/slog"

	"github.com/papercomputeco/threads/pkg/notify"
	lognotify "github.com/papercomputeco/threads/pkg/notify/log"
	"github.com/papercomputeco/threads/pkg/notify/slack"
)

type NewNotifierOpts struct {
	ProviderType string
	SlackToken   string
	SlackChannel string
	Logger       *slog.Logger
}

func NewNotifier(o *NewNotifierOpts) (notify.Notifier, error) {
	switch o.ProviderType {
	case "", "log":
		return lognotify.New(o.Logger), nil
	case "slack":
		return slack.New(o.SlackToken, o.SlackChannel)
	default:
		return nil, fmt.Errorf("unsupported notifier: %s", o.ProviderType)
	}
}
