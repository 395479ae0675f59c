// Package slack implements a Notifier that posts reminders to a Slack channel.
package slack

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/papercomputeco/threads/pkg/notify"
)

// Notifier posts to one channel.
type Notifier struct {
	api     *slack.Client
	channel string
}

// Option is a functional option for notifier configuration
type Option func(*options)

type options struct {
	apiURL string
}

// WithAPIURL points the client at a different Slack API root.
func WithAPIURL(url string) Option {
	return func(o *options) {
		o.apiURL = url
	}
}

// New creates a Slack notifier with the provided bot token
func New(token, channel string, opts ...Option) (*Notifier, error) {
	if token == "" {
		return nil, errors.New("slack bot token is required")
	}
	if channel == "" {
		return nil, errors.New("slack channel is required")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var clientOpts []slack.Option
	if o.apiURL != "" {
		clientOpts = append(clientOpts, slack.OptionAPIURL(o.apiURL))
	}

	return &Notifier{
		api:     slack.New(token, clientOpts...),
		channel: channel,
	}, nil
}

// Notify posts "[company/entity] text".
func (n *Notifier) Notify(ctx context.Context, note notify.Notification) error {
	text := fmt.Sprintf("[%s] %s", note.Entity.String(), note.Text)
	if note.Chat != "" {
		text = fmt.Sprintf("[%s #%s] %s", note.Entity.String(), note.Chat, note.Text)
	}

	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("failed to post slack message: %w", err)
	}
	return nil
}

var _ notify.Notifier = (*Notifier)(nil)
