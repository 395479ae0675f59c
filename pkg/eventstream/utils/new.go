// Package eventstreamutils builds publishers from configuration.
package eventstreamutils

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/threads/pkg/eventstream"
	"github.com/papercomputeco/threads/pkg/eventstream/kafka"
	"github.com/papercomputeco/threads/pkg/eventstream/nop"
)

type NewPublisherOpts struct {
	ProviderType string

	// Brokers is a comma separated broker list.
	Brokers string
	Topic   string

	Logger *slog.Logger
}

func NewPublisher(o *NewPublisherOpts) (eventstream.Publisher, error) {
	switch o.ProviderType {
	case "", "nop":
		return nop.NewPublisher(o.Logger), nil
	case "kafka":
		var brokers []string
		for _, b := range strings.Split(o.Brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		return kafka.NewPublisher(kafka.Config{Brokers: brokers, Topic: o.Topic})
	default:
		return nil, fmt.Errorf("unsupported eventstream provider: %s", o.ProviderType)
	}
}
