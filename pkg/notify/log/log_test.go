package log_test

import (
	"bytes"
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/logger"
	"github.com/papercomputeco/threads/pkg/notify"
	lognotify "github.com/papercomputeco/threads/pkg/notify/log"
	"github.com/papercomputeco/threads/pkg/stream"
)

var _ = Describe("Log Notifier", func() {
	It("logs the reminder with its entity", func() {
		var buf bytes.Buffer
		n := lognotify.New(logger.New(logger.WithWriter(&buf)))

		Expect(n.Notify(context.Background(), notify.Notification{
			Entity: stream.Entity{Company: "acme", ID: "u1"},
			Text:   "stand up",
		})).To(Succeed())

		Expect(buf.String()).To(ContainSubstring("reminder"))
		Expect(buf.String()).To(ContainSubstring("acme"))
		Expect(buf.String()).To(ContainSubstring("stand up"))
	})
})
