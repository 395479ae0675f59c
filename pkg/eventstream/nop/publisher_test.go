package nop_test

import (
	"bytes"
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/eventstream"
	"github.com/papercomputeco/threads/pkg/eventstream/nop"
	"github.com/papercomputeco/threads/pkg/logger"
	"github.com/papercomputeco/threads/pkg/stream"
)

var _ = Describe("Publisher", func() {
	It("rejects a nil event", func() {
		p := nop.NewPublisher(nil)
		Expect(p.PublishEntry(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
		Expect(p.Dropped()).To(BeZero())
	})

	It("counts and logs dropped events", func() {
		var buf bytes.Buffer
		p := nop.NewPublisher(logger.New(logger.WithWriter(&buf), logger.WithDebug(true)))

		key := stream.Key{Entity: stream.Entity{Company: "acme", ID: "alice"}}
		entry := stream.Entry{Message: stream.NewTextMessage("user", "hello")}
		event := eventstream.NewEntryAppendedEvent(key, entry, 1, time.Now())

		Expect(p.PublishEntry(context.Background(), event)).To(Succeed())
		Expect(p.PublishEntry(context.Background(), event)).To(Succeed())

		Expect(p.Dropped()).To(Equal(uint64(2)))
		Expect(buf.String()).To(ContainSubstring("entry event dropped"))
		Expect(p.Close()).To(Succeed())
	})
})
