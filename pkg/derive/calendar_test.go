package derive_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/derive"
	"github.com/papercomputeco/threads/pkg/llm"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/storage/inmemory"
	"github.com/papercomputeco/threads/pkg/stream"
	testutils "github.com/papercomputeco/threads/pkg/utils/test"
)

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	Expect(err).NotTo(HaveOccurred())
	return loc
}

var _ = Describe("ParseReminder", func() {
	It("resolves tomorrow in a non-UTC zone to the exact UTC instant", func() {
		berlin := mustLocation("Europe/Berlin")
		now := time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)

		at, ok := derive.ParseReminder("remind me tomorrow at 18:00", now, berlin)
		Expect(ok).To(BeTrue())
		Expect(at).To(Equal(time.Date(2025, 3, 11, 17, 0, 0, 0, time.UTC)))
		Expect(at.Location()).To(Equal(time.UTC))
	})

	It("uses the calendar date of the origin zone", func() {
		newYork := mustLocation("America/New_York")
		// 22:00 on Jan 14 in New York
		now := time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC)

		at, ok := derive.ParseReminder("Remind me tomorrow at 18:00", now, newYork)
		Expect(ok).To(BeTrue())
		Expect(at).To(Equal(time.Date(2025, 1, 15, 23, 0, 0, 0, time.UTC)))
	})

	It("handles today and the dotted time form", func() {
		now := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
		at, ok := derive.ParseReminder("remind me today at 9.05 to stretch", now, time.UTC)
		Expect(ok).To(BeTrue())
		Expect(at).To(Equal(time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)))
	})

	It("understands the russian phrase", func() {
		now := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
		at, ok := derive.ParseReminder("Напомни завтра в 7:30 купить хлеб", now, time.UTC)
		Expect(ok).To(BeTrue())
		Expect(at).To(Equal(time.Date(2025, 3, 11, 7, 30, 0, 0, time.UTC)))
	})

	DescribeTable("declines",
		func(text string) {
			_, ok := derive.ParseReminder(text, time.Now(), time.UTC)
			Expect(ok).To(BeFalse())
		},
		Entry("no reminder marker", "tomorrow at 18:00 we leave"),
		Entry("no day word", "remind me at 18:00"),
		Entry("no time", "remind me tomorrow"),
		Entry("out of range hour", "remind me tomorrow at 25:00"),
	)
})

var _ = Describe("ResolveTime", func() {
	It("reads a naive time in the given zone", func() {
		at, err := derive.ResolveTime("2025-03-11T18:00", "Europe/Berlin")
		Expect(err).NotTo(HaveOccurred())
		Expect(at).To(Equal(time.Date(2025, 3, 11, 17, 0, 0, 0, time.UTC)))
	})

	It("keeps an explicit offset", func() {
		at, err := derive.ResolveTime("2025-03-11T18:00:00+02:00", "Europe/Berlin")
		Expect(err).NotTo(HaveOccurred())
		Expect(at).To(Equal(time.Date(2025, 3, 11, 16, 0, 0, 0, time.UTC)))
	})

	It("falls back to UTC for unknown zones", func() {
		at, err := derive.ResolveTime("2025-03-11 18:00", "Mars/Olympus")
		Expect(err).NotTo(HaveOccurred())
		Expect(at).To(Equal(time.Date(2025, 3, 11, 18, 0, 0, 0, time.UTC)))
	})

	It("rejects garbage", func() {
		_, err := derive.ResolveTime("next tuesday", "UTC")
		Expect(storage.IsValidation(err)).To(BeTrue())
	})
})

var _ = Describe("CalendarExtractor", func() {
	var (
		ctx      context.Context
		store    *inmemory.Driver
		key      stream.Key
		model    *testutils.ScriptedLLM
		runner   *derive.Runner
		calendar *derive.CalendarExtractor
		ts       time.Time
	)

	appendUser := func(text, tz string) {
		msg := stream.NewTextMessage(stream.RoleUser, text)
		msg.TS = ts
		if tz != "" {
			msg.SetExtra(stream.ExtraTZ, tz)
		}
		_, err := store.Append(ctx, key, msg)
		Expect(err).NotTo(HaveOccurred())
	}

	events := func() []storage.CalendarEvent {
		e, err := store.Events(ctx, key.Entity)
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	addStored := func(at time.Time, text string) {
		_, err := store.AddEvent(ctx, storage.CalendarEvent{Entity: key.Entity, At: at, Text: text, TZ: "UTC"})
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		key = stream.DefaultKey(stream.Entity{Company: "acme", ID: "u1"})
		model = testutils.NewScriptedLLM()
		runner = derive.NewRunner(&derive.RunnerConfig{Streams: store, Cursors: store})
		ts = time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)
		calendar = derive.NewCalendarExtractor(store, model, nil, nil).
			WithClock(func() time.Time { return ts })
	})

	It("adds explicit reminders without calling the model", func() {
		appendUser("remind me tomorrow at 18:00 to call mom", "Europe/Berlin")

		_, err := runner.Run(ctx, calendar, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(model.Requests()).To(BeEmpty())

		got := events()
		Expect(got).To(HaveLen(1))
		Expect(got[0].At).To(Equal(time.Date(2025, 3, 11, 17, 0, 0, 0, time.UTC)))
		Expect(got[0].Text).To(Equal("remind me tomorrow at 18:00 to call mom"))
		Expect(got[0].TZ).To(Equal("Europe/Berlin"))
	})

	It("scopes events to the chat of the stream", func() {
		key = stream.ChatKey(key.Entity, "kitchen")
		appendUser("remind me today at 20:00 to water plants", "")

		_, err := runner.Run(ctx, calendar, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(events()[0].Chat).To(Equal("kitchen"))
		Expect(events()[0].TZ).To(Equal("UTC"))
	})

	It("ignores messages without calendar keywords", func() {
		appendUser("how is the weather", "")

		_, err := runner.Run(ctx, calendar, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(model.Requests()).To(BeEmpty())
		Expect(events()).To(BeEmpty())
	})

	It("delegates other calendar messages to the model", func() {
		model.Script = []*llm.ChatResponse{
			testutils.ToolCallResponse("add_event", map[string]any{
				"when": "2025-03-17T09:00:00",
				"text": "dentist",
				"tz":   "Europe/Berlin",
			}),
			testutils.TextResponse("added"),
		}
		appendUser("remind me about the dentist next Monday at 9", "Europe/Berlin")

		_, err := runner.Run(ctx, calendar, key)
		Expect(err).NotTo(HaveOccurred())

		got := events()
		Expect(got).To(HaveLen(1))
		Expect(got[0].At).To(Equal(time.Date(2025, 3, 17, 8, 0, 0, 0, time.UTC)))
		Expect(got[0].Text).To(Equal("dentist"))

		system := model.Requests()[0].System
		Expect(system).To(ContainSubstring("Message time is 2025-03-10T09:15:00Z (Monday)"))
	})

	It("resolves indexes against the staged view", func() {
		addStored(time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC), "standup")
		addStored(time.Date(2025, 3, 13, 10, 0, 0, 0, time.UTC), "review")
		model.Script = []*llm.ChatResponse{
			testutils.ToolCallResponse("delete_event", map[string]any{"index": 0}),
			testutils.ToolCallResponse("update_event", map[string]any{"index": 0, "text": "design review"}),
			testutils.TextResponse("done"),
		}
		appendUser("удали первую встречу и переименуй вторую", "")

		_, err := runner.Run(ctx, calendar, key)
		Expect(err).NotTo(HaveOccurred())

		got := events()
		Expect(got).To(HaveLen(1))
		Expect(got[0].Text).To(Equal("design review"))
		Expect(got[0].At).To(Equal(time.Date(2025, 3, 13, 10, 0, 0, 0, time.UTC)))
	})

	It("reports out of range indexes to the model without failing", func() {
		model.Script = []*llm.ChatResponse{
			testutils.ToolCallResponse("delete_event", map[string]any{"index": 3}),
			testutils.TextResponse("nothing to delete"),
		}
		appendUser("удали встречу", "")

		_, err := runner.Run(ctx, calendar, key)
		Expect(err).NotTo(HaveOccurred())

		last := model.Requests()[1].Messages
		Expect(last[len(last)-1].Content[0].ToolOutput).To(ContainSubstring("not_found"))
	})

	It("does not duplicate events when a batch is replayed", func() {
		appendUser("remind me tomorrow at 18:00", "")
		entries, err := store.ReadRange(ctx, key, nil, nil, 0)
		Expect(err).NotTo(HaveOccurred())

		for range 2 {
			commit, err := calendar.Apply(ctx, key, entries)
			Expect(err).NotTo(HaveOccurred())
			Expect(commit(ctx)).To(Succeed())
		}
		Expect(events()).To(HaveLen(1))
	})

	Describe("Assist", func() {
		It("runs a command and returns the answer", func() {
			addStored(time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC), "standup")
			model.Script = []*llm.ChatResponse{
				testutils.ToolCallResponse("list_events", map[string]any{}),
				testutils.TextResponse("You have a standup on Wednesday."),
			}

			answer, err := calendar.Assist(ctx, key.Entity, "", "what is on my calendar?", "UTC")
			Expect(err).NotTo(HaveOccurred())
			Expect(answer).To(Equal("You have a standup on Wednesday."))

			tool := model.Requests()[1].Messages
			Expect(tool[len(tool)-1].Content[0].ToolOutput).To(ContainSubstring("standup"))
		})

		It("needs a model", func() {
			calendar = derive.NewCalendarExtractor(store, nil, nil, nil)
			_, err := calendar.Assist(ctx, key.Entity, "", "list", "UTC")
			var ce *storage.CapabilityError
			Expect(errors.As(err, &ce)).To(BeTrue())
		})
	})
})
