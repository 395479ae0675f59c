package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/papercomputeco/threads/pkg/history"
	"github.com/papercomputeco/threads/pkg/logger"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/storage/inmemory"
	"github.com/papercomputeco/threads/pkg/stream"
	"github.com/papercomputeco/threads/pkg/tenant"
	"github.com/papercomputeco/threads/pkg/usage"
	testutils "github.com/papercomputeco/threads/pkg/utils/test"
	"github.com/papercomputeco/threads/pkg/vector"
)

func resultText(res *mcp.CallToolResult) string {
	Expect(res.Content).To(HaveLen(1))
	text, ok := res.Content[0].(*mcp.TextContent)
	Expect(ok).To(BeTrue())
	return text.Text
}

var _ = Describe("Tools", func() {
	var (
		ctx      context.Context
		store    *inmemory.Driver
		vectors  *testutils.MockVectorDriver
		embedder *testutils.MockEmbedder
		entity   stream.Entity
		t        *tools
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		tenants := tenant.New(store, tenant.WithBcryptCost(bcrypt.MinCost))
		meter := usage.NewMeter(store, store, storage.Pricing{}, nil)
		vectors = testutils.NewMockVectorDriver()
		embedder = testutils.NewMockEmbedder()

		_, err := tenants.RegisterCompany(ctx, tenant.CompanyRegistration{Name: "acme", Password: "pw"})
		Expect(err).NotTo(HaveOccurred())
		_, err = tenants.RegisterUser(ctx, "u1", "pw", "acme")
		Expect(err).NotTo(HaveOccurred())
		u, err := store.User(ctx, "acme", "u1")
		Expect(err).NotTo(HaveOccurred())
		entity = u.Entity()

		t = &tools{
			user: u,
			reconciler: history.NewReconciler(&history.ReconcilerConfig{
				Store:    store,
				Tenants:  tenants,
				Meter:    meter,
				Embedder: embedder,
				Vectors:  vectors,
			}),
			manager: history.NewManager(store, tenants, nil, nil),
			logger:  logger.Nop(),
		}
	})

	appendText := func(chat, content string) stream.EntryID {
		id, err := store.Append(ctx, stream.ChatKey(entity, chat), stream.NewTextMessage(stream.RoleUser, content))
		Expect(err).NotTo(HaveOccurred())
		return id
	}

	Describe("history", func() {
		It("returns the caller's messages oldest first", func() {
			first := appendText("", "one")
			appendText("", "two")
			appendText("other", "elsewhere")

			res, out, err := t.handleHistory(ctx, nil, HistoryInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(out.Messages).To(HaveLen(2))
			Expect(out.Messages[0].ID).To(Equal(first.String()))
			Expect(out.Messages[0].Content).To(Equal("one"))
			Expect(resultText(res)).To(ContainSubstring(`"content":"two"`))
		})

		It("reads a named chat", func() {
			appendText("other", "elsewhere")

			_, out, err := t.handleHistory(ctx, nil, HistoryInput{ChatID: "other"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Messages).To(HaveLen(1))
			Expect(out.Messages[0].Content).To(Equal("elsewhere"))
		})
	})

	Describe("context", func() {
		It("includes facts and never returns a nil relevant list", func() {
			appendText("", "hello")
			_, err := store.AddFacts(ctx, entity, "likes tea")
			Expect(err).NotTo(HaveOccurred())

			res, out, err := t.handleContext(ctx, nil, ContextInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(out.Messages).To(HaveLen(1))
			Expect(out.Relevant).NotTo(BeNil())
			Expect(out.Facts).To(Equal("likes tea"))
		})
	})

	Describe("search", func() {
		It("requires a query", func() {
			res, _, err := t.handleSearch(ctx, nil, SearchInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(resultText(res)).To(Equal("query is required"))
		})

		It("returns the nearest entries of the caller's stream", func() {
			id := appendText("", "I drink tea every morning")
			key := stream.ChatKey(entity, "")
			vectors.Results = []vector.QueryResult{{
				Document: vector.Document{ID: id.String(), Namespace: key.String()},
				Score:    0.9,
			}}

			res, out, err := t.handleSearch(ctx, nil, SearchInput{Query: "tea"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(out.Count).To(Equal(1))
			Expect(out.Results[0].Content).To(Equal("I drink tea every morning"))
			Expect(embedder.Calls()).To(ConsistOf("tea"))
		})
	})

	Describe("facts", func() {
		It("lists an empty set as an empty list", func() {
			res, out, err := t.handleFacts(ctx, nil, FactsInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Facts).NotTo(BeNil())
			Expect(resultText(res)).To(Equal(`{"facts":[]}`))
		})
	})

	Describe("calendar", func() {
		It("renders events in their own time zone", func() {
			at := time.Date(2025, 3, 11, 17, 0, 0, 0, time.UTC)
			_, err := store.AddEvent(ctx, storage.CalendarEvent{
				Entity: entity, At: at, Text: "dinner", TZ: "Europe/Berlin",
			})
			Expect(err).NotTo(HaveOccurred())

			_, out, err := t.handleCalendar(ctx, nil, CalendarInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Events).To(HaveLen(1))
			Expect(out.Events[0].When).To(Equal("2025-03-11T18:00:00+01:00"))
			Expect(out.Events[0].Text).To(Equal("dinner"))
		})

		It("filters notified events when asked", func() {
			e, err := store.AddEvent(ctx, storage.CalendarEvent{
				Entity: entity, At: time.Now().Add(-time.Hour), Text: "past", TZ: "UTC",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(store.MarkNotified(ctx, e.ID)).To(Succeed())

			_, out, err := t.handleCalendar(ctx, nil, CalendarInput{Pending: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Events).To(BeEmpty())
		})
	})
})
