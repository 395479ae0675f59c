package derive_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/derive"
	"github.com/papercomputeco/threads/pkg/llm"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/storage/inmemory"
	"github.com/papercomputeco/threads/pkg/stream"
	testutils "github.com/papercomputeco/threads/pkg/utils/test"
)

var _ = Describe("RememberFact", func() {
	DescribeTable("rule stage",
		func(text, fact string, ok bool) {
			got, matched := derive.RememberFact(text)
			Expect(matched).To(Equal(ok))
			Expect(got).To(Equal(fact))
		},
		Entry("colon form", "remember: my favorite color is blue", "my favorite color is blue", true),
		Entry("case insensitive", "Remember: I live in Lisbon", "I live in Lisbon", true),
		Entry("russian marker", "Запомни: я люблю чай", "я люблю чай", true),
		Entry("no colon keeps the text", "remember the milk", "remember the milk", true),
		Entry("only the first colon splits", "remember: meeting at 10:30", "meeting at 10:30", true),
		Entry("marker not at the start", "please remember: x", "", false),
		Entry("empty fact", "remember:   ", "", false),
	)
})

var _ = Describe("FactExtractor", func() {
	var (
		ctx    context.Context
		store  *inmemory.Driver
		key    stream.Key
		model  *testutils.ScriptedLLM
		runner *derive.Runner
		facts  *derive.FactExtractor
	)

	appendUser := func(text string) {
		_, err := store.Append(ctx, key, stream.NewTextMessage(stream.RoleUser, text))
		Expect(err).NotTo(HaveOccurred())
	}

	storedFacts := func() []string {
		f, err := store.Facts(ctx, key.Entity)
		Expect(err).NotTo(HaveOccurred())
		return f
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		key = stream.DefaultKey(stream.Entity{Company: "acme", ID: "u1"})
		model = testutils.NewScriptedLLM()
		runner = derive.NewRunner(&derive.RunnerConfig{Streams: store, Cursors: store})
		facts = derive.NewFactExtractor(store, model, nil, nil)
	})

	It("stores a remembered fact without calling the model", func() {
		appendUser("remember: my favorite color is blue")

		_, err := runner.Run(ctx, facts, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(storedFacts()).To(Equal([]string{"my favorite color is blue"}))
		Expect(model.Requests()).To(BeEmpty())
	})

	It("ignores assistant messages", func() {
		_, err := store.Append(ctx, key, stream.NewTextMessage(stream.RoleAssistant, "remember: nope"))
		Expect(err).NotTo(HaveOccurred())

		_, err = runner.Run(ctx, facts, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(storedFacts()).To(BeEmpty())
		Expect(model.Requests()).To(BeEmpty())
	})

	It("falls back to the model for other messages", func() {
		model.Script = []*llm.ChatResponse{
			testutils.ToolCallResponse("add_fact", map[string]any{"fact": "has a cat named Tom"}),
			testutils.TextResponse("ok"),
		}
		appendUser("my cat is called Tom")

		_, err := runner.Run(ctx, facts, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(storedFacts()).To(Equal([]string{"has a cat named Tom"}))

		reqs := model.Requests()
		Expect(reqs).To(HaveLen(2))
		Expect(reqs[0].Tools).To(HaveLen(3))
		Expect(reqs[0].System).To(ContainSubstring("Extract fact command"))
	})

	It("deletes facts through the model", func() {
		_, err := store.AddFacts(ctx, key.Entity, "likes tea", "lives in Lisbon")
		Expect(err).NotTo(HaveOccurred())
		model.Script = []*llm.ChatResponse{
			testutils.ToolCallResponse("list_facts", map[string]any{}),
			testutils.ToolCallResponse("delete_fact", map[string]any{"fact": "likes tea"}),
			testutils.TextResponse(""),
		}
		appendUser("I do not drink tea anymore")

		_, err = runner.Run(ctx, facts, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(storedFacts()).To(Equal([]string{"lives in Lisbon"}))
	})

	It("abandons the whole batch when the model fails", func() {
		model.Err = errors.New("provider down")
		appendUser("remember: first")
		appendUser("something else")

		_, err := runner.Run(ctx, facts, key)
		var ce *storage.CapabilityError
		Expect(errors.As(err, &ce)).To(BeTrue())
		Expect(ce.Capability).To(Equal("llm"))

		Expect(storedFacts()).To(BeEmpty())
		cursor, _ := store.Cursor(ctx, key.Entity, derive.KindFacts)
		Expect(cursor).To(BeNil())

		model.Err = nil
		_, err = runner.Run(ctx, facts, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(storedFacts()).To(Equal([]string{"first"}))
	})

	It("caps tool call round trips", func() {
		model.Fallback = testutils.ToolCallResponse("list_facts", map[string]any{})
		appendUser("what do you know about me")

		_, err := runner.Run(ctx, facts, key)
		Expect(errors.Is(err, llm.ErrToolLoop)).To(BeTrue())
		Expect(model.Requests()).To(HaveLen(5))
	})

	It("runs only the rule stage without a model", func() {
		facts = derive.NewFactExtractor(store, nil, nil, nil)
		appendUser("my cat is called Tom")
		appendUser("remember: the cat is grey")

		_, err := runner.Run(ctx, facts, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(storedFacts()).To(Equal([]string{"the cat is grey"}))
	})

	It("produces the same fact set when a batch is replayed", func() {
		appendUser("remember: a")
		appendUser("remember: b")
		entries, err := store.ReadRange(ctx, key, nil, nil, 0)
		Expect(err).NotTo(HaveOccurred())

		for range 2 {
			commit, err := facts.Apply(ctx, key, entries)
			Expect(err).NotTo(HaveOccurred())
			Expect(commit(ctx)).To(Succeed())
		}
		Expect(storedFacts()).To(Equal([]string{"a", "b"}))
	})
})
