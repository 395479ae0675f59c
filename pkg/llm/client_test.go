package llm_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/llm"
	testutils "github.com/papercomputeco/threads/pkg/utils/test"
)

var _ = Describe("RunTools", func() {
	var (
		ctx   context.Context
		req   *llm.ChatRequest
		calls []llm.ToolCall
	)

	handler := func(_ context.Context, call llm.ToolCall) (string, error) {
		calls = append(calls, call)
		if call.Name == "broken" {
			return "", errors.New("nope")
		}
		return "ok", nil
	}

	BeforeEach(func() {
		ctx = context.Background()
		calls = nil
		req = &llm.ChatRequest{
			Messages: []llm.Message{llm.NewTextMessage("user", "remember I like tea")},
			Tools:    []llm.Tool{{Name: "add_fact"}},
		}
	})

	It("returns immediately when no tool is called", func() {
		client := testutils.NewScriptedLLM(testutils.TextResponse("done"))

		resp, err := llm.RunTools(ctx, client, req, handler, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Message.GetText()).To(Equal("done"))
		Expect(calls).To(BeEmpty())
	})

	It("executes calls and feeds results back", func() {
		client := testutils.NewScriptedLLM(
			testutils.ToolCallResponse("add_fact", map[string]any{"fact": "likes tea"}),
			testutils.TextResponse("stored"),
		)

		resp, err := llm.RunTools(ctx, client, req, handler, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Message.GetText()).To(Equal("stored"))
		Expect(calls).To(HaveLen(1))
		Expect(calls[0].String("fact")).To(Equal("likes tea"))

		requests := client.Requests()
		Expect(requests).To(HaveLen(2))
		last := requests[1].Messages
		Expect(last).To(HaveLen(3))
		Expect(last[2].Role).To(Equal("tool"))
		Expect(last[2].Content[0].ToolOutput).To(Equal("ok"))
	})

	It("reports handler errors to the model", func() {
		client := testutils.NewScriptedLLM(
			testutils.ToolCallResponse("broken", map[string]any{}),
			testutils.TextResponse("sorry"),
		)

		_, err := llm.RunTools(ctx, client, req, handler, 3)
		Expect(err).NotTo(HaveOccurred())

		last := client.Requests()[1].Messages
		Expect(last[2].Content[0].IsError).To(BeTrue())
		Expect(last[2].Content[0].ToolOutput).To(Equal("nope"))
	})

	It("stops after the iteration cap", func() {
		client := testutils.NewScriptedLLM()
		client.Fallback = testutils.ToolCallResponse("add_fact", map[string]any{"fact": "x"})

		_, err := llm.RunTools(ctx, client, req, handler, 2)
		Expect(err).To(MatchError(llm.ErrToolLoop))
		Expect(calls).To(HaveLen(2))
		Expect(client.Requests()).To(HaveLen(3))
	})

	It("does not mutate the caller's request", func() {
		client := testutils.NewScriptedLLM(
			testutils.ToolCallResponse("add_fact", map[string]any{"fact": "x"}),
			testutils.TextResponse("ok"),
		)

		_, err := llm.RunTools(ctx, client, req, handler, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Messages).To(HaveLen(1))
	})

	It("propagates client errors", func() {
		client := testutils.NewScriptedLLM()
		client.Err = llm.ErrCompletion

		_, err := llm.RunTools(ctx, client, req, handler, 2)
		Expect(err).To(MatchError(llm.ErrCompletion))
	})
})

var _ = Describe("ToolCall", func() {
	call := llm.ToolCall{Arguments: map[string]any{
		"text":    "hi",
		"index":   float64(2),
		"score":   0.75,
		"keep":    []any{float64(0), float64(3), "x"},
		"tags":    []any{"go", 1, "db"},
		"numeric": float64(12),
	}}

	It("reads typed arguments", func() {
		Expect(call.String("text")).To(Equal("hi"))
		Expect(call.String("numeric")).To(Equal("12"))
		Expect(call.String("missing")).To(BeEmpty())

		n, ok := call.Int("index")
		Expect(ok).To(BeTrue())
		Expect(n).To(Equal(2))

		_, ok = call.Int("text")
		Expect(ok).To(BeFalse())

		f, ok := call.Float("score")
		Expect(ok).To(BeTrue())
		Expect(f).To(Equal(0.75))

		Expect(call.Ints("keep")).To(Equal([]int{0, 3}))
		Expect(call.Strings("tags")).To(Equal([]string{"go", "db"}))
	})
})

var _ = Describe("ChatResponse", func() {
	It("trims the reply text", func() {
		resp := &llm.ChatResponse{Message: llm.NewTextMessage("assistant", "  Alice likes tea.\n")}
		Expect(resp.Text()).To(Equal("Alice likes tea."))
		Expect(resp.Truncated()).To(BeFalse())
	})

	It("reports a reply cut off by the token limit", func() {
		resp := &llm.ChatResponse{StopReason: llm.StopLength}
		Expect(resp.Truncated()).To(BeTrue())
	})
})
