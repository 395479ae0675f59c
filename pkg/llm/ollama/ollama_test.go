package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/llm"
	"github.com/papercomputeco/threads/pkg/llm/ollama"
)

var _ = Describe("Ollama Client", func() {
	var (
		server   *httptest.Server
		received map[string]any
		response string
		client   *ollama.Client
	)

	BeforeEach(func() {
		received = nil
		response = `{"model": "llama3.2", "message": {"role": "assistant", "content": "Hi"}, "done": true, "prompt_eval_count": 3, "eval_count": 2}`
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/chat"))
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
			_, _ = w.Write([]byte(response))
		}))

		var err error
		client, err = ollama.New(ollama.Config{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("disables streaming and parses text replies", func() {
		resp, err := client.Chat(context.Background(), &llm.ChatRequest{
			Messages: []llm.Message{llm.NewTextMessage("user", "hello")},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Message.GetText()).To(Equal("Hi"))
		Expect(resp.StopReason).To(Equal("stop"))
		Expect(resp.Usage.TotalTokens).To(Equal(5))

		Expect(received).To(HaveKeyWithValue("stream", false))
		Expect(received).To(HaveKeyWithValue("model", ollama.DefaultModel))
	})

	It("assigns IDs to tool calls that lack them", func() {
		response = `{"model": "llama3.2", "done": true, "message": {"role": "assistant", "content": "",
			"tool_calls": [{"function": {"name": "add_event", "arguments": {"text": "dentist"}}}]}}`

		resp, err := client.Chat(context.Background(), &llm.ChatRequest{
			Tools: []llm.Tool{{Name: "add_event"}},
		})
		Expect(err).NotTo(HaveOccurred())

		calls := resp.Message.ToolCalls()
		Expect(calls).To(HaveLen(1))
		Expect(calls[0].ID).To(Equal("call_0"))
		Expect(calls[0].String("text")).To(Equal("dentist"))
		Expect(received["tools"]).To(HaveLen(1))
	})

	It("surfaces API errors", func() {
		response = `{"error": "model not found"}`

		_, err := client.Chat(context.Background(), &llm.ChatRequest{})
		Expect(err).To(MatchError(llm.ErrCompletion))
		Expect(err.Error()).To(ContainSubstring("model not found"))
	})
})
