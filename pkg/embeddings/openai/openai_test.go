package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/embeddings"
	"github.com/papercomputeco/threads/pkg/embeddings/openai"
)

var _ = Describe("OpenAI Embedder", func() {
	var (
		server   *httptest.Server
		received map[string]any
		auth     string
		status   int
		body     string
	)

	BeforeEach(func() {
		received = nil
		auth = ""
		status = http.StatusOK
		body = `{"data": [{"embedding": [1, 0, 0.5]}]}`
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/embeddings"))
			auth = r.Header.Get("Authorization")
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires an api key for the public endpoint", func() {
		_, err := openai.NewEmbedder(openai.EmbedderConfig{})
		Expect(err).To(HaveOccurred())
	})

	It("sends the bearer key, model and dimensions", func() {
		e, err := openai.NewEmbedder(openai.EmbedderConfig{BaseURL: server.URL + "/", APIKey: "sk-test", Dimensions: 3})
		Expect(err).NotTo(HaveOccurred())

		vec, err := e.Embed(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(Equal([]float32{1, 0, 0.5}))
		Expect(auth).To(Equal("Bearer sk-test"))
		Expect(received).To(HaveKeyWithValue("model", openai.DefaultEmbeddingModel))
		Expect(received).To(HaveKeyWithValue("dimensions", BeNumerically("==", 3)))
	})

	It("wraps failures in ErrEmbedding", func() {
		status = http.StatusUnauthorized

		e, err := openai.NewEmbedder(openai.EmbedderConfig{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = e.Embed(context.Background(), "hello")
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
	})

	It("orders a batch by the reported index", func() {
		body = `{"data": [{"index": 1, "embedding": [0, 1]}, {"index": 0, "embedding": [1, 0]}]}`

		e, err := openai.NewEmbedder(openai.EmbedderConfig{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		vecs, err := e.EmbedBatch(context.Background(), []string{"tea", "coffee"})
		Expect(err).NotTo(HaveOccurred())
		Expect(vecs).To(Equal([][]float32{{1, 0}, {0, 1}}))
		Expect(received).To(HaveKeyWithValue("input", Equal([]any{"tea", "coffee"})))
	})

	It("rejects a duplicated index", func() {
		body = `{"data": [{"index": 0, "embedding": [0, 1]}, {"index": 0, "embedding": [1, 0]}]}`

		e, err := openai.NewEmbedder(openai.EmbedderConfig{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = e.EmbedBatch(context.Background(), []string{"tea", "coffee"})
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
	})
})
