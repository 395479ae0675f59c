package embeddings_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/embeddings"
)

type single struct{ calls int }

func (s *single) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if text == "" {
		return nil, errors.New("empty")
	}
	return []float32{float32(len(text))}, nil
}

func (s *single) Close() error { return nil }

type batch struct {
	single
	out [][]float32
}

func (b *batch) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return b.out, nil
}

var _ = Describe("EmbedAll", func() {
	It("embeds one text at a time without batch support", func() {
		e := &single{}
		out, err := embeddings.EmbedAll(context.Background(), e, []string{"a", "bcd"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([][]float32{{1}, {3}}))
		Expect(e.calls).To(Equal(2))
	})

	It("stops at the first failure", func() {
		_, err := embeddings.EmbedAll(context.Background(), &single{}, []string{"a", ""})
		Expect(err).To(MatchError("empty"))
	})

	It("uses a single batch call when supported", func() {
		e := &batch{out: [][]float32{{1}, {2}}}
		out, err := embeddings.EmbedAll(context.Background(), e, []string{"a", "b"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(2))
		Expect(e.calls).To(BeZero())
	})

	It("rejects a batch of the wrong size", func() {
		e := &batch{out: [][]float32{{1}}}
		_, err := embeddings.EmbedAll(context.Background(), e, []string{"a", "b"})
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
	})

	It("returns nothing for no input", func() {
		out, err := embeddings.EmbedAll(context.Background(), &single{}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeEmpty())
	})
})
