// Package vectortest holds ginkgo specs shared by every vector.Driver.
package vectortest

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/vector"
)

// Dimensions is the embedding size the shared specs use.
const Dimensions = 4

// Factory opens a fresh, empty driver for Dimensions sized embeddings.
type Factory func() vector.Driver

func ids(results []vector.QueryResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

// DriverBehaviour registers the shared driver specs.
func DriverBehaviour(open Factory) {
	var (
		driver vector.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = open()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
			driver = nil
		}
	})

	add := func(docs ...vector.Document) {
		Expect(driver.Add(ctx, docs)).To(Succeed())
	}

	It("returns the nearest documents first", func() {
		add(
			vector.Document{ID: "1-0", Namespace: "acme/u1", Embedding: []float32{1, 0, 0, 0}},
			vector.Document{ID: "2-0", Namespace: "acme/u1", Embedding: []float32{0.9, 0.1, 0, 0}},
			vector.Document{ID: "3-0", Namespace: "acme/u1", Embedding: []float32{0, 0, 1, 0}},
		)

		results, err := driver.Query(ctx, vector.Query{Namespace: "acme/u1", Embedding: []float32{1, 0, 0, 0}, TopK: 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(results)).To(Equal([]string{"1-0", "2-0"}))
		Expect(results[0].Score).To(BeNumerically(">=", results[1].Score))
	})

	It("never returns documents of another namespace", func() {
		add(
			vector.Document{ID: "1-0", Namespace: "acme/u1", Embedding: []float32{1, 0, 0, 0}},
			vector.Document{ID: "1-0", Namespace: "globex/u1", Embedding: []float32{1, 0, 0, 0}},
			vector.Document{ID: "9-0", Namespace: "globex/u1", Embedding: []float32{1, 0.1, 0, 0}},
		)

		results, err := driver.Query(ctx, vector.Query{Namespace: "acme/u1", Embedding: []float32{1, 0, 0, 0}, TopK: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(results)).To(Equal([]string{"1-0"}))
		Expect(results[0].Namespace).To(Equal("acme/u1"))
	})

	It("filters by tag", func() {
		add(
			vector.Document{ID: "1-0", Namespace: "acme/u1", Embedding: []float32{1, 0, 0, 0}},
			vector.Document{ID: "2-0", Namespace: "acme/u1", Tags: []string{"travel"}, Embedding: []float32{0, 1, 0, 0}},
		)

		results, err := driver.Query(ctx, vector.Query{Namespace: "acme/u1", Embedding: []float32{1, 0, 0, 0}, TopK: 1, Tag: "travel"})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(results)).To(Equal([]string{"2-0"}))
		Expect(results[0].Tags).To(ConsistOf("travel"))
	})

	It("replaces a document re-added with new tags", func() {
		add(vector.Document{ID: "1-0", Namespace: "acme/u1", Embedding: []float32{1, 0, 0, 0}})
		add(vector.Document{ID: "1-0", Namespace: "acme/u1", Tags: []string{"food"}, Embedding: []float32{1, 0, 0, 0}})

		results, err := driver.Query(ctx, vector.Query{Namespace: "acme/u1", Embedding: []float32{1, 0, 0, 0}, TopK: 5})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(results)).To(Equal([]string{"1-0"}))

		results, err = driver.Query(ctx, vector.Query{Namespace: "acme/u1", Embedding: []float32{1, 0, 0, 0}, TopK: 5, Tag: "food"})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(results)).To(Equal([]string{"1-0"}))
	})

	It("deletes documents", func() {
		add(
			vector.Document{ID: "1-0", Namespace: "acme/u1", Embedding: []float32{1, 0, 0, 0}},
			vector.Document{ID: "2-0", Namespace: "acme/u1", Embedding: []float32{0, 1, 0, 0}},
		)
		Expect(driver.Delete(ctx, "acme/u1", []string{"1-0"})).To(Succeed())

		results, err := driver.Query(ctx, vector.Query{Namespace: "acme/u1", Embedding: []float32{1, 0, 0, 0}, TopK: 5})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(results)).To(Equal([]string{"2-0"}))
	})

	It("returns nothing for an empty namespace", func() {
		results, err := driver.Query(ctx, vector.Query{Namespace: "acme/nobody", Embedding: []float32{1, 0, 0, 0}})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("rejects embeddings of the wrong size", func() {
		err := driver.Add(ctx, []vector.Document{{ID: "1-0", Namespace: "acme/u1", Embedding: []float32{1, 0}}})
		Expect(err).To(HaveOccurred())
	})
}
