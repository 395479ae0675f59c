package hnsw_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/logger"
	"github.com/papercomputeco/threads/pkg/vector"
	"github.com/papercomputeco/threads/pkg/vector/hnsw"
	"github.com/papercomputeco/threads/pkg/vector/vectortest"
)

var _ = Describe("HNSW Driver", func() {
	vectortest.DriverBehaviour(func() vector.Driver {
		return hnsw.New(vectortest.Dimensions, logger.Nop())
	})

	It("adopts the size of the first embedding when unsized", func() {
		driver := hnsw.New(0, logger.Nop())
		ctx := context.Background()

		Expect(driver.Add(ctx, []vector.Document{{ID: "1-0", Namespace: "n", Embedding: []float32{1, 0}}})).To(Succeed())
		Expect(driver.Add(ctx, []vector.Document{{ID: "2-0", Namespace: "n", Embedding: []float32{1, 0, 0}}})).
			To(MatchError(vector.ErrDimensions))
	})
})
