package sqlitevec_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/logger"
	"github.com/papercomputeco/threads/pkg/vector"
	"github.com/papercomputeco/threads/pkg/vector/sqlitevec"
	"github.com/papercomputeco/threads/pkg/vector/vectortest"
)

var _ = Describe("SQLiteVecDriver", func() {
	Describe("NewSQLiteVecDriver", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{DBPath: ""}, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("database path is required")))
		})

		It("should error when dimension not specified", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{DBPath: ":memory:"}, logger.Nop())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Interface compliance", func() {
		It("should implement vector.Driver interface", func() {
			var _ vector.Driver = (*sqlitevec.SQLiteVecDriver)(nil)
		})
	})

	Describe("behaviour", func() {
		vectortest.DriverBehaviour(func() vector.Driver {
			driver, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath:     ":memory:",
				Dimensions: vectortest.Dimensions,
			}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			return driver
		})
	})

	It("persists documents across reopen", func() {
		path := filepath.Join(GinkgoT().TempDir(), "vectors.db")
		cfg := sqlitevec.Config{DBPath: path, Dimensions: vectortest.Dimensions}

		driver, err := sqlitevec.NewSQLiteVecDriver(cfg, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(driver.Add(context.Background(), []vector.Document{
			{ID: "1-0", Namespace: "acme/u1", Tags: []string{"a"}, Embedding: []float32{0, 0, 1, 0}},
		})).To(Succeed())
		Expect(driver.Close()).To(Succeed())

		driver, err = sqlitevec.NewSQLiteVecDriver(cfg, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		results, err := driver.Query(context.Background(), vector.Query{Namespace: "acme/u1", Embedding: []float32{0, 0, 1, 0}})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Tags).To(Equal([]string{"a"}))
	})
})
