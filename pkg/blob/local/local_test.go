package local_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/blob/local"
)

var _ = Describe("Local Store", func() {
	var (
		dir   string
		store *local.Store
	)

	BeforeEach(func() {
		dir = filepath.Join(GinkgoT().TempDir(), "blobs")

		var err error
		store, err = local.New(dir, "http://localhost:8080/blobs/")
		Expect(err).NotTo(HaveOccurred())
	})

	It("writes the data and returns its URL", func() {
		url, err := store.Put(context.Background(), []byte("png bytes"), "acme/u1/x.png", "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(url).To(Equal("http://localhost:8080/blobs/acme/u1/x.png"))

		data, err := os.ReadFile(filepath.Join(dir, "acme", "u1", "x.png"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("png bytes"))
	})

	It("rejects keys that escape the directory", func() {
		_, err := store.Put(context.Background(), []byte("x"), "../etc/passwd", "text/plain")
		Expect(err).To(HaveOccurred())
	})

	It("requires a directory", func() {
		_, err := local.New("", "")
		Expect(err).To(HaveOccurred())
	})
})
