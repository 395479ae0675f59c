package blob_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/blob"
)

var _ = Describe("NewKey", func() {
	It("keeps the lowercased extension under the prefix", func() {
		key := blob.NewKey("acme/u1", "Voice.OGG")
		Expect(key).To(HavePrefix("acme/u1/"))
		Expect(key).To(HaveSuffix(".ogg"))
		Expect(strings.TrimSuffix(strings.TrimPrefix(key, "acme/u1/"), ".ogg")).To(HaveLen(26))
	})

	It("returns unique keys", func() {
		Expect(blob.NewKey("", "a.png")).NotTo(Equal(blob.NewKey("", "a.png")))
	})
})
