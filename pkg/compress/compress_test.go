package compress_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/compress"
	"github.com/papercomputeco/threads/pkg/stream"
)

var _ = Describe("Codec", func() {
	var codec *compress.Codec

	BeforeEach(func() {
		var err error
		codec, err = compress.NewCodec(compress.AlgorithmGzip, 20, 5)
		Expect(err).NotTo(HaveOccurred())
	})

	It("round-trips long low importance text exactly", func() {
		original := strings.Repeat("привет, мир! hello world ", 10)
		msg := stream.NewTextMessage(stream.RoleUser, original)

		Expect(codec.Maybe(&msg)).To(Succeed())
		Expect(msg.Content).NotTo(Equal(original))
		Expect(msg.Compressed()).To(BeTrue())
		Expect(msg.ExtraString(stream.ExtraCompressAlgo)).To(Equal(compress.AlgorithmGzip))

		Expect(codec.Restore(&msg)).To(Succeed())
		Expect(msg.Content).To(Equal(original))
		Expect(msg.Compressed()).To(BeFalse())
	})

	It("leaves short text alone", func() {
		msg := stream.NewTextMessage(stream.RoleUser, "short")
		Expect(codec.Maybe(&msg)).To(Succeed())
		Expect(msg.Content).To(Equal("short"))
		Expect(msg.Extra).To(BeNil())
	})

	It("leaves important text alone", func() {
		original := strings.Repeat("keep me readable ", 10)
		msg := stream.NewTextMessage(stream.RoleUser, original)
		msg.Importance = 5
		Expect(codec.Maybe(&msg)).To(Succeed())
		Expect(msg.Content).To(Equal(original))
	})

	It("leaves non-text messages alone", func() {
		msg := stream.Message{Role: stream.RoleUser, Type: stream.TypeImage, Content: strings.Repeat("x", 100)}
		Expect(codec.Maybe(&msg)).To(Succeed())
		Expect(msg.Compressed()).To(BeFalse())
	})

	It("decodes with the recorded algorithm even if the default changed", func() {
		original := strings.Repeat("stored without gzip ", 5)
		plain, err := compress.NewCodec(compress.AlgorithmNone, 20, 5)
		Expect(err).NotTo(HaveOccurred())

		msg := stream.NewTextMessage(stream.RoleUser, original)
		Expect(plain.Maybe(&msg)).To(Succeed())

		Expect(codec.Restore(&msg)).To(Succeed())
		Expect(msg.Content).To(Equal(original))
	})

	It("falls back across known algorithms for untagged legacy entries", func() {
		original := strings.Repeat("legacy ", 10)
		encoded, err := compress.Encode(original, compress.AlgorithmNone)
		Expect(err).NotTo(HaveOccurred())

		msg := stream.NewTextMessage(stream.RoleUser, encoded)
		msg.SetExtra(stream.ExtraCompressed, true)

		Expect(codec.Restore(&msg)).To(Succeed())
		Expect(msg.Content).To(Equal(original))
	})

	It("reports undecodable content and leaves it unchanged", func() {
		msg := stream.NewTextMessage(stream.RoleUser, "%%% not base64 %%%")
		msg.SetExtra(stream.ExtraCompressed, true)
		msg.SetExtra(stream.ExtraCompressAlgo, compress.AlgorithmGzip)

		Expect(codec.Restore(&msg)).To(HaveOccurred())
		Expect(msg.Content).To(Equal("%%% not base64 %%%"))
	})

	It("round-trips with zstd", func() {
		zc, err := compress.NewCodec(compress.AlgorithmZstd, 20, 5)
		Expect(err).NotTo(HaveOccurred())

		original := strings.Repeat("zstd frames are smaller ", 20)
		msg := stream.NewTextMessage(stream.RoleUser, original)
		Expect(zc.Maybe(&msg)).To(Succeed())
		Expect(msg.ExtraString(stream.ExtraCompressAlgo)).To(Equal(compress.AlgorithmZstd))
		Expect(len(msg.Content)).To(BeNumerically("<", len(original)))

		Expect(codec.Restore(&msg)).To(Succeed())
		Expect(msg.Content).To(Equal(original))
	})

	It("finds zstd content among legacy candidates", func() {
		original := strings.Repeat("untagged zstd ", 10)
		encoded, err := compress.Encode(original, compress.AlgorithmZstd)
		Expect(err).NotTo(HaveOccurred())

		msg := stream.NewTextMessage(stream.RoleUser, encoded)
		msg.SetExtra(stream.ExtraCompressed, true)

		Expect(codec.Restore(&msg)).To(Succeed())
		Expect(msg.Content).To(Equal(original))
	})

	It("rejects unknown algorithms", func() {
		_, err := compress.NewCodec("lz4", 0, 0)
		Expect(err).To(MatchError(compress.ErrUnknownAlgorithm))
	})
})
