package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/cliui"
)

var _ = Describe("FormatDuration", func() {
	It("uses milliseconds below a second", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
	})

	It("uses seconds with one decimal above a second", func() {
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})
})

var _ = Describe("Step", func() {
	It("reports success on a single line when not on a terminal", func() {
		var buf bytes.Buffer
		Expect(cliui.Step(&buf, "asking the assistant", func() error { return nil })).To(Succeed())

		Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
		Expect(buf.String()).To(ContainSubstring("asking the assistant"))
		Expect(buf.String()).NotTo(ContainSubstring("⣾"))
	})

	It("returns the error of fn and marks the failure", func() {
		var buf bytes.Buffer
		boom := errors.New("boom")

		err := cliui.Step(&buf, "connecting", func() error { return boom })
		Expect(err).To(MatchError(boom))
		Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
	})
})

var _ = Describe("RenderMarkdown", func() {
	It("keeps the text of the source", func() {
		out, err := cliui.RenderMarkdown("# Summary\n\nAlice prefers **tea**.")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Alice prefers"))
		Expect(out).To(ContainSubstring("tea"))
	})
})
