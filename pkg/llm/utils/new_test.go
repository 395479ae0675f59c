package llmutils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/llm/ollama"
	"github.com/papercomputeco/threads/pkg/llm/openai"
	llmutils "github.com/papercomputeco/threads/pkg/llm/utils"
)

var _ = Describe("NewClient", func() {
	It("builds an ollama client", func() {
		c, err := llmutils.NewClient(&llmutils.NewClientOpts{ProviderType: "ollama"})
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeAssignableToTypeOf(&ollama.Client{}))
	})

	It("builds an openai client", func() {
		c, err := llmutils.NewClient(&llmutils.NewClientOpts{ProviderType: "openai", APIKey: "sk"})
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeAssignableToTypeOf(&openai.Client{}))
	})

	It("rejects unknown providers", func() {
		_, err := llmutils.NewClient(&llmutils.NewClientOpts{ProviderType: "bard"})
		Expect(err).To(HaveOccurred())
	})
})
