package servecmder

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/config"
	"github.com/papercomputeco/threads/pkg/logger"
)

func offlineConfig(dir string) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Storage.Driver = "memory"
	cfg.Embedding.Provider = providerNone
	cfg.VectorStore.Provider = providerNone
	cfg.LLM.Provider = providerNone
	cfg.Blob.LocalDir = filepath.Join(dir, "blobs")
	return cfg
}

var _ = Describe("NewServeCmd", func() {
	It("registers every serve flag", func() {
		cmd := NewServeCmd()
		for _, def := range config.ServeFlags {
			Expect(cmd.Flags().Lookup(def.Name)).NotTo(BeNil(), def.Name)
		}
		Expect(cmd.Flags().Lookup("admin-key")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("log-file")).NotTo(BeNil())
	})
})

var _ = Describe("newStack", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("builds an offline stack", func() {
		st, err := newStack(context.Background(), offlineConfig(dir), stackOptions{
			ConfigDir: dir,
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		defer st.Close()

		Expect(st.server).NotTo(BeNil())
		Expect(st.scheduler).NotTo(BeNil())
		Expect(st.policy.TriggerEvery()).To(Equal(10))
		Expect(filepath.Join(dir, "blobs")).To(BeADirectory())
	})

	It("builds an in-process vector index", func() {
		cfg := offlineConfig(dir)
		cfg.Embedding.Provider = "ollama"
		cfg.VectorStore.Provider = "memory"

		st, err := newStack(context.Background(), cfg, stackOptions{
			ConfigDir: dir,
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		st.Close()
	})

	It("rejects an unknown storage driver", func() {
		cfg := offlineConfig(dir)
		cfg.Storage.Driver = "cassette"

		_, err := newStack(context.Background(), cfg, stackOptions{
			ConfigDir: dir,
			Logger:    logger.Nop(),
		})
		Expect(err).To(MatchError(ContainSubstring("unsupported storage driver")))
	})

	It("requires a DSN for postgres", func() {
		cfg := offlineConfig(dir)
		cfg.Storage.Driver = "postgres"

		_, err := newStack(context.Background(), cfg, stackOptions{
			ConfigDir: dir,
			Logger:    logger.Nop(),
		})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("reloadPolicy", func() {
	It("applies trigger and threshold from the config file", func() {
		dir := GinkgoT().TempDir()
		st, err := newStack(context.Background(), offlineConfig(dir), stackOptions{
			ConfigDir: dir,
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		defer st.Close()

		toml := "[derivation]\ntrigger_every = 3\nsummary_threshold = 500\n"
		Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o600)).To(Succeed())

		v, err := config.InitViper(dir)
		Expect(err).NotTo(HaveOccurred())

		reloadPolicy(v, st, logger.Nop(), "config.toml")
		Expect(st.policy.TriggerEvery()).To(Equal(3))
		Expect(st.policy.SummaryThreshold()).To(Equal(500))
		Expect(st.policy.SummaryWindow()).To(Equal(100))
	})
})
