package sqlitepath

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ResolveSQLitePath", func() {
	var (
		homeDir string
		cwdDir  string
	)

	BeforeEach(func() {
		origCwd, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			Expect(os.Chdir(origCwd)).To(Succeed())
		})

		homeDir = GinkgoT().TempDir()
		cwdDir = GinkgoT().TempDir()
		GinkgoT().Setenv("HOME", homeDir)
		GinkgoT().Setenv("XDG_DATA_HOME", "")
		GinkgoT().Setenv("THREADS_DB", "")
		Expect(os.Chdir(cwdDir)).To(Succeed())
	})

	It("returns the override untouched", func() {
		path, err := ResolveSQLitePath("/srv/threads.db", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/srv/threads.db"))
	})

	It("prefers THREADS_DB when set", func() {
		GinkgoT().Setenv("THREADS_DB", "/tmp/custom.db")

		path, err := ResolveSQLitePath("", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/tmp/custom.db"))
	})

	It("finds an existing database under ~/.threads", func() {
		dbPath := filepath.Join(homeDir, ".threads", "threads.db")
		Expect(os.MkdirAll(filepath.Dir(dbPath), 0o755)).To(Succeed())
		Expect(os.WriteFile(dbPath, []byte("test"), 0o644)).To(Succeed())

		path, err := ResolveSQLitePath("", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(dbPath))
	})

	It("falls back to the config directory", func() {
		configDir := filepath.Join(cwdDir, "conf")

		path, err := ResolveSQLitePath("", configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(HaveSuffix(filepath.Join("conf", "threads.db")))
		Expect(filepath.Dir(path)).To(BeADirectory())
	})
})
