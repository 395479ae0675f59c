package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/dotdir"
)

var _ = Describe("Manager", func() {
	var (
		tmpDir string
		m      *dotdir.Manager
	)

	chdir := func(dir string) {
		orig, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(dir)).To(Succeed())
		DeferCleanup(func() { os.Chdir(orig) })
	}

	BeforeEach(func() {
		var err error
		// Resolve symlinks so results match filepath.Abs (macOS /var).
		tmpDir, err = filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		GinkgoT().Setenv(dotdir.EnvHome, "")
		m = dotdir.NewManager()
	})

	Describe("Target", func() {
		It("creates the override directory", func() {
			dir := filepath.Join(tmpDir, "newdir")
			result, err := m.Target(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(dir))
			Expect(dir).To(BeADirectory())
		})

		It("prefers the override to THREADS_HOME and a local .threads", func() {
			Expect(os.Mkdir(filepath.Join(tmpDir, ".threads"), 0o755)).To(Succeed())
			chdir(tmpDir)
			GinkgoT().Setenv(dotdir.EnvHome, filepath.Join(tmpDir, "home"))

			override := filepath.Join(tmpDir, "override")
			result, err := m.Target(override)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(override))
		})

		It("uses THREADS_HOME before a local .threads", func() {
			Expect(os.Mkdir(filepath.Join(tmpDir, ".threads"), 0o755)).To(Succeed())
			chdir(tmpDir)
			home := filepath.Join(tmpDir, "home")
			GinkgoT().Setenv(dotdir.EnvHome, home)

			result, err := m.Target("")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(home))
			Expect(home).To(BeADirectory())
		})

		It("uses a local .threads when present", func() {
			local := filepath.Join(tmpDir, ".threads")
			Expect(os.Mkdir(local, 0o755)).To(Succeed())
			chdir(tmpDir)

			result, err := m.Target("")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(local))
		})

		It("falls back to a created ~/.threads", func() {
			empty := filepath.Join(tmpDir, "empty")
			Expect(os.Mkdir(empty, 0o755)).To(Succeed())
			chdir(empty)
			GinkgoT().Setenv("HOME", empty)

			result, err := m.Target("")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(filepath.Join(empty, ".threads")))
			Expect(result).To(BeADirectory())
		})
	})

	Describe("Path", func() {
		It("joins a name onto the resolved directory", func() {
			path, err := m.Path(tmpDir, "threads.db")
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(filepath.Join(tmpDir, "threads.db")))
		})
	})
})
