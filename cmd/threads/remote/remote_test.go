package remote_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/threads/cmd/threads/remote"
	"github.com/papercomputeco/threads/pkg/dotdir"
)

// resolve parses args on a command carrying the connection flags and
// returns the resolved target.
func resolve(args ...string) (*remote.Target, error) {
	var (
		flags  remote.Flags
		target *remote.Target
	)
	cmd := &cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			target, err = remote.Resolve(cmd)
			return err
		},
	}
	cmd.Flags().String("config-dir", "", "")
	remote.AddFlags(cmd, &flags)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return target, err
}

var _ = Describe("Resolve", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		GinkgoT().Setenv("THREADS_CLIENT_TOKEN", "")
		GinkgoT().Setenv("THREADS_CLIENT_API_TARGET", "")
	})

	It("uses the default target with no session", func() {
		t, err := resolve("--config-dir", dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(t.APITarget).To(Equal("http://localhost:8080"))
		Expect(t.Token).To(BeEmpty())
		Expect(t.Session).To(BeNil())
	})

	It("falls back to the saved session", func() {
		Expect(dotdir.NewManager().SaveSession(&dotdir.Session{
			APITarget: "http://threads.internal:9000",
			Token:     "saved",
			User:      "alice",
			Company:   "acme",
		}, dir)).To(Succeed())

		t, err := resolve("--config-dir", dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(t.APITarget).To(Equal("http://threads.internal:9000"))
		Expect(t.Token).To(Equal("saved"))
	})

	It("prefers explicit flags over the session", func() {
		Expect(dotdir.NewManager().SaveSession(&dotdir.Session{
			APITarget: "http://threads.internal:9000",
			Token:     "saved",
		}, dir)).To(Succeed())

		t, err := resolve("--config-dir", dir, "--api-target", "http://other:1", "--token", "explicit")
		Expect(err).NotTo(HaveOccurred())
		Expect(t.APITarget).To(Equal("http://other:1"))
		Expect(t.Token).To(Equal("explicit"))
	})
})

var _ = Describe("ReadSecret", func() {
	It("reads the first line of piped input", func() {
		out := &bytes.Buffer{}
		secret, err := remote.ReadSecret(strings.NewReader("hunter2\nextra\n"), out, "Password: ")
		Expect(err).NotTo(HaveOccurred())
		Expect(secret).To(Equal("hunter2"))
		Expect(out.String()).To(BeEmpty())
	})

	It("fails on empty input", func() {
		_, err := remote.ReadSecret(strings.NewReader(""), &bytes.Buffer{}, "Password: ")
		Expect(err).To(HaveOccurred())
	})
})
