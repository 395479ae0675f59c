package companycmder_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	companycmder "github.com/papercomputeco/threads/cmd/threads/company"
	"github.com/papercomputeco/threads/pkg/dotdir"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/usage"
)

func execute(stdin string, args ...string) (string, error) {
	root := &cobra.Command{Use: "threads"}
	root.PersistentFlags().String("config-dir", "", "")
	root.AddCommand(companycmder.NewCompanyCmd())

	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"company"}, args...))
	err := root.Execute()
	return out.String(), err
}

var _ = Describe("Company command", func() {
	var (
		dir    string
		server *httptest.Server
		body   map[string]any
		auth   string
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		GinkgoT().Setenv("THREADS_CLIENT_TOKEN", "")
		body = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Path {
			case "/company/flags":
				_ = json.NewEncoder(w).Encode(storage.Flags{EnableSummary: true, EnableFacts: true})
			case "/company/usage":
				_ = json.NewEncoder(w).Encode(usage.Report{
					Company: "acme",
					Usage:   storage.Usage{Messages: 4, Tokens: 40},
					Cost:    2,
					Users:   []usage.UserReport{{User: "alice", Usage: storage.Usage{Messages: 4, Tokens: 40}, Cost: 2}},
				})
			default:
				_ = json.NewEncoder(w).Encode(map[string]string{"name": "acme", "token": "company-token"})
			}
		}))
		DeferCleanup(server.Close)
	})

	It("registers a company with its idle timeout and flags", func() {
		out, err := execute("pw\n", "register", "acme", "--idle-timeout", "5m", "--calendar=false",
			"--api-target", server.URL, "--config-dir", dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("company-token"))
		Expect(body).To(HaveKeyWithValue("idle_timeout", BeNumerically("==", 300)))
		Expect(body).To(HaveKeyWithValue("enable_calendar", false))
		Expect(body).To(HaveKeyWithValue("enable_facts", true))
	})

	It("patches only the flags given", func() {
		out, err := execute("", "flags", "--calendar=false", "--token", "ct",
			"--api-target", server.URL, "--config-dir", dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(auth).To(Equal("Bearer ct"))
		Expect(body).To(Equal(map[string]any{"enable_calendar": false}))
		Expect(out).To(ContainSubstring("calendar"))
	})

	It("prints the usage report", func() {
		out, err := execute("", "usage", "--token", "ct", "--api-target", server.URL, "--config-dir", dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("alice"))
		Expect(out).To(ContainSubstring("40 tokens"))
	})

	It("refuses the saved user session token", func() {
		Expect(dotdir.NewManager().SaveSession(&dotdir.Session{Token: "user-token", APITarget: server.URL}, dir)).To(Succeed())

		_, err := execute("", "rotate-key", "--config-dir", dir)
		Expect(err).To(MatchError(ContainSubstring("company token")))
	})
})
