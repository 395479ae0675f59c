package factscmder_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/threads/api"
	factscmder "github.com/papercomputeco/threads/cmd/threads/facts"
)

var _ = Describe("Facts command", func() {
	var (
		dir     string
		server  *httptest.Server
		lastReq *http.Request
		body    map[string]any
		removed int
	)

	execute := func(args ...string) (string, error) {
		root := &cobra.Command{Use: "threads"}
		root.PersistentFlags().String("config-dir", "", "")
		root.AddCommand(factscmder.NewFactsCmd())

		out := &bytes.Buffer{}
		root.SetOut(out)
		root.SetErr(out)
		root.SetArgs(append(append([]string{"facts"}, args...), "--config-dir", dir, "--api-target", server.URL, "--token", "tok"))
		err := root.Execute()
		return out.String(), err
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		body = nil
		removed = 1
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastReq = r
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("Content-Type", "application/json")
			if r.Method == http.MethodDelete {
				_ = json.NewEncoder(w).Encode(api.DeleteFactResponse{UUID: "alice", Removed: removed})
				return
			}
			_ = json.NewEncoder(w).Encode(api.FactsResponse{UUID: "alice", Facts: []string{"likes tea", "lives in Berlin"}})
		}))
		DeferCleanup(server.Close)
	})

	It("lists facts", func() {
		out, err := execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("likes tea"))
		Expect(out).To(ContainSubstring("lives in Berlin"))
	})

	It("deletes a fact for another user", func() {
		out, err := execute("delete", "likes tea", "--uuid", "bob")
		Expect(err).NotTo(HaveOccurred())
		Expect(lastReq.Method).To(Equal(http.MethodDelete))
		Expect(body).To(HaveKeyWithValue("uuid", "bob"))
		Expect(body).To(HaveKeyWithValue("fact", "likes tea"))
		Expect(out).To(ContainSubstring("Removed"))
	})

	It("reports a missing fact", func() {
		removed = 0
		out, err := execute("delete", "ghost")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("No such fact"))
	})
})
