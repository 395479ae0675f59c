package calendarcmder_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/threads/api"
	calendarcmder "github.com/papercomputeco/threads/cmd/threads/calendar"
	"github.com/papercomputeco/threads/pkg/stream"
)

var _ = Describe("Calendar command", func() {
	var (
		dir     string
		server  *httptest.Server
		lastReq *http.Request
		body    map[string]any
		event   api.Event
	)

	execute := func(args ...string) (string, error) {
		root := &cobra.Command{Use: "threads"}
		root.PersistentFlags().String("config-dir", "", "")
		root.AddCommand(calendarcmder.NewCalendarCmd())

		out := &bytes.Buffer{}
		root.SetOut(out)
		root.SetErr(out)
		root.SetArgs(append(append([]string{"calendar"}, args...), "--config-dir", dir, "--api-target", server.URL, "--token", "tok"))
		err := root.Execute()
		return out.String(), err
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		body = nil
		berlin, err := time.LoadLocation("Europe/Berlin")
		Expect(err).NotTo(HaveOccurred())
		event = api.Event{
			Index: 0,
			When:  time.Date(2025, 3, 11, 18, 0, 0, 0, berlin),
			Text:  "Dinner with Sam",
			TZ:    "Europe/Berlin",
		}

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastReq = r
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("Content-Type", "application/json")
			switch {
			case r.URL.Path == "/calendar/assistant":
				_ = json.NewEncoder(w).Encode(stream.NewTextMessage(stream.RoleAssistant, "You have dinner at 18:00."))
			case r.Method == http.MethodGet:
				_ = json.NewEncoder(w).Encode(api.CalendarResponse{UUID: "alice", Events: []api.Event{event}})
			case r.Method == http.MethodDelete:
				_ = json.NewEncoder(w).Encode(api.CalendarStatus{Status: "deleted"})
			default:
				_ = json.NewEncoder(w).Encode(api.CalendarStatus{Status: "scheduled", Event: &event})
			}
		}))
		DeferCleanup(server.Close)
	})

	It("lists events in their own time zone", func() {
		out, err := execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("[0]"))
		Expect(out).To(ContainSubstring("Tue 2025-03-11 18:00"))
		Expect(out).To(ContainSubstring("Dinner with Sam"))
	})

	It("adds a reminder in the given time zone", func() {
		out, err := execute("add", "2025-03-11T18:00", "Dinner with Sam", "--tz", "Europe/Berlin", "--chat", "home")
		Expect(err).NotTo(HaveOccurred())
		Expect(lastReq.URL.Path).To(Equal("/calendar/reminder"))
		Expect(body).To(HaveKeyWithValue("when", "2025-03-11T18:00"))
		Expect(body).To(HaveKeyWithValue("tz", "Europe/Berlin"))
		Expect(body).To(HaveKeyWithValue("chat_id", "home"))
		Expect(out).To(ContainSubstring("scheduled"))
	})

	It("sends only changed fields on update", func() {
		_, err := execute("update", "2", "--text", "Dinner with Alex")
		Expect(err).NotTo(HaveOccurred())
		Expect(lastReq.Method).To(Equal(http.MethodPut))
		Expect(lastReq.URL.Path).To(Equal("/calendar/2"))
		Expect(body).To(HaveKeyWithValue("text", "Dinner with Alex"))
		Expect(body).NotTo(HaveKey("when"))
		Expect(body).NotTo(HaveKey("tz"))
	})

	It("refuses an empty update", func() {
		_, err := execute("update", "0")
		Expect(err).To(MatchError(ContainSubstring("nothing to change")))
	})

	It("deletes by index", func() {
		out, err := execute("delete", "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(lastReq.URL.Path).To(Equal("/calendar/1"))
		Expect(out).To(ContainSubstring("Deleted event 1"))
	})

	It("rejects a bad index", func() {
		_, err := execute("delete", "first")
		Expect(err).To(MatchError(ContainSubstring("invalid event index")))
	})

	It("asks the assistant", func() {
		out, err := execute("ask", "what do I have tomorrow?")
		Expect(err).NotTo(HaveOccurred())
		Expect(body).To(HaveKeyWithValue("query", "what do I have tomorrow?"))
		Expect(out).To(ContainSubstring("dinner"))
	})
})
