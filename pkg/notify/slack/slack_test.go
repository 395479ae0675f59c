package slack_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/notify"
	"github.com/papercomputeco/threads/pkg/notify/slack"
	"github.com/papercomputeco/threads/pkg/stream"
)

var _ = Describe("Slack Notifier", func() {
	var (
		server *httptest.Server
		form   url.Values
		reply  string
	)

	BeforeEach(func() {
		form = nil
		reply = `{"ok": true, "channel": "C123", "ts": "1700000000.000100"}`
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/chat.postMessage"))
			Expect(r.ParseForm()).To(Succeed())
			form = r.PostForm
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(reply))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires a token and channel", func() {
		_, err := slack.New("", "C123")
		Expect(err).To(HaveOccurred())

		_, err = slack.New("xoxb-test", "")
		Expect(err).To(HaveOccurred())
	})

	It("posts the reminder text to the channel", func() {
		n, err := slack.New("xoxb-test", "C123", slack.WithAPIURL(server.URL+"/"))
		Expect(err).NotTo(HaveOccurred())

		err = n.Notify(context.Background(), notify.Notification{
			Entity: stream.Entity{Company: "acme", ID: "u1"},
			Chat:   "c9",
			Text:   "call mom",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(form.Get("channel")).To(Equal("C123"))
		Expect(form.Get("text")).To(Equal("[acme/u1 #c9] call mom"))
	})

	It("surfaces API failures", func() {
		reply = `{"ok": false, "error": "channel_not_found"}`

		n, err := slack.New("xoxb-test", "C123", slack.WithAPIURL(server.URL+"/"))
		Expect(err).NotTo(HaveOccurred())

		err = n.Notify(context.Background(), notify.Notification{Text: "x"})
		Expect(err).To(MatchError(ContainSubstring("channel_not_found")))
	})
})
