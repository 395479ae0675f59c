package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/api"
	"github.com/papercomputeco/threads/pkg/client"
	"github.com/papercomputeco/threads/pkg/stream"
)

var _ = Describe("Client", func() {
	var (
		ctx     context.Context
		server  *httptest.Server
		lastReq *http.Request
		body    map[string]any
		status  int
		reply   any
	)

	BeforeEach(func() {
		ctx = context.Background()
		status = http.StatusOK
		reply = map[string]any{}
		body = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastReq = r
			if r.Body != nil {
				_ = json.NewDecoder(r.Body).Decode(&body)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(reply)
		}))
		DeferCleanup(server.Close)
	})

	It("sends the bearer token and query parameters", func() {
		reply = map[string]any{"messages": []map[string]any{
			{"id": "1700000000000-0", "role": "user", "content": "hi", "type": "text", "ts": "2025-03-10T09:15:00Z", "importance": 0},
		}}
		c := client.New(server.URL+"/", "tok")

		got, err := c.History(ctx, "u1", "work", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Messages).To(HaveLen(1))
		Expect(got.Messages[0].Message.Content).To(Equal("hi"))

		Expect(lastReq.URL.Path).To(Equal("/history"))
		Expect(lastReq.URL.Query().Get("uuid")).To(Equal("u1"))
		Expect(lastReq.URL.Query().Get("chat_id")).To(Equal("work"))
		Expect(lastReq.URL.Query().Get("limit")).To(Equal("5"))
		Expect(lastReq.Header.Get("Authorization")).To(Equal("Bearer tok"))
	})

	It("omits unset limits", func() {
		c := client.New(server.URL, "tok")
		_, err := c.Context(ctx, "u1", "", 0, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(lastReq.URL.Query().Has("limit")).To(BeFalse())
		Expect(lastReq.URL.Query().Has("top_k")).To(BeFalse())
	})

	It("posts JSON bodies and sends the admin key", func() {
		reply = api.AuthResponse{UUID: "u1", Token: "new"}
		c := client.New(server.URL, "", client.WithAdminKey("secret"))

		got, err := c.Register(ctx, api.RegisterRequest{Username: "u1", Password: "pw", CompanyID: "acme"})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Token).To(Equal("new"))
		Expect(lastReq.Method).To(Equal(http.MethodPost))
		Expect(lastReq.Header.Get("X-Admin-Key")).To(Equal("secret"))
		Expect(body).To(HaveKeyWithValue("company_id", "acme"))
	})

	It("sends messages with their role and content", func() {
		reply = api.AddResponse{StreamIDs: []string{"1-0"}}
		c := client.New(server.URL, "tok")

		got, err := c.Add(ctx, api.AddRequest{
			UUID:     "u1",
			Messages: []api.AddMessage{{Message: stream.Message{Role: "user", Content: "hello"}}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.StreamIDs).To(Equal([]string{"1-0"}))
		Expect(body["messages"]).To(HaveLen(1))
	})

	It("returns an Error carrying the server message", func() {
		status = http.StatusForbidden
		reply = api.ErrorResponse{Error: "forbidden"}
		c := client.New(server.URL, "tok")

		_, err := c.Facts(ctx, "u2")
		var apiErr *client.Error
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Status).To(Equal(http.StatusForbidden))
		Expect(apiErr.Message).To(Equal("forbidden"))
	})

	It("addresses calendar events by index", func() {
		c := client.New(server.URL, "tok")
		Expect(c.DeleteEvent(ctx, "u1", 3)).To(Succeed())
		Expect(lastReq.Method).To(Equal(http.MethodDelete))
		Expect(lastReq.URL.Path).To(Equal("/calendar/3"))
	})
})
