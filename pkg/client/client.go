// Package client is a small HTTP client for the threads API, used by the
// CLI commands.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/threads/api"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
	"github.com/papercomputeco/threads/pkg/usage"
)

const defaultTimeout = 30 * time.Second

// Error is a non-2xx response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("threads API returned %d: %s", e.Status, e.Message)
}

// Client talks to one API server with one bearer token.
type Client struct {
	baseURL  string
	token    string
	adminKey string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAdminKey sets the key sent to the registration endpoints.
func WithAdminKey(key string) Option {
	return func(c *Client) { c.adminKey = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Client. token may be empty for the login endpoints.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.adminKey != "" {
		req.Header.Set("X-Admin-Key", c.adminKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting threads API at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e api.ErrorResponse
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &Error{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func streamQuery(uuid, chat string, ints map[string]int) url.Values {
	q := url.Values{}
	if uuid != "" {
		q.Set("uuid", uuid)
	}
	if chat != "" {
		q.Set("chat_id", chat)
	}
	for k, v := range ints {
		if v > 0 {
			q.Set(k, strconv.Itoa(v))
		}
	}
	return q
}

// RegisterCompany creates a company.
func (c *Client) RegisterCompany(ctx context.Context, req api.CompanyRegisterRequest) (*api.CompanyAuthResponse, error) {
	out := &api.CompanyAuthResponse{}
	return out, c.do(ctx, http.MethodPost, "/company/register", nil, req, out)
}

// LoginCompany issues a company token.
func (c *Client) LoginCompany(ctx context.Context, req api.CompanyLoginRequest) (*api.CompanyAuthResponse, error) {
	out := &api.CompanyAuthResponse{}
	return out, c.do(ctx, http.MethodPost, "/company/login", nil, req, out)
}

// RotateKey replaces the company token.
func (c *Client) RotateKey(ctx context.Context) (*api.CompanyAuthResponse, error) {
	out := &api.CompanyAuthResponse{}
	return out, c.do(ctx, http.MethodPost, "/company/rotate_key", nil, nil, out)
}

// UpdateFlags patches the company feature flags.
func (c *Client) UpdateFlags(ctx context.Context, patch storage.FlagsPatch) (*storage.Flags, error) {
	out := &storage.Flags{}
	return out, c.do(ctx, http.MethodPut, "/company/flags", nil, patch, out)
}

// Usage reports the usage of the company the token belongs to.
func (c *Client) Usage(ctx context.Context) (*usage.Report, error) {
	out := &usage.Report{}
	return out, c.do(ctx, http.MethodGet, "/company/usage", nil, nil, out)
}

// Register creates a user.
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error) {
	out := &api.AuthResponse{}
	return out, c.do(ctx, http.MethodPost, "/auth/register", nil, req, out)
}

// Login issues a user token.
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error) {
	out := &api.AuthResponse{}
	return out, c.do(ctx, http.MethodPost, "/auth/login", nil, req, out)
}

// Add appends messages to a stream.
func (c *Client) Add(ctx context.Context, req api.AddRequest) (*api.AddResponse, error) {
	out := &api.AddResponse{}
	return out, c.do(ctx, http.MethodPost, "/add", nil, req, out)
}

// History reads the most recent messages of a stream.
func (c *Client) History(ctx context.Context, uuid, chat string, limit int) (*api.HistoryResponse, error) {
	out := &api.HistoryResponse{}
	q := streamQuery(uuid, chat, map[string]int{"limit": limit})
	return out, c.do(ctx, http.MethodGet, "/history", q, nil, out)
}

// Context reads the context of a stream.
func (c *Client) Context(ctx context.Context, uuid, chat string, limit, topK int) (*api.ContextResponse, error) {
	out := &api.ContextResponse{}
	q := streamQuery(uuid, chat, map[string]int{"limit": limit, "top_k": topK})
	return out, c.do(ctx, http.MethodGet, "/context", q, nil, out)
}

// Search runs a semantic search.
func (c *Client) Search(ctx context.Context, req api.SearchRequest) (*api.SearchResponse, error) {
	out := &api.SearchResponse{}
	return out, c.do(ctx, http.MethodPost, "/search", nil, req, out)
}

// SearchByTag lists the entries carrying tag.
func (c *Client) SearchByTag(ctx context.Context, uuid, chat, tag string, limit int) (*api.SearchResponse, error) {
	out := &api.SearchResponse{}
	q := streamQuery(uuid, chat, map[string]int{"limit": limit})
	q.Set("tag", tag)
	return out, c.do(ctx, http.MethodGet, "/search_by_tag", q, nil, out)
}

// Facts lists the facts of an entity.
func (c *Client) Facts(ctx context.Context, uuid string) (*api.FactsResponse, error) {
	out := &api.FactsResponse{}
	return out, c.do(ctx, http.MethodGet, "/facts", streamQuery(uuid, "", nil), nil, out)
}

// DeleteFact removes one fact.
func (c *Client) DeleteFact(ctx context.Context, uuid, fact string) (*api.DeleteFactResponse, error) {
	out := &api.DeleteFactResponse{}
	return out, c.do(ctx, http.MethodDelete, "/facts", nil, api.DeleteFactRequest{UUID: uuid, Fact: fact}, out)
}

// Calendar lists the calendar of an entity.
func (c *Client) Calendar(ctx context.Context, uuid string) (*api.CalendarResponse, error) {
	out := &api.CalendarResponse{}
	return out, c.do(ctx, http.MethodGet, "/calendar", streamQuery(uuid, "", nil), nil, out)
}

// AddReminder schedules a reminder.
func (c *Client) AddReminder(ctx context.Context, req api.ReminderRequest) (*api.CalendarStatus, error) {
	out := &api.CalendarStatus{}
	return out, c.do(ctx, http.MethodPost, "/calendar/reminder", nil, req, out)
}

// UpdateEvent changes the event at index.
func (c *Client) UpdateEvent(ctx context.Context, index int, req api.CalendarUpdateRequest) (*api.CalendarStatus, error) {
	out := &api.CalendarStatus{}
	path := "/calendar/" + strconv.Itoa(index)
	return out, c.do(ctx, http.MethodPut, path, nil, req, out)
}

// DeleteEvent removes the event at index.
func (c *Client) DeleteEvent(ctx context.Context, uuid string, index int) error {
	path := "/calendar/" + strconv.Itoa(index)
	return c.do(ctx, http.MethodDelete, path, streamQuery(uuid, "", nil), nil, nil)
}

// Assist runs a free-text calendar command and returns the assistant reply.
func (c *Client) Assist(ctx context.Context, req api.AssistantRequest) (*stream.Message, error) {
	out := &stream.Message{}
	return out, c.do(ctx, http.MethodPost, "/calendar/assistant", nil, req, out)
}
