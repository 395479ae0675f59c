// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the caller's streams, facts and calendar as tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/threads/pkg/history"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/tenant"
	"github.com/papercomputeco/threads/pkg/utils"
)

type Config struct {
	// Tenants resolves bearer tokens to users.
	Tenants *tenant.Service

	// Reconciler serves the history, context and search tools.
	Reconciler *history.Reconciler

	// Manager serves the facts and calendar tools.
	Manager *history.Manager

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

// Server serves one MCP server per authenticated user. Every tool acts on
// the caller's own entity.
type Server struct {
	config  Config
	handler http.Handler

	// servers caches the MCP server of each entity.
	servers sync.Map
}

type userKey struct{}

// NewServer creates a new MCP server.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	if c.Noop {
		// return the empty MCP server with no tools configured
		// if the noop flag is set (i.e., MCP capabilities are disabled)
		empty := newMCPServer()
		s.handler = mcp.NewStreamableHTTPHandler(
			func(_ *http.Request) *mcp.Server { return empty },
			&mcp.StreamableHTTPOptions{Stateless: true},
		)
		return s, nil
	}

	if c.Tenants == nil {
		return nil, errors.New("tenant service is required")
	}
	if c.Reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	if c.Manager == nil {
		return nil, errors.New("manager is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	streamable := mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			u, ok := r.Context().Value(userKey{}).(storage.User)
			if !ok {
				return nil
			}
			return s.serverFor(u)
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)
	s.handler = s.authenticate(streamable)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func newMCPServer() *mcp.Server {
	return mcp.NewServer(
		&mcp.Implementation{
			Name:    "threads",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)
}

// authenticate resolves the bearer token and rejects the request when it
// names no user.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			unauthorized(w)
			return
		}

		u, err := s.config.Tenants.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			if !errors.Is(err, tenant.ErrUnauthorized) {
				s.config.Logger.Error("mcp authentication failed", "error", err)
			}
			unauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), userKey{}, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}

func (s *Server) serverFor(u storage.User) *mcp.Server {
	entity := u.Entity()
	if cached, ok := s.servers.Load(entity); ok {
		return cached.(*mcp.Server)
	}

	server := newMCPServer()
	t := &tools{
		user:       u,
		reconciler: s.config.Reconciler,
		manager:    s.config.Manager,
		logger:     s.config.Logger.With("entity", entity.String()),
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        historyToolName,
		Description: historyDescription,
	}, t.handleHistory)
	mcp.AddTool(server, &mcp.Tool{
		Name:        contextToolName,
		Description: contextDescription,
	}, t.handleContext)
	mcp.AddTool(server, &mcp.Tool{
		Name:        searchToolName,
		Description: searchDescription,
	}, t.handleSearch)
	mcp.AddTool(server, &mcp.Tool{
		Name:        factsToolName,
		Description: factsDescription,
	}, t.handleFacts)
	mcp.AddTool(server, &mcp.Tool{
		Name:        calendarToolName,
		Description: calendarDescription,
	}, t.handleCalendar)

	actual, _ := s.servers.LoadOrStore(entity, server)
	return actual.(*mcp.Server)
}
