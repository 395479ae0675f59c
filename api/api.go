package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/threads/pkg/history"
	"github.com/papercomputeco/threads/pkg/tenant"
	"github.com/papercomputeco/threads/pkg/usage"
)

// Services are the components the API serves. All are required.
type Services struct {
	Tenants    *tenant.Service
	Meter      *usage.Meter
	Writer     *history.Writer
	Reconciler *history.Reconciler
	Manager    *history.Manager
}

// Server is the API server for the threads system
type Server struct {
	config Config
	svc    Services
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
func NewServer(config Config, svc Services, logger *slog.Logger) (*Server, error) {
	if svc.Tenants == nil || svc.Meter == nil {
		return nil, errors.New("tenant service and usage meter are required")
	}
	if svc.Writer == nil || svc.Reconciler == nil || svc.Manager == nil {
		return nil, errors.New("history services are required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             config.BodyLimit,
	})

	s := &Server{
		config: config,
		svc:    svc,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)

	app.Post("/auth/register", s.requireAdmin, s.handleRegisterUser)
	app.Post("/auth/login", s.handleLoginUser)

	app.Post("/company/register", s.requireAdmin, s.handleRegisterCompany)
	app.Post("/company/login", s.handleLoginCompany)
	app.Post("/company/rotate_key", s.requireCompany, s.handleRotateKey)
	app.Put("/company/flags", s.requireCompany, s.handleUpdateFlags)
	app.Get("/company/usage", s.requireCompany, s.handleUsage)

	app.Post("/add", s.requireUser, s.handleAdd)
	app.Get("/history", s.requireUser, s.handleHistory)
	app.Get("/context", s.requireUser, s.handleContext)
	app.Post("/summary", s.requireUser, s.handleSummary)
	app.Post("/search", s.requireUser, s.handleSearch)
	app.Get("/search_by_tag", s.requireUser, s.handleSearchByTag)
	app.Post("/filter", s.requireUser, s.handleFilter)

	app.Get("/calendar", s.requireUser, s.handleCalendar)
	app.Post("/calendar/reminder", s.requireUser, s.handleAddReminder)
	app.Post("/calendar/assistant", s.requireUser, s.handleCalendarAssistant)
	app.Put("/calendar/:index", s.requireUser, s.handleUpdateEvent)
	app.Delete("/calendar/:index", s.requireUser, s.handleDeleteEvent)

	app.Get("/facts", s.requireUser, s.handleFacts)
	app.Delete("/facts", s.requireUser, s.handleDeleteFact)

	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP))
	}
	if config.BlobDir != "" {
		app.Static("/blobs", config.BlobDir)
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
