package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/tenant"
)

// RegisterRequest creates a user under a company.
type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	CompanyID string `json:"company_id"`
}

// LoginRequest logs a user in. CompanyID may be omitted when the username
// is unique across companies.
type LoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	CompanyID string `json:"company_id,omitempty"`
}

// AuthResponse carries a user token.
type AuthResponse struct {
	UUID  string `json:"uuid"`
	Token string `json:"token"`
}

// CompanyRegisterRequest creates a company. IdleTimeout is in seconds;
// omitted flags default to enabled.
type CompanyRegisterRequest struct {
	Name           string `json:"name"`
	Password       string `json:"password"`
	IdleTimeout    int    `json:"idle_timeout"`
	EnableSummary  *bool  `json:"enable_summary,omitempty"`
	EnableFacts    *bool  `json:"enable_facts,omitempty"`
	EnableCalendar *bool  `json:"enable_calendar,omitempty"`
}

// CompanyLoginRequest logs a company in.
type CompanyLoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// CompanyAuthResponse carries a company token.
type CompanyAuthResponse struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func badBody() error {
	return storage.ValidationError{Reason: "malformed request body"}
}

func (s *Server) handleRegisterUser(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, badBody())
	}

	s.logger.Info("register user", "user", req.Username, "company", req.CompanyID)
	token, err := s.svc.Tenants.RegisterUser(c.Context(), req.Username, req.Password, req.CompanyID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(AuthResponse{UUID: req.Username, Token: token})
}

func (s *Server) handleLoginUser(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, badBody())
	}

	token, err := s.svc.Tenants.LoginUser(c.Context(), req.Username, req.Password, req.CompanyID)
	if err != nil {
		if storage.IsNotFound(err) {
			err = tenant.ErrUnauthorized
		}
		return s.fail(c, err)
	}
	return c.JSON(AuthResponse{UUID: req.Username, Token: token})
}

func (s *Server) handleRegisterCompany(c *fiber.Ctx) error {
	var req CompanyRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, badBody())
	}
	if req.IdleTimeout < 0 {
		return s.fail(c, storage.ValidationError{Reason: "idle_timeout must not be negative"})
	}

	flags := storage.FlagsPatch{
		EnableSummary:  req.EnableSummary,
		EnableFacts:    req.EnableFacts,
		EnableCalendar: req.EnableCalendar,
	}.Apply(storage.DefaultFlags())

	s.logger.Info("register company", "company", req.Name)
	token, err := s.svc.Tenants.RegisterCompany(c.Context(), tenant.CompanyRegistration{
		Name:        req.Name,
		Password:    req.Password,
		IdleTimeout: time.Duration(req.IdleTimeout) * time.Second,
		Flags:       &flags,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(CompanyAuthResponse{Name: req.Name, Token: token})
}

func (s *Server) handleLoginCompany(c *fiber.Ctx) error {
	var req CompanyLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, badBody())
	}

	token, err := s.svc.Tenants.LoginCompany(c.Context(), req.Name, req.Password)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(CompanyAuthResponse{Name: req.Name, Token: token})
}

func (s *Server) handleRotateKey(c *fiber.Ctx) error {
	name := company(c).Name
	token, err := s.svc.Tenants.RotateKey(c.Context(), name)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(CompanyAuthResponse{Name: name, Token: token})
}

func (s *Server) handleUpdateFlags(c *fiber.Ctx) error {
	var patch storage.FlagsPatch
	if err := c.BodyParser(&patch); err != nil {
		return s.fail(c, badBody())
	}

	flags, err := s.svc.Tenants.UpdateFlags(c.Context(), company(c).Name, patch)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(flags)
}

// handleUsage reports the usage and cost of the calling company and its
// users.
func (s *Server) handleUsage(c *fiber.Ctx) error {
	report, err := s.svc.Meter.Report(c.Context(), company(c).Name)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(report)
}
