package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/threads/pkg/history"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
	"github.com/papercomputeco/threads/pkg/tenant"
)

const (
	localUser    = "user"
	localCompany = "company"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func bearer(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireUser resolves the bearer token to a user.
func (s *Server) requireUser(c *fiber.Ctx) error {
	token := bearer(c)
	if token == "" {
		return s.fail(c, tenant.ErrUnauthorized)
	}
	u, err := s.svc.Tenants.Authenticate(c.Context(), token)
	if err != nil {
		return s.fail(c, err)
	}
	c.Locals(localUser, u)
	return c.Next()
}

// requireCompany resolves the bearer token to a company.
func (s *Server) requireCompany(c *fiber.Ctx) error {
	token := bearer(c)
	if token == "" {
		return s.fail(c, tenant.ErrUnauthorized)
	}
	company, err := s.svc.Tenants.AuthenticateCompany(c.Context(), token)
	if err != nil {
		return s.fail(c, err)
	}
	c.Locals(localCompany, company)
	return c.Next()
}

func (s *Server) requireAdmin(c *fiber.Ctx) error {
	if s.config.AdminKey != "" && c.Get("X-Admin-Key") != s.config.AdminKey {
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{Error: "admin key required"})
	}
	return c.Next()
}

// key returns the stream the caller may act on when it names uuid and chat.
// An empty uuid names the caller.
func (s *Server) key(c *fiber.Ctx, uuid, chat string) (stream.Key, error) {
	u, ok := c.Locals(localUser).(storage.User)
	if !ok {
		return stream.Key{}, tenant.ErrUnauthorized
	}
	if uuid == "" {
		uuid = u.Name
	}
	entity, err := s.svc.Tenants.Authorize(c.Context(), u, uuid)
	if err != nil {
		return stream.Key{}, err
	}
	return stream.ChatKey(entity, chat), nil
}

func company(c *fiber.Ctx) storage.Company {
	co, _ := c.Locals(localCompany).(storage.Company)
	return co
}

// fail maps err onto a status code and writes the error body. Unclassified
// errors are logged and reported without detail.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	var (
		validation storage.ValidationError
		notFound   storage.NotFoundError
		conflict   storage.ConflictError
		capability *storage.CapabilityError
	)

	switch {
	case errors.As(err, &validation):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: validation.Error()})
	case errors.Is(err, tenant.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "unauthorized"})
	case errors.Is(err, tenant.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{Error: "forbidden"})
	case errors.Is(err, history.ErrFeatureDisabled):
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{Error: err.Error()})
	case errors.As(err, &notFound):
		what := notFound.What
		if what == "" {
			what = "record"
		}
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: what + " not found"})
	case errors.As(err, &conflict):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: conflict.What + " already exists"})
	case errors.As(err, &capability):
		s.logger.Error("capability unavailable",
			"path", c.Path(),
			"capability", capability.Capability,
			"error", err,
		)
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: capability.Capability + " unavailable"})
	default:
		s.logger.Error("request failed",
			"path", c.Path(),
			"error", err,
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "storage error"})
	}
}
