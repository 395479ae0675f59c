// Package tenant manages companies, the users registered under them and the
// bearer tokens both authenticate with. It is the authority for the tenant
// binding check: a user belongs to exactly one company and every operation on
// its streams must come from that company.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

var (
	// ErrUnauthorized is returned for missing, unknown, expired or
	// mismatched credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when an authenticated caller acts on an
	// entity it is not bound to.
	ErrForbidden = errors.New("forbidden")
)

// Service issues and resolves credentials.
type Service struct {
	store  storage.TenantStore
	ttl    time.Duration
	now    func() time.Time
	cost   int
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTokenTTL sets the lifetime of issued tokens. Zero never expires.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a tenant service over store.
func New(store storage.TenantStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		now:    time.Now,
		cost:   bcrypt.DefaultCost,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CompanyRegistration is the input of RegisterCompany.
type CompanyRegistration struct {
	Name        string
	Password    string
	IdleTimeout time.Duration

	// Flags defaults to every feature enabled.
	Flags *storage.Flags
}

// RegisterCompany creates a company and returns its first token. A taken
// name is a ConflictError.
func (s *Service) RegisterCompany(ctx context.Context, reg CompanyRegistration) (string, error) {
	name := strings.TrimSpace(reg.Name)
	if name == "" || reg.Password == "" {
		return "", storage.ValidationError{Reason: "name and password are required"}
	}
	if strings.Contains(name, ":") {
		return "", storage.ValidationError{Reason: "company name must not contain ':'"}
	}
	if reg.IdleTimeout < 0 {
		return "", storage.ValidationError{Reason: "idle timeout must not be negative"}
	}

	hash, err := s.hash(reg.Password)
	if err != nil {
		return "", err
	}

	flags := storage.DefaultFlags()
	if reg.Flags != nil {
		flags = *reg.Flags
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}

	err = s.store.CreateCompany(ctx, storage.Company{
		Name:         name,
		PasswordHash: hash,
		Token:        token,
		IdleTimeout:  reg.IdleTimeout,
		Flags:        flags,
	})
	if err != nil {
		return "", err
	}

	if err := s.putToken(ctx, token, storage.TokenKindCompany, name); err != nil {
		return "", err
	}

	s.logger.Info("company registered", "company", name)
	return token, nil
}

// LoginCompany verifies the password and issues a fresh token, revoking the
// previous one.
func (s *Service) LoginCompany(ctx context.Context, name, password string) (string, error) {
	c, err := s.store.Company(ctx, name)
	if err != nil {
		if storage.IsNotFound(err) {
			return "", ErrUnauthorized
		}
		return "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) != nil {
		s.logger.Warn("company login failed", "company", name)
		return "", ErrUnauthorized
	}

	return s.reissueCompany(ctx, c)
}

// RotateKey replaces the company token.
func (s *Service) RotateKey(ctx context.Context, name string) (string, error) {
	c, err := s.store.Company(ctx, name)
	if err != nil {
		return "", err
	}

	s.logger.Info("rotating company token", "company", name)
	return s.reissueCompany(ctx, c)
}

func (s *Service) reissueCompany(ctx context.Context, c storage.Company) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}

	if c.Token != "" {
		if err := s.store.DeleteToken(ctx, c.Token); err != nil {
			return "", err
		}
	}

	c.Token = token
	if err := s.store.UpdateCompany(ctx, c); err != nil {
		return "", err
	}
	if err := s.putToken(ctx, token, storage.TokenKindCompany, c.Name); err != nil {
		return "", err
	}
	return token, nil
}

// UpdateFlags applies patch to the company's flags and returns the result.
func (s *Service) UpdateFlags(ctx context.Context, name string, patch storage.FlagsPatch) (storage.Flags, error) {
	c, err := s.store.Company(ctx, name)
	if err != nil {
		return storage.Flags{}, err
	}

	c.Flags = patch.Apply(c.Flags)
	if err := s.store.UpdateCompany(ctx, c); err != nil {
		return storage.Flags{}, err
	}
	return c.Flags, nil
}

// Company returns a company record.
func (s *Service) Company(ctx context.Context, name string) (storage.Company, error) {
	return s.store.Company(ctx, name)
}

// Flags returns the feature flags of a company. An unknown company has every
// feature enabled.
func (s *Service) Flags(ctx context.Context, name string) (storage.Flags, error) {
	c, err := s.store.Company(ctx, name)
	if err != nil {
		if storage.IsNotFound(err) {
			return storage.DefaultFlags(), nil
		}
		return storage.Flags{}, err
	}
	return c.Flags, nil
}

// AuthenticateCompany resolves a company token.
func (s *Service) AuthenticateCompany(ctx context.Context, token string) (storage.Company, error) {
	t, err := s.lookup(ctx, token, storage.TokenKindCompany)
	if err != nil {
		return storage.Company{}, err
	}

	c, err := s.store.Company(ctx, t.Payload)
	if err != nil {
		if storage.IsNotFound(err) {
			return storage.Company{}, ErrUnauthorized
		}
		return storage.Company{}, err
	}
	return c, nil
}

// RegisterUser creates a user under company and returns its first token.
// The name must be free within the company; other companies may reuse it.
func (s *Service) RegisterUser(ctx context.Context, name, password, company string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" || company == "" {
		return "", storage.ValidationError{Reason: "username, password and company_id are required"}
	}
	if strings.Contains(name, ":") {
		return "", storage.ValidationError{Reason: "username must not contain ':'"}
	}

	if _, err := s.store.Company(ctx, company); err != nil {
		return "", err
	}

	hash, err := s.hash(password)
	if err != nil {
		return "", err
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}

	err = s.store.CreateUser(ctx, storage.User{
		Name:         name,
		Company:      company,
		PasswordHash: hash,
		Token:        token,
	})
	if err != nil {
		return "", err
	}

	payload := EncodePayload(TokenV2{Name: name, Company: company})
	if err := s.putToken(ctx, token, storage.TokenKindUser, payload); err != nil {
		return "", err
	}

	s.logger.Info("user registered", "user", name, "company", company)
	return token, nil
}

// LoginUser verifies the password and issues a fresh token, revoking the
// previous one. company may be empty when the name is unique across
// companies.
func (s *Service) LoginUser(ctx context.Context, name, password, company string) (string, error) {
	u, err := s.findUser(ctx, name, company)
	if err != nil {
		return "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		s.logger.Warn("user login failed", "user", name)
		return "", ErrUnauthorized
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}

	if u.Token != "" {
		if err := s.store.DeleteToken(ctx, u.Token); err != nil {
			return "", err
		}
	}
	if err := s.store.UpdateUserToken(ctx, u.Company, u.Name, token); err != nil {
		return "", err
	}

	payload := EncodePayload(TokenV2{Name: u.Name, Company: u.Company})
	if err := s.putToken(ctx, token, storage.TokenKindUser, payload); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) findUser(ctx context.Context, name, company string) (storage.User, error) {
	if company != "" {
		u, err := s.store.User(ctx, company, name)
		if storage.IsNotFound(err) {
			return storage.User{}, ErrUnauthorized
		}
		return u, err
	}

	users, err := s.store.UsersNamed(ctx, name)
	if err != nil {
		return storage.User{}, err
	}
	switch len(users) {
	case 0:
		return storage.User{}, ErrUnauthorized
	case 1:
		return users[0], nil
	default:
		return storage.User{}, storage.ValidationError{Reason: "username exists in several companies, company_id is required"}
	}
}

// Authenticate resolves a user token to the user it was issued to and
// verifies the user is still bound to the company the token names.
func (s *Service) Authenticate(ctx context.Context, token string) (storage.User, error) {
	t, err := s.lookup(ctx, token, storage.TokenKindUser)
	if err != nil {
		return storage.User{}, err
	}

	payload, err := ParsePayload(t.Payload)
	if err != nil {
		s.logger.Warn("malformed token payload", "error", err)
		return storage.User{}, ErrUnauthorized
	}

	var u storage.User
	switch p := payload.(type) {
	case TokenV2:
		u, err = s.store.User(ctx, p.Company, p.Name)
		if storage.IsNotFound(err) {
			s.logger.Warn("token company mismatch", "user", p.Name, "company", p.Company)
			return storage.User{}, ErrUnauthorized
		}
	case TokenV1:
		var users []storage.User
		users, err = s.store.UsersNamed(ctx, p.Name)
		if err == nil && len(users) != 1 {
			s.logger.Warn("legacy token does not resolve to one company", "user", p.Name, "matches", len(users))
			return storage.User{}, ErrUnauthorized
		}
		if err == nil {
			u = users[0]
		}
	}
	if err != nil {
		return storage.User{}, err
	}
	return u, nil
}

// CheckBinding verifies that entity is a user registered under its company.
func (s *Service) CheckBinding(ctx context.Context, entity stream.Entity) error {
	if err := entity.Validate(); err != nil {
		return storage.ValidationError{Reason: err.Error()}
	}

	_, err := s.store.User(ctx, entity.Company, entity.ID)
	if storage.IsNotFound(err) {
		return ErrForbidden
	}
	return err
}

// Authorize returns the entity caller may act as when it names uuid. Any
// other uuid is forbidden.
func (s *Service) Authorize(ctx context.Context, caller storage.User, uuid string) (stream.Entity, error) {
	if uuid != caller.Name {
		return stream.Entity{}, ErrForbidden
	}

	entity := caller.Entity()
	if err := s.CheckBinding(ctx, entity); err != nil {
		return stream.Entity{}, err
	}
	return entity, nil
}

func (s *Service) lookup(ctx context.Context, token, kind string) (storage.Token, error) {
	if token == "" {
		return storage.Token{}, ErrUnauthorized
	}

	t, err := s.store.Token(ctx, token)
	if err != nil {
		if storage.IsNotFound(err) {
			return storage.Token{}, ErrUnauthorized
		}
		return storage.Token{}, err
	}

	if t.Kind != kind {
		return storage.Token{}, ErrUnauthorized
	}

	if t.Expired(s.now()) {
		if err := s.store.DeleteToken(ctx, token); err != nil {
			s.logger.Warn("failed to delete expired token", "error", err)
		}
		return storage.Token{}, ErrUnauthorized
	}
	return t, nil
}

func (s *Service) putToken(ctx context.Context, value, kind, payload string) error {
	t := storage.Token{Value: value, Kind: kind, Payload: payload}
	if s.ttl > 0 {
		t.ExpiresAt = s.now().Add(s.ttl)
	}
	return s.store.PutToken(ctx, t)
}

func (s *Service) hash(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(out), nil
}
