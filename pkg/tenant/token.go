package tenant

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// tokenBytes is the entropy of an issued bearer token.
const tokenBytes = 32

// Payload is what a user token resolves to. It is either a TokenV1, written
// before tokens carried the company, or a TokenV2.
type Payload interface {
	// User returns the user name the token was issued to.
	User() string

	encode() string
}

// TokenV1 is a legacy payload naming only the user. The company is resolved
// by looking the user up.
type TokenV1 struct {
	Name string
}

func (t TokenV1) User() string   { return t.Name }
func (t TokenV1) encode() string { return t.Name }

// TokenV2 names both the user and the company it belongs to.
type TokenV2 struct {
	Name    string
	Company string
}

func (t TokenV2) User() string   { return t.Name }
func (t TokenV2) encode() string { return t.Name + ":" + t.Company }

// ParsePayload decodes a stored user token payload. "user:company" is a
// TokenV2 and a bare "user" is a TokenV1.
func ParsePayload(s string) (Payload, error) {
	if s == "" {
		return nil, fmt.Errorf("empty token payload")
	}

	name, company, ok := strings.Cut(s, ":")
	if !ok {
		return TokenV1{Name: s}, nil
	}
	if name == "" || company == "" {
		return nil, fmt.Errorf("malformed token payload %q", s)
	}
	return TokenV2{Name: name, Company: company}, nil
}

// EncodePayload renders p in its stored form.
func EncodePayload(p Payload) string {
	return p.encode()
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
