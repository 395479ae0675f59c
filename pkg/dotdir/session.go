package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	sessionFile = "session.json"
)

// Session is the client login state persisted by "threads login" and read by
// the client commands.
type Session struct {
	// APITarget is the server the token was issued by.
	APITarget string `json:"api_target"`

	// Token is the bearer token.
	Token string `json:"token"`

	User    string `json:"user"`
	Company string `json:"company"`
}

// LoadSession loads the session from a target .threads/session.json.
// Returns nil, nil if nobody has logged in yet.
// If overrideDir is non-empty, it is used instead of the default ~/.threads/ location.
func (m *Manager) LoadSession(overrideDir string) (*Session, error) {
	path, err := m.Path(overrideDir, sessionFile)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}

	session := &Session{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}

	return session, nil
}

// SaveSession persists the session to a target .threads/session.json. The
// file holds a credential and is written owner-only.
func (m *Manager) SaveSession(session *Session, overrideDir string) error {
	if session == nil {
		return errors.New("cannot save nil session")
	}

	path, err := m.Path(overrideDir, sessionFile)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}

	return nil
}

// ClearSession removes the session file. Returns nil if it doesn't exist.
func (m *Manager) ClearSession(overrideDir string) error {
	path, err := m.Path(overrideDir, sessionFile)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing session: %w", err)
	}

	return nil
}
