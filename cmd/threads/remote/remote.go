// Package remote resolves the API target and bearer token used by the CLI
// commands that talk to a running threads server.
package remote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/threads/pkg/client"
	"github.com/papercomputeco/threads/pkg/config"
	"github.com/papercomputeco/threads/pkg/dotdir"
)

// ErrNotLoggedIn is returned when no token was given and no session is saved.
var ErrNotLoggedIn = errors.New("not logged in; run 'threads login' or pass --token")

// Flags are the connection flags shared by the client commands.
type Flags struct {
	APITarget string
	Token     string
}

// AddFlags registers --api-target and --token on cmd.
func AddFlags(cmd *cobra.Command, f *Flags) {
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &f.APITarget)
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagToken, &f.Token)
}

// Target is a resolved server and credential.
type Target struct {
	APITarget string
	Token     string

	// Session is the saved login, nil when there is none.
	Session *dotdir.Session

	// SessionToken reports whether Token came from Session.
	SessionToken bool
}

// Resolve merges flags, THREADS_CLIENT_* variables, config.toml and the saved
// session. An explicit --api-target wins; otherwise the server the session
// logged into is used. A token from a flag, the environment or config.toml
// wins over the session token.
func Resolve(cmd *cobra.Command) (*Target, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.ClientFlags, config.ClientFlags.Keys())

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}

	session, err := dotdir.NewManager().LoadSession(configDir)
	if err != nil {
		return nil, err
	}

	t := &Target{
		APITarget: cfg.Client.APITarget,
		Token:     cfg.Client.Token,
		Session:   session,
	}
	if session != nil {
		if t.Token == "" {
			t.Token = session.Token
			t.SessionToken = t.Token != ""
		}
		if session.APITarget != "" && !targetChanged(cmd) {
			t.APITarget = session.APITarget
		}
	}
	return t, nil
}

func targetChanged(cmd *cobra.Command) bool {
	f := cmd.Flags().Lookup(config.ClientFlags[config.FlagAPITarget].Name)
	return f != nil && f.Changed
}

// Client returns an authenticated client for cmd.
func Client(cmd *cobra.Command) (*client.Client, error) {
	t, err := Resolve(cmd)
	if err != nil {
		return nil, err
	}
	if t.Token == "" {
		return nil, ErrNotLoggedIn
	}
	return client.New(t.APITarget, t.Token), nil
}

// ReadSecret reads a password from in. Piped input yields its first line;
// a terminal prompts on out with hidden input.
func ReadSecret(in io.Reader, out io.Writer, prompt string) (string, error) {
	if f, ok := in.(*os.File); ok && isTerminal(f) {
		fmt.Fprint(out, prompt)
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out) // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(secret), nil
	}

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0 && term.IsTerminal(int(f.Fd()))
}

// Context returns the command context, or a background context when the
// command runs outside Execute.
func Context(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
