// Package authcmder provides the register, login and logout commands that
// manage the client session stored in the .threads/ directory.
package authcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/threads/api"
	"github.com/papercomputeco/threads/cmd/threads/remote"
	"github.com/papercomputeco/threads/pkg/client"
	"github.com/papercomputeco/threads/pkg/cliui"
	"github.com/papercomputeco/threads/pkg/dotdir"
)

type authCommander struct {
	remote   remote.Flags
	company  string
	adminKey string
	noSave   bool

	configDir string
	in        io.Reader
	out       io.Writer
}

const registerLongDesc string = `Register a user under a company and log in as them.

The password is read from stdin when piped and prompted for otherwise.
Registration requires the server's admin key when one is configured.

Examples:
  threads register alice --company acme
  echo "$PASSWORD" | threads register alice --company acme --admin-key "$KEY"`

const loginLongDesc string = `Log in and save the session.

The token is stored in session.json in the .threads/ directory and used by
every command that talks to the server. The company may be omitted when the
username is unique across companies.

Examples:
  threads login alice
  threads login alice --company acme --api-target https://threads.example.com`

func NewRegisterCmd() *cobra.Command {
	cmder := &authCommander{}

	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Register a user",
		Long:  registerLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.bind(cmd)
			if cmder.company == "" {
				return errors.New("--company is required")
			}
			return cmder.runRegister(cmd, args[0])
		},
	}

	remote.AddFlags(cmd, &cmder.remote)
	cmd.Flags().StringVarP(&cmder.company, "company", "c", "", "Company to register under")
	cmd.Flags().StringVar(&cmder.adminKey, "admin-key", os.Getenv("THREADS_ADMIN_KEY"), "Server admin key")
	cmd.Flags().BoolVar(&cmder.noSave, "no-login", false, "Register without saving a session")

	return cmd
}

func NewLoginCmd() *cobra.Command {
	cmder := &authCommander{}

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and save the session",
		Long:  loginLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.bind(cmd)
			return cmder.runLogin(cmd, args[0])
		},
	}

	remote.AddFlags(cmd, &cmder.remote)
	cmd.Flags().StringVarP(&cmder.company, "company", "c", "", "Company the user belongs to")

	return cmd
}

func NewLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			if err := dotdir.NewManager().ClearSession(configDir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s Logged out\n", cliui.SuccessMark)
			return nil
		},
	}

	return cmd
}

func (c *authCommander) bind(cmd *cobra.Command) {
	c.configDir, _ = cmd.Flags().GetString("config-dir")
	c.in = cmd.InOrStdin()
	c.out = cmd.OutOrStdout()
}

func (c *authCommander) password() (string, error) {
	password, err := remote.ReadSecret(c.in, c.out, "Password: ")
	if err != nil {
		return "", err
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	return password, nil
}

func (c *authCommander) runRegister(cmd *cobra.Command, username string) error {
	target, err := remote.Resolve(cmd)
	if err != nil {
		return err
	}
	password, err := c.password()
	if err != nil {
		return err
	}

	cl := client.New(target.APITarget, "", client.WithAdminKey(c.adminKey))
	resp, err := cl.Register(remote.Context(cmd), api.RegisterRequest{
		Username:  username,
		Password:  password,
		CompanyID: c.company,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s Registered %s %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(username),
		cliui.DimStyle.Render("("+c.company+")"),
	)
	if c.noSave {
		fmt.Fprintln(c.out)
		return nil
	}
	return c.save(target.APITarget, resp, username, c.company)
}

func (c *authCommander) runLogin(cmd *cobra.Command, username string) error {
	target, err := remote.Resolve(cmd)
	if err != nil {
		return err
	}
	password, err := c.password()
	if err != nil {
		return err
	}

	cl := client.New(target.APITarget, "")
	resp, err := cl.Login(remote.Context(cmd), api.LoginRequest{
		Username:  username,
		Password:  password,
		CompanyID: c.company,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s Logged in as %s\n", cliui.SuccessMark, cliui.NameStyle.Render(username))
	return c.save(target.APITarget, resp, username, c.company)
}

func (c *authCommander) save(apiTarget string, resp *api.AuthResponse, username, company string) error {
	err := dotdir.NewManager().SaveSession(&dotdir.Session{
		APITarget: apiTarget,
		Token:     resp.Token,
		User:      username,
		Company:   company,
	}, c.configDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "  %s %s\n\n",
		cliui.DimStyle.Render("uuid"),
		cliui.IDStyle.Render(resp.UUID),
	)
	return nil
}
