// Package companycmder provides the company command for registering
// companies and managing their feature flags, keys and usage.
package companycmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/threads/api"
	"github.com/papercomputeco/threads/cmd/threads/remote"
	"github.com/papercomputeco/threads/pkg/client"
	"github.com/papercomputeco/threads/pkg/cliui"
	"github.com/papercomputeco/threads/pkg/storage"
)

const companyLongDesc string = `Manage companies.

A company groups users and owns their feature flags and pricing. Company
commands authenticate with a company token, passed with --token or
THREADS_CLIENT_TOKEN; "company register" and "company login" print one.

Examples:
  threads company register acme --idle-timeout 10m
  threads company login acme
  threads company flags --token "$TOKEN" --calendar=false
  threads company usage --token "$TOKEN"
  threads company rotate-key --token "$TOKEN"`

const companyShortDesc string = "Manage companies"

var errCompanyToken = errors.New("company commands need a company token; pass --token")

func NewCompanyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: companyShortDesc,
		Long:  companyLongDesc,
	}

	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newRotateKeyCmd())
	cmd.AddCommand(newFlagsCmd())
	cmd.AddCommand(newUsageCmd())

	return cmd
}

// companyClient returns a client holding an explicitly given company token.
// The user session token is never used here.
func companyClient(cmd *cobra.Command) (*client.Client, error) {
	t, err := remote.Resolve(cmd)
	if err != nil {
		return nil, err
	}
	if t.Token == "" || t.SessionToken {
		return nil, errCompanyToken
	}
	return client.New(t.APITarget, t.Token), nil
}

func printToken(w io.Writer, verb string, resp *api.CompanyAuthResponse) {
	fmt.Fprintf(w, "\n  %s %s %s\n", cliui.SuccessMark, verb, cliui.NameStyle.Render(resp.Name))
	fmt.Fprintf(w, "  %s %s\n\n", cliui.DimStyle.Render("token"), cliui.IDStyle.Render(resp.Token))
}

func newRegisterCmd() *cobra.Command {
	var (
		flags    remote.Flags
		adminKey string
		idle     time.Duration
		summary  bool
		facts    bool
		calendar bool
	)

	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Register a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := remote.Resolve(cmd)
			if err != nil {
				return err
			}
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}

			cl := client.New(t.APITarget, "", client.WithAdminKey(adminKey))
			resp, err := cl.RegisterCompany(remote.Context(cmd), api.CompanyRegisterRequest{
				Name:           args[0],
				Password:       password,
				IdleTimeout:    int(idle / time.Second),
				EnableSummary:  &summary,
				EnableFacts:    &facts,
				EnableCalendar: &calendar,
			})
			if err != nil {
				return err
			}
			printToken(cmd.OutOrStdout(), "Registered", resp)
			return nil
		},
	}

	remote.AddFlags(cmd, &flags)
	cmd.Flags().StringVar(&adminKey, "admin-key", os.Getenv("THREADS_ADMIN_KEY"), "Server admin key")
	cmd.Flags().DurationVar(&idle, "idle-timeout", 0, "Finalize users after this much inactivity (0 disables)")
	cmd.Flags().BoolVar(&summary, "summary", true, "Enable summaries")
	cmd.Flags().BoolVar(&facts, "facts", true, "Enable fact extraction")
	cmd.Flags().BoolVar(&calendar, "calendar", true, "Enable the calendar")

	return cmd
}

func newLoginCmd() *cobra.Command {
	var flags remote.Flags

	cmd := &cobra.Command{
		Use:   "login <name>",
		Short: "Log in as a company and print its token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := remote.Resolve(cmd)
			if err != nil {
				return err
			}
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}

			resp, err := client.New(t.APITarget, "").LoginCompany(remote.Context(cmd), api.CompanyLoginRequest{
				Name:     args[0],
				Password: password,
			})
			if err != nil {
				return err
			}
			printToken(cmd.OutOrStdout(), "Logged in as", resp)
			return nil
		},
	}

	remote.AddFlags(cmd, &flags)
	return cmd
}

func newRotateKeyCmd() *cobra.Command {
	var flags remote.Flags

	cmd := &cobra.Command{
		Use:   "rotate-key",
		Short: "Invalidate the company token and issue a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := companyClient(cmd)
			if err != nil {
				return err
			}
			resp, err := cl.RotateKey(remote.Context(cmd))
			if err != nil {
				return err
			}
			printToken(cmd.OutOrStdout(), "Rotated key for", resp)
			return nil
		},
	}

	remote.AddFlags(cmd, &flags)
	return cmd
}

func newFlagsCmd() *cobra.Command {
	var flags remote.Flags

	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Show or change the company feature flags",
		Long: `Show or change the company feature flags.

Only the flags given are changed. With none given the current flags are
printed unchanged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := companyClient(cmd)
			if err != nil {
				return err
			}

			var patch storage.FlagsPatch
			for name, field := range map[string]**bool{
				"summary":  &patch.EnableSummary,
				"facts":    &patch.EnableFacts,
				"calendar": &patch.EnableCalendar,
			} {
				if !cmd.Flags().Changed(name) {
					continue
				}
				v, _ := cmd.Flags().GetBool(name)
				*field = &v
			}

			got, err := cl.UpdateFlags(remote.Context(cmd), patch)
			if err != nil {
				return err
			}
			printFlags(cmd.OutOrStdout(), *got)
			return nil
		},
	}

	remote.AddFlags(cmd, &flags)
	cmd.Flags().Bool("summary", true, "Enable summaries")
	cmd.Flags().Bool("facts", true, "Enable fact extraction")
	cmd.Flags().Bool("calendar", true, "Enable the calendar")

	return cmd
}

func printFlags(w io.Writer, f storage.Flags) {
	fmt.Fprintf(w, "\n  %s\n\n", cliui.HeaderStyle.Render("Feature flags"))
	for _, row := range []struct {
		name string
		on   bool
	}{
		{"summary", f.EnableSummary},
		{"facts", f.EnableFacts},
		{"calendar", f.EnableCalendar},
	} {
		mark := cliui.SuccessMark
		if !row.on {
			mark = cliui.FailMark
		}
		fmt.Fprintf(w, "  %s %s\n", mark, cliui.KeyStyle.Render(row.name))
	}
	fmt.Fprintln(w)
}

func newUsageCmd() *cobra.Command {
	var flags remote.Flags

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show message and token usage with its cost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := companyClient(cmd)
			if err != nil {
				return err
			}
			report, err := cl.Usage(remote.Context(cmd))
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "\n  %s %s\n", cliui.HeaderStyle.Render("Usage"), cliui.NameStyle.Render(report.Company))
			fmt.Fprintf(w, "  %s\n\n", cliui.DimStyle.Render(fmt.Sprintf(
				"%.4f per message, %.6f per token",
				report.Pricing.CostPerMessage, report.Pricing.CostPerToken,
			)))
			fmt.Fprintf(w, "  %-20s %10d msgs %12d tokens %12.4f\n",
				"total", report.Usage.Messages, report.Usage.Tokens, report.Cost)
			for _, u := range report.Users {
				fmt.Fprintf(w, "  %-20s %10d msgs %12d tokens %12.4f\n",
					u.User, u.Usage.Messages, u.Usage.Tokens, u.Cost)
			}
			fmt.Fprintln(w)
			return nil
		},
	}

	remote.AddFlags(cmd, &flags)
	return cmd
}

func readPassword(cmd *cobra.Command) (string, error) {
	password, err := remote.ReadSecret(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: ")
	if err != nil {
		return "", err
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	return password, nil
}
