// Package factscmder provides the facts command for listing and removing
// the facts stored about a user.
package factscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/threads/cmd/threads/remote"
	"github.com/papercomputeco/threads/pkg/cliui"
)

const factsLongDesc string = `List the facts threads has extracted about a user.

Facts are short statements ("lives in Berlin") derived from the user's
messages when the company has fact extraction enabled.

Examples:
  threads facts
  threads facts delete "lives in Berlin"`

func NewFactsCmd() *cobra.Command {
	var (
		flags remote.Flags
		uuid  string
	)

	cmd := &cobra.Command{
		Use:   "facts",
		Short: "List stored facts",
		Long:  factsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := remote.Client(cmd)
			if err != nil {
				return err
			}
			resp, err := cl.Facts(remote.Context(cmd), uuid)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(resp.Facts) == 0 {
				fmt.Fprintf(w, "\n  %s No facts stored for %s.\n\n", cliui.DimStyle.Render("●"), resp.UUID)
				return nil
			}
			fmt.Fprintf(w, "\n  %s %s\n\n", cliui.HeaderStyle.Render("Facts about"), cliui.NameStyle.Render(resp.UUID))
			for _, fact := range resp.Facts {
				fmt.Fprintf(w, "  • %s\n", cliui.ValueStyle.Render(fact))
			}
			fmt.Fprintln(w)
			return nil
		},
	}

	remote.AddFlags(cmd, &flags)
	cmd.PersistentFlags().StringVarP(&uuid, "uuid", "u", "", "User to act on (defaults to the logged in user)")
	cmd.AddCommand(newDeleteCmd(&uuid))

	return cmd
}

func newDeleteCmd(uuid *string) *cobra.Command {
	var flags remote.Flags

	cmd := &cobra.Command{
		Use:   "delete <fact>",
		Short: "Remove a fact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := remote.Client(cmd)
			if err != nil {
				return err
			}
			resp, err := cl.DeleteFact(remote.Context(cmd), *uuid, args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if resp.Removed == 0 {
				fmt.Fprintf(w, "  %s No such fact: %q\n", cliui.WarnStyle.Render("!"), args[0])
				return nil
			}
			fmt.Fprintf(w, "  %s Removed %q\n", cliui.SuccessMark, args[0])
			return nil
		},
	}

	remote.AddFlags(cmd, &flags)
	return cmd
}
