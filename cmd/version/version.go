// Package versioncmder
package versioncmder

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/threads/pkg/cliui"
	"github.com/papercomputeco/threads/pkg/utils"
)

type versionCommander struct {
	short bool
	out   io.Writer
}

func NewVersionCmd() *cobra.Command {
	cmder := &versionCommander{out: os.Stdout}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the threads version",
		Long:  "Print the version, commit and build time of this threads binary.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run()
		},
	}

	cmd.Flags().BoolVar(&cmder.short, "short", false, "Print only the version")

	return cmd
}

func (c *versionCommander) run() error {
	if c.short {
		_, err := fmt.Fprintln(c.out, utils.Version)
		return err
	}

	_, err := fmt.Fprintf(c.out, "%s %s\n%s %s\n%s %s\n",
		cliui.KeyStyle.Render("Version: "), cliui.ValueStyle.Render(utils.Version),
		cliui.KeyStyle.Render("Sha:     "), cliui.ValueStyle.Render(utils.Sha),
		cliui.KeyStyle.Render("Built at:"), cliui.ValueStyle.Render(utils.Buildtime),
	)
	return err
}
