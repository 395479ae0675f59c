// Package threadscmder
package threadscmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/threads/cmd/threads/auth"
	calendarcmder "github.com/papercomputeco/threads/cmd/threads/calendar"
	companycmder "github.com/papercomputeco/threads/cmd/threads/company"
	configcmder "github.com/papercomputeco/threads/cmd/threads/config"
	factscmder "github.com/papercomputeco/threads/cmd/threads/facts"
	historycmder "github.com/papercomputeco/threads/cmd/threads/history"
	searchcmder "github.com/papercomputeco/threads/cmd/threads/search"
	servecmder "github.com/papercomputeco/threads/cmd/threads/serve"
	versioncmder "github.com/papercomputeco/threads/cmd/version"
)

const threadsLongDesc string = `Threads is a multi-tenant conversation memory service.

Clients append chat messages to per-user streams; threads derives facts,
calendar events, topic tags, summaries and a semantic index from them and
serves the recent history back together with that derived context.

Run the server using:
  threads serve          Run the API server, MCP endpoint and schedulers

Talk to a running server using:
  threads login          Log in and save a session
  threads add            Append a message
  threads history        Show recent messages
  threads context        Show the context an assistant would be given
  threads search         Semantic search over your messages`

const threadsShortDesc string = "Threads - conversation memory"

func NewThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: threadsShortDesc,
		Long:  threadsLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .threads/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(companycmder.NewCompanyCmd())
	cmd.AddCommand(authcmder.NewRegisterCmd())
	cmd.AddCommand(authcmder.NewLoginCmd())
	cmd.AddCommand(authcmder.NewLogoutCmd())
	cmd.AddCommand(historycmder.NewAddCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(historycmder.NewContextCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(factscmder.NewFactsCmd())
	cmd.AddCommand(calendarcmder.NewCalendarCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
