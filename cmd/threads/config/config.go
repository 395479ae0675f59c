// Package configcmder provides the config command for managing persistent
// threads configuration stored in the .threads/ directory.
package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/threads/pkg/config"
)

const configLongDesc string = `Manage persistent threads configuration.

Configuration is stored as config.toml in the .threads/ directory and provides
default values for command flags. CLI flags and THREADS_* environment
variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example:
  storage.driver, storage.sqlite_path, api.listen,
  llm.provider, llm.model, embedding.model,
  derivation.trigger_every, derivation.summary_threshold

While "threads serve" runs, changes to derivation.trigger_every and
derivation.summary_threshold are picked up without a restart.

Use subcommands to initialize, get, set, or list configuration values:
  threads config init [--preset openai]  Write a config file with defaults
  threads config set <key> <value>       Set a configuration value
  threads config get <key>               Get a configuration value
  threads config list                    List all configuration values`

const configShortDesc string = "Manage persistent threads configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
