package configcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/threads/pkg/cliui"
	"github.com/papercomputeco/threads/pkg/config"
)

const initLongDesc string = `Write a config.toml with default values.

Presets fill the provider settings for a hosted or local model stack.
An existing config file is kept unless --force is given.

Available presets: openai, ollama

Examples:
  threads config init
  threads config init --preset openai`

func newInitCmd() *cobra.Command {
	var (
		preset string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with defaults",
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runInit(cmd.OutOrStdout(), configDir, preset, force)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "ollama",
		"Provider preset ("+strings.Join(config.ValidPresetNames(), ", ")+")")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func runInit(w io.Writer, configDir, preset string, force bool) error {
	cfg, err := config.PresetConfig(preset)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	target := cfger.GetTarget()
	if _, err := os.Stat(target); err == nil && !force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", target)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config file: %w", err)
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s Wrote %s %s\n\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(target),
		cliui.DimStyle.Render("(preset "+preset+")"),
	)
	return nil
}
