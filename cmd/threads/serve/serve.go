// Package servecmder provides the serve command that runs the threads API
// server, its MCP endpoint and the background schedulers.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/threads/pkg/config"
	"github.com/papercomputeco/threads/pkg/logger"
)

type serveCommander struct {
	flags    config.Config
	adminKey string
	jsonLogs bool
	logFile  string

	configDir string
	debug     bool
	viper     *viper.Viper
	logger    *slog.Logger
}

const serveLongDesc string = `Run the threads server.

The server exposes the HTTP API, mounts the MCP endpoint at /mcp and runs
the periodic sweeps that derive calendar events, facts and summaries and
deliver due reminders.

Every flag has a config.toml key and a THREADS_* environment variable, for
example --llm-model, llm.model and THREADS_LLM_MODEL. Set a provider to
"none" to run without it:
  threads serve --llm-provider none --embedding-provider none

Registration endpoints require the admin key when one is set with
--admin-key or THREADS_ADMIN_KEY.`

const serveShortDesc string = "Run the threads server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.ServeFlags, config.ServeFlags.Keys())

			cmder.configDir = configDir
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, &cmder.flags.API.Listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagStorageDriver, &cmder.flags.Storage.Driver)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &cmder.flags.Storage.SQLitePath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgresDSN, &cmder.flags.Storage.PostgresDSN)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagVectorStoreProv, &cmder.flags.VectorStore.Provider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagVectorStoreTgt, &cmder.flags.VectorStore.Target)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingProv, &cmder.flags.Embedding.Provider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingTgt, &cmder.flags.Embedding.Target)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingModel, &cmder.flags.Embedding.Model)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagEmbeddingDims, &cmder.flags.Embedding.Dimensions)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagLLMProvider, &cmder.flags.LLM.Provider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagLLMTarget, &cmder.flags.LLM.Target)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagLLMModel, &cmder.flags.LLM.Model)
	config.AddDurationFlag(cmd, config.ServeFlags, config.FlagLLMTimeout, &cmder.flags.LLM.Timeout)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagTriggerEvery, &cmder.flags.Derivation.TriggerEvery)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagSummaryThreshold, &cmder.flags.Derivation.SummaryThreshold)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagWorkers, &cmder.flags.Derivation.Workers)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventStream, &cmder.flags.EventStream.Provider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagNotifier, &cmder.flags.Notify.Provider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagBlobProvider, &cmder.flags.Blob.Provider)

	cmd.Flags().StringVar(&cmder.adminKey, "admin-key", os.Getenv("THREADS_ADMIN_KEY"), "Key required to register companies and users")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Write logs as JSON")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(c.jsonLogs),
		logger.WithPretty(!c.jsonLogs),
		logger.WithPrefix("threads"),
	)
	if c.logFile != "" {
		fileLogger, closer, err := logger.File(c.logFile, logger.WithDebug(c.debug))
		if err != nil {
			return err
		}
		defer closer.Close()
		c.logger = logger.Multi(c.logger, fileLogger)
	}

	cfg, err := config.FromViper(c.viper)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, err := newStack(ctx, cfg, stackOptions{
		ConfigDir: c.configDir,
		AdminKey:  c.adminKey,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	c.watchConfig(st)

	st.scheduler.Start(ctx)
	defer st.scheduler.Stop()

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)

	go func() {
		if err := st.server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		c.logger.Info("context cancelled, shutting down")
	}

	if err := st.server.Shutdown(); err != nil {
		c.logger.Error("API server shutdown failed", "error", err)
	}
	return nil
}

// watchConfig applies edits to the derivation trigger and summary threshold
// in config.toml to the running policy.
func (c *serveCommander) watchConfig(st *stack) {
	if c.viper.ConfigFileUsed() == "" {
		c.logger.Debug("no config file, hot reload disabled")
		return
	}

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		reloadPolicy(c.viper, st, c.logger, e.Name)
	})
	c.viper.WatchConfig()
}

func reloadPolicy(v *viper.Viper, st *stack, log *slog.Logger, file string) {
	cfg, err := config.FromViper(v)
	if err != nil {
		log.Warn("config reload failed", "file", file, "error", err)
		return
	}

	st.policy.SetTriggerEvery(int(cfg.Derivation.TriggerEvery))
	st.policy.SetSummaryThreshold(int(cfg.Derivation.SummaryThreshold))
	log.Info("derivation policy reloaded",
		"file", file,
		"trigger_every", cfg.Derivation.TriggerEvery,
		"summary_threshold", cfg.Derivation.SummaryThreshold,
	)
}
