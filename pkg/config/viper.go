package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/papercomputeco/threads/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the THREADS_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (THREADS_API_LISTEN, THREADS_STORAGE_DRIVER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("THREADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)
	for key, info := range configKeys {
		v.SetDefault(key, info.get(d))
	}

	// Typed defaults so viper getters and Unmarshal see the right kinds.
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("derivation.trigger_every", d.Derivation.TriggerEvery)
	v.SetDefault("derivation.summary_threshold", d.Derivation.SummaryThreshold)
	v.SetDefault("derivation.summary_window", d.Derivation.SummaryWindow)
	v.SetDefault("derivation.tag_window", d.Derivation.TagWindow)
	v.SetDefault("derivation.tool_iterations", d.Derivation.ToolIterations)
	v.SetDefault("derivation.workers", d.Derivation.Workers)
	v.SetDefault("derivation.queue_size", d.Derivation.QueueSize)
	v.SetDefault("scheduler.calendar_interval", d.Scheduler.CalendarInterval)
	v.SetDefault("scheduler.idle_interval", d.Scheduler.IdleInterval)
	v.SetDefault("scheduler.reminder_interval", d.Scheduler.ReminderInterval)
	v.SetDefault("scheduler.catchup_interval", d.Scheduler.CatchupInterval)
	v.SetDefault("scheduler.concurrency", d.Scheduler.Concurrency)
	v.SetDefault("compression.threshold", d.Compression.Threshold)
	v.SetDefault("compression.importance_cutoff", d.Compression.ImportanceCutoff)
	v.SetDefault("usage.cost_per_message", d.Usage.CostPerMessage)
	v.SetDefault("usage.cost_per_token", d.Usage.CostPerToken)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("transcriber.timeout", d.Transcriber.Timeout)
}

// FromViper decodes the merged viper state (defaults, file, env and bound
// flags) into a Config.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
	})
	if err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}
