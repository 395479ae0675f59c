package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent threads configuration stored as config.toml
// in the .threads/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	LLM         LLMConfig         `toml:"llm"`
	Derivation  DerivationConfig  `toml:"derivation"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	Compression CompressionConfig `toml:"compression"`
	Usage       UsageConfig       `toml:"usage"`
	Auth        AuthConfig        `toml:"auth"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Notify      NotifyConfig      `toml:"notify"`
	Blob        BlobConfig        `toml:"blob"`
	Transcriber TranscriberConfig `toml:"transcriber"`
}

// StorageConfig selects the stream store backend.
type StorageConfig struct {
	// Driver is one of "sqlite", "postgres" or "memory".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running API
// server (e.g. threads history, threads search). APITarget is a full URL.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
	Token     string `toml:"token,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// LLMConfig holds the chat completion provider settings.
type LLMConfig struct {
	Provider string        `toml:"provider,omitempty"`
	Target   string        `toml:"target,omitempty"`
	Model    string        `toml:"model,omitempty"`
	APIKey   string        `toml:"api_key,omitempty"`
	Timeout  time.Duration `toml:"timeout,omitempty"`
}

// DerivationConfig tunes the derivation fan-out. TriggerEvery and
// SummaryThreshold are reloaded while the server runs.
type DerivationConfig struct {
	TriggerEvery     uint `toml:"trigger_every,omitempty"`
	SummaryThreshold uint `toml:"summary_threshold,omitempty"`
	SummaryWindow    uint `toml:"summary_window,omitempty"`
	TagWindow        uint `toml:"tag_window,omitempty"`
	ToolIterations   uint `toml:"tool_iterations,omitempty"`
	Workers          uint `toml:"workers,omitempty"`
	QueueSize        uint `toml:"queue_size,omitempty"`
}

// SchedulerConfig holds the periodic sweep intervals.
type SchedulerConfig struct {
	CalendarInterval time.Duration `toml:"calendar_interval,omitempty"`
	IdleInterval     time.Duration `toml:"idle_interval,omitempty"`
	ReminderInterval time.Duration `toml:"reminder_interval,omitempty"`
	CatchupInterval  time.Duration `toml:"catchup_interval,omitempty"`
	Concurrency      uint          `toml:"concurrency,omitempty"`
}

// CompressionConfig controls text compression at rest.
type CompressionConfig struct {
	Algorithm        string `toml:"algorithm,omitempty"`
	LegacyAlgorithm  string `toml:"legacy_algorithm,omitempty"`
	Threshold        uint   `toml:"threshold,omitempty"`
	ImportanceCutoff uint   `toml:"importance_cutoff,omitempty"`
}

// UsageConfig holds the process wide default prices.
type UsageConfig struct {
	CostPerMessage float64 `toml:"cost_per_message,omitempty"`
	CostPerToken   float64 `toml:"cost_per_token,omitempty"`
}

// AuthConfig holds token settings. A zero TokenTTL issues tokens that never expire.
type AuthConfig struct {
	TokenTTL time.Duration `toml:"token_ttl,omitempty"`
}

// EventStreamConfig selects the domain event publisher.
type EventStreamConfig struct {
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma separated list of host:port pairs.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// NotifyConfig selects how calendar reminders are delivered.
type NotifyConfig struct {
	Provider     string `toml:"provider,omitempty"`
	SlackToken   string `toml:"slack_token,omitempty"`
	SlackChannel string `toml:"slack_channel,omitempty"`
}

// BlobConfig selects where attachments are stored.
type BlobConfig struct {
	Provider  string `toml:"provider,omitempty"`
	LocalDir  string `toml:"local_dir,omitempty"`
	BaseURL   string `toml:"base_url,omitempty"`
	GCSBucket string `toml:"gcs_bucket,omitempty"`
}

// TranscriberConfig holds the speech to text endpoint.
type TranscriberConfig struct {
	WSURL   string        `toml:"ws_url,omitempty"`
	Timeout time.Duration `toml:"timeout,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func durationKey(name string, field func(c *Config) *time.Duration) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return field(c).String()
		},
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = d
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatFloat(*field(c), 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

// orderedKeys lists every supported key in TOML section order.
var orderedKeys = []string{
	"storage.driver",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"api.listen",
	"client.api_target",
	"client.token",
	"vector_store.provider",
	"vector_store.target",
	"vector_store.collection",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.api_key",
	"embedding.dimensions",
	"llm.provider",
	"llm.target",
	"llm.model",
	"llm.api_key",
	"llm.timeout",
	"derivation.trigger_every",
	"derivation.summary_threshold",
	"derivation.summary_window",
	"derivation.tag_window",
	"derivation.tool_iterations",
	"derivation.workers",
	"derivation.queue_size",
	"scheduler.calendar_interval",
	"scheduler.idle_interval",
	"scheduler.reminder_interval",
	"scheduler.catchup_interval",
	"scheduler.concurrency",
	"compression.algorithm",
	"compression.legacy_algorithm",
	"compression.threshold",
	"compression.importance_cutoff",
	"usage.cost_per_message",
	"usage.cost_per_token",
	"auth.token_ttl",
	"eventstream.provider",
	"eventstream.brokers",
	"eventstream.topic",
	"notify.provider",
	"notify.slack_token",
	"notify.slack_channel",
	"blob.provider",
	"blob.local_dir",
	"blob.base_url",
	"blob.gcs_bucket",
	"transcriber.ws_url",
	"transcriber.timeout",
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver":       stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),

	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),
	"client.token":      stringKey(func(c *Config) *string { return &c.Client.Token }),

	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),

	"embedding.provider":   stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":     stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":      stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.api_key":    stringKey(func(c *Config) *string { return &c.Embedding.APIKey }),
	"embedding.dimensions": uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),

	"llm.provider": stringKey(func(c *Config) *string { return &c.LLM.Provider }),
	"llm.target":   stringKey(func(c *Config) *string { return &c.LLM.Target }),
	"llm.model":    stringKey(func(c *Config) *string { return &c.LLM.Model }),
	"llm.api_key":  stringKey(func(c *Config) *string { return &c.LLM.APIKey }),
	"llm.timeout":  durationKey("llm.timeout", func(c *Config) *time.Duration { return &c.LLM.Timeout }),

	"derivation.trigger_every":     uintKey("derivation.trigger_every", func(c *Config) *uint { return &c.Derivation.TriggerEvery }),
	"derivation.summary_threshold": uintKey("derivation.summary_threshold", func(c *Config) *uint { return &c.Derivation.SummaryThreshold }),
	"derivation.summary_window":    uintKey("derivation.summary_window", func(c *Config) *uint { return &c.Derivation.SummaryWindow }),
	"derivation.tag_window":        uintKey("derivation.tag_window", func(c *Config) *uint { return &c.Derivation.TagWindow }),
	"derivation.tool_iterations":   uintKey("derivation.tool_iterations", func(c *Config) *uint { return &c.Derivation.ToolIterations }),
	"derivation.workers":           uintKey("derivation.workers", func(c *Config) *uint { return &c.Derivation.Workers }),
	"derivation.queue_size":        uintKey("derivation.queue_size", func(c *Config) *uint { return &c.Derivation.QueueSize }),

	"scheduler.calendar_interval": durationKey("scheduler.calendar_interval", func(c *Config) *time.Duration { return &c.Scheduler.CalendarInterval }),
	"scheduler.idle_interval":     durationKey("scheduler.idle_interval", func(c *Config) *time.Duration { return &c.Scheduler.IdleInterval }),
	"scheduler.reminder_interval": durationKey("scheduler.reminder_interval", func(c *Config) *time.Duration { return &c.Scheduler.ReminderInterval }),
	"scheduler.catchup_interval":  durationKey("scheduler.catchup_interval", func(c *Config) *time.Duration { return &c.Scheduler.CatchupInterval }),
	"scheduler.concurrency":       uintKey("scheduler.concurrency", func(c *Config) *uint { return &c.Scheduler.Concurrency }),

	"compression.algorithm":         stringKey(func(c *Config) *string { return &c.Compression.Algorithm }),
	"compression.legacy_algorithm":  stringKey(func(c *Config) *string { return &c.Compression.LegacyAlgorithm }),
	"compression.threshold":         uintKey("compression.threshold", func(c *Config) *uint { return &c.Compression.Threshold }),
	"compression.importance_cutoff": uintKey("compression.importance_cutoff", func(c *Config) *uint { return &c.Compression.ImportanceCutoff }),

	"usage.cost_per_message": floatKey("usage.cost_per_message", func(c *Config) *float64 { return &c.Usage.CostPerMessage }),
	"usage.cost_per_token":   floatKey("usage.cost_per_token", func(c *Config) *float64 { return &c.Usage.CostPerToken }),

	"auth.token_ttl": durationKey("auth.token_ttl", func(c *Config) *time.Duration { return &c.Auth.TokenTTL }),

	"eventstream.provider": stringKey(func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.brokers":  stringKey(func(c *Config) *string { return &c.EventStream.Brokers }),
	"eventstream.topic":    stringKey(func(c *Config) *string { return &c.EventStream.Topic }),

	"notify.provider":      stringKey(func(c *Config) *string { return &c.Notify.Provider }),
	"notify.slack_token":   stringKey(func(c *Config) *string { return &c.Notify.SlackToken }),
	"notify.slack_channel": stringKey(func(c *Config) *string { return &c.Notify.SlackChannel }),

	"blob.provider":   stringKey(func(c *Config) *string { return &c.Blob.Provider }),
	"blob.local_dir":  stringKey(func(c *Config) *string { return &c.Blob.LocalDir }),
	"blob.base_url":   stringKey(func(c *Config) *string { return &c.Blob.BaseURL }),
	"blob.gcs_bucket": stringKey(func(c *Config) *string { return &c.Blob.GCSBucket }),

	"transcriber.ws_url":  stringKey(func(c *Config) *string { return &c.Transcriber.WSURL }),
	"transcriber.timeout": durationKey("transcriber.timeout", func(c *Config) *time.Duration { return &c.Transcriber.Timeout }),
}
