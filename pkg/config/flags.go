package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --api-target
// on "threads history", "threads search" and "threads context").
type Flag struct {
	// Name is the long flag name (e.g. "sqlite").
	Name string

	// Shorthand is the one-letter short flag (e.g. "s"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "storage.sqlite_path").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPIListen        = "api-listen"
	FlagStorageDriver    = "storage-driver"
	FlagSQLite           = "sqlite"
	FlagPostgresDSN      = "postgres-dsn"
	FlagVectorStoreProv  = "vector-store-provider"
	FlagVectorStoreTgt   = "vector-store-target"
	FlagEmbeddingProv    = "embedding-provider"
	FlagEmbeddingTgt     = "embedding-target"
	FlagEmbeddingModel   = "embedding-model"
	FlagEmbeddingDims    = "embedding-dimensions"
	FlagLLMProvider      = "llm-provider"
	FlagLLMTarget        = "llm-target"
	FlagLLMModel         = "llm-model"
	FlagLLMTimeout       = "llm-timeout"
	FlagTriggerEvery     = "trigger-every"
	FlagSummaryThreshold = "summary-threshold"
	FlagWorkers          = "workers"
	FlagEventStream      = "eventstream-provider"
	FlagNotifier         = "notify-provider"
	FlagBlobProvider     = "blob-provider"
	FlagAPITarget        = "api-target"
	FlagToken            = "token"
)

// ServeFlags is the registry used by "threads serve".
var ServeFlags = FlagSet{
	FlagAPIListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
	FlagStorageDriver: {
		Name:        "storage",
		ViperKey:    "storage.driver",
		Description: "Storage driver (sqlite, postgres, memory)",
	},
	FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to SQLite database",
	},
	FlagPostgresDSN: {
		Name:        "postgres",
		ViperKey:    "storage.postgres_dsn",
		Description: "PostgreSQL connection string",
	},
	FlagVectorStoreProv: {
		Name:        "vector-store-provider",
		ViperKey:    "vector_store.provider",
		Description: "Vector store provider (sqlite, qdrant, memory)",
	},
	FlagVectorStoreTgt: {
		Name:        "vector-store-target",
		ViperKey:    "vector_store.target",
		Description: "Vector store target (file path or qdrant host:port)",
	},
	FlagEmbeddingProv: {
		Name:        "embedding-provider",
		ViperKey:    "embedding.provider",
		Description: "Embedding provider (ollama, openai)",
	},
	FlagEmbeddingTgt: {
		Name:        "embedding-target",
		ViperKey:    "embedding.target",
		Description: "Embedding provider URL",
	},
	FlagEmbeddingModel: {
		Name:        "embedding-model",
		ViperKey:    "embedding.model",
		Description: "Embedding model name",
	},
	FlagEmbeddingDims: {
		Name:        "embedding-dimensions",
		ViperKey:    "embedding.dimensions",
		Description: "Embedding dimensionality",
	},
	FlagLLMProvider: {
		Name:        "llm-provider",
		ViperKey:    "llm.provider",
		Description: "Chat completion provider (ollama, openai)",
	},
	FlagLLMTarget: {
		Name:        "llm-target",
		ViperKey:    "llm.target",
		Description: "Chat completion provider URL",
	},
	FlagLLMModel: {
		Name:        "llm-model",
		ViperKey:    "llm.model",
		Description: "Chat completion model name",
	},
	FlagLLMTimeout: {
		Name:        "llm-timeout",
		ViperKey:    "llm.timeout",
		Description: "Timeout for embedding and chat completion calls",
	},
	FlagTriggerEvery: {
		Name:        "trigger-every",
		ViperKey:    "derivation.trigger_every",
		Description: "Run batch derivations every N appends to a stream (0 disables)",
	},
	FlagSummaryThreshold: {
		Name:        "summary-threshold",
		ViperKey:    "derivation.summary_threshold",
		Description: "Minimum token count before a summary is generated",
	},
	FlagWorkers: {
		Name:        "workers",
		ViperKey:    "derivation.workers",
		Description: "Number of derivation workers",
	},
	FlagEventStream: {
		Name:        "eventstream",
		ViperKey:    "eventstream.provider",
		Description: "Event stream provider (nop, kafka)",
	},
	FlagNotifier: {
		Name:        "notifier",
		ViperKey:    "notify.provider",
		Description: "Reminder notifier (log, slack)",
	},
	FlagBlobProvider: {
		Name:        "blob",
		ViperKey:    "blob.provider",
		Description: "Attachment storage (local, gcs)",
	},
}

// ClientFlags is the registry used by client commands talking to the API.
var ClientFlags = FlagSet{
	FlagAPITarget: {
		Name:        "api-target",
		Shorthand:   "a",
		ViperKey:    "client.api_target",
		Description: "threads API server URL",
	},
	FlagToken: {
		Name:        "token",
		Shorthand:   "t",
		ViperKey:    "client.token",
		Description: "Bearer token (defaults to the token saved by 'threads login')",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddDurationFlag registers a duration flag on cmd from the given FlagSet.
func AddDurationFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *time.Duration) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultDuration(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().DurationVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().DurationVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// Keys returns every registry key in fs.
func (fs FlagSet) Keys() []string {
	keys := make([]string, 0, len(fs))
	for k := range fs {
		keys = append(keys, k)
	}
	return keys
}

func defaultViper() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	return defaultViper().GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	return defaultViper().GetUint(viperKey)
}

func defaultDuration(viperKey string) time.Duration {
	return defaultViper().GetDuration(viperKey)
}
