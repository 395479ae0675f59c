package config

import "time"

const (
	defaultStorageDriver = "sqlite"
	defaultAPIListen     = ":8080"
	defaultClientTarget  = "http://localhost:8080"

	defaultVectorProvider   = "sqlite"
	defaultVectorCollection = "threads"

	defaultOllamaTarget        = "http://localhost:11434"
	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultLLMProvider = "ollama"
	defaultLLMModel    = "llama3.2"
	defaultLLMTimeout  = 30 * time.Second

	defaultTriggerEvery     = 10
	defaultSummaryThreshold = 3000
	defaultSummaryWindow    = 100
	defaultTagWindow        = 20
	defaultToolIterations   = 4
	defaultWorkers          = 4
	defaultQueueSize        = 256

	defaultCalendarInterval = 30 * time.Minute
	defaultIdleInterval     = time.Minute
	defaultReminderInterval = 30 * time.Second
	defaultCatchupInterval  = 10 * time.Minute
	defaultSweepConcurrency = 4

	defaultCompressAlgorithm = "gzip"
	defaultCompressThreshold = 1000
	defaultImportanceCutoff  = 5

	defaultEventStreamProvider = "nop"
	defaultEventStreamTopic    = "threads.entries"

	defaultNotifyProvider = "log"
	defaultBlobProvider   = "local"
	defaultBlobBaseURL    = "http://localhost:8080/blobs"

	defaultTranscriberTimeout = 60 * time.Second
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientTarget,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultOllamaTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		LLM: LLMConfig{
			Provider: defaultLLMProvider,
			Target:   defaultOllamaTarget,
			Model:    defaultLLMModel,
			Timeout:  defaultLLMTimeout,
		},
		Derivation: DerivationConfig{
			TriggerEvery:     defaultTriggerEvery,
			SummaryThreshold: defaultSummaryThreshold,
			SummaryWindow:    defaultSummaryWindow,
			TagWindow:        defaultTagWindow,
			ToolIterations:   defaultToolIterations,
			Workers:          defaultWorkers,
			QueueSize:        defaultQueueSize,
		},
		Scheduler: SchedulerConfig{
			CalendarInterval: defaultCalendarInterval,
			IdleInterval:     defaultIdleInterval,
			ReminderInterval: defaultReminderInterval,
			CatchupInterval:  defaultCatchupInterval,
			Concurrency:      defaultSweepConcurrency,
		},
		Compression: CompressionConfig{
			Algorithm:        defaultCompressAlgorithm,
			LegacyAlgorithm:  defaultCompressAlgorithm,
			Threshold:        defaultCompressThreshold,
			ImportanceCutoff: defaultImportanceCutoff,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
		Notify: NotifyConfig{
			Provider: defaultNotifyProvider,
		},
		Blob: BlobConfig{
			Provider: defaultBlobProvider,
			BaseURL:  defaultBlobBaseURL,
		},
		Transcriber: TranscriberConfig{
			Timeout: defaultTranscriberTimeout,
		},
	}
}
