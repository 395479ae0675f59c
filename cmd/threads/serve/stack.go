package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/papercomputeco/threads/api"
	"github.com/papercomputeco/threads/api/mcp"
	"github.com/papercomputeco/threads/cmd/threads/sqlitepath"
	"github.com/papercomputeco/threads/pkg/blob"
	blobutils "github.com/papercomputeco/threads/pkg/blob/utils"
	"github.com/papercomputeco/threads/pkg/compress"
	"github.com/papercomputeco/threads/pkg/config"
	"github.com/papercomputeco/threads/pkg/derive"
	"github.com/papercomputeco/threads/pkg/dotdir"
	"github.com/papercomputeco/threads/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/threads/pkg/embeddings/utils"
	eventstreamutils "github.com/papercomputeco/threads/pkg/eventstream/utils"
	"github.com/papercomputeco/threads/pkg/history"
	"github.com/papercomputeco/threads/pkg/llm"
	llmutils "github.com/papercomputeco/threads/pkg/llm/utils"
	notifyutils "github.com/papercomputeco/threads/pkg/notify/utils"
	"github.com/papercomputeco/threads/pkg/scheduler"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/storage/inmemory"
	"github.com/papercomputeco/threads/pkg/storage/postgres"
	"github.com/papercomputeco/threads/pkg/storage/sqlite"
	"github.com/papercomputeco/threads/pkg/stream"
	"github.com/papercomputeco/threads/pkg/tenant"
	"github.com/papercomputeco/threads/pkg/transcribe"
	"github.com/papercomputeco/threads/pkg/usage"
	"github.com/papercomputeco/threads/pkg/vector"
	vectorutils "github.com/papercomputeco/threads/pkg/vector/utils"
	"github.com/papercomputeco/threads/pkg/worker"
)

// providerNone disables an optional provider.
const providerNone = "none"

type stackOptions struct {
	ConfigDir string
	AdminKey  string
	Logger    *slog.Logger
}

// stack is every component "threads serve" runs, wired together.
type stack struct {
	policy    *derive.Policy
	pool      *worker.Pool
	scheduler *scheduler.Scheduler
	server    *api.Server

	// closers run in reverse order on Close.
	closers []io.Closer
	logger  *slog.Logger
}

func newStack(ctx context.Context, cfg *config.Config, o stackOptions) (st *stack, err error) {
	log := o.Logger
	st = &stack{logger: log}
	defer func() {
		if err != nil {
			st.Close()
		}
	}()

	driver, err := newStorageDriver(ctx, cfg.Storage, o.ConfigDir, log)
	if err != nil {
		return st, err
	}
	st.closers = append(st.closers, driver)

	embedder, err := newEmbedder(cfg, log)
	if err != nil {
		return st, err
	}
	if embedder != nil {
		st.closers = append(st.closers, embedder)
	}

	var vectors vector.Driver
	if embedder != nil {
		vectors, err = newVectorDriver(ctx, cfg, o.ConfigDir, log)
		if err != nil {
			return st, err
		}
		if vectors != nil {
			st.closers = append(st.closers, vectors)
		}
	}

	client, err := newLLMClient(cfg.LLM, log)
	if err != nil {
		return st, err
	}
	if client != nil {
		st.closers = append(st.closers, client)
	}

	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: cfg.EventStream.Provider,
		Brokers:      cfg.EventStream.Brokers,
		Topic:        cfg.EventStream.Topic,
		Logger:       o.Logger,
	})
	if err != nil {
		return st, fmt.Errorf("creating event publisher: %w", err)
	}
	st.closers = append(st.closers, publisher)

	notifier, err := notifyutils.NewNotifier(&notifyutils.NewNotifierOpts{
		ProviderType: cfg.Notify.Provider,
		SlackToken:   cfg.Notify.SlackToken,
		SlackChannel: cfg.Notify.SlackChannel,
		Logger:       log,
	})
	if err != nil {
		return st, fmt.Errorf("creating notifier: %w", err)
	}

	blobs, blobDir, err := newBlobStore(ctx, cfg.Blob, o.ConfigDir)
	if err != nil {
		return st, err
	}
	if closer, ok := blobs.(io.Closer); ok {
		st.closers = append(st.closers, closer)
	}

	var transcriber transcribe.Transcriber
	ws, err := transcribe.New(transcribe.Config{URL: cfg.Transcriber.WSURL, Timeout: cfg.Transcriber.Timeout})
	switch {
	case errors.Is(err, transcribe.ErrNotConfigured):
		log.Info("no transcriber configured, audio is stored without a transcript")
	case err != nil:
		return st, fmt.Errorf("creating transcriber: %w", err)
	default:
		transcriber = ws
	}

	codec, err := compress.NewCodec(cfg.Compression.Algorithm, int(cfg.Compression.Threshold), int(cfg.Compression.ImportanceCutoff))
	if err != nil {
		return st, err
	}
	if cfg.Compression.LegacyAlgorithm != "" {
		codec.LegacyAlgorithm = cfg.Compression.LegacyAlgorithm
	}

	st.policy = derive.NewPolicy(derive.PolicyConfig{
		TriggerEvery:     int(cfg.Derivation.TriggerEvery),
		SummaryThreshold: int(cfg.Derivation.SummaryThreshold),
		SummaryWindow:    int(cfg.Derivation.SummaryWindow),
		TagWindow:        int(cfg.Derivation.TagWindow),
		ToolIterations:   int(cfg.Derivation.ToolIterations),
	})

	runner := derive.NewRunner(&derive.RunnerConfig{
		Streams: driver,
		Cursors: driver,
		Codec:   codec,
		Observer: func(kind string, key stream.Key, from, to derive.State) {
			log.Debug("derivation state",
				"kind", kind,
				"stream", key.String(),
				"from", from.String(),
				"to", to.String(),
			)
		},
		Logger: log,
	})

	calendar := derive.NewCalendarExtractor(driver, client, st.policy, log)
	set := derive.Set{
		Facts:    derive.NewFactExtractor(driver, client, st.policy, log),
		Calendar: calendar,
		Summary:  derive.NewSummarizer(driver, client, st.policy, stream.CountTokens, log),
	}
	if vectors != nil {
		set.Vector = derive.NewVectorIndexer(driver, vectors, embedder, log)
		set.Tags = derive.NewTagGenerator(driver, client, embedder, vectors, st.policy, log)
	}

	st.pool, err = worker.NewPool(&worker.Config{
		NumWorkers: cfg.Derivation.Workers,
		QueueSize:  cfg.Derivation.QueueSize,
		Logger:     log,
	})
	if err != nil {
		return st, err
	}
	fanout := derive.NewFanout(st.pool, runner, set, st.policy, log)

	tenants := tenant.New(driver,
		tenant.WithTokenTTL(cfg.Auth.TokenTTL),
		tenant.WithLogger(log),
	)
	meter := usage.NewMeter(driver, driver, storage.Pricing{
		CostPerMessage: cfg.Usage.CostPerMessage,
		CostPerToken:   cfg.Usage.CostPerToken,
	}, log)

	writer := history.NewWriter(&history.WriterConfig{
		Store:       driver,
		Tenants:     tenants,
		Meter:       meter,
		Codec:       codec,
		Fanout:      fanout,
		Blobs:       blobs,
		Transcriber: transcriber,
		Publisher:   publisher,
		LLM:         client,
		Counter:     stream.CountTokens,
		Logger:      log,
	})
	reconciler := history.NewReconciler(&history.ReconcilerConfig{
		Store:    driver,
		Tenants:  tenants,
		Meter:    meter,
		Codec:    codec,
		Embedder: embedder,
		Vectors:  vectors,
		LLM:      client,
		Logger:   log,
	})

	var assistant *derive.CalendarExtractor
	if client != nil {
		assistant = calendar
	}
	manager := history.NewManager(driver, tenants, assistant, log)

	mcpServer, err := mcp.NewServer(mcp.Config{
		Tenants:    tenants,
		Reconciler: reconciler,
		Manager:    manager,
		Logger:     log,
	})
	if err != nil {
		return st, fmt.Errorf("creating MCP server: %w", err)
	}

	st.server, err = api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
		AdminKey:   o.AdminKey,
		BlobDir:    blobDir,
		MCP:        mcpServer.Handler(),
	}, api.Services{
		Tenants:    tenants,
		Meter:      meter,
		Writer:     writer,
		Reconciler: reconciler,
		Manager:    manager,
	}, log)
	if err != nil {
		return st, fmt.Errorf("creating API server: %w", err)
	}

	st.scheduler = scheduler.New(&scheduler.Config{
		Store:            driver,
		Fanout:           fanout,
		Notifier:         notifier,
		CalendarInterval: cfg.Scheduler.CalendarInterval,
		IdleInterval:     cfg.Scheduler.IdleInterval,
		ReminderInterval: cfg.Scheduler.ReminderInterval,
		CatchupInterval:  cfg.Scheduler.CatchupInterval,
		Concurrency:      int(cfg.Scheduler.Concurrency),
		Logger:           log,
	})

	return st, nil
}

// Close drains the worker pool and releases every provider.
func (s *stack) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.logger.Warn("close failed", "error", err)
		}
	}
	s.closers = nil
}

func newStorageDriver(ctx context.Context, c config.StorageConfig, configDir string, log *slog.Logger) (storage.Driver, error) {
	switch c.Driver {
	case "postgres":
		if c.PostgresDSN == "" {
			return nil, errors.New("postgres storage requires --postgres")
		}
		driver, err := postgres.NewDriver(ctx, c.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL storer: %w", err)
		}
		log.Info("using PostgreSQL storage")
		return driver, nil

	case "memory":
		log.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case "", "sqlite":
		path, err := sqlitepath.ResolveSQLitePath(c.SQLitePath, configDir)
		if err != nil {
			return nil, err
		}
		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		log.Info("using SQLite storage", "path", path)
		return driver, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", c.Driver)
	}
}

func newEmbedder(cfg *config.Config, log *slog.Logger) (embeddings.Embedder, error) {
	if cfg.Embedding.Provider == providerNone {
		log.Info("no embedding provider, semantic search and tags are disabled")
		return nil, nil
	}
	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       cfg.Embedding.APIKey,
		Dimensions:   cfg.Embedding.Dimensions,
		Timeout:      cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	log.Info("using embedder",
		"provider", cfg.Embedding.Provider,
		"model", cfg.Embedding.Model,
	)
	return embedder, nil
}

func newVectorDriver(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (vector.Driver, error) {
	c := cfg.VectorStore
	if c.Provider == providerNone {
		log.Info("no vector store, semantic search and tags are disabled")
		return nil, nil
	}

	target := c.Target
	if target == "" && c.Provider == "sqlite" {
		dbPath, err := sqlitepath.ResolveSQLitePath(cfg.Storage.SQLitePath, configDir)
		if err != nil {
			return nil, err
		}
		target = filepath.Join(filepath.Dir(dbPath), "vectors.db")
	}

	vectors, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: c.Provider,
		Target:       target,
		APIKey:       cfg.Embedding.APIKey,
		Collection:   c.Collection,
		Dimensions:   cfg.Embedding.Dimensions,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	log.Info("using vector store", "provider", c.Provider, "target", target)
	return vectors, nil
}

func newLLMClient(c config.LLMConfig, log *slog.Logger) (llm.Client, error) {
	if c.Provider == providerNone {
		log.Info("no chat completion provider, derivations use rule based fallbacks")
		return nil, nil
	}
	client, err := llmutils.NewClient(&llmutils.NewClientOpts{
		ProviderType: c.Provider,
		TargetURL:    c.Target,
		Model:        c.Model,
		APIKey:       c.APIKey,
		Timeout:      c.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat completion client: %w", err)
	}
	log.Info("using chat completion provider", "provider", c.Provider, "model", c.Model)
	return client, nil
}

// newBlobStore returns the attachment store and, for local storage, the
// directory the API serves under /blobs.
func newBlobStore(ctx context.Context, c config.BlobConfig, configDir string) (blob.Store, string, error) {
	if c.Provider == providerNone {
		return nil, "", nil
	}

	dir := c.LocalDir
	if (c.Provider == "" || c.Provider == "local") && dir == "" {
		var err error
		dir, err = dotdir.NewManager().Path(configDir, "blobs")
		if err != nil {
			return nil, "", err
		}
	}

	store, err := blobutils.NewStore(ctx, &blobutils.NewStoreOpts{
		ProviderType: c.Provider,
		LocalDir:     dir,
		BaseURL:      c.BaseURL,
		GCSBucket:    c.GCSBucket,
	})
	if err != nil {
		return nil, "", fmt.Errorf("creating blob store: %w", err)
	}
	if c.Provider == "gcs" {
		dir = ""
	}
	return store, dir, nil
}
