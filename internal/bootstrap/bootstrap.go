package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/danieledinun/aitreon-sub004/internal/config"
	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
	"github.com/danieledinun/aitreon-sub004/internal/core/usecase"
	rediscache "github.com/danieledinun/aitreon-sub004/internal/infrastructure/cache/redis"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/chunking"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/graph/neo4j"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/llm/langchain"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/llm/ollama"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/queue/nats"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/repository/postgres"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/resilience"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/storage/localfs"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/transcript"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/vector/inmemory"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/vector/qdrant"
)

const graphProbeTTL = 30 * time.Second

type App struct {
	Config     config.Config
	Heuristics config.Heuristics

	Queue     ports.MessageQueue
	Chunker   ports.Chunker
	Videos    *usecase.VideoUseCase
	Ingest    *usecase.IngestVideoUseCase
	Retriever *usecase.RetrieveUseCase

	closers []func()
}

type options struct {
	queueLag func(time.Duration)
}

type Option func(*options)

// WithQueueLagObserver reports the delay between publishing and consuming ingest messages.
func WithQueueLagObserver(fn func(time.Duration)) Option {
	return func(o *options) { o.queueLag = fn }
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	app := &App{Config: cfg}
	fail := func(err error) (*App, error) {
		app.Close()
		return nil, err
	}

	heuristics, err := config.LoadHeuristics(cfg.HeuristicsFile)
	if err != nil {
		return fail(fmt.Errorf("load heuristics: %w", err))
	}
	app.Heuristics = heuristics

	executor := resilience.NewExecutor(resilienceConfig(cfg))

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return fail(fmt.Errorf("open postgres: %w", err))
	}
	app.onClose(func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return fail(fmt.Errorf("ensure schema: %w", err))
	}
	videoRepo, chunkRepo := newRepositories(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return fail(fmt.Errorf("init transcript storage: %w", err))
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		MaxInFlight:        cfg.WorkerConcurrency,
		ResilienceExecutor: executor,
		LagObserver:        o.queueLag,
	})
	if err != nil {
		return fail(fmt.Errorf("init message queue: %w", err))
	}
	app.onClose(queue.Close)
	app.Queue = queue

	embedder, embedModel, err := newEmbedder(cfg, executor)
	if err != nil {
		return fail(fmt.Errorf("init embedder: %w", err))
	}

	var lock ports.IngestLock
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		app.onClose(func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("ping redis: %w", err))
		}
		ttl := time.Duration(cfg.EmbeddingCacheTTLSecs) * time.Second
		embedder = rediscache.NewCachedEmbedder(embedder, client, embedModel, ttl)
		lock = rediscache.NewIngestLock(client)
	} else {
		slog.Info("redis_disabled", "effect", "no embedding cache, no cross-worker ingest lock")
	}

	store, err := newPassageStore(cfg, executor)
	if err != nil {
		return fail(err)
	}

	var (
		graphBackend ports.GraphBackend
		graphIndexer ports.GraphIndexer
	)
	if cfg.Neo4jURI != "" {
		backend, err := neo4j.New(neo4j.Config{
			URI:      cfg.Neo4jURI,
			Username: cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
			ProbeTTL: graphProbeTTL,
		}, executor)
		if err != nil {
			return fail(fmt.Errorf("init graph backend: %w", err))
		}
		app.onClose(func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = backend.Close(closeCtx)
		})
		if err := backend.EnsureSchema(ctx); err != nil {
			// Retrieval degrades to vector search while the graph is unreachable.
			slog.Warn("graph_schema_init_failed", "error", err)
		}
		graphBackend = backend
		graphIndexer = backend
	} else {
		slog.Info("graph_backend_disabled")
	}

	chunker := chunking.NewSemanticChunker(heuristics.Chunking)
	app.Chunker = chunker

	ingestOptions := make([]usecase.IngestOption, 0, 2)
	if graphIndexer != nil {
		ingestOptions = append(ingestOptions, usecase.WithGraphIndexer(graphIndexer))
	}
	if lock != nil {
		ingestOptions = append(ingestOptions, usecase.WithIngestLock(lock))
	}

	app.Videos = usecase.NewVideoUseCase(videoRepo, chunkRepo, storage, queue, store, graphIndexer)
	app.Ingest = usecase.NewIngestVideoUseCase(
		videoRepo,
		chunkRepo,
		chunker,
		embedder,
		store,
		transcript.NewArchiveSource(storage),
		ingestOptionsFromConfig(cfg, heuristics),
		ingestOptions...,
	)
	app.Retriever = usecase.NewRetrieveUseCase(
		embedder,
		store,
		graphBackend,
		videoRepo,
		usecase.NewQueryRouter(graphBackend, heuristics.Routing, millis(cfg.GraphProbeTimeoutMs)),
		usecase.NewLexicalReranker(cfg.RerankTopN),
		retrieveOptionsFromConfig(cfg),
	)

	slog.Info("bootstrap_ready",
		"embedding_provider", cfg.EmbeddingProvider,
		"embedding_model", embedModel,
		"vector_backend", cfg.VectorBackend,
		"graph_enabled", graphBackend != nil,
		"redis_enabled", lock != nil,
		"chunk_mode", cfg.ChunkMode,
	)
	return app, nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newRepositories(db *sql.DB) (*postgres.VideoRepository, *postgres.ChunkRepository) {
	return postgres.NewVideoRepository(db), postgres.NewChunkRepository(db)
}

func newEmbedder(cfg config.Config, executor *resilience.Executor) (ports.Embedder, string, error) {
	switch cfg.EmbeddingProvider {
	case "", "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, executor)
		return ollama.NewEmbedder(client), cfg.OllamaEmbedModel, nil
	case "openai":
		embedder, err := langchain.NewOpenAIEmbedder(langchain.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.OpenAIEmbedModel,
			BaseURL:   cfg.OpenAIBaseURL,
			Dimension: cfg.EmbeddingDimension,
		}, executor)
		if err != nil {
			return nil, "", err
		}
		return embedder, cfg.OpenAIEmbedModel, nil
	default:
		return nil, "", fmt.Errorf("unsupported embedding provider %q", cfg.EmbeddingProvider)
	}
}

func newPassageStore(cfg config.Config, executor *resilience.Executor) (ports.PassageStore, error) {
	switch cfg.VectorBackend {
	case "", "qdrant":
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor), nil
	case "memory":
		slog.Warn("vector_backend_in_memory", "effect", "passages are lost on restart")
		return inmemory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported vector backend %q", cfg.VectorBackend)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	out.RetryInitialBackoff = millis(cfg.ResilienceRetryInitialMs)
	out.RetryMaxBackoff = millis(cfg.ResilienceRetryMaxMs)
	out.AttemptTimeout = millis(cfg.ResilienceAttemptTimeoutMs)
	out.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	out.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	out.BreakerOpenTimeout = time.Duration(cfg.ResilienceBreakerOpenSeconds) * time.Second
	return out
}

func ingestOptionsFromConfig(cfg config.Config, heuristics config.Heuristics) usecase.IngestOptions {
	return usecase.IngestOptions{
		Chunk:              heuristics.ChunkOptionsFor(cfg.ChunkMode),
		EmbedBatchSize:     cfg.IngestEmbedBatchSize,
		EmbedRatePerSecond: cfg.IngestEmbedRatePerSec,
		LockTTL:            time.Duration(cfg.IngestLockTTLSeconds) * time.Second,
	}
}

func retrieveOptionsFromConfig(cfg config.Config) usecase.RetrieveOptions {
	opts := usecase.DefaultRetrieveOptions()
	opts.DefaultK = cfg.RetrieveDefaultK
	opts.MaxK = cfg.RetrieveMaxK
	opts.OverFetch = cfg.RetrieveOverFetch
	opts.EmbedTimeout = millis(cfg.EmbedTimeoutMs)
	opts.GraphTimeout = millis(cfg.GraphTimeoutMs)
	return opts
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
