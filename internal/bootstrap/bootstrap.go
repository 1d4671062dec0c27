package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/knowledge-assistant/internal/config"
	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/core/ports"
	"github.com/kirillkom/knowledge-assistant/internal/core/tools"
	"github.com/kirillkom/knowledge-assistant/internal/core/usecase"
	rediscache "github.com/kirillkom/knowledge-assistant/internal/infrastructure/cache/redis"
	"github.com/kirillkom/knowledge-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/knowledge-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/knowledge-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/knowledge-assistant/internal/infrastructure/rerank"
	"github.com/kirillkom/knowledge-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/knowledge-assistant/internal/infrastructure/tokenizer"
	"github.com/kirillkom/knowledge-assistant/internal/infrastructure/vector/memory"
	"github.com/kirillkom/knowledge-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/knowledge-assistant/internal/infrastructure/websearch"
	"github.com/kirillkom/knowledge-assistant/internal/observability/metrics"
)

const (
	backendQdrant   = "qdrant"
	backendPGVector = "pgvector"
	backendMemory   = "memory"
)

type App struct {
	Config config.Config

	Profiles   *config.AgentProfiles
	Metrics    *metrics.HTTPServerMetrics
	Resilience *resilience.Executor

	RAG   *usecase.RAGOrchestrator
	Agent *usecase.AgentOrchestrator
	Tools *tools.Executor

	closers []func()
}

// New wires every adapter selected by cfg. service labels metrics and
// breaker gauges ("api", "mcp").
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	app := &App{Config: cfg}

	profiles, err := config.LoadAgentProfiles(cfg.AgentProfilesPath)
	if err != nil {
		return nil, fmt.Errorf("load agent profiles: %w", err)
	}
	app.Profiles = profiles

	m := metrics.NewHTTPServerMetrics(service)
	app.Metrics = m

	executor := resilience.NewExecutor(resilienceConfig(cfg)).WithStateObserver(
		func(operation string, _, to resilience.BreakerState) {
			m.RecordBreakerState(service, operation, string(to))
		},
	)
	app.Resilience = executor

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel, executor)
	chat := ollama.NewChatModel(ollamaClient)
	var embedder ports.Embedder = ollama.NewEmbedder(ollamaClient)
	if cfg.RedisAddr != "" {
		rc := rediscache.NewClient(cfg.RedisAddr)
		app.closers = append(app.closers, func() { _ = rc.Close() })
		embedder = rediscache.NewEmbeddingCache(rc, embedder, ollamaClient.EmbedModel(), cfg.EmbedCacheTTL)
	}

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.closers = append(app.closers, func() { _ = db.Close() })
	}

	store, err := newChunkStore(ctx, cfg, db, executor)
	if err != nil {
		app.Close()
		return nil, err
	}

	var catalog ports.SourceCatalog
	if db != nil {
		catalog = postgres.NewSourceCatalog(db)
	}

	var oracle ports.ScoringOracle = rerank.NewLexical()
	if cfg.RerankURL != "" {
		oracle = rerank.NewCrossEncoder(cfg.RerankURL, cfg.RerankModel, executor)
	}

	var searcher ports.WebSearcher
	if cfg.WebSearchURL != "" {
		searcher = websearch.NewSearxNG(cfg.WebSearchURL, executor)
	}
	var publisher ports.WebResultPublisher
	if cfg.NATSURL != "" {
		pub, err := nats.NewPublisher(cfg.NATSURL, cfg.NATSWebResultsSubject, nats.Options{ResilienceExecutor: executor})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init nats publisher: %w", err)
		}
		app.closers = append(app.closers, pub.Close)
		publisher = pub
	}

	counter := tokenizer.NewCounter(cfg.TokenizerEncoding)

	app.RAG = usecase.NewRAGOrchestrator(
		usecase.NewQueryAnalyzer(),
		embedder,
		store,
		usecase.NewHybridRanker(usecase.FusionConfig{
			K:              cfg.RAGRRFK,
			SemanticWeight: cfg.RAGSemanticWeight,
			BM25Weight:     cfg.RAGBM25Weight,
		}),
		usecase.NewReranker(oracle),
		usecase.NewContextAssembler(counter, cfg.RAGMaxContextTokens),
		usecase.NewWebSearchFallback(searcher, publisher, cfg.RAGConfidenceThreshold, cfg.WebSearchMaxResults),
		catalog,
		usecase.RAGConfig{
			Mode:          usecase.RetrievalMode(cfg.RAGRetrievalMode),
			RerankEnabled: cfg.RerankEnabled,
		},
	)

	registry := tools.NewRegistry()
	if err := registry.Register(usecase.NewKnowledgeSearchTool(app.RAG)); err != nil {
		app.Close()
		return nil, fmt.Errorf("register knowledge_search: %w", err)
	}
	if searcher != nil {
		if err := registry.Register(usecase.NewWebSearchTool(searcher, cfg.WebSearchMaxResults)); err != nil {
			app.Close()
			return nil, fmt.Errorf("register web_search: %w", err)
		}
	}

	app.Tools = tools.NewExecutor(registry,
		tools.WithTimeout(cfg.AgentToolTimeout),
		tools.WithCallObserver(func(tool, status string) {
			m.RecordAgentToolCall(service, tool, status)
		}),
	)

	app.Agent = usecase.NewAgentOrchestrator(chat, app.Tools, counter, domain.AgentLimits{
		MaxIterations:  cfg.AgentMaxIterations,
		Timeout:        cfg.AgentTimeout,
		PlannerTimeout: cfg.AgentPlannerTimeout,
		ToolTimeout:    cfg.AgentToolTimeout,
		HistoryTokens:  cfg.AgentHistoryTokens,
	})

	slog.Info("bootstrap_complete",
		"service", service,
		"chunk_store", cfg.ChunkStoreBackend,
		"source_catalog", catalog != nil,
		"reranker", rerankerName(cfg),
		"web_search", searcher != nil,
		"embed_cache", cfg.RedisAddr != "",
		"web_results_publisher", publisher != nil,
		"tools", registry.Names(),
	)
	return app, nil
}

func newChunkStore(ctx context.Context, cfg config.Config, db *sql.DB, executor *resilience.Executor) (ports.ChunkStore, error) {
	switch cfg.ChunkStoreBackend {
	case "", backendQdrant:
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor), nil
	case backendPGVector:
		if db == nil {
			return nil, fmt.Errorf("chunk store %q requires POSTGRES_DSN", backendPGVector)
		}
		if err := postgres.EnsureSchema(ctx, db, cfg.PGVectorDimensions); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return postgres.NewChunkStore(db), nil
	case backendMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown chunk store backend %q", cfg.ChunkStoreBackend)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	threshold := uint32(0)
	if cfg.BreakerFailureThreshold > 0 {
		threshold = uint32(cfg.BreakerFailureThreshold)
	}
	return resilience.Config{
		RetryMaxAttempts:        cfg.RetryMaxAttempts,
		RetryInitialBackoff:     cfg.RetryInitialBackoff,
		RetryMaxBackoff:         cfg.RetryMaxBackoff,
		RetryMultiplier:         cfg.RetryMultiplier,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerFailureThreshold: threshold,
		BreakerRecoveryTimeout:  cfg.BreakerRecoveryTimeout,
	}
}

func rerankerName(cfg config.Config) string {
	if !cfg.RerankEnabled {
		return "disabled"
	}
	if cfg.RerankURL != "" {
		return "cross_encoder"
	}
	return "lexical"
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
