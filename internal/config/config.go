package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIPort  string
	LogLevel string

	PostgresDSN        string
	ChunkStoreBackend  string
	PGVectorDimensions int

	OllamaURL        string
	OllamaChatModel  string
	OllamaEmbedModel string

	QdrantURL        string
	QdrantCollection string

	RerankURL     string
	RerankModel   string
	RerankEnabled bool

	WebSearchURL        string
	WebSearchMaxResults int

	RedisAddr     string
	EmbedCacheTTL time.Duration

	NATSURL               string
	NATSWebResultsSubject string

	TokenizerEncoding string

	RAGRRFK                int
	RAGSemanticWeight      float64
	RAGBM25Weight          float64
	RAGConfidenceThreshold float64
	RAGMaxContextTokens    int
	RAGRetrievalMode       string

	AgentMaxIterations  int
	AgentTimeout        time.Duration
	AgentPlannerTimeout time.Duration
	AgentToolTimeout    time.Duration
	AgentHistoryTokens  int
	AgentProfilesPath   string
	MCPAgent            string

	RetryMaxAttempts        int
	RetryInitialBackoff     time.Duration
	RetryMaxBackoff         time.Duration
	RetryMultiplier         float64
	BreakerEnabled          bool
	BreakerFailureThreshold int
	BreakerRecoveryTimeout  time.Duration

	APIRateLimitRPS     float64
	APIRateLimitBurst   int
	APIRateLimitIdleTTL time.Duration
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		PostgresDSN:        mustEnv("POSTGRES_DSN", ""),
		ChunkStoreBackend:  mustEnv("CHUNK_STORE_BACKEND", "qdrant"),
		PGVectorDimensions: mustEnvInt("PGVECTOR_DIMENSIONS", 768),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaChatModel:  mustEnv("OLLAMA_CHAT_MODEL", "llama3.1:8b"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),

		QdrantURL:        mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "chunks"),

		RerankURL:     mustEnv("RERANK_URL", ""),
		RerankModel:   mustEnv("RERANK_MODEL", "bge-reranker-v2-m3"),
		RerankEnabled: mustEnvBool("RERANK_ENABLED", true),

		WebSearchURL:        mustEnv("WEB_SEARCH_URL", ""),
		WebSearchMaxResults: mustEnvInt("WEB_SEARCH_MAX_RESULTS", 5),

		RedisAddr:     mustEnv("REDIS_ADDR", ""),
		EmbedCacheTTL: mustEnvDuration("EMBED_CACHE_TTL", 24*time.Hour),

		NATSURL:               mustEnv("NATS_URL", ""),
		NATSWebResultsSubject: mustEnv("NATS_WEB_RESULTS_SUBJECT", "knowledge.web_results"),

		TokenizerEncoding: mustEnv("TOKENIZER_ENCODING", "cl100k_base"),

		RAGRRFK:                mustEnvInt("RAG_RRF_K", 60),
		RAGSemanticWeight:      mustEnvFloat("RAG_SEMANTIC_WEIGHT", 0.7),
		RAGBM25Weight:          mustEnvFloat("RAG_BM25_WEIGHT", 0.3),
		RAGConfidenceThreshold: mustEnvFloat("RAG_CONFIDENCE_THRESHOLD", 0.5),
		RAGMaxContextTokens:    mustEnvInt("RAG_MAX_CONTEXT_TOKENS", 2000),
		RAGRetrievalMode:       mustEnv("RAG_RETRIEVAL_MODE", "hybrid"),

		AgentMaxIterations:  mustEnvInt("AGENT_MAX_ITERATIONS", 5),
		AgentTimeout:        mustEnvDuration("AGENT_TIMEOUT", 90*time.Second),
		AgentPlannerTimeout: mustEnvDuration("AGENT_PLANNER_TIMEOUT", 30*time.Second),
		AgentToolTimeout:    mustEnvDuration("AGENT_TOOL_TIMEOUT", 20*time.Second),
		AgentHistoryTokens:  mustEnvInt("AGENT_HISTORY_TOKENS", 3000),
		AgentProfilesPath:   mustEnv("AGENT_PROFILES_PATH", ""),
		MCPAgent:            mustEnv("MCP_AGENT", ""),

		RetryMaxAttempts:        mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoff:     mustEnvDuration("RETRY_INITIAL_BACKOFF", 200*time.Millisecond),
		RetryMaxBackoff:         mustEnvDuration("RETRY_MAX_BACKOFF", 2*time.Second),
		RetryMultiplier:         mustEnvFloat("RETRY_MULTIPLIER", 2),
		BreakerEnabled:          mustEnvBool("BREAKER_ENABLED", true),
		BreakerFailureThreshold: mustEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerRecoveryTimeout:  mustEnvDuration("BREAKER_RECOVERY_TIMEOUT", 30*time.Second),

		APIRateLimitRPS:     mustEnvFloat("API_RATE_LIMIT_RPS", 5),
		APIRateLimitBurst:   mustEnvInt("API_RATE_LIMIT_BURST", 10),
		APIRateLimitIdleTTL: mustEnvDuration("API_RATE_LIMIT_IDLE_TTL", 10*time.Minute),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
