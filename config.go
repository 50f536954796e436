package reporter

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/publiclaw/reporter/chunker"
)

// Config holds every tunable for the ingestion pipeline and the MCP server.
// Load reads it from the environment; tests construct it directly.
type Config struct {
	// Credentials.
	OpenAIAPIKey          string `json:"-"`
	CourtListenerAPIToken string `json:"-"`

	// Vector store. When QdrantHost is set the gRPC backend is used;
	// otherwise an embedded store lives under QdrantDBPath.
	QdrantHost   string `json:"qdrant_host"`
	QdrantPort   int    `json:"qdrant_port"`
	QdrantAPIKey string `json:"-"`
	QdrantDBPath string `json:"qdrant_db_path"`

	// Embedding.
	EmbeddingModel string `json:"embedding_model"`
	EmbeddingDim   int    `json:"embedding_dim"`
	EmbedBatchSize int    `json:"embed_batch_size"`

	// Enrichment.
	EnrichmentModel string `json:"enrichment_model"`

	// Chunking budgets, one per document type.
	OpinionChunking chunker.Config `json:"opinion_chunking"`
	OrderChunking   chunker.Config `json:"order_chunking"`

	// Pipeline.
	Workers          int           `json:"workers"`
	ProgressDir      string        `json:"progress_dir"`
	StaleClaim       time.Duration `json:"stale_claim"`
	MaxAttempts      int           `json:"max_attempts"`
	FetchTimeout     time.Duration `json:"fetch_timeout"`
	EnrichTimeout    time.Duration `json:"enrich_timeout"`
	EmbedTimeout     time.Duration `json:"embed_timeout"`
	UpsertTimeout    time.Duration `json:"upsert_timeout"`

	// MCP server.
	DefaultSearchLimit int           `json:"default_search_limit"`
	MaxSearchLimit     int           `json:"max_search_limit"`
	MaxChunkChars      int           `json:"max_chunk_chars"`
	HintMaxHits        int           `json:"hint_max_hits"`
	HintMinScore       float64       `json:"hint_min_score"`
	RequestTimeout     time.Duration `json:"request_timeout"`
	ShutdownGrace      time.Duration `json:"shutdown_grace"`

	LogLevel string `json:"log_level"`
}

// DefaultConfig returns the built-in defaults. Credentials are left empty
// and must come from the environment.
func DefaultConfig() Config {
	return Config{
		QdrantPort:     6334,
		QdrantDBPath:   "./data/qdrant/qdrant_db",
		EmbeddingModel: "text-embedding-3-small",
		EmbeddingDim:   1536,
		EmbedBatchSize: 100,

		EnrichmentModel: "gpt-4o-mini",

		OpinionChunking: chunker.DefaultOpinionConfig(),
		OrderChunking:   chunker.DefaultOrderConfig(),

		Workers:       4,
		ProgressDir:   "./data/progress",
		StaleClaim:    10 * time.Minute,
		MaxAttempts:   3,
		FetchTimeout:  30 * time.Second,
		EnrichTimeout: 60 * time.Second,
		EmbedTimeout:  60 * time.Second,
		UpsertTimeout: 30 * time.Second,

		DefaultSearchLimit: 10,
		MaxSearchLimit:     50,
		MaxChunkChars:      2000,
		HintMaxHits:        3,
		HintMinScore:       0.4,
		RequestTimeout:     30 * time.Second,
		ShutdownGrace:      10 * time.Second,

		LogLevel: "info",
	}
}

// Load builds a Config from the environment. A .env file in the working
// directory supplies defaults without overriding real environment variables.
// Validation failures report every offending variable in one error.
func Load() (Config, error) {
	_ = godotenv.Load() // missing .env is fine

	cfg := DefaultConfig()
	var bad []string

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.CourtListenerAPIToken = os.Getenv("COURT_LISTENER_API_TOKEN")

	cfg.QdrantHost = os.Getenv("QDRANT_HOST")
	cfg.QdrantAPIKey = os.Getenv("QDRANT_API_KEY")
	envString("QDRANT_DB_PATH", &cfg.QdrantDBPath)
	envInt("QDRANT_PORT", &cfg.QdrantPort, &bad)

	envInt("MCP_DEFAULT_SEARCH_LIMIT", &cfg.DefaultSearchLimit, &bad)
	envInt("MCP_MAX_SEARCH_LIMIT", &cfg.MaxSearchLimit, &bad)
	envInt("MCP_MAX_CHUNK_CHARS", &cfg.MaxChunkChars, &bad)
	envInt("MCP_HINT_MAX_HITS", &cfg.HintMaxHits, &bad)
	envFloat("MCP_HINT_MIN_SCORE", &cfg.HintMinScore, &bad)
	envString("MCP_LOG_LEVEL", &cfg.LogLevel)

	envInt("RAG_WORKERS", &cfg.Workers, &bad)
	envInt("RAG_EMBED_BATCH_SIZE", &cfg.EmbedBatchSize, &bad)
	envString("RAG_PROGRESS_DIR", &cfg.ProgressDir)
	envDuration("RAG_STALE_CLAIM", &cfg.StaleClaim, &bad)
	envInt("RAG_MAX_ATTEMPTS", &cfg.MaxAttempts, &bad)

	loadChunking("RAG_OPINION", &cfg.OpinionChunking, &bad)
	loadChunking("RAG_ORDER", &cfg.OrderChunking, &bad)

	if err := cfg.OpinionChunking.Validate(); err != nil {
		bad = append(bad, fmt.Sprintf("RAG_OPINION_* (%v)", err))
	}
	if err := cfg.OrderChunking.Validate(); err != nil {
		bad = append(bad, fmt.Sprintf("RAG_ORDER_* (%v)", err))
	}
	if cfg.DefaultSearchLimit < 1 || cfg.DefaultSearchLimit > cfg.MaxSearchLimit {
		bad = append(bad, "MCP_DEFAULT_SEARCH_LIMIT (must be in [1, MCP_MAX_SEARCH_LIMIT])")
	}
	if cfg.Workers < 1 {
		bad = append(bad, "RAG_WORKERS (must be >= 1)")
	}

	if len(bad) > 0 {
		return cfg, fmt.Errorf("%w: %s", ErrConfig, strings.Join(bad, "; "))
	}
	return cfg, nil
}

// RequireOpenAI fails with ErrConfig when no OpenAI key is configured.
// Ingestion and the MCP server both need it; info/delete commands do not.
func (c Config) RequireOpenAI() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrConfig)
	}
	return nil
}

// RequireCourtListener fails with ErrConfig when the CourtListener token is
// missing. Only opinion ingestion and the opinion resource need it.
func (c Config) RequireCourtListener() error {
	if c.CourtListenerAPIToken == "" {
		return fmt.Errorf("%w: COURT_LISTENER_API_TOKEN is not set", ErrConfig)
	}
	return nil
}

func loadChunking(prefix string, cfg *chunker.Config, bad *[]string) {
	envInt(prefix+"_MIN_TOKENS", &cfg.MinTokens, bad)
	envInt(prefix+"_TARGET_TOKENS", &cfg.TargetTokens, bad)
	envInt(prefix+"_MAX_TOKENS", &cfg.MaxTokens, bad)
	envFloat(prefix+"_OVERLAP_RATIO", &cfg.OverlapRatio, bad)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int, bad *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*bad = append(*bad, key+" (not an integer)")
		return
	}
	*dst = n
}

func envFloat(key string, dst *float64, bad *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*bad = append(*bad, key+" (not a number)")
		return
	}
	*dst = f
}

func envDuration(key string, dst *time.Duration, bad *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*bad = append(*bad, key+" (not a duration)")
		return
	}
	*dst = d
}
