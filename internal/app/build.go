package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/socratic/internal/config"
	"github.com/felixgeelhaar/socratic/internal/corpus"
	"github.com/felixgeelhaar/socratic/internal/embedding"
	"github.com/felixgeelhaar/socratic/internal/llm"
	"github.com/felixgeelhaar/socratic/internal/queue"
	"github.com/felixgeelhaar/socratic/internal/retriever"
	"github.com/felixgeelhaar/socratic/internal/sandbox"
	"github.com/felixgeelhaar/socratic/internal/storage/postgres"
	"github.com/felixgeelhaar/socratic/internal/storage/sqlite"
	"github.com/felixgeelhaar/socratic/internal/tutor"
)

// DefaultDimension is the hash embedder size when none is configured.
const DefaultDimension = 384

// EmbedderSpec selects and configures an embedder.
type EmbedderSpec struct {
	Provider  string // hash, genai, ollama
	Model     string
	Dimension int
	URL       string
	APIKey    string

	// Redis cache; empty Addr disables it
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
}

// NewEmbedder builds the configured embedder, wrapped in a Redis cache
// when one is reachable. The returned closer releases the cache.
func NewEmbedder(ctx context.Context, spec EmbedderSpec, logger *slog.Logger) (embedding.Embedder, func() error, error) {
	noop := func() error { return nil }

	var emb embedding.Embedder
	switch spec.Provider {
	case "", "hash":
		dim := spec.Dimension
		if dim <= 0 {
			dim = DefaultDimension
		}
		emb = embedding.NewHashEmbedder(dim)
	case "genai", "gemini":
		e, err := embedding.NewGenAIEmbedder(ctx, embedding.GenAIConfig{
			APIKey:    spec.APIKey,
			Model:     spec.Model,
			Dimension: spec.Dimension,
		})
		if err != nil {
			return nil, noop, err
		}
		emb = e
	case "ollama":
		emb = embedding.NewOllamaEmbedder(embedding.OllamaConfig{
			BaseURL:   spec.URL,
			Model:     spec.Model,
			Dimension: spec.Dimension,
		})
	default:
		return nil, noop, fmt.Errorf("unknown embedding provider %q", spec.Provider)
	}

	if spec.RedisAddr == "" {
		return emb, noop, nil
	}
	cache, err := embedding.NewRedisCache(ctx, embedding.RedisConfig{
		Addr:     spec.RedisAddr,
		Password: spec.RedisPassword,
		DB:       spec.RedisDB,
	})
	if err != nil {
		logger.Warn("embedding cache unavailable, continuing without it", "addr", spec.RedisAddr, "error", err)
		return emb, noop, nil
	}
	logger.Info("embedding cache enabled", "addr", spec.RedisAddr, "ttl", spec.CacheTTL)
	return embedding.NewCachedEmbedder(emb, cache, spec.CacheTTL, logger), cache.Close, nil
}

// NewLLMRegistry registers every enabled provider that has credentials.
func NewLLMRegistry(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*llm.Registry, error) {
	registry := llm.NewRegistry()

	wrap := func(p llm.Provider) llm.Provider {
		if !cfg.Resilient {
			return p
		}
		rc := llm.DefaultResilientConfig()
		rc.Logger = logger
		return llm.NewResilientProvider(p, rc)
	}

	// Registration order decides the "auto" default.
	for _, name := range []string{"gemini", "claude", "ollama"} {
		pc := cfg.Providers[name]
		if pc == nil || !pc.Enabled {
			continue
		}

		switch name {
		case "gemini":
			if len(pc.APIKeys) == 0 {
				logger.Debug("Gemini provider enabled but no API key set")
				continue
			}
			p, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{
				APIKeys: pc.APIKeys,
				Model:   pc.Model,
				Logger:  logger,
			})
			if err != nil {
				return nil, fmt.Errorf("gemini provider: %w", err)
			}
			registry.Add(name, wrap(p))

		case "claude":
			if pc.APIKey() == "" {
				logger.Debug("Claude provider enabled but no API key set")
				continue
			}
			registry.Add(name, wrap(llm.NewClaudeProvider(llm.ClaudeConfig{
				APIKey: pc.APIKey(),
				Model:  pc.Model,
			})))

		case "ollama":
			registry.Add(name, wrap(llm.NewOllamaProvider(llm.OllamaConfig{
				BaseURL: pc.URL,
				Model:   pc.Model,
			})))
		}
		logger.Info("registered LLM provider", "name", name, "model", pc.Model, "keys", len(pc.APIKeys))
	}

	if cfg.DefaultProvider != "" {
		if err := registry.Prefer(cfg.DefaultProvider); err != nil {
			logger.Warn("default LLM provider not available", "provider", cfg.DefaultProvider, "error", err)
		}
	}
	return registry, nil
}

// retrievalConfig maps the configured scoring onto the retriever. Scores
// are taken as given, zero included; counts below one keep the defaults.
func retrievalConfig(rc config.RetrievalConfig) retriever.Config {
	cfg := retriever.DefaultConfig()
	cfg.ConfidenceThreshold = rc.ConfidenceThreshold
	cfg.SyntaxThreshold = rc.SyntaxThreshold
	cfg.SyntaxBonus = rc.SyntaxBonus
	cfg.SyntaxPenalty = rc.SyntaxPenalty
	cfg.StructurePenalty = rc.StructurePenalty
	if rc.MaxWarmups > 0 {
		cfg.MaxWarmups = rc.MaxWarmups
	}
	if rc.TopK > 0 {
		cfg.TopK = rc.TopK
	}
	return cfg
}

// FromLocal builds the local-mode application rooted at dir (~/.socratic).
func FromLocal(ctx context.Context, cfg *config.LocalConfig, dir string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func() error
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	states, err := tutor.NewFileStateStore(filepath.Join(dir, "state"))
	if err != nil {
		return fail(fmt.Errorf("create state store: %w", err))
	}

	var stores Stores
	switch cfg.Storage.Driver {
	case "", "sqlite":
		db, err := sqlite.Open(cfg.DatabasePath(dir))
		if err != nil {
			return fail(err)
		}
		closers = append(closers, db.Close)
		if err := db.Migrate(); err != nil {
			return fail(fmt.Errorf("migrate: %w", err))
		}
		stores = Stores{
			Auth:     sqlite.NewAuthStore(db),
			Progress: sqlite.NewProgressStore(db),
			Vectors:  sqlite.NewVectorStore(db),
		}
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() error { pool.Close(); return nil })
		if err := postgres.Migrate(ctx, pool); err != nil {
			return fail(err)
		}
		stores = Stores{
			Auth:     postgres.NewAuthStore(pool),
			Progress: postgres.NewProgressStore(pool),
			Vectors:  postgres.NewVectorStore(pool),
		}
	default:
		return fail(fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver))
	}
	stores.States = states

	reg := corpus.NewRegistry(cfg.Corpus.Path, logger)
	if err := reg.Load(); err != nil {
		return fail(fmt.Errorf("load corpus: %w", err))
	}

	spec := EmbedderSpec{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		URL:       cfg.Embedding.URL,
		CacheTTL:  time.Duration(cfg.Embedding.CacheTTLMinutes) * time.Minute,
	}
	if gemini := cfg.LLM.Providers["gemini"]; gemini != nil {
		spec.APIKey = gemini.APIKey()
	}
	if cfg.Redis.Enabled {
		spec.RedisAddr = cfg.Redis.Addr
		spec.RedisPassword = cfg.Redis.Password
		spec.RedisDB = cfg.Redis.DB
	}
	emb, closeCache, err := NewEmbedder(ctx, spec, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeCache)

	llms, err := NewLLMRegistry(ctx, cfg.LLM, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, llms.Close)

	opts := Options{
		Stores:        stores,
		Corpus:        reg,
		Embedder:      emb,
		LLM:           llms,
		Retrieval:     retrievalConfig(cfg.Retrieval),
		SessionMaxAge: time.Duration(cfg.Auth.SessionTTLHours) * time.Hour,
		Logger:        logger,
	}
	if cfg.Sandbox.Enabled {
		checker, err := sandbox.NewDockerChecker(sandbox.Config{
			Image:      cfg.Sandbox.Image,
			MemoryMB:   cfg.Sandbox.MemoryMB,
			NetworkOff: true,
			Timeout:    time.Duration(cfg.Sandbox.TimeoutSeconds) * time.Second,
		}, logger)
		if err != nil {
			logger.Warn("Docker sandbox not available, using tree-sitter syntax checks", "error", err)
		} else {
			opts.Checker = checker
			closers = append(closers, checker.Close)
		}
	}

	a, err := New(opts)
	if err != nil {
		return fail(err)
	}
	a.closers = closers

	if cfg.Queue.Enabled {
		conn, err := queue.NewConnection(cfg.Queue.URL)
		if err != nil {
			logger.Warn("RabbitMQ not available, reindexing inline", "error", err)
		} else {
			a.UseQueue(conn)
		}
	}
	return a, nil
}

// FromEnv builds the server-mode application: PostgreSQL storage and
// in-memory tutoring state.
func FromEnv(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func() error
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() error { pool.Close(); return nil })
	if err := postgres.Migrate(ctx, pool); err != nil {
		return fail(err)
	}

	reg := corpus.NewRegistry(cfg.CorpusPath, logger)
	if err := reg.Load(); err != nil {
		return fail(fmt.Errorf("load corpus: %w", err))
	}

	spec := EmbedderSpec{
		Provider:      cfg.EmbeddingProvider,
		Model:         cfg.EmbeddingModel,
		URL:           cfg.OllamaURL,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		CacheTTL:      24 * time.Hour,
	}
	if len(cfg.LLMAPIKeys) > 0 {
		spec.APIKey = cfg.LLMAPIKeys[0]
	}
	emb, closeCache, err := NewEmbedder(ctx, spec, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeCache)

	llmCfg := config.LLMConfig{DefaultProvider: cfg.LLMProvider, Resilient: true, Providers: map[string]*config.ProviderConfig{}}
	if cfg.LLMProvider != "none" {
		llmCfg.Providers[cfg.LLMProvider] = &config.ProviderConfig{
			Enabled: true,
			Model:   cfg.LLMModel,
			URL:     cfg.OllamaURL,
			APIKeys: cfg.LLMAPIKeys,
		}
	} else {
		llmCfg.DefaultProvider = ""
	}
	llms, err := NewLLMRegistry(ctx, llmCfg, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, llms.Close)

	a, err := New(Options{
		Stores: Stores{
			Auth:     postgres.NewAuthStore(pool),
			Progress: postgres.NewProgressStore(pool),
			Vectors:  postgres.NewVectorStore(pool),
			States:   tutor.NewMemoryStateStore(),
		},
		Corpus:        reg,
		Embedder:      emb,
		LLM:           llms,
		Retrieval:     retrievalConfig(cfg.Retrieval),
		SessionMaxAge: cfg.SessionMaxAge,
		Logger:        logger,
	})
	if err != nil {
		return fail(err)
	}
	a.closers = closers

	if cfg.RabbitMQURL != "" {
		conn, err := queue.NewConnection(cfg.RabbitMQURL)
		if err != nil {
			return fail(fmt.Errorf("connect rabbitmq: %w", err))
		}
		a.UseQueue(conn)
	}
	return a, nil
}
