// Package app wires the tutoring stack for the daemon, the server-mode
// binary, the CLI and the MCP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/socratic/internal/analytics"
	"github.com/felixgeelhaar/socratic/internal/analyzer"
	"github.com/felixgeelhaar/socratic/internal/auth"
	"github.com/felixgeelhaar/socratic/internal/corpus"
	"github.com/felixgeelhaar/socratic/internal/embedding"
	"github.com/felixgeelhaar/socratic/internal/llm"
	"github.com/felixgeelhaar/socratic/internal/queue"
	"github.com/felixgeelhaar/socratic/internal/retriever"
	"github.com/felixgeelhaar/socratic/internal/tutor"
)

// Stores bundles the persistence backends.
type Stores struct {
	Auth     auth.Repository
	Progress tutor.ProgressStore
	Vectors  retriever.VectorStore
	States   tutor.StateStore
}

// Options configures New. Zero values fall back to offline defaults.
type Options struct {
	Stores    Stores
	Corpus    *corpus.Registry
	Embedder  embedding.Embedder
	LLM       *llm.Registry
	Retrieval retriever.Config
	// Checker is tried before the tree-sitter checker, e.g. the Docker sandbox.
	Checker       analyzer.SyntaxChecker
	SessionMaxAge time.Duration
	Logger        *slog.Logger
}

// App holds all application dependencies
type App struct {
	Auth      *auth.Service
	Tutor     *tutor.Service
	Analytics *analytics.Service
	Retriever *retriever.Retriever
	Corpus    *corpus.Registry
	LLM       *llm.Registry
	Analyzer  *analyzer.Analyzer
	Checker   analyzer.SyntaxChecker
	Progress  tutor.ProgressStore

	stores   Stores
	embedder embedding.Embedder
	producer *queue.Producer
	conn     *queue.Connection
	logger   *slog.Logger
	closers  []func() error
}

// ReindexStatus reports how a reindex request was handled.
type ReindexStatus struct {
	Queued bool                   `json:"queued"`
	JobID  string                 `json:"job_id,omitempty"`
	Result *retriever.IndexResult `json:"result,omitempty"`
}

// New creates an application instance with all dependencies wired
func New(opts Options) (*App, error) {
	if opts.Stores.Auth == nil || opts.Stores.Progress == nil || opts.Stores.Vectors == nil {
		return nil, errors.New("app: auth, progress and vector stores are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := opts.Corpus
	if reg == nil {
		reg = corpus.NewStaticRegistry(corpus.Seed())
	}
	emb := opts.Embedder
	if emb == nil {
		emb = embedding.NewHashEmbedder(DefaultDimension)
	}
	cfg := opts.Retrieval
	if cfg == (retriever.Config{}) {
		cfg = retriever.DefaultConfig()
	}
	llms := opts.LLM
	if llms == nil {
		llms = llm.NewRegistry()
	}

	an := analyzer.New(logger)
	checker := analyzer.NewFallbackChecker(opts.Checker, an, logger)

	var provider llm.Provider
	if p, err := llms.Default(); err == nil {
		provider = p
	} else {
		logger.Warn("no LLM provider configured, tutor runs offline")
	}

	ret := retriever.New(cfg, emb, opts.Stores.Vectors, reg, an, logger)
	t := tutor.New(provider, checker, logger)

	a := &App{
		Auth:      auth.NewService(opts.Stores.Auth, opts.SessionMaxAge),
		Tutor:     tutor.NewService(ret, opts.Stores.Progress, opts.Stores.States, t, checker, logger),
		Analytics: analytics.NewService(opts.Stores.Progress, logger),
		Retriever: ret,
		Corpus:    reg,
		LLM:       llms,
		Analyzer:  an,
		Checker:   checker,
		Progress:  opts.Stores.Progress,
		stores:    opts.Stores,
		embedder:  emb,
		logger:    logger,
	}

	reg.OnReload(func(c *corpus.Corpus) {
		ctx, cancel := context.WithTimeout(context.Background(), queue.DefaultJobTimeout)
		defer cancel()
		if _, err := a.Reindex(ctx, "corpus reloaded", ""); err != nil {
			logger.Error("reindex after corpus reload", "error", err)
		}
	})

	return a, nil
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// EmbedderName identifies the active embedder.
func (a *App) EmbedderName() string {
	return a.embedder.Name()
}

// UseQueue routes reindex requests through RabbitMQ. The connection is
// closed with the app.
func (a *App) UseQueue(conn *queue.Connection) {
	a.conn = conn
	a.producer = queue.NewProducer(conn)
	a.AddCloser(conn.Close)
}

// QueueConnection returns the RabbitMQ connection, or nil when reindexing
// runs inline.
func (a *App) QueueConnection() *queue.Connection {
	return a.conn
}

// Queued reports whether reindexing is delegated to workers.
func (a *App) Queued() bool {
	return a.producer != nil
}

// AddCloser registers a cleanup function run by Close in reverse order.
func (a *App) AddCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Reindex rebuilds the embedding matrix, or queues a job for a worker
// when a producer is set.
func (a *App) Reindex(ctx context.Context, reason, requestedBy string) (*ReindexStatus, error) {
	if a.producer != nil {
		job := queue.NewReindexJob(reason, requestedBy)
		if err := a.producer.PublishReindex(ctx, job); err != nil {
			return nil, err
		}
		return &ReindexStatus{Queued: true, JobID: job.ID.String()}, nil
	}

	res, err := a.Retriever.Index(ctx)
	if err != nil {
		return nil, err
	}
	return &ReindexStatus{Result: res}, nil
}

// EnsureIndexed builds the matrix in-process when no vectors are stored
// for the active embedder.
func (a *App) EnsureIndexed(ctx context.Context) error {
	vecs, err := a.stores.Vectors.LoadVectors(ctx, a.embedder.Name())
	if err != nil {
		return fmt.Errorf("load vectors: %w", err)
	}
	if len(vecs) > 0 {
		return nil
	}
	a.logger.Info("no stored vectors for embedder, indexing corpus", "embedder", a.embedder.Name())
	_, err = a.Retriever.Index(ctx)
	return err
}

// Close releases resources in reverse registration order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
