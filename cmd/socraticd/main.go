package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/felixgeelhaar/socratic/internal/app"
	"github.com/felixgeelhaar/socratic/internal/auth"
	"github.com/felixgeelhaar/socratic/internal/config"
	"github.com/felixgeelhaar/socratic/internal/daemon"
	"github.com/felixgeelhaar/socratic/internal/queue"
)

const (
	pidFileName = "socraticd.pid"
	version     = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SOCRATIC_MODE=server reads everything from the environment and
	// stores data in PostgreSQL.
	if os.Getenv("SOCRATIC_MODE") == "server" {
		return runServer(ctx)
	}
	return runLocal(ctx)
}

func runLocal(ctx context.Context) error {
	dir, err := config.EnsureSocraticDir()
	if err != nil {
		return fmt.Errorf("ensure socratic dir: %w", err)
	}

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logFile, err := setupLogging(dir, parseLogLevel(cfg.Daemon.LogLevel))
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logFile.Close()

	pidPath := filepath.Join(dir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	a, err := app.FromLocal(ctx, cfg, dir, slog.Default())
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Close()

	if cfg.Corpus.Watch && a.Corpus.Path() != "" {
		go func() {
			if err := a.Corpus.Watch(ctx); err != nil {
				slog.Warn("corpus watcher stopped", "error", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Daemon.Bind, cfg.Daemon.Port)
	return serve(ctx, a, daemon.ServerConfig{Addr: addr, Admins: cfg.Auth.Admins}, cfg.Auth.ReapSchedule)
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := parseLogLevel(cfg.LogLevel)
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	a, err := app.FromEnv(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Close()

	return serve(ctx, a, daemon.ServerConfig{Addr: ":" + strconv.Itoa(cfg.Port), Admins: cfg.Admins}, "@every 1h")
}

// serve runs the HTTP server until ctx is cancelled, along with the
// session reaper and, when queued, the reindex result listener.
func serve(ctx context.Context, a *app.App, sc daemon.ServerConfig, reapSchedule string) error {
	if err := a.EnsureIndexed(ctx); err != nil {
		slog.Warn("initial indexing failed; retrieval disabled until reindex", "error", err)
	}

	reaper, err := auth.NewReaper(a.Auth, reapSchedule, slog.Default())
	if err != nil {
		return fmt.Errorf("create session reaper: %w", err)
	}
	reaper.Start()
	defer reaper.Stop()

	if conn := a.QueueConnection(); conn != nil {
		results := queue.NewResultConsumer(conn)
		results.OnAny(func(res *queue.ReindexResult) {
			if res.Status == queue.StatusCompleted {
				slog.Info("worker reindexed corpus", "job_id", res.JobID, "snippets", res.Snippets)
				a.Retriever.Invalidate()
				return
			}
			slog.Warn("reindex job did not complete", "job_id", res.JobID, "status", res.Status, "error", res.Error)
		})
		if err := results.Start(ctx); err != nil {
			slog.Warn("failed to listen for reindex results", "error", err)
		} else {
			defer results.Stop()
		}
	}

	sc.App, sc.Version = a, version
	server, err := daemon.NewServer(sc)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	return runUntilDone(ctx, server)
}

// runUntilDone runs server until ctx is cancelled, then drains it for up to 30s.
func runUntilDone(ctx context.Context, server *daemon.Server) error {
	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		slog.Info("shutting down", "cause", context.Cause(ctx))
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		stopped <- server.Shutdown(drainCtx)
	}()

	if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	if err := <-stopped; err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("daemon stopped")
	return nil
}

// parseLogLevel accepts slog's names in any case; anything else is info.
func parseLogLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func setupLogging(dir string, level slog.Level) (*os.File, error) {
	logPath := filepath.Join(dir, "logs", "socraticd.log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	slog.SetDefault(slog.New(fanout{
		slog.NewJSONHandler(logFile, opts),
		slog.NewTextHandler(os.Stderr, opts),
	}))

	return logFile, nil
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}
