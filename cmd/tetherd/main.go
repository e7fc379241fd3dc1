// tetherd is the session lifecycle daemon. It serves the local HTTP API
// against SQLite by default, or Postgres when DATABASE_URL is set, and
// optionally feeds lifecycle events to RabbitMQ.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tetherapp/tether/internal/config"
	"github.com/tetherapp/tether/internal/daemon"
	"github.com/tetherapp/tether/internal/queue"
	"github.com/tetherapp/tether/internal/repository"
	"github.com/tetherapp/tether/internal/session"
	"github.com/tetherapp/tether/internal/storage/sqlite"
)

const pidFileName = "tetherd.pid"

func main() {
	if err := run(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// A .env in the working directory is a development convenience.
	_ = godotenv.Load()

	tetherDir, err := config.EnsureTetherDir()
	if err != nil {
		return fmt.Errorf("ensure tether dir: %w", err)
	}

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env, err := config.Load()
	if err != nil {
		return fmt.Errorf("load environment: %w", err)
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Daemon.Port = p
		}
	}

	logLevel := parseLogLevel(cfg.Daemon.LogLevel)
	if env.Debug {
		logLevel = slog.LevelDebug
	}
	logFile, err := setupLogging(tetherDir, logLevel)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	pidPath := filepath.Join(tetherDir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx := context.Background()

	stores, backend, closeStores, err := setupStores(ctx, cfg, env)
	if err != nil {
		return err
	}
	defer closeStores()

	publisher, closeFeed := setupFeed(cfg, env)
	if closeFeed != nil {
		defer closeFeed()
	}

	server, err := daemon.NewServer(ctx, daemon.ServerConfig{
		Config:    cfg,
		Stores:    stores,
		Backend:   backend,
		Publisher: publisher,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		slog.Info("received signal, shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		close(done)
	}()

	if err := server.Start(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	slog.Info("daemon stopped")
	return nil
}

// setupStores wires the persistence backend: Postgres when DATABASE_URL
// is set, the local SQLite file otherwise.
func setupStores(ctx context.Context, cfg *config.LocalConfig, env *config.Config) (daemon.Stores, string, func(), error) {
	if env.DatabaseURL != "" {
		pool, err := repository.Connect(ctx, env.DatabaseURL)
		if err != nil {
			return daemon.Stores{}, "", nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := repository.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return daemon.Stores{}, "", nil, fmt.Errorf("ensure schema: %w", err)
		}

		stores := daemon.Stores{
			Sessions: repository.NewPostgresSessionRepository(pool),
			Events:   repository.NewPostgresEventRepository(pool),
			Settings: repository.NewPostgresSettingsRepository(pool),
			Goals:    repository.NewPostgresGoalRepository(pool),
		}
		return stores, "postgres", pool.Close, nil
	}

	dbPath := env.SQLitePath
	if dbPath == "" {
		var err error
		dbPath, err = cfg.DatabasePath()
		if err != nil {
			return daemon.Stores{}, "", nil, fmt.Errorf("resolve database path: %w", err)
		}
	}

	db, err := sqlite.Open(dbPath)
	if err != nil {
		return daemon.Stores{}, "", nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return daemon.Stores{}, "", nil, fmt.Errorf("migrate database: %w", err)
	}

	stores := daemon.Stores{
		Sessions: sqlite.NewSessionStore(db),
		Events:   sqlite.NewEventStore(db),
		Settings: sqlite.NewSettingsStore(db),
		Goals:    sqlite.NewGoalStore(db),
	}
	return stores, "sqlite", func() { db.Close() }, nil
}

// setupFeed connects the outbound lifecycle feed when configured. The
// feed is best-effort: a broker that is down at startup disables it with
// a warning instead of failing the daemon.
func setupFeed(cfg *config.LocalConfig, env *config.Config) (session.EventPublisher, func()) {
	url := env.RabbitMQURL
	if url == "" && cfg.Feed.Enabled {
		url = cfg.Feed.URL
	}
	if url == "" {
		return nil, nil
	}

	conn, err := queue.NewConnection(url)
	if err != nil {
		slog.Warn("lifecycle feed unavailable, continuing without it", "error", err)
		return nil, nil
	}

	resilientCfg := queue.DefaultResilientConfig()
	resilientCfg.Logger = slog.Default()
	publisher := queue.NewResilientPublisher(queue.NewPublisher(conn), resilientCfg)

	return publisher, func() { conn.Close() }
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogging(tetherDir string, level slog.Level) (*os.File, error) {
	logPath := filepath.Join(tetherDir, "logs", "tetherd.log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	// JSON to the log file, text to stderr for foreground mode.
	multi := &multiHandler{
		handlers: []slog.Handler{
			slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}),
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
		},
	}

	slog.SetDefault(slog.New(multi))

	return logFile, nil
}

func writePIDFile(path string) error {
	pid := os.Getpid()
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644)
}

// multiHandler logs to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
