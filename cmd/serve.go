package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/amacdonaldai/gen-bionic/db"
	"github.com/amacdonaldai/gen-bionic/internal/api"
	"github.com/amacdonaldai/gen-bionic/internal/chat"
	"github.com/amacdonaldai/gen-bionic/internal/config"
	"github.com/amacdonaldai/gen-bionic/internal/log"
	"github.com/amacdonaldai/gen-bionic/internal/model"
	"github.com/amacdonaldai/gen-bionic/internal/session"
	"github.com/amacdonaldai/gen-bionic/internal/tools"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // SSE streaming needs longer timeout
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// runServe initializes and starts the HTTP API server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info("starting HTTP API server", "version", Version)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	pool, err := session.NewPool(ctx, cfg.PostgresURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	store, err := session.NewStore(pool, logger)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}

	models, err := model.NewGenkit(ctx, logger)
	if err != nil {
		return fmt.Errorf("initializing model client: %w", err)
	}

	registry, err := buildRegistry(cfg, models, logger)
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}
	for _, t := range registry.DefineAll(models.Genkit()) {
		models.AddTool(t)
	}

	engine, err := chat.New(chat.Config{
		Store:        store,
		Models:       models,
		Registry:     registry,
		Logger:       logger,
		SystemPrompt: cfg.SystemPrompt,
		DefaultModel: cfg.FullModelName(),
		RateLimit:    rate.Limit(cfg.RateLimit),
		RateBurst:    cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating turn engine: %w", err)
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger: logger,
		Store:  store,
		Engine: engine,
		Pool:   pool,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.Addr,
		"api", "/api/v1/*",
		"model", cfg.FullModelName(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}

// buildRegistry assembles the built-in tool set. generateImage is only
// registered when an OpenAI key is available for the image endpoint.
func buildRegistry(cfg *config.Config, models model.Client, logger log.Logger) (*tools.Registry, error) {
	rc := tools.RegistryConfig{
		Searcher:  tools.NewWebSearcher(tools.WebSearcherConfig{}),
		Wikipedia: tools.NewWikipediaClient(tools.WikipediaClientConfig{}),
		Arxiv:     tools.NewArxivClient(tools.ArxivClientConfig{}),
		Models:    models,
		ModelName: cfg.FullModelName(),
	}

	if cfg.OpenAIAPIKey != "" {
		images, err := tools.NewImageGenerator(tools.ImageGeneratorConfig{APIKey: cfg.OpenAIAPIKey})
		if err != nil {
			return nil, err
		}
		rc.Images = images
	} else {
		logger.Warn("OPENAI_API_KEY not set, generateImage tool disabled")
	}

	return tools.NewDefaultRegistry(rc)
}

func newLogger(cfg *config.Config) log.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return log.New(log.Config{Level: level, JSON: cfg.LogJSON})
}
