package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docprompt/docprompt/internal/config"
	"github.com/docprompt/docprompt/internal/embeddings"
	"github.com/docprompt/docprompt/internal/log"
	"github.com/docprompt/docprompt/internal/openai"
	"github.com/docprompt/docprompt/internal/store"
)

// app bundles the wired components shared by the serve and index commands.
type app struct {
	cfg     *config.Config
	logger  log.Logger
	store   *store.Store
	client  *openai.Client
	indexer *embeddings.Indexer
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logger := log.New(log.Config{
		Level: logLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	st, err := store.Connect(ctx, cfg.PostgresConnectionString(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	client := openai.NewClient(cfg.OpenAIAPIKey)
	indexer := embeddings.NewIndexer(st, client, logger, cfg.SalesEmail)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		client:  client,
		indexer: indexer,
	}, nil
}

func (a *app) close() {
	a.store.Close()
}

func logLevel(level string) slog.Level {
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
