package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docprompt/docprompt/api"
	"github.com/docprompt/docprompt/db"
	"github.com/docprompt/docprompt/internal/completions"
	"github.com/docprompt/docprompt/internal/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := db.Migrate(a.cfg.PostgresURL()); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	retriever := completions.NewRetriever(a.store, a.client)
	limiter := ratelimit.New(a.cfg.CompletionsRPS, a.cfg.CompletionsBurst)
	orch := completions.NewOrchestrator(retriever, a.store, a.client, limiter, a.logger)

	server := api.NewServer(a.store, orch, a.indexer, a.logger)
	return server.Run(ctx, a.cfg.Addr)
}
