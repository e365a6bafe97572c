package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docprompt/docprompt/db"
	"github.com/docprompt/docprompt/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	fmt.Println("migrations applied")
	return nil
}
