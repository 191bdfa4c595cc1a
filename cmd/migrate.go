package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andychuong/ai-study-companion-sub000/internal/app"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := logger.NewWithOptions(cfg.Log)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()
			store, err := app.OpenDB(log, cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			log.Info("Schema is up to date")
			return nil
		},
	}
}
