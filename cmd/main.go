package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andychuong/ai-study-companion-sub000/internal/app"
)

var (
	Version    = "dev"
	configPath string
)

func main() {
	root := &cobra.Command{
		Use:           "study-companion",
		Short:         "Event-driven tutoring workflows: transcript analysis, practice, suggestions, nudges",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (yaml, json or toml); env vars override it")

	root.AddCommand(serveCmd())
	root.AddCommand(workerCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(enqueueCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (app.Config, error) {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return app.Config{}, err
	}
	if cfg.Version == "" || cfg.Version == "dev" {
		cfg.Version = Version
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}
