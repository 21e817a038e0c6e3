package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gdewata/wablast/internal/app"
	"github.com/gdewata/wablast/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the outreach server",
	Long:  `Start the HTTP server, batch dispatcher and reminder scheduler.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// Optional .env for local development; the gateway token usually
	// lives there.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(context.Background())
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
