package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Listen: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Storage: %s\n", cfg.Storage.Path)
	fmt.Printf("  Gateway: %s\n", cfg.Gateway.BaseURL)
	fmt.Printf("  Timezone: %s\n", cfg.Timezone)

	return nil
}
