// Package cmd implements the docmind CLI using cobra.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"docmind/internal/config"
)

const version = "0.1.0"

var (
	cfgPath  string
	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "docmind",
	Short:         "docmind AI orchestration and metering service",
	Long:          "docmind routes chat work across LLM providers, runs skills, meters quota and aggregates web search.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	},
}

// Execute runs the CLI with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.Version = version

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level from configuration")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(quotaCmd)
}

// loadConfig reads the configuration named by --config and installs the
// logger it describes.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	setupLogger(cfg.Log)
	return cfg, nil
}
