package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"docmind/internal/container"
)

var overridePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&overridePort, "port", 0, "override server port from configuration")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort < 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	ctx := cmd.Context()
	c, err := container.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			slog.Warn("close store", "err", err)
		}
	}()

	return c.Server().Run(ctx)
}
