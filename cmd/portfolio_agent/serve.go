package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/portfolio-analyzer/internal/server"
	"github.com/jonathan/portfolio-analyzer/internal/server/ratelimit"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes REST endpoints for starting portfolio and project
analyses and reading job status. Analyses run in the background; poll GET /jobs/{id}
or stream GET /jobs/{id}/events.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (defaults to PORT or 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(context.WithoutCancel(ctx), cfg, true, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(server.Config{
		Port:           cfg.Port,
		AllowedOrigins: cfg.Origins(),
		RateLimit:      ratelimit.LoadConfig(),
	}, a.service, a.db, a.logger.Logger)

	return srv.Start(ctx)
}
