// Package main provides the entry point for the portfolio analysis service and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "portfolio_agent",
	Short: "Portfolio analysis service",
	Long: `Portfolio Agent analyzes a creator's portfolio bottom-up: every image and video is
described by a multimodal model, media summaries are synthesized into project summaries,
and project summaries into a portfolio summary. Progress is tracked as an analysis job.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (YAML, JSON or .env); environment variables override defaults")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
