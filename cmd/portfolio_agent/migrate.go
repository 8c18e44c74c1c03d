package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/portfolio-analyzer/internal/db"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			return err
		}
		return printVersion(cmd, cfg.DatabaseURL)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back applied migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if migrateSteps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		if err := db.RollbackMigrations(cfg.DatabaseURL, migrateSteps); err != nil {
			return err
		}
		return printVersion(cmd, cfg.DatabaseURL)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		return printVersion(cmd, cfg.DatabaseURL)
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func printVersion(cmd *cobra.Command, databaseURL string) error {
	version, dirty, err := db.MigrationVersion(databaseURL)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch {
	case version == 0:
		_, err = fmt.Fprintln(out, "schema version: none")
	case dirty:
		_, err = fmt.Fprintf(out, "schema version: %d (dirty)\n", version)
	default:
		_, err = fmt.Fprintf(out, "schema version: %d\n", version)
	}
	return err
}
