package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/jonathan/portfolio-analyzer/internal/analysis"
	"github.com/jonathan/portfolio-analyzer/internal/observability"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the status, progress and message of an analysis job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	jobID, err := parseID(args[0], "job ID")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.tracker.Get(cmd.Context(), jobID)
	if err != nil {
		return err
	}
	status := &analysis.JobStatus{
		JobID:    job.ID,
		Target:   job.Target,
		Status:   job.Status,
		Progress: job.Progress,
		Message:  job.Message(),
	}

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintJobStatus(status)
	return nil
}
