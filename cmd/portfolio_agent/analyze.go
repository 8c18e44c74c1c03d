package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/portfolio-analyzer/internal/observability"
	"github.com/jonathan/portfolio-analyzer/internal/types"
)

var analyzeQuiet bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run an analysis in the foreground",
	Long: `Run a portfolio or project analysis synchronously, printing job progress as it
changes. The job is recorded exactly as if it had been started through the API.`,
}

var analyzePortfolioCmd = &cobra.Command{
	Use:   "portfolio <portfolio-id>",
	Short: "Analyze every project of a portfolio and synthesize a portfolio summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyzePortfolio,
}

var analyzeProjectCmd = &cobra.Command{
	Use:   "project <project-id>",
	Short: "Analyze the media of one project and synthesize a project summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyzeProject,
}

func init() {
	analyzeCmd.PersistentFlags().BoolVarP(&analyzeQuiet, "quiet", "q", false, "Only print the final result")
	analyzeCmd.AddCommand(analyzePortfolioCmd, analyzeProjectCmd)
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyzePortfolio(cmd *cobra.Command, args []string) error {
	portfolioID, err := parseID(args[0], "portfolio ID")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, true, progressPrinter(printer))
	if err != nil {
		return err
	}
	defer a.Close()

	jobID, err := a.service.CreateJob(ctx, types.JobTarget{Kind: types.EntityPortfolio, ID: portfolioID})
	if err != nil {
		return err
	}

	result := a.service.RunPortfolioJob(ctx, jobID, portfolioID)
	printer.PrintPortfolioResult(&result)
	if result.JobStatus == types.JobFailed {
		return fmt.Errorf("portfolio analysis failed: %w", result.Err)
	}
	return nil
}

func runAnalyzeProject(cmd *cobra.Command, args []string) error {
	projectID, err := parseID(args[0], "project ID")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, true, progressPrinter(printer))
	if err != nil {
		return err
	}
	defer a.Close()

	jobID, err := a.service.CreateJob(ctx, types.JobTarget{Kind: types.EntityProject, ID: projectID})
	if err != nil {
		return err
	}

	result := a.service.RunProjectJob(ctx, jobID, projectID)
	printer.PrintProjectResult(&result)
	if result.Status != types.AnalysisSuccess {
		return fmt.Errorf("project analysis failed: %w", result.Err)
	}
	return nil
}

func progressPrinter(printer *observability.Printer) func(*types.AnalysisJob) {
	if analyzeQuiet {
		return nil
	}
	return printer.PrintProgress
}
