package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/doc-feedback/internal/analysis"
	"github.com/jonathan/doc-feedback/internal/config"
	"github.com/jonathan/doc-feedback/internal/db"
	"github.com/jonathan/doc-feedback/internal/observability"
	"github.com/jonathan/doc-feedback/internal/pipeline"
	"github.com/jonathan/doc-feedback/internal/types"
)

var (
	runJobID      string
	runJobVerbose bool
)

var runJobCmd = &cobra.Command{
	Use:   "run-job",
	Short: "Run one PENDING feedback job in the foreground",
	Long: `Run the feedback pipeline for an existing PENDING job and print progress as each stage completes.

The run is bounded by FEEDBACK_JOB_TIMEOUT. A job that fails can be reset with the retry API and run again.
A job that is not PENDING is left untouched.`,
	RunE: runJob,
}

func init() {
	runJobCmd.Flags().StringVar(&runJobID, "job-id", "", "ID of the job to run")
	runJobCmd.Flags().BoolVarP(&runJobVerbose, "verbose", "v", false, "Print the document sections and the inserted feedback")
	_ = runJobCmd.MarkFlagRequired("job-id")
	rootCmd.AddCommand(runJobCmd)
}

func runJob(cmd *cobra.Command, _ []string) error {
	jobID, err := uuid.Parse(runJobID)
	if err != nil {
		return fmt.Errorf("invalid --job-id: %w", err)
	}
	if err := cfg.Validate(config.NeedDatabase, config.NeedGemini, config.NeedGoogle); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer database.Close()

	job, err := database.GetFeedbackJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}

	runner, docClient, closeRunner, err := newRunner(ctx, database)
	if err != nil {
		return err
	}
	defer closeRunner()

	printer := observability.NewPrinter(cmd.OutOrStdout())
	if runJobVerbose {
		doc, err := docClient.Fetch(ctx, job.DocumentID)
		if err != nil {
			return err
		}
		result, err := analysis.Analyze(doc)
		if err != nil {
			return err
		}
		printer.PrintSections(result.Sections)
	}

	runner.OnProgress = func(e pipeline.ProgressEvent) {
		printer.PrintProgress(e.Status, e.Progress, e.Step)
		if runJobVerbose && len(e.Items) > 0 {
			printer.PrintFeedbackItems(e.Items)
		}
	}

	// The scheduler owns the timeout and writes the failure if the run is cut short
	scheduler := pipeline.NewScheduler(ctx, runner, database, cfg.Pipeline.JobTimeout)
	scheduler.Schedule(jobID)
	scheduler.Wait()

	final, err := database.GetFeedbackJob(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return err
	}
	if final == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	printer.PrintJob(final)
	if final.Status != types.JobStatusCompleted {
		msg := "no error recorded"
		if final.Error != nil {
			msg = *final.Error
		}
		return fmt.Errorf("job finished as %s: %s", final.Status, msg)
	}
	return nil
}
