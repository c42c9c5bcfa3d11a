package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/doc-feedback/internal/config"
	"github.com/jonathan/doc-feedback/internal/db"
	"github.com/jonathan/doc-feedback/internal/pipeline"
	"github.com/jonathan/doc-feedback/internal/server"
)

var (
	servePort      int
	serveNoMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the feedback job API server",
	Long: `Start an HTTP server that accepts feedback jobs and runs them in the background.

On startup, jobs left PROCESSING by a previous process are marked FAILED so they can be
retried, and PENDING jobs are scheduled again.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	serveCmd.Flags().BoolVar(&serveNoMigrate, "no-migrate", false, "Skip applying database migrations on startup")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if err := cfg.Validate(config.NeedDatabase, config.NeedGemini, config.NeedGoogle, config.NeedAuth); err != nil {
		return err
	}
	log := zap.S().Named("serve")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.Database.AutoMigrate && !serveNoMigrate {
		if err := database.Migrate(ctx); err != nil {
			return err
		}
	}

	runner, _, closeRunner, err := newRunner(ctx, database)
	if err != nil {
		return err
	}
	defer closeRunner()

	// Runs outlive request contexts; base is cancelled only after the HTTP server has stopped.
	base, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()
	scheduler := pipeline.NewScheduler(base, runner, database, cfg.Pipeline.JobTimeout)

	report, err := scheduler.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover unfinished jobs: %w", err)
	}
	log.Infow("startup recovery finished", "failed", report.Failed, "rescheduled", report.Rescheduled)

	srv, err := server.New(pipeline.NewService(database, scheduler), server.Options{
		Server:    cfg.Server,
		RateLimit: cfg.RateLimit,
		Auth:      cfg.Auth,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serveErr := srv.Run(ctx)

	log.Infow("interrupting in-flight jobs")
	cancelRuns()
	scheduler.Wait()
	return serveErr
}
