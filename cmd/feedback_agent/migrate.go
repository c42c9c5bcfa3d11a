package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/doc-feedback/internal/config"
	"github.com/jonathan/doc-feedback/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(config.NeedDatabase); err != nil {
			return err
		}

		database, err := db.Connect(cmd.Context(), cfg.Database.URL)
		if err != nil {
			return err
		}
		defer database.Close()

		return database.Migrate(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
