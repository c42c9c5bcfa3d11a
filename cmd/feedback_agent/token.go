package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/doc-feedback/internal/config"
	"github.com/jonathan/doc-feedback/internal/server"
)

var tokenUserID string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for local development",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(config.NeedAuth); err != nil {
			return err
		}

		userID := uuid.New()
		if tokenUserID != "" {
			parsed, err := uuid.Parse(tokenUserID)
			if err != nil {
				return fmt.Errorf("invalid --user-id: %w", err)
			}
			userID = parsed
		}

		svc, err := server.NewJWTService(cfg.Auth)
		if err != nil {
			return err
		}
		token, expiresAt, err := svc.GenerateToken(userID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "user_id:    %s\n", userID)
		fmt.Fprintf(out, "expires_at: %s\n", expiresAt.Format(time.RFC3339))
		fmt.Fprintf(out, "token:      %s\n", token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user-id", "", "User ID to embed (random when empty)")
	rootCmd.AddCommand(tokenCmd)
}
