package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hirepath/intake/internal/auth"
	"github.com/hirepath/intake/internal/candidates"
	"github.com/hirepath/intake/internal/config"
	"github.com/hirepath/intake/internal/db"
	"github.com/hirepath/intake/internal/logger"
)

func main() {
	root := &cobra.Command{
		Use:          "intake",
		Short:        "Conversational recruitment intake bot",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newTokenCmd(), newCandidateCmd(), newMigrateCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var user string
	var expiresIn time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an ops JWT for the protected endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token, expiresAt, err := auth.IssueToken(user, cfg.Auth.JWTSecret, expiresIn)
			if err != nil {
				return err
			}
			fmt.Println(token)
			fmt.Fprintf(os.Stderr, "expires: %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "ops", "subject to embed in the token")
	cmd.Flags().DurationVar(&expiresIn, "expires", 24*time.Hour, "token lifetime")
	return cmd
}

func newCandidateCmd() *cobra.Command {
	candidateCmd := &cobra.Command{
		Use:   "candidate",
		Short: "Candidate record operations",
	}

	var name, phone string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Insert or update a candidate record",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			pool, err := db.Open(ctx, cfg.Postgres)
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer pool.Close()

			repo := candidates.NewRepository(logger.L, pool)
			candidate, err := repo.Upsert(ctx, name, phone)
			if err != nil {
				return err
			}
			fmt.Printf("candidate %s (%s) stored as %s\n", candidate.Name, candidate.NormalizedPhone, candidate.ID)
			return nil
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "candidate full name")
	addCmd.Flags().StringVar(&phone, "phone", "", "candidate phone number")
	_ = addCmd.MarkFlagRequired("name")
	_ = addCmd.MarkFlagRequired("phone")

	candidateCmd.AddCommand(addCmd)
	return candidateCmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := db.Migrate(cfg.Postgres); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}
