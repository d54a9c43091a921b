// Package main implements the folio CLI for operating a folio server and
// editing resumes from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/folio/internal/auth"
	"github.com/fyrsmithlabs/folio/internal/config"
	"github.com/fyrsmithlabs/folio/pkg/client"
)

var (
	// serverURL is the base URL of the folio API
	serverURL string
	// apiToken authenticates /api/v1 calls
	apiToken string
	version  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "folio",
		Short: "CLI for the folio resume API",
		Long: `folio talks to a running foliod. It checks health, mints development
tokens, manages resumes and edits a resume from a YAML file with autosave.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("FOLIO_SERVER", "http://localhost:8080"), "folio server URL")
	root.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("FOLIO_TOKEN"), "API bearer token (or FOLIO_TOKEN)")

	root.AddCommand(newHealthCmd(), newTokenCmd(), newResumesCmd(), newEditCmd())
	return root
}

func newClient() *client.Client {
	return client.New(serverURL, client.WithToken(apiToken))
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check folio server health",
		Long: `Check the health status of the folio server.

Examples:
  folio health
  folio health --server http://localhost:9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			status, err := newClient().Health(ctx)
			if status != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", status)
			}
			return err
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token signed with the server secret",
		Long: `Mint an HS256 identity token for local development. The signing secret
is read from the folio configuration (FOLIO_AUTH_JWT_SECRET).

Examples:
  export FOLIO_TOKEN=$(folio token --user user_123)`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.Auth.JWTSecret.IsSet() {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			tok, err := auth.IssueToken([]byte(cfg.Auth.JWTSecret.Value()), cfg.Auth.Issuer, userID, email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (subject)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
