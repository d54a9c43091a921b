// Foliod is the folio HTTP API service.
//
// Usage:
//
//	# Start the API with defaults
//	foliod
//
//	# Apply migrations and exit
//	foliod migrate
//
//	# Configure via environment
//	FOLIO_SERVER_HTTP_PORT=9090 FOLIO_AUTH_JWT_SECRET=... foliod serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "foliod",
		Short: "folio resume API service",
		Long: `foliod serves the folio API: resume persistence, billing webhooks
and AI drafting. Running it without a subcommand starts the server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/folio/config.yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP API",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE:  runMigrate,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, _ []string) {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "foliod by Fyrsmith Labs\n")
				fmt.Fprintf(out, "Version:    %s\n", version)
				fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
				fmt.Fprintf(out, "Build Date: %s\n", buildDate)
			},
		},
	)
	return root
}
