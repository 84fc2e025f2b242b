// Package cmd holds the police-dispatch-api command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linesmerrill/police-dispatch-api/config"
	"github.com/linesmerrill/police-dispatch-api/databases"
)

// commandTimeout bounds the database work of one off commands
const commandTimeout = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:   "police-dispatch-api",
	Short: "911 call dispatch API",
	Long: `police-dispatch-api serves the 911 call and unit dispatch API.

Run without a subcommand to start the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect opens the database named by conf for one off commands
func connect(ctx context.Context, conf *config.Config) (databases.DatabaseHelper, func(), error) {
	client, err := databases.NewClient(conf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create new client: %w", err)
	}
	if err := client.Connect(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	disconnect := func() {
		if err := client.Disconnect(ctx); err != nil {
			zap.S().Warnw("failed to disconnect from database", "error", err)
		}
	}
	return databases.NewDatabase(conf, client), disconnect, nil
}

// commandContext derives the context for a one off command from cmd
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, commandTimeout)
}
