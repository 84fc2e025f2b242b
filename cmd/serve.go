package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/linesmerrill/police-dispatch-api/api/handlers"
	"github.com/linesmerrill/police-dispatch-api/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the HTTP API, the socket.io and websocket notification
transports and the assignment sweep.

Configuration is read from the environment: DB_URI, DB_NAME, PORT,
JWT_SECRET, TOKEN_TTL, REDIS_URL, DB_TRANSACTIONS, REQUEST_TIMEOUT and
SWEEP_SCHEDULE.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := handlers.App{}
	a.Config = *config.New()

	if err := a.Initialize(ctx); err != nil { //initialize database and router
		return err
	}
	return a.Run(ctx)
}
