package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linesmerrill/police-dispatch-api/api/scheduler"
	"github.com/linesmerrill/police-dispatch-api/config"
	"github.com/linesmerrill/police-dispatch-api/databases"
	"github.com/linesmerrill/police-dispatch-api/dispatch"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Release units assigned to calls that no longer exist",
	Long: `Run the assignment sweep once. It takes the same lock as the
scheduled sweep, so it is a no-op while a server instance is sweeping.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	conf := config.New()
	ctx, cancel := commandContext(cmd)
	defer cancel()

	db, disconnect, err := connect(ctx, conf)
	if err != nil {
		return err
	}
	defer disconnect()

	coordinator := dispatch.NewCoordinator(dispatch.NewMongoStore(db, conf.Transactions), nil)
	s := scheduler.NewScheduler(conf.SweepSchedule, coordinator, databases.NewSchedulerLockDatabase(db))

	released, err := s.Sweep(ctx)
	if err != nil {
		return err
	}
	if released < 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "sweep is running on another instance")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "released %d units\n", released)
	return nil
}
