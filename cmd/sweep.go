package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-faces/internal/database"
	"github.com/kozaktomas/photo-faces/internal/sweeper"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete stale detection faces once",
	Long: `Delete detection faces older than SWEEP_MAX_AGE from every collection.

Detection faces are normally deleted at the end of each run. The sweep removes
any left behind by a crashed process. Enrolled faces are never touched.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	store, err := database.GetCollectionWriter(ctx)
	if err != nil {
		return err
	}

	n, err := sweeper.New(store, cfg.Sweeper, logger).SweepOnce(ctx)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Printf("Deleted %d stale faces\n", n)
	fmt.Printf("Max age: %s\n", cfg.Sweeper.MaxAge)
	return nil
}
