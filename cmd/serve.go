package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-faces/internal/constants"
	"github.com/kozaktomas/photo-faces/internal/database"
	"github.com/kozaktomas/photo-faces/internal/sweeper"
	"github.com/kozaktomas/photo-faces/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the event webhook",
	Long: `Start the HTTP server receiving S3 event notifications.

Every notification posted to /api/v1/events is processed synchronously.
Stale detection faces are swept in the background every SWEEP_INTERVAL. With
FACE_HNSW_ENABLED the in-memory index is rebuilt on the same schedule, so faces
enrolled by other processes become searchable within one interval.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("no-sweep", false, "Disable the background sweeper and index rebuilds")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	handler, err := a.handler(ctx)
	if err != nil {
		return err
	}
	associations, err := database.GetAssociationReader(ctx)
	if err != nil {
		return err
	}

	if !mustGetBool(cmd, "no-sweep") {
		store, err := database.GetCollectionWriter(ctx)
		if err != nil {
			return err
		}
		sw := sweeper.New(store, a.cfg.Sweeper, a.logger)
		if rebuilder := database.GetCollectionHNSWRebuilder(); rebuilder != nil {
			sw.SetIndexRebuilder(rebuilder)
		}
		if err := sw.Start(ctx); err != nil {
			return fmt.Errorf("starting sweeper: %w", err)
		}
		defer sw.Stop()
	}

	server := web.NewServer(&a.cfg.Web, web.Dependencies{
		Events:       handler,
		Associations: associations,
		Checks:       a.backends.checks,
	}, a.logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
		cancel()
	}()

	fmt.Printf("Listening for events on http://%s:%d/api/v1/events\n", a.cfg.Web.Host, a.cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
