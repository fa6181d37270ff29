package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-faces/internal/event"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process a single uploaded photo",
	Long: `Run the reconciliation pipeline for one object, as if its upload event had arrived.

Examples:
  photo-faces process --bucket photos --key alice/p1.jpg
  photo-faces process --bucket photos --key alice/p1.jpg --json`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().String("bucket", "", "Bucket of the uploaded photo")
	processCmd.Flags().String("key", "", "Object key of the uploaded photo")
	processCmd.Flags().Bool("json", false, "Output as JSON")
	processCmd.MarkFlagRequired("bucket")
	processCmd.MarkFlagRequired("key")
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	handler, err := a.handler(ctx)
	if err != nil {
		return err
	}

	res, err := handler.HandleEvent(ctx, event.PhotoEvent{
		Bucket: mustGetString(cmd, "bucket"),
		Key:    mustGetString(cmd, "key"),
	})
	if mustGetBool(cmd, "json") {
		if jsonErr := outputJSON(res); jsonErr != nil {
			return jsonErr
		}
	} else {
		printEventResult(res)
	}
	return err
}
