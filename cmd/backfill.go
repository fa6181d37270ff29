package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-faces/internal/event"
	"github.com/kozaktomas/photo-faces/internal/pipeline"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Process every photo already in a bucket",
	Long: `List the objects under a prefix and run the pipeline for each, one at a time.

Objects with unsupported extensions or without uploader metadata are skipped,
exactly as they would be for live events.

Examples:
  photo-faces backfill --bucket photos
  photo-faces backfill --bucket photos --prefix alice/`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)

	backfillCmd.Flags().String("bucket", "", "Bucket to backfill")
	backfillCmd.Flags().String("prefix", "", "Only process keys under this prefix")
	backfillCmd.Flags().Bool("dry-run", false, "List the keys that would be processed")
	backfillCmd.MarkFlagRequired("bucket")
}

// backfillSummary counts event results by status.
type backfillSummary struct {
	counts map[pipeline.Status]int
	faces  int
	match  int
}

func (s *backfillSummary) add(res *pipeline.EventResult) {
	s.counts[res.Status]++
	if res.Report != nil {
		s.faces += res.Report.Detected
		s.match += res.Report.Matched
	}
}

func runBackfill(cmd *cobra.Command, args []string) error {
	bucket := mustGetString(cmd, "bucket")
	prefix := mustGetString(cmd, "prefix")
	dryRun := mustGetBool(cmd, "dry-run")
	ctx := context.Background()
	startTime := time.Now()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var keys []string
	err = a.objects.ListKeys(ctx, bucket, prefix, func(key string) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing %s/%s: %w", bucket, prefix, err)
	}
	fmt.Printf("Found %d objects in %s/%s\n", len(keys), bucket, prefix)

	if dryRun {
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	}

	handler, err := a.handler(ctx)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(keys),
		progressbar.OptionSetDescription("Reconciling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	summary := &backfillSummary{counts: make(map[pipeline.Status]int)}
	var failures []error
	for _, key := range keys {
		res, err := handler.HandleEvent(ctx, event.PhotoEvent{Bucket: bucket, Key: key})
		if err != nil {
			failures = append(failures, err)
		}
		summary.add(res)
		bar.Add(1)
	}
	bar.Finish()
	fmt.Println()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	green.Printf("Processed %d photos", summary.counts[pipeline.StatusProcessed])
	fmt.Printf(", matched %d of %d faces\n", summary.match, summary.faces)
	if n := summary.counts[pipeline.StatusSkippedExtension] + summary.counts[pipeline.StatusSkippedNoUploader]; n > 0 {
		yellow.Printf("Skipped %d objects\n", n)
	}
	if len(failures) > 0 {
		red.Printf("Failed %d photos:\n", len(failures))
		for _, err := range failures {
			fmt.Printf("  %v\n", err)
		}
	}
	fmt.Printf("Completed in %s\n", time.Since(startTime).Round(time.Millisecond))

	if len(failures) > 0 {
		return fmt.Errorf("%d photos failed", len(failures))
	}
	return nil
}
