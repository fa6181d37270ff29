package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/kozaktomas/photo-faces/internal/pipeline"
)

// printEventResult writes a colored one-event summary.
func printEventResult(res *pipeline.EventResult) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	switch res.Status {
	case pipeline.StatusSkippedExtension:
		yellow.Printf("Skipped %s: unsupported extension\n", res.Event)
		return
	case pipeline.StatusSkippedNoUploader:
		yellow.Printf("Skipped %s: no uploader metadata\n", res.Event)
		return
	}

	fmt.Printf("%s (uploader ", res.Event)
	cyan.Print(res.Uploader)
	fmt.Println(")")

	if res.Report != nil {
		for _, face := range res.Report.Results {
			switch face.Outcome {
			case pipeline.OutcomeMatched:
				green.Printf("  %s -> %s (%.1f%%)\n", face.FaceID, face.ContactKey, face.Similarity)
			case pipeline.OutcomeFailed:
				red.Printf("  %s failed: %s\n", face.FaceID, face.Error)
			default:
				fmt.Printf("  %s %s\n", face.FaceID, face.Outcome)
			}
		}
		fmt.Printf("  %s\n", res.Report)
	}

	if res.Status == pipeline.StatusFailed {
		red.Printf("  Error: %s\n", res.Error)
	}
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
