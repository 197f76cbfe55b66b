package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/focus/internal/classifier"
	"github.com/joescharf/focus/internal/output"
)

var (
	classifyDescription string
	classifyBundle      string
	classifyJSON        bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify <title>",
	Short: "Classify a video title with the configured model",
	Long: `Score a video title (and optional description) with the classifier
bundle. Without a usable bundle the fallback result is shown.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return classifyRun(args[0])
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyDescription, "description", "", "Video description")
	classifyCmd.Flags().StringVar(&classifyBundle, "bundle", "", "Bundle file (default: classifier.bundle_path)")
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(classifyCmd)
}

func classifyRun(title string) error {
	e := getEngine()
	if classifyBundle != "" {
		b, err := classifier.LoadBundle(classifyBundle)
		if err != nil {
			return err
		}
		e = classifier.NewEngine(b)
	}

	res := e.Predict(title, classifyDescription)
	if classifyJSON {
		return printJSON(res)
	}

	fmt.Fprintf(ui.Out, "  %-12s %s\n", "Label:", output.ActionColor(string(res.Label)))
	fmt.Fprintf(ui.Out, "  %-12s %.4f\n", "Score:", res.Score)
	fmt.Fprintf(ui.Out, "  %-12s %.4f\n", "Confidence:", res.Confidence)
	if res.Fallback {
		ui.Warning("No usable model; showing the fallback result")
	} else if b := e.Bundle(); b != nil {
		fmt.Fprintf(ui.Out, "  %-12s %s (%s)\n", "Model:", b.Kind, b.Version)
	}
	return nil
}
