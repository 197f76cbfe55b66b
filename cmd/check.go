package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/focus/internal/gate"
	"github.com/joescharf/focus/internal/output"
)

var (
	checkTitle       string
	checkDescription string
	checkSubframe    bool
	checkJSON        bool
)

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Show whether a URL would be allowed right now",
	Long: `Run a URL through the gate with the current timer phase and block list.

For video pages pass --title (and optionally --description) to see the
decision made once the page has loaded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkRun(args[0])
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkTitle, "title", "", "Page title")
	checkCmd.Flags().StringVar(&checkDescription, "description", "", "Page description")
	checkCmd.Flags().BoolVar(&checkSubframe, "subframe", false, "Treat the URL as a subframe navigation")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the verdict as JSON")
	rootCmd.AddCommand(checkCmd)
}

func checkRun(u string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	g, err := getGate(s, getLogger())
	if err != nil {
		return err
	}

	v, err := g.Decide(context.Background(), gate.Destination{
		URL:         u,
		IsTopLevel:  !checkSubframe,
		Title:       checkTitle,
		Description: checkDescription,
		HasContent:  checkTitle != "" || checkDescription != "",
	})
	if err != nil {
		return err
	}

	if checkJSON {
		return printJSON(v)
	}
	fmt.Fprintf(ui.Out, "  %-10s %s\n", "Action:", output.ActionColor(string(v.Action)))
	fmt.Fprintf(ui.Out, "  %-10s %s\n", "Reason:", v.Reason)
	if v.Detail != "" {
		fmt.Fprintf(ui.Out, "  %-10s %s\n", "Detail:", v.Detail)
	}
	if v.RedirectTo != "" {
		fmt.Fprintf(ui.Out, "  %-10s %s\n", "Redirect:", v.RedirectTo)
	}
	return nil
}
