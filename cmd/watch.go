package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/joescharf/focus/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live timer dashboard",
	Long: `Show a live timer dashboard in the terminal.

Keys: s start, p pause/resume, x stop, q quit. The dashboard never
advances the countdown itself; run the daemon for that.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		return tui.Run(getClock(s, zerolog.Nop()), s)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
