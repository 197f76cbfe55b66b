package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/focus/internal/clock"
	"github.com/joescharf/focus/internal/daemon"
	"github.com/joescharf/focus/internal/models"
	"github.com/joescharf/focus/internal/output"
	"github.com/joescharf/focus/internal/store"
)

var statusJSON bool

var startCmd = &cobra.Command{
	Use:   "start [minutes]",
	Short: "Start a work session",
	Long: `Start a work session. Sites on the block list and distracting videos
are denied until the session ends.

With a minutes argument the session length is set first (idle only).
Starting a paused timer resumes it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		minutes := viper.GetInt("session.minutes")
		if len(args) == 1 {
			m, err := parseMinutes(args[0])
			if err != nil {
				return err
			}
			minutes = m
		}
		return startRun(minutes)
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the running session or break",
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionRun("Paused", func(ctx context.Context, c *clock.Clock) (models.SessionState, error) {
			return c.Pause(ctx)
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused session or break",
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionRun("Resumed", func(ctx context.Context, c *clock.Clock) (models.SessionState, error) {
			return c.Resume(ctx)
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the timer and return to idle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionRun("Stopped", func(ctx context.Context, c *clock.Clock) (models.SessionState, error) {
			return c.Stop(ctx)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the timer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun()
	},
}

var durationCmd = &cobra.Command{
	Use:   "duration <minutes>",
	Short: "Set the work session length",
	Long:  "Set the work session length. Only allowed while the timer is idle.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		minutes, err := parseMinutes(args[0])
		if err != nil {
			return err
		}
		if minutes == 0 {
			return fmt.Errorf("minutes must be positive")
		}
		return durationRun(minutes)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the timer as JSON")
	rootCmd.AddCommand(startCmd, pauseCmd, resumeCmd, stopCmd, statusCmd, durationCmd)
}

func parseMinutes(s string) (int, error) {
	m, err := strconv.Atoi(s)
	if err != nil || m < 0 {
		return 0, fmt.Errorf("invalid minutes %q: want a non-negative whole number", s)
	}
	return m, nil
}

func startRun(minutes int) error {
	if dryRun {
		ui.DryRunMsg("Would start a work session")
		return nil
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, err := getClock(s, getLogger()).Start(ctx, minutes*60)
	if err != nil {
		return err
	}
	if st.Phase == models.PhaseRunning {
		ui.Success("Work session running: %s left", output.Clock(st.RemainingSeconds))
	} else {
		ui.Info("Timer is %s", output.PhaseColor(string(st.Phase)))
	}
	warnIfNoTicker(ctx, s)
	return nil
}

func transitionRun(verb string, op func(ctx context.Context, c *clock.Clock) (models.SessionState, error)) error {
	if dryRun {
		ui.DryRunMsg("Would change the timer (%s)", verb)
		return nil
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	st, err := op(context.Background(), getClock(s, getLogger()))
	if err != nil {
		return err
	}
	ui.Success("%s: %s, %s left", verb, output.PhaseColor(string(st.Phase)), output.Clock(st.RemainingSeconds))
	return nil
}

func durationRun(minutes int) error {
	if dryRun {
		ui.DryRunMsg("Would set the session length to %d minutes", minutes)
		return nil
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	st, err := getClock(s, getLogger()).SetDuration(context.Background(), minutes*60)
	if err != nil {
		return err
	}
	ui.Success("Session length set to %s", output.Duration(int64(st.SessionDurationSeconds)))
	return nil
}

func statusRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	v, err := getClock(s, getLogger()).View(ctx)
	if err != nil {
		return err
	}

	if statusJSON {
		return printJSON(v)
	}

	phase := output.PhaseColor(string(v.Phase))
	if v.Phase == models.PhasePaused && v.PausedPhase != "" {
		phase = fmt.Sprintf("%s (%s)", phase, v.PausedPhase)
	}
	fmt.Fprintf(ui.Out, "  %-12s %s\n", "Phase:", phase)
	fmt.Fprintf(ui.Out, "  %-12s %s\n", "Remaining:", output.Clock(v.RemainingSeconds))
	fmt.Fprintf(ui.Out, "  %-12s %s\n", "Session:", output.Duration(int64(v.SessionSeconds)))
	fmt.Fprintf(ui.Out, "  %-12s %s\n", "Next break:", output.Duration(int64(v.BreakSeconds)))
	fmt.Fprintf(ui.Out, "  %-12s %s\n", "Focused:", output.Duration(v.RuntimeSeconds))
	fmt.Fprintf(ui.Out, "  %-12s %d\n", "Completed:", v.CompletedSessions)

	vals, err := s.Get(ctx, store.KeyNotification)
	if err == nil {
		if n, ok, _ := store.DecodeNotification(vals[store.KeyNotification]); ok {
			fmt.Fprintf(ui.Out, "  %-12s %s (%s)\n", "Last event:", clock.Message(n), n.At.Local().Format(time.Kitchen))
		}
	}
	return nil
}

// warnIfNoTicker warns when no daemon holds a live tick lease.
func warnIfNoTicker(ctx context.Context, s store.Store) {
	rec, ok, err := daemon.CurrentOwner(ctx, s)
	if err != nil {
		return
	}
	if !ok || !rec.Live(time.Now(), daemon.DefaultLeaseTTL) {
		ui.Warning("No daemon is running the timer. Start one with 'focus daemon start'.")
	}
}
