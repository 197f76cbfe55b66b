package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/focus/internal/api"
	"github.com/joescharf/focus/internal/browser"
	"github.com/joescharf/focus/internal/clock"
	"github.com/joescharf/focus/internal/daemon"
	"github.com/joescharf/focus/internal/logging"
	"github.com/joescharf/focus/internal/output"
)

var daemonBrowser bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background timer, API and browser hook",
	Long: `The daemon is the only process that advances the countdown. It also
serves the REST API and block page on api.port and, with --browser,
enforces verdicts in Chrome through the DevTools protocol.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonStatusRun()
	},
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonStartRun()
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonStopRun()
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonStatusRun()
	},
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
		defer stop()
		return daemonRun(ctx)
	},
}

func init() {
	daemonCmd.PersistentFlags().IntP("port", "p", 7777, "API port")
	_ = viper.BindPFlag("api.port", daemonCmd.PersistentFlags().Lookup("port"))
	daemonCmd.PersistentFlags().BoolVar(&daemonBrowser, "browser", false, "Attach to Chrome at cdp.devtools_url")

	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd, daemonRunCmd)
	rootCmd.AddCommand(daemonCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "focus-daemon.pid"))
}

func daemonLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "focus-daemon.log")
}

func daemonStartRun() error {
	pf := pidFile()
	if rec, running := pf.IsRunning(); running {
		return fmt.Errorf("daemon already running (pid %d)", rec.PID)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}
	args := []string{"daemon", "run", "--port", fmt.Sprint(viper.GetInt("api.port"))}
	if daemonBrowser {
		args = append(args, "--browser")
	}
	if cfg := viper.ConfigFileUsed(); cfg != "" {
		args = append(args, "--config", cfg)
	}

	if dryRun {
		ui.DryRunMsg("Would run: %s %v", exe, args)
		return nil
	}

	if err := os.MkdirAll(viper.GetString("state_dir"), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	child := exec.Command(exe, args...)
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	// The child writes its own PID file once it holds the tick lease.
	_ = child.Process.Release()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if rec, running := pf.IsRunning(); running {
			ui.Success("Daemon started (pid %d, api http://127.0.0.1:%d)", rec.PID, rec.Port)
			ui.VerboseLog("Log: %s", daemonLogPath())
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not start; see %s", daemonLogPath())
}

func daemonStopRun() error {
	pf := pidFile()
	rec, running := pf.IsRunning()
	if !running {
		_ = pf.Remove()
		return fmt.Errorf("daemon is not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop daemon (pid %d)", rec.PID)
		return nil
	}

	if err := pf.Signal(sigTERM()); err != nil {
		return fmt.Errorf("signal daemon: %w", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, running := pf.IsRunning(); !running {
			ui.Success("Daemon stopped")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	ui.Warning("Daemon did not exit; killing pid %d", rec.PID)
	if err := pf.Signal(sigKILL()); err != nil {
		return fmt.Errorf("kill daemon: %w", err)
	}
	_ = pf.Remove()
	return nil
}

func daemonStatusRun() error {
	rec, running := pidFile().IsRunning()
	if !running {
		ui.Info("Daemon: %s", output.Yellow("not running"))
		return nil
	}
	ui.Info("Daemon: %s (pid %d)", output.Green("running"), rec.PID)
	fmt.Fprintf(ui.Out, "  %-10s http://127.0.0.1:%d\n", "API:", rec.Port)
	fmt.Fprintf(ui.Out, "  %-10s %s\n", "Uptime:", output.Duration(int64(time.Since(rec.StartedAt).Seconds())))
	fmt.Fprintf(ui.Out, "  %-10s %s\n", "Log:", daemonLogPath())
	return nil
}

// daemonRun holds the tick lease and runs the timer, API server and optional
// browser hook until ctx is cancelled.
func daemonRun(ctx context.Context) error {
	pf := pidFile()
	if rec, running := pf.IsRunning(); running && rec.PID != os.Getpid() {
		return fmt.Errorf("daemon already running (pid %d)", rec.PID)
	}

	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	log, closeLog := logging.New(logging.Options{
		Level:      level,
		File:       daemonLogPath(),
		MaxSizeMB:  viper.GetInt("log.max_size_mb"),
		MaxBackups: viper.GetInt("log.max_backups"),
		Console:    os.Stderr,
	})
	defer func() { _ = closeLog() }()

	s, err := getStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	owner := daemon.NewOwner(s)
	if err := owner.Claim(ctx); err != nil {
		return err
	}

	port := viper.GetInt("api.port")
	if err := pf.Write(owner.ID(), port); err != nil {
		_ = owner.Release(context.WithoutCancel(ctx))
		return fmt.Errorf("write PID file: %w", err)
	}
	defer func() { _ = pf.Remove() }()

	c := getClock(s, log)
	g, err := getGate(s, log)
	if err != nil {
		_ = owner.Release(context.WithoutCancel(ctx))
		return err
	}

	runner := clock.NewRunner(c, s)
	runner.Lease = owner
	runner.Log = log

	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           api.NewServer(s, c, g, getEngine(), log).Router(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return runner.Run(ctx)
	})
	eg.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if daemonBrowser {
		hook := browser.New(viper.GetString("cdp.devtools_url"), g, log)
		eg.Go(func() error {
			runHook(ctx, hook, log)
			return nil
		})
	}

	log.Info().Int("pid", os.Getpid()).Str("owner", owner.ID()).Msg("daemon started")
	err = eg.Wait()
	log.Info().Err(err).Msg("daemon stopped")
	return err
}

// hookRetry is the wait between browser reconnect attempts.
const hookRetry = 5 * time.Second

// runHook keeps the browser hook attached, reconnecting after the browser
// goes away, until ctx is cancelled.
func runHook(ctx context.Context, hook *browser.Hook, log zerolog.Logger) {
	for {
		if err := hook.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("browser hook")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(hookRetry):
		}
	}
}
