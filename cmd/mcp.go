package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/focus/internal/logging"
	"github.com/joescharf/focus/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client read and drive the timer, manage the block list
and check URLs. Configure it with:

  {
    "mcpServers": {
      "focus": { "command": "focus", "args": ["mcp"] }
    }
  }

Available tools: focus_status, focus_start, focus_pause, focus_resume,
focus_stop, focus_check_url, focus_classify, focus_blocklist`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
		defer stop()
		return mcpRun(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	// stdout carries the protocol; log to the file only.
	log, closeLog := logging.New(logging.Options{
		Level:      viper.GetString("log.level"),
		File:       daemonLogPath(),
		MaxSizeMB:  viper.GetInt("log.max_size_mb"),
		MaxBackups: viper.GetInt("log.max_backups"),
	})
	defer func() { _ = closeLog() }()
	log = log.With().Str("component", "mcp").Logger()

	g, err := getGate(s, log)
	if err != nil {
		return err
	}
	srv := mcp.NewServer(s, getClock(s, log), g, getEngine(), buildVersion)
	return srv.ServeStdio(ctx)
}
