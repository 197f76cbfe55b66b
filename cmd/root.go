package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/focus/internal/browser"
	"github.com/joescharf/focus/internal/classifier"
	"github.com/joescharf/focus/internal/clock"
	"github.com/joescharf/focus/internal/gate"
	"github.com/joescharf/focus/internal/logging"
	"github.com/joescharf/focus/internal/output"
	"github.com/joescharf/focus/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	engine    *classifier.Engine
	engineSet bool

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "focus",
	Short: "Focus timer with site and video blocking",
	Long: `focus runs a work/break timer and keeps distracting sites closed
while a work session is running.

Blocked domains are always denied during work. Single video pages are
classified from their title and description and denied when they look
like a distraction. Outside of work sessions nothing is blocked.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return statusRun()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/focus/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("FOCUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	dir, _ := configDirFunc()
	setDefaults(dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "focus.db"))
	viper.SetDefault("store.driver", store.DriverSQLite)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("session.minutes", 0)
	viper.SetDefault("classifier.bundle_path", "")
	viper.SetDefault("classifier.fallback", string(gate.FallbackDeny))
	viper.SetDefault("enforcement.block_page_url", gate.DefaultBlockPageURL)
	viper.SetDefault("api.port", 7777)
	viper.SetDefault("cdp.devtools_url", browser.DefaultDevToolsURL)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.max_size_mb", 10)
	viper.SetDefault("log.max_backups", 3)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Initialize store lazily, only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// storeConfig builds the store settings from viper.
func storeConfig() store.Config {
	return store.Config{
		Driver: viper.GetString("store.driver"),
		DBPath: viper.GetString("db_path"),
		Redis: store.RedisOptions{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
	}
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	ctx := rootCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := store.Open(ctx, storeConfig())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getLogger returns a console logger for interactive commands.
func getLogger() zerolog.Logger {
	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	log, _ := logging.New(logging.Options{Level: level, Console: os.Stderr})
	return log
}

// getEngine loads the classifier bundle once. A missing or invalid bundle
// leaves the engine nil so only domain blocking applies.
func getEngine() *classifier.Engine {
	if engineSet {
		return engine
	}
	engineSet = true

	path := viper.GetString("classifier.bundle_path")
	if path == "" {
		return nil
	}
	b, err := classifier.LoadBundle(path)
	if err != nil {
		ui.Warning("Classifier disabled: %v", err)
		return nil
	}
	engine = classifier.NewEngine(b)
	return engine
}

// getGate builds the gate from config.
func getGate(s store.Store, log zerolog.Logger) (*gate.Gate, error) {
	fallback, err := gate.ParseFallbackPolicy(viper.GetString("classifier.fallback"))
	if err != nil {
		return nil, err
	}
	return gate.New(s, gate.Config{
		Engine:       getEngine(),
		Fallback:     fallback,
		BlockPageURL: viper.GetString("enforcement.block_page_url"),
		Logger:       log,
	}), nil
}

// getClock builds a clock on s that logs its notifications.
func getClock(s store.Store, log zerolog.Logger) *clock.Clock {
	return clock.New(s,
		clock.WithLogger(log),
		clock.WithNotifier(clock.LogNotifier{Logger: log}),
	)
}

// printJSON writes v as indented JSON to the output.
func printJSON(v any) error {
	enc := json.NewEncoder(ui.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
