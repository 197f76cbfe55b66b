package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "focus"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage focus configuration.

Running bare 'focus config' is the same as 'focus config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# focus configuration
# See: focus config show (for effective values and sources)

# State/data directory (default: ~/.config/focus)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/focus/focus.db)
# db_path: {{ .DBPath }}

# Shared state backend: "sqlite" or "redis"
store:
  driver: "{{ .StoreDriver }}"

redis:
  address: "{{ .RedisAddress }}"
  db: {{ .RedisDB }}

session:
  # Length used by 'focus start' without an argument (0: keep the current length)
  minutes: {{ .SessionMinutes }}

classifier:
  # JSON model bundle for video titles (empty: domain blocking only)
  bundle_path: "{{ .BundlePath }}"
  # Verdict for videos the model cannot score: "allow" or "deny"
  fallback: "{{ .Fallback }}"

enforcement:
  block_page_url: "{{ .BlockPageURL }}"

api:
  port: {{ .APIPort }}

cdp:
  # Chrome remote debugging endpoint (start Chrome with --remote-debugging-port=9222)
  devtools_url: "{{ .DevToolsURL }}"

log:
  level: "{{ .LogLevel }}"
`

type configTemplateData struct {
	StateDir       string
	DBPath         string
	StoreDriver    string
	RedisAddress   string
	RedisDB        int
	SessionMinutes int
	BundlePath     string
	Fallback       string
	BlockPageURL   string
	APIPort        int
	DevToolsURL    string
	LogLevel       string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:       viper.GetString("state_dir"),
		DBPath:         viper.GetString("db_path"),
		StoreDriver:    viper.GetString("store.driver"),
		RedisAddress:   viper.GetString("redis.address"),
		RedisDB:        viper.GetInt("redis.db"),
		SessionMinutes: viper.GetInt("session.minutes"),
		BundlePath:     viper.GetString("classifier.bundle_path"),
		Fallback:       viper.GetString("classifier.fallback"),
		BlockPageURL:   viper.GetString("enforcement.block_page_url"),
		APIPort:        viper.GetInt("api.port"),
		DevToolsURL:    viper.GetString("cdp.devtools_url"),
		LogLevel:       viper.GetString("log.level"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "FOCUS_STATE_DIR"},
	{Key: "db_path", EnvVar: "FOCUS_DB_PATH"},
	{Key: "store.driver", EnvVar: "FOCUS_STORE_DRIVER"},
	{Key: "redis.address", EnvVar: "FOCUS_REDIS_ADDRESS"},
	{Key: "redis.password", EnvVar: "FOCUS_REDIS_PASSWORD"},
	{Key: "redis.db", EnvVar: "FOCUS_REDIS_DB"},
	{Key: "session.minutes", EnvVar: "FOCUS_SESSION_MINUTES"},
	{Key: "classifier.bundle_path", EnvVar: "FOCUS_CLASSIFIER_BUNDLE_PATH"},
	{Key: "classifier.fallback", EnvVar: "FOCUS_CLASSIFIER_FALLBACK"},
	{Key: "enforcement.block_page_url", EnvVar: "FOCUS_ENFORCEMENT_BLOCK_PAGE_URL"},
	{Key: "api.port", EnvVar: "FOCUS_API_PORT"},
	{Key: "cdp.devtools_url", EnvVar: "FOCUS_CDP_DEVTOOLS_URL"},
	{Key: "log.level", EnvVar: "FOCUS_LOG_LEVEL"},
	{Key: "log.max_size_mb", EnvVar: "FOCUS_LOG_MAX_SIZE_MB"},
	{Key: "log.max_backups", EnvVar: "FOCUS_LOG_MAX_BACKUPS"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-28s %v  %s\n", k.Key, displayValue(k.Key, val), source)
	}

	return nil
}

// displayValue masks secrets.
func displayValue(key string, val any) any {
	if key == "redis.password" {
		if v, ok := val.(string); ok && v != "" {
			return "********"
		}
	}
	return val
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'focus config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
