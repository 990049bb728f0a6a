package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
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
	return filepath.Join(home, ".config", "chatcollab"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage chatcollab configuration.

Running bare 'chatcollab config' is the same as 'chatcollab config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
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

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

const configTemplate = `# chatcollab configuration
# See: chatcollab config show (for effective values and sources)

# Session server base URL
server: "{{ .Server }}"

# Session id (empty for the server's default session)
# session: ""

# Push transport: sse or ws
transport: "{{ .Transport }}"

# Display name; when empty the last name used for the session is reused
# username: ""

# Agents taking part in the session
# agents: [Planner, Coder]

# Or a roster file (mapping name: description)
# roster: ~/.config/chatcollab/roster.yaml

# Pause before reconnecting after a failure
retry_delay: {{ .RetryDelay }}

# Timeout for history and send requests
request_timeout: {{ .RequestTimeout }}

# Prometheus endpoint (empty to disable)
# metrics_addr: ":9464"

# Structured log file and level
# log_file: ~/.cache/chatcollab/chatcollab.log
log_level: {{ .LogLevel }}
`

type configTemplateData struct {
	Server         string
	Transport      string
	RetryDelay     string
	RequestTimeout string
	LogLevel       string
}

func configFilePath() (string, error) {
	if used := viper.ConfigFileUsed(); used != "" {
		return used, nil
	}
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
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	data := configTemplateData{
		Server:         viper.GetString("server"),
		Transport:      normalizeTransport(viper.GetString("transport")),
		RetryDelay:     viper.GetDuration("retry_delay").String(),
		RequestTimeout: viper.GetDuration("request_timeout").String(),
		LogLevel:       viper.GetString("log_level"),
	}
	if data.Transport == "" {
		data.Transport = transportSSE
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(cfgPath, buf.Bytes(), 0o644); err != nil {
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
	{Key: "server", EnvVar: "CHATCOLLAB_SERVER"},
	{Key: "session", EnvVar: "CHATCOLLAB_SESSION"},
	{Key: "transport", EnvVar: "CHATCOLLAB_TRANSPORT"},
	{Key: "username", EnvVar: "CHATCOLLAB_USERNAME"},
	{Key: "agents", EnvVar: "CHATCOLLAB_AGENTS"},
	{Key: "roster", EnvVar: "CHATCOLLAB_ROSTER"},
	{Key: "retry_delay", EnvVar: "CHATCOLLAB_RETRY_DELAY"},
	{Key: "request_timeout", EnvVar: "CHATCOLLAB_REQUEST_TIMEOUT"},
	{Key: "metrics_addr", EnvVar: "CHATCOLLAB_METRICS_ADDR"},
	{Key: "log_file", EnvVar: "CHATCOLLAB_LOG_FILE"},
	{Key: "log_level", EnvVar: "CHATCOLLAB_LOG_LEVEL"},
	{Key: "name_cache", EnvVar: "CHATCOLLAB_NAME_CACHE"},
	{Key: "alt_screen", EnvVar: "CHATCOLLAB_ALT_SCREEN"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	fileValues := readConfigFileValues(cfgPath)
	table := ui.Table([]string{"KEY", "VALUE", "SOURCE"})
	for _, k := range configKeys {
		val := fmt.Sprintf("%v", viper.Get(k.Key))
		if err := table.Append([]string{k.Key, val, detectSource(k.Key, k.EnvVar, fileValues)}); err != nil {
			return err
		}
	}
	return table.Render()
}

// readConfigFileValues reads the raw YAML file and returns the set of top-level keys present in it.
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
	for key := range parsed {
		result[key] = true
	}
	return result
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if f := rootCmd.PersistentFlags().Lookup(flagName(key)); f != nil && f.Changed {
		return "(flag)"
	}
	if f := rootCmd.Flags().Lookup(flagName(key)); f != nil && f.Changed {
		return "(flag)"
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}
