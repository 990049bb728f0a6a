package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chatcollab/internal/output"
	"chatcollab/internal/syncclient"
)

// Set by release ldflags.
var (
	version = "dev"
	commit  = "none"
)

var (
	ui      *output.UI
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "chatcollab",
	Short: "Terminal client for live multi-agent chat sessions",
	Long: `chatcollab mirrors a live chat session between you and a roster of agents.
It streams messages, agent status and stage progress from the session server
and lets you post messages into the conversation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version + " (" + commit + ")",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runTUI(cmd.Context(), cfg)
	},
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default ~/.config/chatcollab/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	flags.String("server", defaultServer, "Session server base URL")
	flags.StringP("session", "s", "", "Session id (empty for the server's default session)")
	flags.String("transport", transportSSE, "Push transport: sse|ws")
	flags.StringP("username", "u", "", "Display name (default: cached name for the session, then \"You\")")
	flags.StringSlice("agents", nil, "Agent names, comma separated")
	flags.String("roster", "", "YAML roster file (mapping name: description, or a list)")
	flags.Duration("retry-delay", syncclient.DefaultRetryDelay, "Pause before reconnecting after a transport failure")
	flags.Duration("request-timeout", syncclient.DefaultRequestTimeout, "Timeout for history and send requests")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	flags.String("log-file", "", "Write structured logs to this file")
	flags.String("log-level", "info", "Log level: debug|info|warn|error")
	flags.String("name-cache", "", "Username cache file (default <user cache dir>/chatcollab/names.yaml)")
	rootCmd.Flags().Bool("alt-screen", true, "Use the terminal alternate screen")

	for key, flag := range map[string]string{
		"server":          "server",
		"session":         "session",
		"transport":       "transport",
		"username":        "username",
		"agents":          "agents",
		"roster":          "roster",
		"retry_delay":     "retry-delay",
		"request_timeout": "request-timeout",
		"metrics_addr":    "metrics-addr",
		"log_file":        "log-file",
		"log_level":       "log-level",
		"name_cache":      "name-cache",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
	_ = viper.BindPFlag("alt_screen", rootCmd.Flags().Lookup("alt-screen"))

	rootCmd.AddCommand(tailCmd, historyCmd, configCmd)
}

func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", "chatcollab"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CHATCOLLAB")
	viper.AutomaticEnv()

	viper.SetDefault("server", defaultServer)
	viper.SetDefault("transport", transportSSE)
	viper.SetDefault("retry_delay", syncclient.DefaultRetryDelay)
	viper.SetDefault("request_timeout", syncclient.DefaultRequestTimeout)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("alt_screen", true)

	// Config file is optional.
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
