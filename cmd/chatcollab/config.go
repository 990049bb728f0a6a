package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"chatcollab/internal/roster"
	"chatcollab/internal/syncclient"
)

const (
	defaultServer = "http://127.0.0.1:5000"
	transportSSE  = "sse"
	transportWS   = "ws"
)

type appConfig struct {
	server         string
	session        string
	transport      string
	username       string
	agents         []string
	rosterPath     string
	retryDelay     time.Duration
	requestTimeout time.Duration
	metricsAddr    string
	logFile        string
	logLevel       slog.Level
	nameCachePath  string
	altScreen      bool
}

// loadConfig reads the resolved viper settings and normalizes them.
func loadConfig() (appConfig, error) {
	cfg := appConfig{
		server:         strings.TrimSpace(viper.GetString("server")),
		session:        strings.TrimSpace(viper.GetString("session")),
		transport:      normalizeTransport(viper.GetString("transport")),
		username:       strings.TrimSpace(viper.GetString("username")),
		agents:         viper.GetStringSlice("agents"),
		rosterPath:     strings.TrimSpace(viper.GetString("roster")),
		retryDelay:     viper.GetDuration("retry_delay"),
		requestTimeout: viper.GetDuration("request_timeout"),
		metricsAddr:    strings.TrimSpace(viper.GetString("metrics_addr")),
		logFile:        strings.TrimSpace(viper.GetString("log_file")),
		nameCachePath:  strings.TrimSpace(viper.GetString("name_cache")),
		altScreen:      viper.GetBool("alt_screen"),
	}
	if cfg.server == "" {
		cfg.server = defaultServer
	}
	if cfg.transport == "" {
		return cfg, fmt.Errorf("unsupported transport %q (want sse or ws)", viper.GetString("transport"))
	}
	cfg.retryDelay = clampDuration(cfg.retryDelay, time.Second, 5*time.Minute, syncclient.DefaultRetryDelay)
	cfg.requestTimeout = clampDuration(cfg.requestTimeout, time.Second, 5*time.Minute, syncclient.DefaultRequestTimeout)

	level, err := parseLevel(viper.GetString("log_level"))
	if err != nil {
		return cfg, err
	}
	cfg.logLevel = level

	if cfg.nameCachePath == "" {
		if path, err := roster.DefaultNameCachePath(); err == nil {
			cfg.nameCachePath = path
		}
	}
	return cfg, nil
}

func normalizeTransport(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "sse", "eventsource":
		return transportSSE
	case "ws", "websocket":
		return transportWS
	default:
		return ""
	}
}

func clampDuration(value, min, max, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(raw) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", raw, err)
	}
	return level, nil
}

// loadAgents prefers the roster file over the --agents list.
func loadAgents(cfg appConfig) ([]roster.Agent, error) {
	if cfg.rosterPath != "" {
		return roster.Load(cfg.rosterPath)
	}
	return roster.FromList(cfg.agents), nil
}

// newLogger opens the configured log file, or falls back to fallback (which may be nil to
// discard logs).
func newLogger(cfg appConfig, fallback *os.File) (*slog.Logger, func() error, error) {
	opts := &slog.HandlerOptions{Level: cfg.logLevel}
	if cfg.logFile == "" {
		if fallback == nil {
			return slog.New(slog.NewTextHandler(io.Discard, nil)), func() error { return nil }, nil
		}
		return slog.New(slog.NewTextHandler(fallback, opts)), func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.logFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewJSONHandler(f, opts)), f.Close, nil
}
