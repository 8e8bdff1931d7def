package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process settings read from the environment.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	LogLevel         string
	WaitTimeoutMS    int

	// Files
	SettingsFile string
	LocatorsFile string

	LaunchBrowser  bool
	NotifyEndpoint string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:     getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:        getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		BindAddr:       getEnvOrDefault("SHOTPOST_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates: splitList(getEnvOrDefault("SHOTPOST_PORT_CANDIDATES", "127.0.0.1:8191,127.0.0.1:8192,127.0.0.1:8193")),
		LogLevel:       strings.ToLower(getEnvOrDefault("SHOTPOST_LOG_LEVEL", "info")),
		WaitTimeoutMS:  getEnvIntOrDefault("SHOTPOST_WAIT_TIMEOUT_MS", 30000),
		SettingsFile:   getEnvOrDefault("SHOTPOST_SETTINGS_FILE", "config.json"),
		LocatorsFile:   getEnvOrDefault("SHOTPOST_LOCATORS_FILE", ""),
		LaunchBrowser:  getEnvBoolOrDefault("SHOTPOST_LAUNCH_BROWSER", false),
		NotifyEndpoint: getEnvOrDefault("SHOTPOST_NOTIFY_ENDPOINT", ""),
	}
	cfg.PortAutoFallback = getEnvBoolOrDefault("SHOTPOST_PORT_AUTO_FALLBACK", true)
	if cfg.CDPPort <= 0 || cfg.CDPPort > 65535 {
		return nil, fmt.Errorf("config: CHROMIUM_CDP_PORT out of range: %d", cfg.CDPPort)
	}
	if cfg.WaitTimeoutMS < 1000 {
		cfg.WaitTimeoutMS = 1000
	}
	return cfg, nil
}

// CDPURL returns the full CDP HTTP endpoint used by the chromedp remote allocator.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

// WaitTimeout returns the per-step element wait bound.
func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutMS) * time.Millisecond
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
