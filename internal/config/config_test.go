package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"CHROMIUM_CDP_ADDRESS", "CHROMIUM_CDP_PORT", "SHOTPOST_BIND_ADDR",
		"SHOTPOST_LOG_LEVEL", "SHOTPOST_WAIT_TIMEOUT_MS", "SHOTPOST_SETTINGS_FILE",
		"SHOTPOST_LOCATORS_FILE", "SHOTPOST_LAUNCH_BROWSER", "SHOTPOST_NOTIFY_ENDPOINT",
		"SHOTPOST_PORT_CANDIDATES", "SHOTPOST_PORT_AUTO_FALLBACK",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.CDPURL(), "http://127.0.0.1:9222"; got != want {
		t.Fatalf("CDPURL() = %q; want %q", got, want)
	}
	if cfg.BindAddr != "127.0.0.1:8190" {
		t.Fatalf("BindAddr = %q; want %q", cfg.BindAddr, "127.0.0.1:8190")
	}
	if cfg.WaitTimeout() != 30*time.Second {
		t.Fatalf("WaitTimeout() = %v; want 30s", cfg.WaitTimeout())
	}
	if cfg.SettingsFile != "config.json" {
		t.Fatalf("SettingsFile = %q; want config.json", cfg.SettingsFile)
	}
	if cfg.LaunchBrowser {
		t.Fatal("LaunchBrowser = true; want false")
	}
	if !cfg.PortAutoFallback || len(cfg.PortCandidates) != 3 || cfg.PortCandidates[0] != "127.0.0.1:8191" {
		t.Fatalf("PortAutoFallback, PortCandidates = %v, %v", cfg.PortAutoFallback, cfg.PortCandidates)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Fatalf("SlogLevel() = %v; want info", cfg.SlogLevel())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHROMIUM_CDP_ADDRESS", "10.0.0.5")
	t.Setenv("CHROMIUM_CDP_PORT", "9333")
	t.Setenv("SHOTPOST_LOG_LEVEL", "DEBUG")
	t.Setenv("SHOTPOST_WAIT_TIMEOUT_MS", "10")
	t.Setenv("SHOTPOST_LAUNCH_BROWSER", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.CDPURL(), "http://10.0.0.5:9333"; got != want {
		t.Fatalf("CDPURL() = %q; want %q", got, want)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("SlogLevel() = %v; want debug", cfg.SlogLevel())
	}
	if cfg.WaitTimeoutMS != 1000 {
		t.Fatalf("WaitTimeoutMS = %d; want clamp to 1000", cfg.WaitTimeoutMS)
	}
	if !cfg.LaunchBrowser {
		t.Fatal("LaunchBrowser = false; want true")
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("CHROMIUM_CDP_PORT", "70000")
	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil; want port range error")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a:1 ,,b:2, ")
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Fatalf("splitList() = %q; want [a:1 b:2]", got)
	}
	if got := splitList(""); got != nil {
		t.Fatalf("splitList(\"\") = %q; want nil", got)
	}
}
