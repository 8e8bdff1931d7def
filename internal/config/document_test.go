package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := NewDocument(path)

	s, err := doc.Ensure(nil)
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if s.DelayFBToIG != 15 || s.DelayAfterIG != 60 {
		t.Fatalf("delays = %d/%d; want 15/60", s.DelayFBToIG, s.DelayAfterIG)
	}
	if s.IGCounter != nil {
		t.Fatalf("IGCounter = %v; want nil", *s.IGCounter)
	}

	onDisk, err := doc.Read()
	if err != nil {
		t.Fatalf("Read() after Ensure error: %v", err)
	}
	if onDisk.FBCaptionTemplate != DefaultCaptionTemplate {
		t.Fatalf("FBCaptionTemplate = %q; want %q", onDisk.FBCaptionTemplate, DefaultCaptionTemplate)
	}
}

func TestEnsureRewritesCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s, err := NewDocument(path).Ensure(logger)
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if s.ProfileDirectory != "Default" {
		t.Fatalf("ProfileDirectory = %q; want Default", s.ProfileDirectory)
	}
	if !strings.Contains(buf.String(), "settings document unreadable") {
		t.Fatalf("log missing corrupt warning: %s", buf.String())
	}
}

func TestEnsureFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{"screenshot_directory": "/shots", "fb_caption_template": "FB {counter}", "delay_fb_to_ig": 0}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewDocument(path).Ensure(nil)
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if s.ScreenshotDirectory != "/shots" {
		t.Fatalf("ScreenshotDirectory = %q; want /shots", s.ScreenshotDirectory)
	}
	if s.IGCaptionTemplate != "FB {counter}" {
		t.Fatalf("IGCaptionTemplate = %q; want fallback to FB template", s.IGCaptionTemplate)
	}
	if s.DelayFBToIG != 0 {
		t.Fatalf("DelayFBToIG = %d; want explicit 0 kept", s.DelayFBToIG)
	}
}

func TestUpdatePreservesOtherFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := NewDocument(path)
	if _, err := doc.Ensure(nil); err != nil {
		t.Fatal(err)
	}
	if err := doc.Update(func(s *Settings) { s.ScreenshotDirectory = "/elsewhere" }); err != nil {
		t.Fatal(err)
	}
	n := 42
	if err := doc.Update(func(s *Settings) { s.IGCounter = &n }); err != nil {
		t.Fatal(err)
	}

	s, err := doc.Read()
	if err != nil {
		t.Fatal(err)
	}
	if s.ScreenshotDirectory != "/elsewhere" {
		t.Fatalf("ScreenshotDirectory = %q; want /elsewhere", s.ScreenshotDirectory)
	}
	if s.IGCounter == nil || *s.IGCounter != 42 {
		t.Fatalf("IGCounter = %v; want 42", s.IGCounter)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir entries = %d; want only the document (no temp leftovers)", len(entries))
	}
}

func TestReadMissing(t *testing.T) {
	_, err := NewDocument(filepath.Join(t.TempDir(), "nope.json")).Read()
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read() error = %v; want os.ErrNotExist", err)
	}
}
