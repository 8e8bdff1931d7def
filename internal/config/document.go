package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Default workflow settings written when the settings document is missing
// or cannot be parsed.
const (
	DefaultScreenshotDirectory = "screenshots"
	DefaultProfileDirectory    = "Default"
	DefaultCounterFile         = "post_counter.txt"
	DefaultLogFile             = "logs/shotpost.log"
	DefaultDelayFBToIG         = 15
	DefaultDelayAfterIG        = 60
	DefaultCaptionTemplate     = "Y{yo}, another fake win ra9m: {counter}"
	DefaultHashtags            = "#Gaming #VideoGames #GGWP #GamingMoments #GoodVibes"
)

// Settings is the JSON settings document shared by the workflow and the
// Instagram counter.
type Settings struct {
	ScreenshotDirectory string `json:"screenshot_directory"`
	UserDataDir         string `json:"user_data_dir"`
	ProfileDirectory    string `json:"profile_directory"`
	CounterFile         string `json:"counter_file"`
	LogFile             string `json:"log_file"`
	DelayFBToIG         int    `json:"delay_fb_to_ig"`
	DelayAfterIG        int    `json:"delay_after_ig"`
	FBCaptionTemplate   string `json:"fb_caption_template"`
	IGCaptionTemplate   string `json:"ig_caption_template"`
	IGCaptionHashtags   string `json:"ig_caption_hashtags"`
	IGCounter           *int   `json:"ig_counter,omitempty"`
}

// DefaultSettings returns the settings used for a fresh document.
func DefaultSettings() Settings {
	return Settings{
		ScreenshotDirectory: DefaultScreenshotDirectory,
		ProfileDirectory:    DefaultProfileDirectory,
		CounterFile:         DefaultCounterFile,
		LogFile:             DefaultLogFile,
		DelayFBToIG:         DefaultDelayFBToIG,
		DelayAfterIG:        DefaultDelayAfterIG,
		FBCaptionTemplate:   DefaultCaptionTemplate,
		IGCaptionTemplate:   DefaultCaptionTemplate,
		IGCaptionHashtags:   DefaultHashtags,
	}
}

// InterPlatformDelay is the wait between the Facebook and Instagram stages.
func (s Settings) InterPlatformDelay() time.Duration {
	return time.Duration(s.DelayFBToIG) * time.Second
}

// InstagramSettle is the wait after the Instagram caption is typed.
func (s Settings) InstagramSettle() time.Duration {
	return time.Duration(s.DelayAfterIG) * time.Second
}

// fillDefaults replaces empty fields with defaults. Zero delays are kept.
func (s *Settings) fillDefaults() {
	d := DefaultSettings()
	if s.ScreenshotDirectory == "" {
		s.ScreenshotDirectory = d.ScreenshotDirectory
	}
	if s.ProfileDirectory == "" {
		s.ProfileDirectory = d.ProfileDirectory
	}
	if s.CounterFile == "" {
		s.CounterFile = d.CounterFile
	}
	if s.LogFile == "" {
		s.LogFile = d.LogFile
	}
	if s.FBCaptionTemplate == "" {
		s.FBCaptionTemplate = d.FBCaptionTemplate
	}
	if s.IGCaptionTemplate == "" {
		s.IGCaptionTemplate = s.FBCaptionTemplate
	}
	if s.DelayFBToIG < 0 {
		s.DelayFBToIG = d.DelayFBToIG
	}
	if s.DelayAfterIG < 0 {
		s.DelayAfterIG = d.DelayAfterIG
	}
}

// Document is the on-disk JSON settings file. Writes are serialized and
// atomic (temp file + rename).
type Document struct {
	path string
	mu   sync.Mutex
}

// NewDocument returns a Document backed by path. Nothing is read until
// Ensure, Read or Update is called.
func NewDocument(path string) *Document {
	return &Document{path: path}
}

// Path returns the document file path.
func (d *Document) Path() string {
	return d.path
}

// Read parses the document strictly. A missing file yields an error
// wrapping os.ErrNotExist.
func (d *Document) Read() (Settings, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read()
}

// Ensure reads the document, recreating it with defaults when it is missing
// or corrupt. Only a failed write is returned as an error.
func (d *Document) Ensure(logger *slog.Logger) (Settings, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.read()
	if err == nil {
		s.fillDefaults()
		return s, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("settings document missing, writing defaults", "path", d.path)
	} else {
		logger.Warn("settings document unreadable, writing defaults", "path", d.path, "error", err)
	}
	s = DefaultSettings()
	if werr := d.write(s); werr != nil {
		return s, werr
	}
	return s, nil
}

// Update applies fn to the current settings and writes the result. A
// missing or corrupt document starts from defaults.
func (d *Document) Update(fn func(*Settings)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.read()
	if err != nil {
		s = DefaultSettings()
	}
	fn(&s)
	return d.write(s)
}

func (d *Document) read() (Settings, error) {
	var s Settings
	data, err := os.ReadFile(d.path)
	if err != nil {
		return s, fmt.Errorf("settings document: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("settings document: %w", err)
	}
	return s, nil
}

func (d *Document) write(s Settings) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("settings document: %w", err)
	}
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings document: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("settings document: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("settings document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("settings document: %w", err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("settings document: %w", err)
	}
	return nil
}
