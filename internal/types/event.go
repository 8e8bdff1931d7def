package types

import (
	"path/filepath"
	"strings"
	"time"
)

// ScreenshotExtensions lists the lower-cased file extensions treated as screenshots.
var ScreenshotExtensions = []string{".png", ".jpg", ".jpeg"}

// ScreenshotEvent is raised once per newly created screenshot file.
type ScreenshotEvent struct {
	Path       string    `json:"path"`
	DetectedAt time.Time `json:"detected_at"`
}

// NewScreenshotEvent stamps path with the current time.
func NewScreenshotEvent(path string) ScreenshotEvent {
	return ScreenshotEvent{Path: path, DetectedAt: time.Now()}
}

// IsScreenshot reports whether path has one of the screenshot extensions,
// compared case-insensitively.
func IsScreenshot(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range ScreenshotExtensions {
		if ext == want {
			return true
		}
	}
	return false
}
