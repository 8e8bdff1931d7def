package types

import (
	"net/url"
	"strings"
)

// TabInfo holds metadata about a browser tab known to the session.
type TabInfo struct {
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}

// ShortID returns the first 8 chars of a CDP target ID for log lines.
func (t TabInfo) ShortID() string {
	return ShortTargetID(t.TargetID)
}

// Host returns the lower-cased host of the tab URL, or "" if it does not parse.
func (t TabInfo) Host() string {
	parsed, err := url.Parse(t.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// ShortTargetID returns the first 8 chars of a CDP target ID.
func ShortTargetID(targetID string) string {
	if len(targetID) >= 8 {
		return targetID[:8]
	}
	return targetID
}
