// Package caption expands post caption templates.
//
// Two placeholders are recognised: {yo} becomes the letter "o" repeated
// counter times and {counter} becomes the decimal counter value. Any other
// brace-delimited text is left in the output unchanged.
package caption

import (
	"strconv"
	"strings"
)

const (
	PlaceholderYo      = "{yo}"
	PlaceholderCounter = "{counter}"
)

// Generate expands template for counter. Negative counters expand {yo} to
// the empty string.
func Generate(template string, counter int) string {
	yo := ""
	if counter > 0 {
		yo = strings.Repeat("o", counter)
	}
	r := strings.NewReplacer(
		PlaceholderYo, yo,
		PlaceholderCounter, strconv.Itoa(counter),
	)
	return r.Replace(template)
}

// WithHashtags appends tags to caption separated by a single space.
func WithHashtags(caption, tags string) string {
	caption = strings.TrimSpace(caption)
	tags = strings.TrimSpace(tags)
	switch {
	case tags == "":
		return caption
	case caption == "":
		return tags
	}
	return caption + " " + tags
}
