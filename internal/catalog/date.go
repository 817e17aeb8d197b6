package catalog

import (
	"strings"
	"time"
)

// DateLayout is the day-granular layout used in filenames, front matter and
// filter configuration.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	DateLayout,
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// ParseDate accepts the timestamp shapes seen across the listing API, archive
// markup and sitemaps. It returns nil when no layout matches.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// ParseDay parses a YYYY-MM-DD value into a UTC midnight timestamp.
func ParseDay(raw string) (*time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	return &t, nil
}
