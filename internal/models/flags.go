package models

import (
	"fmt"
	"strings"
	"time"
)

// FormatFlag renders a boolean as the single-character Y/N form used in both
// the document files and the SQL schema.
func FormatFlag(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

// ParseFlag accepts Y/N plus a few common spellings. Empty is false.
func ParseFlag(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true", "1":
		return true, nil
	case "", "n", "no", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid flag value %q", s)
}

// TimestampLayout is the canonical rendering of Message.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
	"02-Jan-2006 15:04:05",
	"02-Jan-2006",
}

// FormatTimestamp renders t in UTC with second precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts the layouts found in historical document files and
// returns the time in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
