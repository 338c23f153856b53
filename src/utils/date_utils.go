package utils

import (
	"fmt"
	"strings"
	"time"
)

const DefaultDateFormat = "2006-01-02"

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006 15:04",
}

// ParseTimestamp tries the timestamp layouts exchanges commonly export and
// returns the parsed time normalized to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %q", s)
}

// HoldingDays returns the number of whole days between acquisition and
// disposal, used for the 365-day long-term threshold.
func HoldingDays(acquired, disposed time.Time) int {
	return int(disposed.Sub(acquired).Hours() / 24)
}

// SameOrBefore reports whether a is on or before b, date-inclusive.
func SameOrBefore(a, b time.Time) bool {
	return !a.After(b)
}
