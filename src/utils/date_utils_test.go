package utils

import (
	"testing"
	"time"
)

func TestParseTimestampLayouts(t *testing.T) {
	cases := []string{
		"2023-06-01T12:30:00Z",
		"2023-06-01 12:30:00",
		"2023-06-01",
		"6/1/2023 12:30",
	}
	for _, in := range cases {
		ts, err := ParseTimestamp(in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", in, err)
			continue
		}
		if ts.Year() != 2023 || ts.Month() != time.June || ts.Day() != 1 {
			t.Errorf("ParseTimestamp(%q) = %s, wrong date", in, ts)
		}
		if ts.Location() != time.UTC {
			t.Errorf("ParseTimestamp(%q) not UTC-normalized", in)
		}
	}

	if _, err := ParseTimestamp("not a date"); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

func TestHoldingDays(t *testing.T) {
	acquired := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

	if d := HoldingDays(acquired, acquired.AddDate(0, 0, 365)); d != 365 {
		t.Errorf("expected 365 days, got %d", d)
	}
	if d := HoldingDays(acquired, acquired.AddDate(1, 0, 0)); d != 366 {
		t.Errorf("2024 is a leap year; expected 366 days, got %d", d)
	}
	if d := HoldingDays(acquired, acquired); d != 0 {
		t.Errorf("same-day holding should be 0, got %d", d)
	}
}
