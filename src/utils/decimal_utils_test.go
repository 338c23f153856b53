package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1.5", "1.5", false},
		{"1,234.56", "1234.56", false},
		{"", "0", false},
		{"  42 ", "42", false},
		{"-0.00000001", "-0.00000001", false},
		{"abc", "", true},
	}
	for _, tc := range cases {
		got, err := ParseDecimal(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDecimal(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDecimal(%q): unexpected error %v", tc.in, err)
			continue
		}
		want, _ := decimal.NewFromString(tc.want)
		if !got.Equal(want) {
			t.Errorf("ParseDecimal(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestIsDust(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"0", true},
		{"0.00000001", true},  // exactly 1e-8
		{"0.000000011", false},
		{"1", false},
		{"-0.5", true}, // negative is never a meaningful balance
	}
	for _, tc := range cases {
		d, _ := decimal.NewFromString(tc.in)
		if got := IsDust(d); got != tc.want {
			t.Errorf("IsDust(%s) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMinDecimal(t *testing.T) {
	a, _ := decimal.NewFromString("1.5")
	b, _ := decimal.NewFromString("2")
	if !MinDecimal(a, b).Equal(a) {
		t.Errorf("MinDecimal should pick 1.5")
	}
	if !MinDecimal(b, a).Equal(a) {
		t.Errorf("MinDecimal should be symmetric")
	}
}
