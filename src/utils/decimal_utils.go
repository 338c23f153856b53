package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DustEpsilon is the remaining-quantity threshold below which a lot is
// considered exhausted and pruned from its bucket.
var DustEpsilon = decimal.New(1, -8) // 1e-8

// ParseDecimal parses a decimal string from an ingested row. Thousands
// separators are tolerated; anything else malformed is an error rather than
// a silent zero.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// IsDust reports whether d is at or below the pruning threshold.
func IsDust(d decimal.Decimal) bool {
	return d.Cmp(DustEpsilon) <= 0
}
