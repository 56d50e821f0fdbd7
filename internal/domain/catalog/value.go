package catalog

import (
	"strconv"
	"strings"
)

// CanonicalValue renders a stored or configured value for comparison.
// Numeric strings collapse to their shortest decimal form so 50, "50" and
// "50.0" compare equal; anything else is compared trimmed and verbatim.
func CanonicalValue(s string) string {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FormatNumber(f)
	}
	return s
}

// FormatNumber renders f the way String(n) does for JS numbers.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// SameValue reports whether two values match under CanonicalValue.
func SameValue(a, b string) bool {
	return CanonicalValue(a) == CanonicalValue(b)
}
