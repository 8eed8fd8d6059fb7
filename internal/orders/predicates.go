package orders

import "strings"

// The brokerage reports many failures only as free text. These predicates
// hold every phrasing observed in practice; callers must not inline their
// own substring checks.

var insufficientSharesNeedles = []string{
	"insufficient",
	"not enough shares",
	"exceeds available",
}

// IsInsufficientShares reports whether a reject detail means the sell asked
// for more shares than are currently free (usually held by a resting stop).
func IsInsufficientShares(detail string) bool {
	return containsAny(detail, insufficientSharesNeedles)
}

var tifNeedles = []string{
	"good til",
	"time_in_force",
	"tif",
}

// IsTIFIncompatible reports whether a stop-order reject blames the
// time-in-force, in which case a GFD retry is worth one attempt.
func IsTIFIncompatible(detail string) bool {
	return containsAny(detail, tifNeedles)
}

func containsAny(detail string, needles []string) bool {
	s := strings.ToLower(strings.TrimSpace(detail))
	if s == "" {
		return false
	}
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
