// Package trainid implements the normalized-train-number extraction used
// both to pre-compute a timetable trip's NormalizedNumber (C2) and to
// interpret GTFS-RT trip_id values during matching (C4). Grounded on the
// trip-identifier heuristics in kasmar00-gtfs-polish-trains/match/trip.go,
// generalized to the regex spec.md §4.4 describes; the digit-count
// tiebreak below is this repo's own resolution of the one ambiguity the
// distilled spec leaves underspecified (see DESIGN.md).
package trainid

import (
	"regexp"
	"strings"
)

var prefixRE = regexp.MustCompile(`^\d+:`)

// Normalize converts a raw, operator-specific trip identifier into a
// normalized train number: the numeric body with leading zeros stripped,
// plus a single uppercase letter suffix. The tail must end in a letter;
// the body before it is used whole when it is 1-4 digits, otherwise its
// last 3 characters must be digits and are taken as the number. Any other
// tail reports ok=false (spec.md §4.4 step 3; unmatched trips are kept
// but tagged `unmatched`).
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x) for any
// x that already matches.
func Normalize(raw string) (string, bool) {
	tail := prefixRE.ReplaceAllString(raw, "")
	if tail == "" {
		return "", false
	}

	last := rune(tail[len(tail)-1])
	if last < 'A' || (last > 'Z' && last < 'a') || last > 'z' {
		return "", false
	}
	letter := strings.ToUpper(string(last))
	body := tail[:len(tail)-1]

	var digits string
	if len(body) >= 1 && len(body) <= 4 && isAllDigits(body) {
		// The whole body is the train number itself (no leftover
		// schedule/order-ID prefix to discard).
		digits = body
	} else {
		if len(body) < 3 {
			return "", false
		}
		candidate := body[len(body)-3:]
		if !isAllDigits(candidate) {
			return "", false
		}
		digits = candidate
	}

	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		digits = "0"
	}

	return digits + letter, true
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
