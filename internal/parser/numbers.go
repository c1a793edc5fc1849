package parser

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

var missingMarkers = map[string]bool{
	"":    true,
	"-":   true,
	"--":  true,
	"—":   true,
	"N/A": true,
	"NA":  true,
	"NIL": true,
}

// normaliseNumber rewrites a locale-formatted number into the plain
// "-1234.56" form. It accepts thousand separators of either convention,
// a trailing '%', a leading sign and accounting parentheses. ok is false
// for missing markers and anything that is not a number.
func normaliseNumber(raw string) (string, bool) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if missingMarkers[strings.ToUpper(s)] {
		return "", false
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimSuffix(s, "%")
	switch {
	case strings.HasPrefix(s, "-"), strings.HasPrefix(s, "−"):
		neg = !neg
		s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "−")
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")
	switch {
	case commas > 0 && dots > 0:
		// whichever separator comes last is the decimal point
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case commas == 1:
		i := strings.Index(s, ",")
		if len(s)-i-1 == 3 {
			s = s[:i] + s[i+1:] // 1,234
		} else {
			s = s[:i] + "." + s[i+1:] // 12,5
		}
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	if !isPlainNumber(s) {
		return "", false
	}
	if neg {
		s = "-" + s
	}
	return s, true
}

// isPlainNumber accepts digits with at most one '.', and at least one digit.
func isPlainNumber(s string) bool {
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

// parseDecimal parses a cell as a decimal. ok is false when the cell is
// missing or not numeric.
func parseDecimal(raw string) (decimal.Decimal, bool) {
	s, ok := normaliseNumber(raw)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// optionalDecimal parses an optional cell, treating anything unusable as zero.
func optionalDecimal(raw string) decimal.Decimal {
	d, _ := parseDecimal(raw)
	return d
}

// optionalCount parses a non-negative integer cell such as volume or trade
// count; missing, fractional-garbage or negative values become zero.
func optionalCount(raw string) int64 {
	d, ok := parseDecimal(raw)
	if !ok || d.IsNegative() {
		return 0
	}
	return d.IntPart()
}

var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"Jan 02, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2-Jan-2006",
	"02-Jan-2006",
}

// parseDate parses a calendar date in any of the layouts seen on the
// exchange pages. The result has no time component and is in UTC.
func parseDate(raw string) (time.Time, bool) {
	s := cleanText(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// cleanSymbol normalises a trading code cell; codes never contain spaces.
func cleanSymbol(raw string) string {
	s := strings.ToUpper(cleanText(raw))
	if missingMarkers[s] {
		return ""
	}
	return strings.ReplaceAll(s, " ", "")
}
