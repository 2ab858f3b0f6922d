package analysis

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrEmpty is returned when the input has no header row.
	ErrEmpty = errors.New("no columns to parse from file")
	// ErrTooManyRows is returned when the input exceeds Options.MaxRows.
	ErrTooManyRows = errors.New("too many rows")
)

// DefaultDateThreshold is the share of non-null text values that must parse
// as dates for a column to be promoted to datetime. The comparison is inclusive.
const DefaultDateThreshold = 0.8

// Options controls loading and classification of tabular data.
type Options struct {
	// MaxRows limits rows loaded; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, ',' is used.
	Delimiter rune
	// DateThreshold is the inclusive parse-success fraction for date promotion.
	DateThreshold float64
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
}

// DefaultOptions returns reasonable defaults for dataset loading.
func DefaultOptions() Options {
	return Options{
		MaxRows:       1_000_000,
		DateThreshold: DefaultDateThreshold,
	}
}

var nullTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
	"#N/A": true,
	"<NA>": true,
}

func isNullToken(s string) bool { return nullTokens[strings.TrimSpace(s)] }

func parseBool(s string) (bool, bool) {
	switch strings.TrimSpace(s) {
	case "true", "True", "TRUE":
		return true, true
	case "false", "False", "FALSE":
		return false, true
	}
	return false, false
}

// parseNumeric accepts plain, scientific and locale-grouped numbers.
// Explicit separators in opt win over auto-detection.
func parseNumeric(s string, opt Options) (float64, bool) {
	raw := strings.TrimSpace(s)
	raw = strings.ReplaceAll(raw, "\u00A0", "")
	if raw == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, true
	}
	dec := opt.DecimalSeparator
	thou := opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		switch {
		case cpos >= 0 && dpos >= 0 && cpos > dpos:
			dec, thou = ',', '.'
		case cpos >= 0 && dpos >= 0:
			dec, thou = '.', ','
		default:
			// A lone comma is grouping ("1,000") only with 3-digit groups.
			dec = '.'
			if cpos >= 0 && !groupedThousands(raw, ',') {
				dec = ','
			}
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.'} {
			if sep != dec && groupedThousands(raw, sep) {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		if !groupedThousands(raw, thou) {
			return 0, false
		}
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// groupedThousands reports whether every group after sep in the integer part
// has exactly three digits, e.g. "1,234,567.5".
func groupedThousands(s string, sep rune) bool {
	s = strings.TrimLeft(s, "+-")
	intPart := s
	for _, d := range []string{".", ","} {
		if d == string(sep) {
			continue
		}
		if i := strings.Index(intPart, d); i >= 0 {
			intPart = intPart[:i]
		}
	}
	parts := strings.Split(intPart, string(sep))
	if len(parts) < 2 || len(parts[0]) == 0 || len(parts[0]) > 3 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"2006.01.02",
	"2006-01",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04:05",
	"01-02-2006",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Mon, 02 Jan 2006",
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
	time.ANSIC,
}

// ParseTime tries a permissive list of layouts. Month-first numeric dates are
// tried before day-first, so "03/04/2024" is March 4th.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
