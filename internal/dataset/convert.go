package dataset

// convert.go handles the messy reality of values in survey exports:
//
//   - Currency symbols and thousand separators in numbers
//   - Accounting-style negatives "(123.45)"
//   - Various boolean representations (yes/no, true/false, 1/0)
//   - Excel formula prefixes (="value")
//   - Common CSV artifacts (BOM, stray wrapping quotes)
//
// Parse* functions report ok=false for empty or unparseable input so
// callers can treat those values as missing rather than guessing.

import (
	"regexp"
	"strconv"
	"strings"
)

// numericRegex validates that a string is a valid numeric format after
// cleanup. Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// CleanCell strips artifacts that export tools wrap around values:
// UTF-8 BOM, Excel formula prefixes (="value"), redundant wrapping
// quotes, and surrounding whitespace.
func CleanCell(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.TrimSpace(s)

	// Excel formula prefix: ="value"
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}

	// Redundant wrapping quotes left by double-encoding
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		inner := s[1 : len(s)-1]
		if !strings.Contains(inner, `"`) {
			s = inner
		}
	}

	return strings.TrimSpace(s)
}

// CleanHeader normalizes a column header: same cleanup as CleanCell
// plus collapsing of internal whitespace runs.
func CleanHeader(s string) string {
	s = CleanCell(s)
	return strings.Join(strings.Fields(s), " ")
}

// ParseNumber converts a survey export value to a float64.
// Handles currency symbols, thousands separators, and accounting
// format (parentheses for negative). Returns ok=false for empty or
// non-numeric input.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	// Accounting-style negative: "(123.45)"
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	// Currency symbols and thousands separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "")
	s = strings.ReplaceAll(s, "£", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if negative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseBool converts common boolean spellings to a bool.
// Returns ok=false for empty or unrecognized input.
func ParseBool(s string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// FormatNumber renders a float the way the rest of the pipeline
// expects: no exponent, no trailing zeros.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// NumberCell builds a valid Cell holding a formatted number.
func NumberCell(f float64) Cell {
	return Cell{String: FormatNumber(f), Valid: true}
}

// Number returns the cell's numeric value. Missing cells and
// non-numeric values report ok=false.
func (c Cell) Number() (float64, bool) {
	if !c.Valid {
		return 0, false
	}
	return ParseNumber(c.String)
}

// Bool returns the cell's boolean value. Missing cells and
// unrecognized values report ok=false.
func (c Cell) Bool() (bool, bool) {
	if !c.Valid {
		return false, false
	}
	return ParseBool(c.String)
}
