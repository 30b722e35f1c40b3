package ingest

import (
	"strconv"
	"strings"
	"time"
)

// Date layouts accepted in the field reports, tried in order. Brazilian
// day-first forms come before ISO so ambiguous values resolve day-first.
var dateLayouts = []string{
	"02/01/2006",
	"02/01/06",
	"02-01-2006",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
}

// parseDate coerces a cell value to a date. Returns the zero time when
// the value does not parse under any accepted layout.
func parseDate(raw string) time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	// Excel serial dates survive some exports as plain numbers.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 20000 && serial < 80000 {
		epoch := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
		return epoch.AddDate(0, 0, int(serial))
	}
	return time.Time{}
}

// parseMoney coerces Brazilian currency text ("R$ 1.234,56") to a float.
// Plain decimal-point numbers pass through unchanged.
func parseMoney(raw string) float64 {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	// "1.234,56" -> "1234.56". A value with a comma is always the
	// Brazilian form; dots before it are thousands separators.
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseQty coerces a quantity cell to an integer, rounding fractional
// values that show up in weight-based lines.
func parseQty(raw string) int {
	v := parseMoney(raw)
	if v < 0 {
		return 0
	}
	return int(v + 0.5)
}
