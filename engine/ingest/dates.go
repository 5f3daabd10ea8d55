package ingest

import (
	"strings"
	"time"
)

// dateLayouts are tried in order; the first that parses wins.
var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02.01.2006",
}

// NormalizeDate rewrites s as YYYY-MM-DD. Unparseable input is returned
// trimmed but otherwise unchanged.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// NormalizeDateRange normalizes both sides of "start/end". Values that are
// not a two-sided range are returned trimmed.
func NormalizeDateRange(s string) string {
	s = strings.TrimSpace(s)
	start, end, ok := strings.Cut(s, "/")
	if !ok || strings.Contains(end, "/") {
		return s
	}
	return NormalizeDate(start) + "/" + NormalizeDate(end)
}
