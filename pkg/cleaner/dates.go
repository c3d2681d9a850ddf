package cleaner

import (
	"strings"
	"time"
)

const (
	// SourceDateLayout is the layout of date columns in the raw extract
	SourceDateLayout = "01/02/2006 03:04:05 PM"
	// CanonicalDateLayout is the layout dates are written back in
	CanonicalDateLayout = "2006-01-02 15:04:05"
)

// ParseIncidentTime parses a date cell in the source layout or the
// canonical layout. Anything else is reported as unparseable.
func ParseIncidentTime(value string) (time.Time, bool) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{SourceDateLayout, CanonicalDateLayout} {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DelayDays returns the whole days between occurred and reported, rounded
// down. ok is false when the report precedes the occurrence.
func DelayDays(occurred, reported time.Time) (int64, bool) {
	days := int64(reported.Sub(occurred).Hours() / 24)
	if reported.Before(occurred) {
		return 0, false
	}
	return days, true
}
