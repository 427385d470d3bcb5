// Package query turns filter preferences and the ingestion cursor into a
// Gmail search string.
package query

import (
	"strings"
	"time"
)

// DateLayout is the Gmail search date format (after:/before:) and the
// format the cursor is stored in.
const DateLayout = "2006/01/02"

// Preferences are the filter settings read from the email section of the config.
type Preferences struct {
	From          string
	Keyword       string
	HasAttachment bool
	AfterDate     string
	BeforeDate    string
	MaxResults    int64
}

// Build returns the search string for prefs. Clause order is fixed:
// sender, attachment, keyword, after, before.
//
// When either explicit bound is missing the range defaults to the month
// containing now. With incremental set and a non-empty cursor, the cursor
// replaces the after bound.
func Build(prefs Preferences, cursor string, incremental bool, now time.Time) string {
	var parts []string

	if from := strings.TrimSpace(prefs.From); from != "" {
		parts = append(parts, "from:"+from)
	}
	if prefs.HasAttachment {
		parts = append(parts, "has:attachment")
	}
	if kw := strings.TrimSpace(prefs.Keyword); kw != "" {
		parts = append(parts, kw)
	}

	after, before := DateRange(prefs, now)
	if incremental {
		if c := strings.TrimSpace(cursor); c != "" {
			after = c
		}
	}

	parts = append(parts, "after:"+after, "before:"+before)
	return strings.Join(parts, " ")
}

// DateRange resolves the configured bounds, falling back to the first and
// last day of now's month unless both are set.
func DateRange(prefs Preferences, now time.Time) (after, before string) {
	after = strings.TrimSpace(prefs.AfterDate)
	before = strings.TrimSpace(prefs.BeforeDate)
	if after != "" && before != "" {
		return after, before
	}
	first, last := MonthBounds(now)
	return first.Format(DateLayout), last.Format(DateLayout)
}

// MonthBounds returns midnight on the first and last day of t's month.
func MonthBounds(t time.Time) (first, last time.Time) {
	y, m, _ := t.Date()
	first = time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	last = time.Date(y, m+1, 0, 0, 0, 0, 0, t.Location())
	return first, last
}
