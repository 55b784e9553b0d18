package trip

import (
	"strings"
	"time"
)

// Date layouts used across exports.
const (
	// DayTitleLayout is the date line under a day title card ("Thursday, June 15").
	DayTitleLayout = "Monday, January 2"

	// ItemDateLayout is the corner date on a media frame ("Jun 15, 2023").
	ItemDateLayout = "Jan 2, 2006"

	// ShortDateLayout is used on storyboard day sheets ("Thu, Jun 15").
	ShortDateLayout = "Mon, Jan 2"

	// ClockLayout is the time badge on storyboard thumbnails.
	ClockLayout = "3:04 PM"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the ISO-8601 strings produced by the editor.
// Date-only values are midnight UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatWith(s, layout string) string {
	t, ok := ParseTimestamp(s)
	if !ok {
		return ""
	}
	return t.Format(layout)
}

// FormatDayTitle formats a day's date for its title card.
func FormatDayTitle(s string) string { return formatWith(s, DayTitleLayout) }

// FormatItemDate formats a media item timestamp for the frame corner.
func FormatItemDate(s string) string { return formatWith(s, ItemDateLayout) }

// FormatShortDate formats a date for storyboard headers.
func FormatShortDate(s string) string { return formatWith(s, ShortDateLayout) }

// FormatClock formats the time-of-day part of a timestamp.
func FormatClock(s string) string { return formatWith(s, ClockLayout) }
