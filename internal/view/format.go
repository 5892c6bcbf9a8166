// ABOUTME: Level styling and timestamp formatting for log entries
// ABOUTME: Timestamps are nanoseconds since the Unix epoch rendered in a caller-chosen zone

package view

import (
	"time"

	"github.com/2389/auditlog-gateway/internal/logstore"
)

// Level colors as CSS hex values.
const (
	ColorError   = "#c62828"
	ColorWarn    = "#f9a825"
	ColorInfo    = "#1565c0"
	ColorNeutral = "#616161"
)

// LevelColor returns the display color for level.
func LevelColor(level string) string {
	switch level {
	case logstore.LevelError:
		return ColorError
	case logstore.LevelWarn:
		return ColorWarn
	case logstore.LevelInfo:
		return ColorInfo
	default:
		return ColorNeutral
	}
}

// LevelIcon returns a Material icon name for level.
func LevelIcon(level string) string {
	switch level {
	case logstore.LevelError:
		return "error"
	case logstore.LevelWarn:
		return "warning"
	case logstore.LevelInfo:
		return "info"
	default:
		return "circle"
	}
}

func inZone(ns int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(0, ns).In(loc)
}

// FormatDate renders the calendar date, e.g. "January 24, 2026".
func FormatDate(ns int64, loc *time.Location) string {
	return inZone(ns, loc).Format("January 2, 2006")
}

// FormatTime renders the clock time, e.g. "02:30:45 PM".
func FormatTime(ns int64, loc *time.Location) string {
	return inZone(ns, loc).Format("03:04:05 PM")
}

// FormatTimestamp renders date and time, e.g. "1/24/2026, 2:30:45 PM".
func FormatTimestamp(ns int64, loc *time.Location) string {
	return inZone(ns, loc).Format("1/2/2006, 3:04:05 PM")
}
