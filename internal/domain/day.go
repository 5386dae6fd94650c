package domain

import (
	"fmt"
	"time"
)

const (
	dayKeyLayout    = "2006-01-02"
	clockLayout     = "15:04"
	dateLabelLayout = "Jan 2"
)

// DayWindow returns [start, end) of the calendar day containing t in t's location.
// end is the next local midnight, so DST days are 23 or 25 hours long.
func DayWindow(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 0, 1)
	return start, end
}

// DayKey is the calendar date stored as a recipient's last-sent marker.
func DayKey(t time.Time) string {
	return t.Format(dayKeyLayout)
}

// ClockKey formats t as HH:MM for matching configured send times.
func ClockKey(t time.Time) string {
	return t.Format(clockLayout)
}

// DateLabel is the short date shown in report subjects, e.g. "Mar 4".
func DateLabel(t time.Time) string {
	return t.Format(dateLabelLayout)
}

// FormatDuration renders seconds as "1h 2m 3s", or "2m 3s" under an hour.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
