package services

import (
	"fmt"
	"strings"
	"time"
)

// FormatTimestamp renders t the way a browser's toLocaleString would for the
// given locale. Unknown locales fall back to an ISO-like layout; the zero time
// renders as "".
func FormatTimestamp(t time.Time, locale string) string {
	if t.IsZero() {
		return ""
	}
	hour12, pm := t.Hour()%12, t.Hour() >= 12
	if hour12 == 0 {
		hour12 = 12
	}
	switch strings.ToLower(locale) {
	case "ko-kr", "ko":
		half := "오전"
		if pm {
			half = "오후"
		}
		return fmt.Sprintf("%d. %d. %d. %s %d:%02d:%02d",
			t.Year(), int(t.Month()), t.Day(), half, hour12, t.Minute(), t.Second())
	case "en-us", "en":
		half := "AM"
		if pm {
			half = "PM"
		}
		return fmt.Sprintf("%d/%d/%d, %d:%02d:%02d %s",
			int(t.Month()), t.Day(), t.Year(), hour12, t.Minute(), t.Second(), half)
	default:
		return t.Format("2006-01-02 15:04:05")
	}
}

// TimestampFormatter binds a locale and display zone for templates.
type TimestampFormatter struct {
	Locale   string
	Location *time.Location
}

func (f TimestampFormatter) Format(t time.Time) string {
	if f.Location != nil && !t.IsZero() {
		t = t.In(f.Location)
	}
	return FormatTimestamp(t, f.Locale)
}
