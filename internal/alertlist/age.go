package alertlist

import (
	"fmt"
	"math"
	"time"
)

// Thresholds for RelativeAge, in rounded units of the row they guard.
const (
	secondsMax = 45
	minutesMax = 45
	hoursMax   = 22
	daysMax    = 26
	monthsMax  = 11
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses the ISO-8601 forms the backend emits.
func ParseTimestamp(s string) (time.Time, bool) {
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

// StateAge renders the time since date relative to now, or "" when date
// cannot be parsed or is the zero timestamp the backend sends for "never".
func StateAge(date string, now time.Time) string {
	t, ok := ParseTimestamp(date)
	if !ok || t.IsZero() {
		return ""
	}
	// time.Duration saturates near 292 years, so work on float milliseconds.
	ms := float64(now.Unix()-t.Unix())*1e3 + float64(now.Nanosecond()-t.Nanosecond())/1e6
	return relativeAge(ms)
}

// RelativeAge renders d as an approximate magnitude without a suffix,
// e.g. "a minute", "3 hours", "a year". The sign of d is ignored. Each unit
// is rounded to the closest integer before the thresholds are applied.
func RelativeAge(d time.Duration) string {
	return relativeAge(float64(d) / float64(time.Millisecond))
}

func relativeAge(ms float64) string {
	ms = math.Abs(ms)

	seconds := math.Round(ms / 1e3)
	minutes := math.Round(ms / 6e4)
	hours := math.Round(ms / 36e5)
	rawDays := ms / 864e5
	days := math.Round(rawDays)
	rawMonths := rawDays * 4800 / 146097
	months := math.Round(rawMonths)
	years := math.Round(rawMonths / 12)

	switch {
	case seconds < secondsMax:
		return "a few seconds"
	case minutes <= 1:
		return "a minute"
	case minutes < minutesMax:
		return fmt.Sprintf("%d minutes", int64(minutes))
	case hours <= 1:
		return "an hour"
	case hours < hoursMax:
		return fmt.Sprintf("%d hours", int64(hours))
	case days <= 1:
		return "a day"
	case days < daysMax:
		return fmt.Sprintf("%d days", int64(days))
	case months <= 1:
		return "a month"
	case months < monthsMax:
		return fmt.Sprintf("%d months", int64(months))
	case years <= 1:
		return "a year"
	default:
		return fmt.Sprintf("%d years", int64(years))
	}
}
