package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Times inside a day are minute-of-day integers (0..1440). Keeping them as
// ints rather than "HH:MM" strings avoids the lexicographic-comparison bugs
// that plague string clock math; strings exist only at the transport boundary.

const MinutesPerDay = 24 * 60

// ParseClock converts "HH:MM" to a minute-of-day value.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	mins, err := strconv.Atoi(m)
	if err != nil || mins < 0 || mins > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return hours*60 + mins, nil
}

// FormatClock converts a minute-of-day value back to "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// FormatClocks renders a slice of minute-of-day values as "HH:MM" strings.
func FormatClocks(minutes []int) []string {
	out := make([]string, 0, len(minutes))
	for _, m := range minutes {
		out = append(out, FormatClock(m))
	}
	return out
}

const dateLayout = "2006-01-02"

// ParseDate parses a calendar date in ISO form. The engine is single-timezone;
// dates are anchored at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}

// NormalizeDate truncates t to its calendar date at midnight UTC so that
// dates compare with Equal regardless of how the caller built them.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a normalized date in ISO form.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
