package schedule

import (
	"fmt"
	"sort"
	"time"
)

// AvailabilityWindow is one recurring weekly opening on a provider's
// schedule. A provider's week is replaced wholesale when they save it; windows
// are never patched in place.
type AvailabilityWindow struct {
	ID          string
	ProviderID  string
	Weekday     time.Weekday // 0 = Sunday, matching time.Weekday
	StartMinute int
	EndMinute   int
}

// ValidateWindows checks a weekly schedule before it replaces the stored one:
// every window must have a positive span within the day, and windows sharing
// a weekday must not overlap each other.
func ValidateWindows(windows []AvailabilityWindow) error {
	byDay := make(map[time.Weekday][]AvailabilityWindow)
	for _, w := range windows {
		if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
			return fmt.Errorf("window weekday %d out of range: %w", w.Weekday, ErrValidation)
		}
		if w.StartMinute < 0 || w.EndMinute > MinutesPerDay {
			return fmt.Errorf("window %s-%s outside the day: %w", FormatClock(w.StartMinute), FormatClock(w.EndMinute), ErrValidation)
		}
		if w.StartMinute >= w.EndMinute {
			return fmt.Errorf("window start %s not before end %s: %w", FormatClock(w.StartMinute), FormatClock(w.EndMinute), ErrValidation)
		}
		byDay[w.Weekday] = append(byDay[w.Weekday], w)
	}

	for day, dayWindows := range byDay {
		sort.Slice(dayWindows, func(i, j int) bool {
			return dayWindows[i].StartMinute < dayWindows[j].StartMinute
		})
		for i := 1; i < len(dayWindows); i++ {
			if dayWindows[i].StartMinute < dayWindows[i-1].EndMinute {
				return fmt.Errorf("overlapping windows on %s: %w", day, ErrValidation)
			}
		}
	}
	return nil
}
