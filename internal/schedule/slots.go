package schedule

// Interval is a half-open [Start, End) minute-of-day range.
type Interval struct {
	Start int
	End   int
}

// Overlaps reports whether two half-open intervals share any minute.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start < other.End && other.Start < iv.End
}

// SlotStarts returns the candidate start minutes for a booking of length
// duration inside [windowStart, windowEnd), stepping by step, skipping starts
// whose interval would overlap any busy interval.
//
// A slot is only emitted when start+duration fits entirely inside the window:
// the last bookable start for a 60-minute service in a window ending at 17:00
// is 16:00, never 16:30. Output is ascending and deterministic.
func SlotStarts(windowStart, windowEnd, duration, step int, busy []Interval) []int {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if windowStart+duration > windowEnd {
		return nil
	}

	var starts []int
	for t := windowStart; t+duration <= windowEnd; t += step {
		if !overlapsAny(Interval{Start: t, End: t + duration}, busy) {
			starts = append(starts, t)
		}
	}
	return starts
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
