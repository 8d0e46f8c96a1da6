package schedule

import (
	"context"
	"math/rand"
	"sort"
	"time"
)

// Strategy ranks bookable slots for a customer. Implementations receive the
// full candidate list (ascending start minutes, already conflict-filtered)
// and return a subset in preference order. Strategies must not invent starts
// that are not in candidates and must tolerate an empty list.
type Strategy interface {
	Suggest(ctx context.Context, customerID, providerID string, date time.Time, candidates []int) []int
}

// EarliestFirst returns the first N candidates of the day. N <= 0 means 3.
type EarliestFirst struct {
	N int
}

func (s EarliestFirst) Suggest(_ context.Context, _, _ string, _ time.Time, candidates []int) []int {
	n := s.N
	if n <= 0 {
		n = 3
	}
	if len(candidates) < n {
		n = len(candidates)
	}
	out := make([]int, n)
	copy(out, candidates[:n])
	return out
}

// RandomSample picks between Min and Max distinct candidates at random and
// returns them in ascending order. Zero values default to 1 and 3.
type RandomSample struct {
	Min, Max int
	Rand     *rand.Rand // nil uses the shared source
}

func (s RandomSample) Suggest(_ context.Context, _, _ string, _ time.Time, candidates []int) []int {
	if len(candidates) == 0 {
		return nil
	}
	lo, hi := s.Min, s.Max
	if lo <= 0 {
		lo = 1
	}
	if hi < lo {
		hi = lo + 2
	}
	n := lo
	if hi > lo {
		n = lo + s.intn(hi-lo+1)
	}
	if n > len(candidates) {
		n = len(candidates)
	}

	picked := make([]int, len(candidates))
	copy(picked, candidates)
	for i := 0; i < n; i++ {
		j := i + s.intn(len(picked)-i)
		picked[i], picked[j] = picked[j], picked[i]
	}
	out := picked[:n]
	sort.Ints(out)
	return out
}

func (s RandomSample) intn(n int) int {
	if n <= 1 {
		return 0
	}
	if s.Rand != nil {
		return s.Rand.Intn(n)
	}
	return rand.Intn(n)
}

// PreferredHour ranks candidates by distance from the customer's historical
// mean start minute with this provider, earliest first on ties. Cancelled
// appointments do not count toward the mean. With no usable history it falls
// back to EarliestFirst.
type PreferredHour struct {
	History AppointmentStore
	N       int
}

func (s PreferredHour) Suggest(ctx context.Context, customerID, providerID string, date time.Time, candidates []int) []int {
	n := s.N
	if n <= 0 {
		n = 3
	}

	mean, ok := s.meanStart(ctx, customerID, providerID)
	if !ok {
		return EarliestFirst{N: n}.Suggest(ctx, customerID, providerID, date, candidates)
	}

	ranked := make([]int, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		di, dj := absDiff(ranked[i], mean), absDiff(ranked[j], mean)
		if di != dj {
			return di < dj
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func (s PreferredHour) meanStart(ctx context.Context, customerID, providerID string) (int, bool) {
	if s.History == nil || customerID == "" {
		return 0, false
	}
	past, err := s.History.List(ctx, AppointmentFilter{CustomerID: customerID, ProviderID: providerID})
	if err != nil {
		return 0, false
	}
	sum, n := 0, 0
	for _, a := range past {
		if a.Status == StatusCancelled {
			continue
		}
		sum += a.StartMinute
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / n, true
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
