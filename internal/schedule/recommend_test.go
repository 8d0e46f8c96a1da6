package schedule

import (
	"context"
	"math/rand"
	"reflect"
	"testing"
	"time"
)

var candidateStarts = []int{540, 570, 600, 630, 660, 840, 870, 900}

func TestEarliestFirst(t *testing.T) {
	got := EarliestFirst{}.Suggest(context.Background(), "c", "p", time.Time{}, candidateStarts)
	if !reflect.DeepEqual(got, []int{540, 570, 600}) {
		t.Fatalf("expected first three starts, got %v", FormatClocks(got))
	}

	got = EarliestFirst{N: 2}.Suggest(context.Background(), "c", "p", time.Time{}, []int{540})
	if !reflect.DeepEqual(got, []int{540}) {
		t.Fatalf("expected the single candidate, got %v", FormatClocks(got))
	}

	if got := (EarliestFirst{}).Suggest(context.Background(), "c", "p", time.Time{}, nil); len(got) != 0 {
		t.Fatalf("expected nothing for no candidates, got %v", FormatClocks(got))
	}
}

func TestRandomSample(t *testing.T) {
	s := RandomSample{Min: 1, Max: 3, Rand: rand.New(rand.NewSource(1))}

	for i := 0; i < 50; i++ {
		got := s.Suggest(context.Background(), "c", "p", time.Time{}, candidateStarts)
		if len(got) < 1 || len(got) > 3 {
			t.Fatalf("expected 1..3 picks, got %d", len(got))
		}
		seen := make(map[int]bool)
		for j, m := range got {
			if seen[m] {
				t.Fatalf("duplicate pick %s", FormatClock(m))
			}
			seen[m] = true
			if j > 0 && got[j-1] > m {
				t.Fatalf("picks not ascending: %v", FormatClocks(got))
			}
			if !containsInt(candidateStarts, m) {
				t.Fatalf("pick %s is not a candidate", FormatClock(m))
			}
		}
	}

	if got := s.Suggest(context.Background(), "c", "p", time.Time{}, nil); got != nil {
		t.Fatalf("expected nil for no candidates, got %v", FormatClocks(got))
	}
}

type historyStore struct {
	AppointmentStore
	appts []Appointment
}

func (h historyStore) List(context.Context, AppointmentFilter) ([]Appointment, error) {
	return h.appts, nil
}

func TestPreferredHour(t *testing.T) {
	// Two past visits around 14:00-14:30 pull suggestions to the afternoon.
	history := historyStore{appts: []Appointment{
		{StartMinute: 14 * 60},
		{StartMinute: 14*60 + 30},
	}}

	got := PreferredHour{History: history}.Suggest(context.Background(), "cust-1", "prov-1", time.Time{}, candidateStarts)
	if !reflect.DeepEqual(got, []int{840, 870, 900}) {
		t.Fatalf("expected the afternoon starts, got %v", FormatClocks(got))
	}
}

func TestPreferredHour_IgnoresCancelledHistory(t *testing.T) {
	// A cancelled evening booking must not drag the mean away from the
	// customer's kept morning visit.
	history := historyStore{appts: []Appointment{
		{StartMinute: 9 * 60, Status: StatusPending},
		{StartMinute: 17 * 60, Status: StatusCancelled},
	}}

	got := PreferredHour{History: history, N: 1}.Suggest(context.Background(), "cust-1", "prov-1", time.Time{}, []int{9 * 60, 13 * 60, 16 * 60})
	if !reflect.DeepEqual(got, []int{9 * 60}) {
		t.Fatalf("expected [09:00], got %v", FormatClocks(got))
	}

	// All-cancelled history is no history.
	cancelledOnly := historyStore{appts: []Appointment{
		{StartMinute: 17 * 60, Status: StatusCancelled},
	}}
	got = PreferredHour{History: cancelledOnly}.Suggest(context.Background(), "cust-1", "prov-1", time.Time{}, candidateStarts)
	if !reflect.DeepEqual(got, []int{540, 570, 600}) {
		t.Fatalf("expected earliest-first fallback, got %v", FormatClocks(got))
	}
}

func TestPreferredHour_NoHistoryFallsBack(t *testing.T) {
	got := PreferredHour{History: historyStore{}}.Suggest(context.Background(), "cust-1", "prov-1", time.Time{}, candidateStarts)
	if !reflect.DeepEqual(got, []int{540, 570, 600}) {
		t.Fatalf("expected earliest-first fallback, got %v", FormatClocks(got))
	}
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
