package schedule_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/slotbook/slotbook/internal/schedule"
	"github.com/slotbook/slotbook/internal/store"
)

type capturedEvent struct {
	Type string
	Key  string
}

type captureSink struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (s *captureSink) Publish(_ context.Context, eventType, key string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, capturedEvent{Type: eventType, Key: key})
	return nil
}

func (s *captureSink) ofType(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// testEngine wires an engine over the in-memory store with one provider
// offering a 60-minute service, available 09:00-17:00 on Mondays.
func testEngine(t *testing.T) (*schedule.Engine, *captureSink, string) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	sink := &captureSink{}
	eng := schedule.NewEngine(schedule.Config{
		Availability: mem,
		Services:     mem,
		Appointments: mem,
		Events:       sink,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	if err := eng.SetWeeklyAvailability(ctx, "prov-1", []schedule.AvailabilityWindow{
		{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60},
	}); err != nil {
		t.Fatalf("set availability: %v", err)
	}

	svc := &schedule.Service{ProviderID: "prov-1", Name: "Consultation", DurationMinutes: 60, Price: 80}
	if err := eng.CreateService(ctx, svc); err != nil {
		t.Fatalf("create service: %v", err)
	}
	return eng, sink, svc.ID
}

// monday is a fixed Monday used across the engine tests.
var monday = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

func TestGenerateSlots_FullDay(t *testing.T) {
	eng, _, svcID := testEngine(t)

	slots, err := eng.GenerateSlots(context.Background(), "prov-1", svcID, monday, 30)
	if err != nil {
		t.Fatalf("generate slots: %v", err)
	}
	// 09:00 through 16:00 every 30 minutes; 16:30 cannot fit 60 minutes.
	if len(slots) != 15 {
		t.Fatalf("expected 15 slots, got %d: %v", len(slots), schedule.FormatClocks(slots))
	}
	if slots[0] != 9*60 || slots[len(slots)-1] != 16*60 {
		t.Fatalf("expected 09:00..16:00, got %s..%s",
			schedule.FormatClock(slots[0]), schedule.FormatClock(slots[len(slots)-1]))
	}
}

func TestGenerateSlots_ClosedDay(t *testing.T) {
	eng, _, svcID := testEngine(t)

	tuesday := monday.AddDate(0, 0, 1)
	slots, err := eng.GenerateSlots(context.Background(), "prov-1", svcID, tuesday, 30)
	if err != nil {
		t.Fatalf("generate slots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots on a closed day, got %v", schedule.FormatClocks(slots))
	}
}

func TestBook_RemovesSlotAndUnblocksOnCancel(t *testing.T) {
	eng, _, svcID := testEngine(t)
	ctx := context.Background()

	appt, err := eng.Book(ctx, schedule.BookingRequest{
		CustomerID: "cust-1", ProviderID: "prov-1", ServiceID: svcID,
		Date: monday, StartMinute: 10 * 60,
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.Status != schedule.StatusPending {
		t.Fatalf("expected pending, got %s", appt.Status)
	}
	if appt.EndMinute != 11*60 {
		t.Fatalf("expected end 11:00, got %s", schedule.FormatClock(appt.EndMinute))
	}

	slots, err := eng.GenerateSlots(ctx, "prov-1", svcID, monday, 30)
	if err != nil {
		t.Fatalf("generate slots: %v", err)
	}
	for _, s := range slots {
		if s >= 9*60+30 && s < 11*60 {
			t.Fatalf("slot %s overlaps the booking", schedule.FormatClock(s))
		}
	}

	// A pending appointment blocks its slot.
	free, err := eng.IsFree(ctx, "prov-1", monday, 10*60+30, 60)
	if err != nil {
		t.Fatalf("is free: %v", err)
	}
	if free {
		t.Fatal("overlapping interval reported free")
	}

	// Cancelling releases it.
	if _, err := eng.Transition(ctx, appt.ID, schedule.Actor{ID: "cust-1", Role: schedule.RoleCustomer}, schedule.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	free, err = eng.IsFree(ctx, "prov-1", monday, 10*60, 60)
	if err != nil {
		t.Fatalf("is free: %v", err)
	}
	if !free {
		t.Fatal("cancelled appointment still blocks its slot")
	}
}

func TestBook_OutsideAvailabilityRejected(t *testing.T) {
	eng, _, svcID := testEngine(t)

	_, err := eng.Book(context.Background(), schedule.BookingRequest{
		CustomerID: "cust-1", ProviderID: "prov-1", ServiceID: svcID,
		Date: monday, StartMinute: 16*60 + 30, // 60 minutes would run past 17:00
	})
	if !errors.Is(err, schedule.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestBook_UnknownServiceRejected(t *testing.T) {
	eng, _, _ := testEngine(t)

	_, err := eng.Book(context.Background(), schedule.BookingRequest{
		CustomerID: "cust-1", ProviderID: "prov-1", ServiceID: "nope",
		Date: monday, StartMinute: 10 * 60,
	})
	if !errors.Is(err, schedule.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestBook_ConcurrentSameSlot(t *testing.T) {
	eng, sink, svcID := testEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, customer := range []string{"cust-1", "cust-2"} {
		wg.Add(1)
		go func(i int, customer string) {
			defer wg.Done()
			_, errs[i] = eng.Book(ctx, schedule.BookingRequest{
				CustomerID: customer, ProviderID: "prov-1", ServiceID: svcID,
				Date: monday, StartMinute: 14 * 60,
			})
		}(i, customer)
	}
	wg.Wait()

	var ok, conflict int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, schedule.ErrSlotUnavailable):
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflict != 1 {
		t.Fatalf("expected exactly one success and one conflict, got %d successes, %d conflicts", ok, conflict)
	}
	if n := sink.ofType(schedule.EventAppointmentBooked); n != 1 {
		t.Fatalf("expected 1 booked event, got %d", n)
	}
}

func TestTransition_Lifecycle(t *testing.T) {
	eng, sink, svcID := testEngine(t)
	ctx := context.Background()

	appt, err := eng.Book(ctx, schedule.BookingRequest{
		CustomerID: "cust-1", ProviderID: "prov-1", ServiceID: svcID,
		Date: monday, StartMinute: 9 * 60,
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	provider := schedule.Actor{ID: "prov-1", Role: schedule.RoleProvider}

	appt, err = eng.Transition(ctx, appt.ID, provider, schedule.StatusConfirmed)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if appt.Status != schedule.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", appt.Status)
	}

	appt, err = eng.Transition(ctx, appt.ID, provider, schedule.StatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Completed is terminal.
	if _, err := eng.Transition(ctx, appt.ID, provider, schedule.StatusCancelled); !errors.Is(err, schedule.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if n := sink.ofType(schedule.EventAppointmentStatusChanged); n != 2 {
		t.Fatalf("expected 2 status events, got %d", n)
	}
}

func TestTransition_ErrorPrecedence(t *testing.T) {
	eng, _, svcID := testEngine(t)
	ctx := context.Background()

	appt, err := eng.Book(ctx, schedule.BookingRequest{
		CustomerID: "cust-1", ProviderID: "prov-1", ServiceID: svcID,
		Date: monday, StartMinute: 9 * 60,
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	stranger := schedule.Actor{ID: "cust-99", Role: schedule.RoleCustomer}

	// Unknown id wins over everything.
	if _, err := eng.Transition(ctx, "missing", stranger, schedule.StatusCancelled); !errors.Is(err, schedule.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// An illegal edge is reported before authorization, even to an actor who
	// could never touch the appointment.
	if _, err := eng.Transition(ctx, appt.ID, stranger, schedule.StatusCompleted); !errors.Is(err, schedule.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	// Legal edge, wrong actor.
	if _, err := eng.Transition(ctx, appt.ID, stranger, schedule.StatusCancelled); !errors.Is(err, schedule.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// Customers cannot confirm, even their own.
	owner := schedule.Actor{ID: "cust-1", Role: schedule.RoleCustomer}
	if _, err := eng.Transition(ctx, appt.ID, owner, schedule.StatusConfirmed); !errors.Is(err, schedule.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestListForActor_Scoping(t *testing.T) {
	eng, _, svcID := testEngine(t)
	ctx := context.Background()

	for i, customer := range []string{"cust-1", "cust-2", "cust-1"} {
		if _, err := eng.Book(ctx, schedule.BookingRequest{
			CustomerID: customer, ProviderID: "prov-1", ServiceID: svcID,
			Date: monday, StartMinute: (9 + i) * 60,
		}); err != nil {
			t.Fatalf("book %d: %v", i, err)
		}
	}

	cases := []struct {
		name  string
		actor schedule.Actor
		want  int
	}{
		{"admin sees all", schedule.Actor{ID: "root", Role: schedule.RoleAdmin}, 3},
		{"provider sees own calendar", schedule.Actor{ID: "prov-1", Role: schedule.RoleProvider}, 3},
		{"other provider sees none", schedule.Actor{ID: "prov-2", Role: schedule.RoleProvider}, 0},
		{"customer sees own", schedule.Actor{ID: "cust-1", Role: schedule.RoleCustomer}, 2},
		{"unknown role sees none", schedule.Actor{ID: "root", Role: schedule.Role("auditor")}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appts, err := eng.ListForActor(ctx, tc.actor)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(appts) != tc.want {
				t.Fatalf("expected %d appointments, got %d", tc.want, len(appts))
			}
			for i := 1; i < len(appts); i++ {
				if appts[i-1].Date.After(appts[i].Date) {
					t.Fatal("appointments out of date order")
				}
			}
		})
	}
}

func TestSuggest_SubsetOfCandidates(t *testing.T) {
	eng, _, svcID := testEngine(t)
	ctx := context.Background()

	candidates, err := eng.GenerateSlots(ctx, "prov-1", svcID, monday, 30)
	if err != nil {
		t.Fatalf("generate slots: %v", err)
	}
	suggested, err := eng.Suggest(ctx, "cust-1", "prov-1", svcID, monday, 30)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(suggested) == 0 || len(suggested) > len(candidates) {
		t.Fatalf("expected a non-empty subset, got %d of %d", len(suggested), len(candidates))
	}
	allowed := make(map[int]bool)
	for _, c := range candidates {
		allowed[c] = true
	}
	for _, s := range suggested {
		if !allowed[s] {
			t.Fatalf("suggested slot %s is not a candidate", schedule.FormatClock(s))
		}
	}
}

func TestSuggest_EmptyDayIsNotAnError(t *testing.T) {
	eng, _, svcID := testEngine(t)

	tuesday := monday.AddDate(0, 0, 1)
	suggested, err := eng.Suggest(context.Background(), "cust-1", "prov-1", svcID, tuesday, 30)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(suggested) != 0 {
		t.Fatalf("expected no suggestions, got %v", schedule.FormatClocks(suggested))
	}
}
