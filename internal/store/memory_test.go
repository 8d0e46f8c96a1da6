package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/slotbook/slotbook/internal/schedule"
)

var testDate = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

func testAppointment(id, customerID string, start, end int) *schedule.Appointment {
	return &schedule.Appointment{
		ID:          id,
		CustomerID:  customerID,
		ProviderID:  "prov-1",
		ServiceName: "Consultation",
		Date:        testDate,
		StartMinute: start,
		EndMinute:   end,
		Status:      schedule.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestMemoryCreate_RejectsOverlap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Create(ctx, testAppointment("a1", "cust-1", 540, 600)); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := m.Create(ctx, testAppointment("a2", "cust-2", 570, 630))
	if !errors.Is(err, schedule.ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}

	// Back to back is fine.
	if err := m.Create(ctx, testAppointment("a3", "cust-2", 600, 660)); err != nil {
		t.Fatalf("adjacent create: %v", err)
	}
}

func TestMemoryCreate_TerminalDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Create(ctx, testAppointment("a1", "cust-1", 540, 600)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.CompareAndSwapStatus(ctx, "a1", schedule.StatusPending, schedule.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := m.Create(ctx, testAppointment("a2", "cust-2", 540, 600)); err != nil {
		t.Fatalf("create over cancelled: %v", err)
	}
}

func TestMemoryCreate_ConcurrentOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Create(ctx, testAppointment(fmt.Sprintf("a%d", i), fmt.Sprintf("cust-%d", i), 540, 600))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, schedule.ErrSlotUnavailable) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one winner, got %d", ok)
	}
}

func TestMemoryCompareAndSwapStatus(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Create(ctx, testAppointment("a1", "cust-1", 540, 600)); err != nil {
		t.Fatalf("create: %v", err)
	}

	appt, err := m.CompareAndSwapStatus(ctx, "a1", schedule.StatusPending, schedule.StatusConfirmed)
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if appt.Status != schedule.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", appt.Status)
	}

	// A second swap from the stale status fails.
	if _, err := m.CompareAndSwapStatus(ctx, "a1", schedule.StatusPending, schedule.StatusCancelled); !errors.Is(err, schedule.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if _, err := m.CompareAndSwapStatus(ctx, "missing", schedule.StatusPending, schedule.StatusConfirmed); !errors.Is(err, schedule.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryList_FilterAndOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	later := testDate.AddDate(0, 0, 7)
	appts := []*schedule.Appointment{
		testAppointment("a1", "cust-1", 600, 660),
		testAppointment("a2", "cust-2", 540, 600),
	}
	a3 := testAppointment("a3", "cust-1", 540, 600)
	a3.Date = later
	appts = append(appts, a3)

	for _, a := range appts {
		if err := m.Create(ctx, a); err != nil {
			t.Fatalf("create %s: %v", a.ID, err)
		}
	}
	if _, err := m.CompareAndSwapStatus(ctx, "a2", schedule.StatusPending, schedule.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	all, err := m.List(ctx, schedule.AppointmentFilter{ProviderID: "prov-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3, got %d", len(all))
	}
	if all[0].ID != "a2" || all[1].ID != "a1" || all[2].ID != "a3" {
		t.Fatalf("wrong order: %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}

	active, err := m.List(ctx, schedule.AppointmentFilter{ProviderID: "prov-1", Date: testDate, ActiveOnly: true})
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != "a1" {
		t.Fatalf("expected only a1, got %d rows", len(active))
	}

	byCustomer, err := m.List(ctx, schedule.AppointmentFilter{CustomerID: "cust-1"})
	if err != nil {
		t.Fatalf("list by customer: %v", err)
	}
	if len(byCustomer) != 2 {
		t.Fatalf("expected 2 for cust-1, got %d", len(byCustomer))
	}
}

func TestMemoryList_StableOrderOnTies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	// Same date and start minute under distinct providers; only the id can
	// break the tie.
	for i := 0; i < 6; i++ {
		appt := testAppointment(fmt.Sprintf("a%d", i), "cust-1", 540, 600)
		appt.ProviderID = fmt.Sprintf("prov-%d", i)
		if err := m.Create(ctx, appt); err != nil {
			t.Fatalf("create %s: %v", appt.ID, err)
		}
	}

	first, err := m.List(ctx, schedule.AppointmentFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first) != 6 {
		t.Fatalf("expected 6, got %d", len(first))
	}
	for i := 1; i < len(first); i++ {
		if first[i-1].ID >= first[i].ID {
			t.Fatalf("ids not ascending on tie: %s before %s", first[i-1].ID, first[i].ID)
		}
	}
	for call := 0; call < 20; call++ {
		again, err := m.List(ctx, schedule.AppointmentFilter{})
		if err != nil {
			t.Fatalf("list %d: %v", call, err)
		}
		for i := range first {
			if again[i].ID != first[i].ID {
				t.Fatalf("call %d: order changed at %d: %s vs %s", call, i, again[i].ID, first[i].ID)
			}
		}
	}
}

func TestMemoryWindows(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	windows := []schedule.AvailabilityWindow{
		{ID: "w2", ProviderID: "prov-1", Weekday: time.Wednesday, StartMinute: 540, EndMinute: 1020},
		{ID: "w1", ProviderID: "prov-1", Weekday: time.Monday, StartMinute: 540, EndMinute: 720},
	}
	if err := m.ReplaceWindows(ctx, "prov-1", windows); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := m.Windows(ctx, "prov-1")
	if err != nil {
		t.Fatalf("windows: %v", err)
	}
	if len(got) != 2 || got[0].Weekday != time.Monday {
		t.Fatalf("expected sorted windows, got %+v", got)
	}

	w, err := m.Window(ctx, "prov-1", time.Wednesday)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if w.ID != "w2" {
		t.Fatalf("expected w2, got %s", w.ID)
	}

	if _, err := m.Window(ctx, "prov-1", time.Sunday); !errors.Is(err, schedule.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Replacing wipes the previous schedule.
	if err := m.ReplaceWindows(ctx, "prov-1", nil); err != nil {
		t.Fatalf("replace empty: %v", err)
	}
	got, err = m.Windows(ctx, "prov-1")
	if err != nil {
		t.Fatalf("windows: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty schedule, got %d windows", len(got))
	}
}
