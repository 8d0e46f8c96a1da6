// Package store provides the persistence backends for the scheduling engine:
// an in-memory implementation for development and tests, and a Postgres
// implementation for production.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/slotbook/slotbook/internal/schedule"
)

// Memory holds all scheduling state behind a single mutex. Appointment
// creation runs its conflict check and insert under the same lock, so two
// racing bookings for one slot cannot both land.
type Memory struct {
	mu           sync.RWMutex
	windows      map[string][]schedule.AvailabilityWindow // provider id -> windows
	services     map[string]schedule.Service              // service id -> service
	appointments map[string]schedule.Appointment          // appointment id -> appointment
}

func NewMemory() *Memory {
	return &Memory{
		windows:      make(map[string][]schedule.AvailabilityWindow),
		services:     make(map[string]schedule.Service),
		appointments: make(map[string]schedule.Appointment),
	}
}

func (m *Memory) ReplaceWindows(_ context.Context, providerID string, windows []schedule.AvailabilityWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws := make([]schedule.AvailabilityWindow, len(windows))
	copy(ws, windows)
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].Weekday != ws[j].Weekday {
			return ws[i].Weekday < ws[j].Weekday
		}
		return ws[i].StartMinute < ws[j].StartMinute
	})
	m.windows[providerID] = ws
	return nil
}

func (m *Memory) Window(_ context.Context, providerID string, weekday time.Weekday) (schedule.AvailabilityWindow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.windows[providerID] {
		if w.Weekday == weekday {
			return w, nil
		}
	}
	return schedule.AvailabilityWindow{}, fmt.Errorf("no window for provider %s on %s: %w", providerID, weekday, schedule.ErrNotFound)
}

func (m *Memory) Windows(_ context.Context, providerID string) ([]schedule.AvailabilityWindow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ws := make([]schedule.AvailabilityWindow, len(m.windows[providerID]))
	copy(ws, m.windows[providerID])
	return ws, nil
}

func (m *Memory) CreateService(_ context.Context, svc *schedule.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[svc.ID] = *svc
	return nil
}

func (m *Memory) Service(_ context.Context, id string) (schedule.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[id]
	if !ok {
		return schedule.Service{}, fmt.Errorf("service %s: %w", id, schedule.ErrNotFound)
	}
	return svc, nil
}

func (m *Memory) ServicesByProvider(_ context.Context, providerID string) ([]schedule.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schedule.Service
	for _, svc := range m.services {
		if svc.ProviderID == providerID {
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Create inserts the appointment unless its interval overlaps an existing
// pending or confirmed appointment for the same provider and date.
func (m *Memory) Create(_ context.Context, appt *schedule.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.appointments {
		if existing.ProviderID != appt.ProviderID || !existing.Date.Equal(appt.Date) || !existing.Active() {
			continue
		}
		if existing.Interval().Overlaps(appt.Interval()) {
			return fmt.Errorf("slot %s on %s taken: %w",
				schedule.FormatClock(appt.StartMinute), schedule.FormatDate(appt.Date), schedule.ErrSlotUnavailable)
		}
	}
	m.appointments[appt.ID] = *appt
	return nil
}

func (m *Memory) Appointment(_ context.Context, id string) (schedule.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	appt, ok := m.appointments[id]
	if !ok {
		return schedule.Appointment{}, fmt.Errorf("appointment %s: %w", id, schedule.ErrNotFound)
	}
	return appt, nil
}

// CompareAndSwapStatus flips the status only if it still equals from. A
// concurrent transition that got there first surfaces as ErrInvalidTransition.
func (m *Memory) CompareAndSwapStatus(_ context.Context, id string, from, to schedule.Status) (schedule.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[id]
	if !ok {
		return schedule.Appointment{}, fmt.Errorf("appointment %s: %w", id, schedule.ErrNotFound)
	}
	if appt.Status != from {
		return schedule.Appointment{}, fmt.Errorf("appointment %s is %s, not %s: %w", id, appt.Status, from, schedule.ErrInvalidTransition)
	}
	appt.Status = to
	m.appointments[id] = appt
	return appt, nil
}

func (m *Memory) List(_ context.Context, f schedule.AppointmentFilter) ([]schedule.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schedule.Appointment
	for _, appt := range m.appointments {
		if f.ProviderID != "" && appt.ProviderID != f.ProviderID {
			continue
		}
		if f.CustomerID != "" && appt.CustomerID != f.CustomerID {
			continue
		}
		if !f.Date.IsZero() && !appt.Date.Equal(f.Date) {
			continue
		}
		if f.ActiveOnly && !appt.Active() {
			continue
		}
		out = append(out, appt)
	}
	// Ties on (date, start) are broken by id so repeated calls agree despite
	// map iteration order.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].StartMinute != out[j].StartMinute {
			return out[i].StartMinute < out[j].StartMinute
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
