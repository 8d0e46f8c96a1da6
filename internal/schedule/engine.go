package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultGranularityMinutes is the slot step used when callers do not ask for
// a specific one.
const DefaultGranularityMinutes = 30

// Event types emitted on the EventSink.
const (
	EventAppointmentBooked        = "scheduling.appointment.booked.v1"
	EventAppointmentStatusChanged = "scheduling.appointment.status_changed.v1"
)

// BookingRequest is the input to Engine.Book. Names are snapshots supplied by
// the caller (the identity directory is outside this repo); Confirmed is the
// creation-time policy for provider-initiated entries that should skip the
// pending state.
type BookingRequest struct {
	CustomerID   string
	CustomerName string
	ProviderID   string
	ProviderName string
	ServiceID    string
	Date         time.Time
	StartMinute  int
	Notes        string
	Recommended  bool
	Confirmed    bool
}

// Engine is the appointment scheduling core: slot generation, conflict
// checking, the lifecycle state machine, role-scoped visibility and slot
// recommendations. It performs no network calls; every operation completes in
// bounded local time against the supplied stores.
type Engine struct {
	availability AvailabilityStore
	services     ServiceStore
	appointments AppointmentStore
	strategy     Strategy
	events       EventSink
	logger       *slog.Logger
	now          func() time.Time
}

type Config struct {
	Availability AvailabilityStore
	Services     ServiceStore
	Appointments AppointmentStore
	Strategy     Strategy // nil means EarliestFirst
	Events       EventSink
	Logger       *slog.Logger
	Now          func() time.Time
}

func NewEngine(cfg Config) *Engine {
	if cfg.Availability == nil || cfg.Services == nil || cfg.Appointments == nil {
		panic("schedule: availability, service and appointment stores are required")
	}
	if cfg.Strategy == nil {
		cfg.Strategy = EarliestFirst{}
	}
	if cfg.Events == nil {
		cfg.Events = nopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		availability: cfg.Availability,
		services:     cfg.Services,
		appointments: cfg.Appointments,
		strategy:     cfg.Strategy,
		events:       cfg.Events,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}
}

// SetWeeklyAvailability validates and atomically replaces a provider's weekly
// schedule.
func (e *Engine) SetWeeklyAvailability(ctx context.Context, providerID string, windows []AvailabilityWindow) error {
	if providerID == "" {
		return fmt.Errorf("provider id required: %w", ErrValidation)
	}
	if err := ValidateWindows(windows); err != nil {
		return err
	}
	for i := range windows {
		windows[i].ProviderID = providerID
		if windows[i].ID == "" {
			windows[i].ID = uuid.NewString()
		}
	}
	return e.availability.ReplaceWindows(ctx, providerID, windows)
}

// WeeklyAvailability lists a provider's stored weekly schedule.
func (e *Engine) WeeklyAvailability(ctx context.Context, providerID string) ([]AvailabilityWindow, error) {
	return e.availability.Windows(ctx, providerID)
}

// CreateService registers a provider-owned service definition.
func (e *Engine) CreateService(ctx context.Context, svc *Service) error {
	if svc.ProviderID == "" || svc.Name == "" {
		return fmt.Errorf("service provider and name required: %w", ErrValidation)
	}
	if svc.DurationMinutes <= 0 || svc.DurationMinutes > MinutesPerDay {
		return fmt.Errorf("service duration %d out of range: %w", svc.DurationMinutes, ErrValidation)
	}
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	svc.CreatedAt = e.now().UTC()
	return e.services.CreateService(ctx, svc)
}

// Services lists a provider's service definitions.
func (e *Engine) Services(ctx context.Context, providerID string) ([]Service, error) {
	return e.services.ServicesByProvider(ctx, providerID)
}

// GenerateSlots derives the bookable start minutes for a provider, service
// and date: every availability window on that weekday is stepped by
// granularity, keeping starts whose full service duration fits inside the
// window and does not overlap an active appointment. Ascending, computed
// fresh on every call; a weekday without windows yields an empty result.
func (e *Engine) GenerateSlots(ctx context.Context, providerID, serviceID string, date time.Time, granularity int) ([]int, error) {
	if granularity <= 0 {
		granularity = DefaultGranularityMinutes
	}
	svc, err := e.lookupService(ctx, providerID, serviceID)
	if err != nil {
		return nil, err
	}

	windows, err := e.windowsForWeekday(ctx, providerID, NormalizeDate(date).Weekday())
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}

	busy, err := e.activeIntervals(ctx, providerID, date)
	if err != nil {
		return nil, err
	}

	var starts []int
	for _, w := range windows {
		starts = append(starts, SlotStarts(w.StartMinute, w.EndMinute, svc.DurationMinutes, granularity, busy)...)
	}
	return starts, nil
}

// IsFree reports whether [startMinute, startMinute+durationMinutes) on the
// provider's date overlaps any pending or confirmed appointment. Terminal
// appointments never block.
func (e *Engine) IsFree(ctx context.Context, providerID string, date time.Time, startMinute, durationMinutes int) (bool, error) {
	busy, err := e.activeIntervals(ctx, providerID, date)
	if err != nil {
		return false, err
	}
	return !overlapsAny(Interval{Start: startMinute, End: startMinute + durationMinutes}, busy), nil
}

// Book creates an appointment for the requested slot. The conflict check is
// re-run at write time inside the store's atomic create, closing the
// read-then-write race between two customers grabbing the same slot: exactly
// one of them succeeds, the other gets ErrSlotUnavailable and nothing is
// written.
func (e *Engine) Book(ctx context.Context, req BookingRequest) (Appointment, error) {
	if req.CustomerID == "" || req.ProviderID == "" || req.ServiceID == "" {
		return Appointment{}, fmt.Errorf("customer, provider and service ids required: %w", ErrValidation)
	}

	svc, err := e.lookupService(ctx, req.ProviderID, req.ServiceID)
	if err != nil {
		return Appointment{}, err
	}

	date := NormalizeDate(req.Date)
	start := req.StartMinute
	end := start + svc.DurationMinutes

	windows, err := e.windowsForWeekday(ctx, req.ProviderID, date.Weekday())
	if err != nil {
		return Appointment{}, err
	}
	if !coveredByWindow(start, end, windows) {
		return Appointment{}, fmt.Errorf("slot %s-%s outside provider availability on %s: %w",
			FormatClock(start), FormatClock(end), date.Weekday(), ErrValidation)
	}

	status := StatusPending
	if req.Confirmed {
		status = StatusConfirmed
	}
	appt := Appointment{
		ID:           uuid.NewString(),
		CustomerID:   req.CustomerID,
		CustomerName: req.CustomerName,
		ProviderID:   req.ProviderID,
		ProviderName: req.ProviderName,
		ServiceName:  svc.Name,
		Date:         date,
		StartMinute:  start,
		EndMinute:    end,
		Status:       status,
		Notes:        req.Notes,
		Recommended:  req.Recommended,
		CreatedAt:    e.now().UTC(),
	}

	if err := e.appointments.Create(ctx, &appt); err != nil {
		return Appointment{}, err
	}

	e.publish(ctx, EventAppointmentBooked, appt)
	e.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"provider_id", appt.ProviderID,
		"date", FormatDate(appt.Date),
		"start", FormatClock(appt.StartMinute),
		"status", appt.Status,
	)
	return appt, nil
}

// Transition moves an appointment along one state-machine edge on behalf of
// an actor. Failure order: unknown id, illegal edge, unauthorized actor. The
// status swap is compare-and-set so concurrent transitions cannot both
// succeed from the same stale read.
func (e *Engine) Transition(ctx context.Context, appointmentID string, actor Actor, to Status) (Appointment, error) {
	if !to.Valid() {
		return Appointment{}, fmt.Errorf("unknown status %q: %w", to, ErrInvalidTransition)
	}

	appt, err := e.appointments.Appointment(ctx, appointmentID)
	if err != nil {
		return Appointment{}, err
	}
	if !appt.Status.CanTransitionTo(to) {
		return Appointment{}, fmt.Errorf("%s -> %s: %w", appt.Status, to, ErrInvalidTransition)
	}
	if !actor.mayTransition(appt, to) {
		return Appointment{}, fmt.Errorf("%s %s may not move appointment %s to %s: %w",
			actor.Role, actor.ID, appt.ID, to, ErrForbidden)
	}

	updated, err := e.appointments.CompareAndSwapStatus(ctx, appointmentID, appt.Status, to)
	if err != nil {
		return Appointment{}, err
	}

	e.publish(ctx, EventAppointmentStatusChanged, updated)
	e.logger.Info("appointment status changed",
		"appointment_id", updated.ID,
		"from", appt.Status,
		"to", updated.Status,
		"actor_role", actor.Role,
	)
	return updated, nil
}

// ListForActor is the single authorization boundary for reading appointments:
// admins see everything, providers their own calendar, customers their own
// bookings, anyone else nothing.
func (e *Engine) ListForActor(ctx context.Context, actor Actor) ([]Appointment, error) {
	var f AppointmentFilter
	switch actor.Role {
	case RoleAdmin:
	case RoleProvider:
		f.ProviderID = actor.ID
	case RoleCustomer:
		f.CustomerID = actor.ID
	default:
		return nil, nil
	}
	return e.appointments.List(ctx, f)
}

// Suggest runs the configured recommendation strategy over the unfiltered
// candidate slots. The result is always a subset of GenerateSlots' output,
// ranked best first, and empty (not an error) when no slots exist.
func (e *Engine) Suggest(ctx context.Context, customerID, providerID, serviceID string, date time.Time, granularity int) ([]int, error) {
	candidates, err := e.GenerateSlots(ctx, providerID, serviceID, date, granularity)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ranked := e.strategy.Suggest(ctx, customerID, providerID, date, candidates)

	// Strategies are plugins; re-check the subset contract rather than trust it.
	allowed := make(map[int]bool, len(candidates))
	for _, c := range candidates {
		allowed[c] = true
	}
	out := ranked[:0:0]
	for _, m := range ranked {
		if allowed[m] {
			out = append(out, m)
			delete(allowed, m)
		}
	}
	return out, nil
}

func (e *Engine) lookupService(ctx context.Context, providerID, serviceID string) (Service, error) {
	svc, err := e.services.Service(ctx, serviceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Service{}, fmt.Errorf("unknown service %q: %w", serviceID, ErrValidation)
		}
		return Service{}, err
	}
	if svc.ProviderID != providerID {
		return Service{}, fmt.Errorf("service %q does not belong to provider %q: %w", serviceID, providerID, ErrValidation)
	}
	return svc, nil
}

func (e *Engine) windowsForWeekday(ctx context.Context, providerID string, weekday time.Weekday) ([]AvailabilityWindow, error) {
	all, err := e.availability.Windows(ctx, providerID)
	if err != nil {
		return nil, err
	}
	var windows []AvailabilityWindow
	for _, w := range all {
		if w.Weekday == weekday {
			windows = append(windows, w)
		}
	}
	return windows, nil
}

func (e *Engine) activeIntervals(ctx context.Context, providerID string, date time.Time) ([]Interval, error) {
	appts, err := e.appointments.List(ctx, AppointmentFilter{
		ProviderID: providerID,
		Date:       NormalizeDate(date),
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	busy := make([]Interval, 0, len(appts))
	for _, a := range appts {
		busy = append(busy, a.Interval())
	}
	return busy, nil
}

func coveredByWindow(start, end int, windows []AvailabilityWindow) bool {
	for _, w := range windows {
		if start >= w.StartMinute && end <= w.EndMinute {
			return true
		}
	}
	return false
}

func (e *Engine) publish(ctx context.Context, eventType string, appt Appointment) {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"customer_id":    appt.CustomerID,
		"provider_id":    appt.ProviderID,
		"service_name":   appt.ServiceName,
		"date":           FormatDate(appt.Date),
		"start_time":     FormatClock(appt.StartMinute),
		"end_time":       FormatClock(appt.EndMinute),
		"status":         appt.Status,
	})
	if err != nil {
		e.logger.Error("event payload marshal failed", "err", err, "event_type", eventType)
		return
	}
	if err := e.events.Publish(ctx, eventType, appt.ID, payload); err != nil {
		e.logger.Error("event publish failed", "err", err, "event_type", eventType, "appointment_id", appt.ID)
	}
}

type nopSink struct{}

func (nopSink) Publish(context.Context, string, string, []byte) error { return nil }
