package schedule

import (
	"context"
	"time"
)

// The engine is storage-agnostic: it operates on the collections handed to it
// through these interfaces. internal/store ships an in-memory implementation
// and a Postgres one; both must honor the atomicity contracts below.

// AvailabilityStore holds weekly recurring availability windows per provider.
type AvailabilityStore interface {
	// ReplaceWindows swaps a provider's whole weekly schedule atomically;
	// concurrent readers never observe a partial update.
	ReplaceWindows(ctx context.Context, providerID string, windows []AvailabilityWindow) error

	// Window returns the provider's window for a weekday, or ErrNotFound.
	// When a provider keeps multiple windows on one weekday, the earliest is
	// returned; generation walks all of them via Windows.
	Window(ctx context.Context, providerID string, weekday time.Weekday) (AvailabilityWindow, error)

	// Windows lists the provider's full weekly schedule ordered by weekday
	// then start minute.
	Windows(ctx context.Context, providerID string) ([]AvailabilityWindow, error)
}

// ServiceStore holds provider-owned service definitions.
type ServiceStore interface {
	CreateService(ctx context.Context, svc *Service) error
	Service(ctx context.Context, id string) (Service, error)
	ServicesByProvider(ctx context.Context, providerID string) ([]Service, error)
}

// AppointmentFilter narrows List. Zero fields match everything.
type AppointmentFilter struct {
	ProviderID string
	CustomerID string
	Date       time.Time // normalized date; zero matches all dates
	ActiveOnly bool
}

// AppointmentStore is the source of truth for conflict checks and lifecycle
// state.
type AppointmentStore interface {
	// Create inserts the appointment if and only if its interval does not
	// overlap any active appointment for the same provider and date. The
	// check and insert are a single atomic step; on conflict it returns an
	// error matching ErrSlotUnavailable and writes nothing.
	Create(ctx context.Context, appt *Appointment) error

	// Appointment returns a record by id, or ErrNotFound.
	Appointment(ctx context.Context, id string) (Appointment, error)

	// CompareAndSwapStatus moves id from `from` to `to` only if its current
	// status is still `from`, so two racing transitions cannot both succeed.
	// Returns ErrNotFound for unknown ids and ErrInvalidTransition when the
	// status moved underneath the caller.
	CompareAndSwapStatus(ctx context.Context, id string, from, to Status) (Appointment, error)

	// List returns appointments matching the filter, ordered by date then
	// start minute then id. Repeated calls over unchanged data return the
	// same order.
	List(ctx context.Context, f AppointmentFilter) ([]Appointment, error)
}

// EventSink receives appointment lifecycle events after a successful write.
// Delivery is best effort from the engine's point of view; durable fan-out is
// the sink's concern.
type EventSink interface {
	Publish(ctx context.Context, eventType, key string, payload []byte) error
}
