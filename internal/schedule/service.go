package schedule

import "time"

// Service is an offering a provider can be booked for. It is a read-only
// input to slot generation; its duration is snapshotted onto appointments at
// booking time rather than re-derived later.
type Service struct {
	ID              string
	ProviderID      string
	Name            string
	DurationMinutes int
	Price           float64
	Description     string
	CreatedAt       time.Time
}
