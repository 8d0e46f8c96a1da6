package schedule

import "time"

// Status is the appointment lifecycle state. Appointments are never deleted;
// they only ever move forward into a terminal status, preserving history.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// transitions is the full state machine: pending -> confirmed -> completed,
// with cancellation possible from either non-terminal state. No edges leave
// cancelled or completed.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	StatusCancelled: {},
	StatusCompleted: {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

// CanTransitionTo reports whether s -> to is an allowed edge.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Appointment is a booked interval on a provider's calendar. The interval and
// parties are immutable after creation; rescheduling is cancel + rebook. Only
// Status changes, and only through Engine.Transition.
type Appointment struct {
	ID           string
	CustomerID   string
	CustomerName string
	ProviderID   string
	ProviderName string
	ServiceName  string
	Date         time.Time // calendar date, midnight UTC
	StartMinute  int
	EndMinute    int // snapshotted from the service duration at booking time
	Status       Status
	Notes        string
	Recommended  bool
	CreatedAt    time.Time
}

// Active reports whether the appointment blocks its time slot.
// Cancelled and completed appointments never do.
func (a Appointment) Active() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}

// Interval returns the appointment's half-open [start, end) minute interval.
func (a Appointment) Interval() Interval {
	return Interval{Start: a.StartMinute, End: a.EndMinute}
}

// Role is the closed set of actor roles the engine recognizes. Anything else
// sees nothing and may do nothing.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleProvider Role = "provider"
	RoleCustomer Role = "customer"
)

// Actor identifies who is performing an operation. Identity management lives
// outside this repo; the engine trusts the (ID, Role) pair it is handed.
type Actor struct {
	ID   string
	Role Role
}

// mayTransition is the authorization table for status changes: customers may
// only cancel their own appointments, providers drive any allowed edge on
// their own calendar, admins may do anything.
func (a Actor) mayTransition(appt Appointment, to Status) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleProvider:
		return appt.ProviderID == a.ID
	case RoleCustomer:
		return appt.CustomerID == a.ID && to == StatusCancelled
	default:
		return false
	}
}
