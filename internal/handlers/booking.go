package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slotbook/slotbook/internal/schedule"
)

type BookingHandler struct {
	engine *schedule.Engine
	actors ActorResolver
	logger *slog.Logger
}

func NewBookingHandler(engine *schedule.Engine, actors ActorResolver, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: engine, actors: actors, logger: logger}
}

type createAppointmentRequest struct {
	ProviderID   string `json:"provider_id"`
	ProviderName string `json:"provider_name"`
	ServiceID    string `json:"service_id"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	Notes        string `json:"notes"`
	Recommended  bool   `json:"recommended"`
}

type statusChangeRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	ProviderID    string `json:"provider_id"`
	ProviderName  string `json:"provider_name,omitempty"`
	ServiceName   string `json:"service_name"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	Recommended   bool   `json:"recommended,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toAppointmentItem(a schedule.Appointment) appointmentItem {
	return appointmentItem{
		AppointmentID: a.ID,
		CustomerID:    a.CustomerID,
		CustomerName:  a.CustomerName,
		ProviderID:    a.ProviderID,
		ProviderName:  a.ProviderName,
		ServiceName:   a.ServiceName,
		Date:          schedule.FormatDate(a.Date),
		StartTime:     schedule.FormatClock(a.StartMinute),
		EndTime:       schedule.FormatClock(a.EndMinute),
		Status:        string(a.Status),
		Notes:         a.Notes,
		Recommended:   a.Recommended,
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
	}
}

// Slots handles GET /api/v1/slots?provider_id=&service_id=&date=&granularity=.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID, serviceID, date, granularity, ok := slotQuery(w, r)
	if !ok {
		return
	}

	slots, err := h.engine.GenerateSlots(r.Context(), providerID, serviceID, date, granularity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  schedule.FormatDate(date),
		"slots": schedule.FormatClocks(slots),
	})
}

// Suggested handles GET /api/v1/slots/suggested. The acting customer's
// history feeds the recommendation strategy.
func (h *BookingHandler) Suggested(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, _, ok := h.actors.Resolve(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	providerID, serviceID, date, granularity, queryOK := slotQuery(w, r)
	if !queryOK {
		return
	}

	slots, err := h.engine.Suggest(r.Context(), actor.ID, providerID, serviceID, date, granularity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  schedule.FormatDate(date),
		"slots": schedule.FormatClocks(slots),
	})
}

// Create handles POST /api/v1/appointments. The caller books as themselves;
// a provider booking on their own calendar starts out confirmed.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, actorName, ok := h.actors.Resolve(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.ProviderID == "" || req.ServiceID == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	start, err := schedule.ParseClock(req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	booking := schedule.BookingRequest{
		CustomerID:   actor.ID,
		CustomerName: actorName,
		ProviderID:   req.ProviderID,
		ProviderName: req.ProviderName,
		ServiceID:    req.ServiceID,
		Date:         date,
		StartMinute:  start,
		Notes:        req.Notes,
		Recommended:  req.Recommended,
		Confirmed:    actor.Role == schedule.RoleProvider && actor.ID == req.ProviderID,
	}

	appt, err := h.engine.Book(r.Context(), booking)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentItem(appt))
}

// ChangeStatus handles POST /api/v1/appointments/status.
func (h *BookingHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, _, ok := h.actors.Resolve(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" || req.Status == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.Transition(r.Context(), req.AppointmentID, actor, schedule.Status(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

// List handles GET /api/v1/appointments, scoped to what the actor may see.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, _, ok := h.actors.Resolve(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	appts, err := h.engine.ListForActor(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentItem(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

// slotQuery parses the shared query parameters of the slot endpoints and
// writes the 400 itself on bad input.
func slotQuery(w http.ResponseWriter, r *http.Request) (providerID, serviceID string, date time.Time, granularity int, ok bool) {
	q := r.URL.Query()
	providerID = strings.TrimSpace(q.Get("provider_id"))
	serviceID = strings.TrimSpace(q.Get("service_id"))
	if providerID == "" || serviceID == "" {
		http.Error(w, "provider_id and service_id are required", http.StatusBadRequest)
		return "", "", time.Time{}, 0, false
	}

	date, err := schedule.ParseDate(q.Get("date"))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return "", "", time.Time{}, 0, false
	}

	if raw := q.Get("granularity_minutes"); raw != "" {
		granularity, err = strconv.Atoi(raw)
		if err != nil || granularity <= 0 || granularity > schedule.MinutesPerDay {
			http.Error(w, "invalid granularity_minutes", http.StatusBadRequest)
			return "", "", time.Time{}, 0, false
		}
	}
	return providerID, serviceID, date, granularity, true
}

func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeEngineError(w, r, h.logger, err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeEngineError maps engine error kinds to HTTP statuses. Invalid
// transitions are logged because they point at a misbehaving client.
func writeEngineError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, schedule.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, schedule.ErrSlotUnavailable):
		http.Error(w, "slot no longer available", http.StatusConflict)
	case errors.Is(err, schedule.ErrInvalidTransition):
		logger.Warn("invalid status transition requested", "err", err, "path", r.URL.Path)
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, schedule.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, schedule.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		logger.Error("request failed", "err", err, "path", r.URL.Path)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
