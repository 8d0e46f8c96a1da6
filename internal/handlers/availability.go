package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/slotbook/slotbook/internal/schedule"
)

type AvailabilityHandler struct {
	engine *schedule.Engine
	actors ActorResolver
	logger *slog.Logger
}

func NewAvailabilityHandler(engine *schedule.Engine, actors ActorResolver, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{engine: engine, actors: actors, logger: logger}
}

type windowItem struct {
	Weekday   int    `json:"weekday"` // 0 = Sunday
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type putAvailabilityRequest struct {
	Windows []windowItem `json:"windows"`
}

type createServiceRequest struct {
	Name            string  `json:"name"`
	DurationMinutes int     `json:"duration_minutes"`
	Price           float64 `json:"price"`
	Description     string  `json:"description"`
}

type serviceItem struct {
	ServiceID       string  `json:"service_id"`
	ProviderID      string  `json:"provider_id"`
	Name            string  `json:"name"`
	DurationMinutes int     `json:"duration_minutes"`
	Price           float64 `json:"price"`
	Description     string  `json:"description,omitempty"`
}

// Availability handles PUT and GET /api/v1/availability. Writes replace the
// provider's whole week; only providers touch their own schedule, admins may
// act for anyone via the provider_id query parameter.
func (h *AvailabilityHandler) Availability(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		h.put(w, r)
	case http.MethodGet:
		h.get(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AvailabilityHandler) put(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := h.actors.Resolve(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	providerID, ok := h.providerScope(w, r, actor)
	if !ok {
		return
	}

	var req putAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	windows := make([]schedule.AvailabilityWindow, 0, len(req.Windows))
	for _, item := range req.Windows {
		start, err := schedule.ParseClock(item.StartTime)
		if err != nil {
			http.Error(w, "invalid start_time", http.StatusBadRequest)
			return
		}
		end, err := schedule.ParseClock(item.EndTime)
		if err != nil {
			http.Error(w, "invalid end_time", http.StatusBadRequest)
			return
		}
		windows = append(windows, schedule.AvailabilityWindow{
			Weekday:     time.Weekday(item.Weekday),
			StartMinute: start,
			EndMinute:   end,
		})
	}

	if err := h.engine.SetWeeklyAvailability(r.Context(), providerID, windows); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider_id": providerID, "windows": len(windows)})
}

func (h *AvailabilityHandler) get(w http.ResponseWriter, r *http.Request) {
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	if providerID == "" {
		http.Error(w, "provider_id is required", http.StatusBadRequest)
		return
	}

	windows, err := h.engine.WeeklyAvailability(r.Context(), providerID)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	items := make([]windowItem, 0, len(windows))
	for _, win := range windows {
		items = append(items, windowItem{
			Weekday:   int(win.Weekday),
			StartTime: schedule.FormatClock(win.StartMinute),
			EndTime:   schedule.FormatClock(win.EndMinute),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider_id": providerID, "windows": items})
}

// Services handles POST and GET /api/v1/services.
func (h *AvailabilityHandler) Services(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createService(w, r)
	case http.MethodGet:
		h.listServices(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AvailabilityHandler) createService(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := h.actors.Resolve(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	providerID, ok := h.providerScope(w, r, actor)
	if !ok {
		return
	}

	var req createServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	svc := &schedule.Service{
		ProviderID:      providerID,
		Name:            strings.TrimSpace(req.Name),
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
		Description:     strings.TrimSpace(req.Description),
	}
	if err := h.engine.CreateService(r.Context(), svc); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, serviceItem{
		ServiceID:       svc.ID,
		ProviderID:      svc.ProviderID,
		Name:            svc.Name,
		DurationMinutes: svc.DurationMinutes,
		Price:           svc.Price,
		Description:     svc.Description,
	})
}

func (h *AvailabilityHandler) listServices(w http.ResponseWriter, r *http.Request) {
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	if providerID == "" {
		http.Error(w, "provider_id is required", http.StatusBadRequest)
		return
	}

	services, err := h.engine.Services(r.Context(), providerID)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	items := make([]serviceItem, 0, len(services))
	for _, svc := range services {
		items = append(items, serviceItem{
			ServiceID:       svc.ID,
			ProviderID:      svc.ProviderID,
			Name:            svc.Name,
			DurationMinutes: svc.DurationMinutes,
			Price:           svc.Price,
			Description:     svc.Description,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": items})
}

// providerScope resolves which provider a write applies to. Providers always
// act on their own schedule; admins may name any provider.
func (h *AvailabilityHandler) providerScope(w http.ResponseWriter, r *http.Request, actor schedule.Actor) (string, bool) {
	switch actor.Role {
	case schedule.RoleProvider:
		return actor.ID, true
	case schedule.RoleAdmin:
		providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
		if providerID == "" {
			http.Error(w, "provider_id is required", http.StatusBadRequest)
			return "", false
		}
		return providerID, true
	default:
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
}
