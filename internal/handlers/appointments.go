package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/events"
	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/model"
	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/registry"
	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/store"
)

type Handler struct {
	registry *registry.Registry
	events   *events.Publisher
	logger   *slog.Logger
}

func New(reg *registry.Registry, pub *events.Publisher, logger *slog.Logger) *Handler {
	return &Handler{registry: reg, events: pub, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/appointments", h.List)
	mux.HandleFunc("/v1/appointments/", h.route)
}

func (h *Handler) route(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/appointments/")
	switch {
	case rest == "upcoming":
		h.Upcoming(w, r)
	case rest == "refresh":
		h.Refresh(w, r)
	case strings.HasSuffix(rest, "/status"):
		h.UpdateStatus(w, r, strings.TrimSuffix(rest, "/status"))
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var appts []model.Appointment
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := model.ParseStatus(raw)
		if err != nil {
			http.Error(w, "invalid status filter", http.StatusBadRequest)
			return
		}
		appts = h.registry.FilterByStatus(status)
	} else {
		appts = h.registry.Snapshot()
	}

	state := h.registry.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"appointments": appointmentsPayload(appts),
		"counts":       h.registry.Counts(),
		"loading":      state.Loading,
		"refreshing":   state.Refreshing,
		"error":        state.Err,
	})
}

func (h *Handler) Upcoming(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointments": appointmentsPayload(h.registry.Upcoming(time.Now())),
	})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.registry.Refresh(r.Context()); err != nil {
		h.logger.Error("manual refresh failed", "err", err)
		http.Error(w, "failed to load appointments", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id = strings.TrimSpace(id)
	if id == "" {
		http.Error(w, "missing appointment id", http.StatusBadRequest)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	newStatus, err := model.ParseStatus(req.Status)
	if err != nil {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	oldStatus := ""
	for _, appt := range h.registry.Snapshot() {
		if appt.ID == id {
			oldStatus = string(appt.Status)
			break
		}
	}

	updated, res, err := h.registry.UpdateStatus(r.Context(), id, newStatus)
	if err != nil {
		if store.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("status update failed", "err", err, "appointment_id", id)
		http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		return
	}

	if h.events != nil {
		h.events.StatusChanged(r.Context(), events.StatusChanged{
			AppointmentID:         id,
			OldStatus:             oldStatus,
			NewStatus:             string(newStatus),
			NotificationDelivered: res.Delivered,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"appointment":  appointmentPayload(updated),
		"notification": res,
	})
}

func appointmentsPayload(appts []model.Appointment) []map[string]any {
	out := make([]map[string]any, 0, len(appts))
	for _, appt := range appts {
		out = append(out, appointmentPayload(appt))
	}
	return out
}

func appointmentPayload(appt model.Appointment) map[string]any {
	var preferredDate any
	if appt.PreferredDate != nil {
		preferredDate = appt.PreferredDate.Format("2006-01-02")
	}
	return map[string]any{
		"id":             appt.ID,
		"full_name":      appt.FullName,
		"phone":          appt.Phone,
		"email":          appt.Email,
		"preferred_date": preferredDate,
		"location":       appt.Location,
		"notes":          appt.Notes,
		"status":         appt.Status,
		"created_at":     appt.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
