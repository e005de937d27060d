package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fieldclock/agent/internal/models"
	"github.com/fieldclock/agent/internal/services"
)

// ClockHandler exposes the local enqueue surface the mobile UI calls after
// capturing a GPS fix and a photo.
type ClockHandler struct {
	clockService *services.ClockService
}

// NewClockHandler creates a new ClockHandler
func NewClockHandler(clockService *services.ClockService) *ClockHandler {
	return &ClockHandler{clockService: clockService}
}

// Clock queues a new attendance event
func (h *ClockHandler) Clock(w http.ResponseWriter, r *http.Request) {
	var req models.ClockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := h.clockService.Clock(r.Context(), req)
	if err != nil {
		var queueErr models.QueueError
		switch {
		case errors.Is(err, models.ErrAlreadyClocked):
			writeError(w, http.StatusConflict, err.Error())
		case errors.As(err, &queueErr):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to queue event")
		}
		return
	}

	writeJSON(w, http.StatusCreated, models.ClockResponse{
		EventID:   event.EventID,
		Status:    event.Status,
		CreatedAt: event.CreatedAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}
