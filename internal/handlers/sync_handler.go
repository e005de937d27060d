package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/fieldclock/agent/internal/models"
	"github.com/fieldclock/agent/internal/repository"
	"github.com/fieldclock/agent/internal/services"
)

// SyncHandler triggers sync passes and reports queue state. The engine is
// not re-entrant, so the handler owns the non-reentrant guard that keeps two
// overlapping passes from running, whatever triggered them.
type SyncHandler struct {
	engine *services.SyncService
	queue  *repository.QueueRepository

	passMu sync.Mutex
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(engine *services.SyncService, queue *repository.QueueRepository) *SyncHandler {
	return &SyncHandler{engine: engine, queue: queue}
}

// RunPass runs one serialized sync pass. Returns nil, nil when a pass is
// already in progress. Shared by the HTTP trigger and the periodic timer.
func (h *SyncHandler) RunPass(ctx context.Context) (*models.SyncResult, error) {
	if !h.passMu.TryLock() {
		return nil, nil
	}
	defer h.passMu.Unlock()

	return h.engine.Run(ctx)
}

// Trigger runs one sync pass on demand
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	result, err := h.RunPass(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result == nil {
		writeError(w, http.StatusConflict, "a sync pass is already running")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Status reports queue depth by status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queue.CountByStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read queue state")
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	writeJSON(w, http.StatusOK, models.QueueStatusResponse{Counts: counts, Total: total})
}
