package admin

import (
	"net/http"
	"time"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/realtime"
)

// StatusResponse is the body of GET /status
type StatusResponse struct {
	realtime.Snapshot
	Uptime string `json:"uptime"`
}

// handleStatus returns connection, mode, polling and binding state
func (h *AdminHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, StatusResponse{
		Snapshot: h.facade.Snapshot(),
		Uptime:   time.Since(h.started).Round(time.Second).String(),
	})
}

// handleHealth reports healthy while realtime delivery runs in either mode
func (h *AdminHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.facade.Snapshot()
	status := http.StatusOK
	if !snap.Started {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, map[string]interface{}{
		"healthy": snap.Started,
		"mode":    snap.Mode,
		"status":  snap.Status,
	})
}
