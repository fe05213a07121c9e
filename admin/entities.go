package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
)

// entityParam resolves the {entity} URL parameter
func entityParam(w http.ResponseWriter, r *http.Request) (event.Entity, bool) {
	entity, err := event.ParseEntity(chi.URLParam(r, "entity"))
	if err != nil {
		writeErrorResponse(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return entity, true
}

// handleListEntities returns the known entities
func (h *AdminHandlers) handleListEntities(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, event.KnownEntities())
}

// handleInvalidate handles POST /entities/{entity}/invalidate
func (h *AdminHandlers) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	entity, ok := entityParam(w, r)
	if !ok {
		return
	}
	keys := h.facade.InvalidateEntity(entity)
	log.Info().Str("entity", string(entity)).Str("remote", r.RemoteAddr).Msg("Manual invalidation")
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"entity": entity,
		"keys":   keys,
	})
}

type intervalRequest struct {
	Interval string `json:"interval"`
}

// handlePollInterval handles PUT /entities/{entity}/interval
func (h *AdminHandlers) handlePollInterval(w http.ResponseWriter, r *http.Request) {
	entity, ok := entityParam(w, r)
	if !ok {
		return
	}

	var req intervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := time.ParseDuration(req.Interval)
	if err != nil || d <= 0 {
		writeErrorResponse(w, http.StatusBadRequest, "invalid interval")
		return
	}
	if err := h.facade.SetPollInterval(entity, d); err != nil {
		writeErrorResponse(w, http.StatusConflict, err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"entity":   entity,
		"interval": d.String(),
	})
}
