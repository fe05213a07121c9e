// Package admin serves the HTTP surface of the sync daemon: status, manual
// invalidation, cache inspection and metrics.
package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/cache"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/realtime"
)

// Facade is the part of the realtime layer the admin API drives
type Facade interface {
	Snapshot() realtime.Snapshot
	InvalidateEntity(entity event.Entity) int
	SetPollInterval(entity event.Entity, d time.Duration) error
}

// CacheInspector lists cache entries
type CacheInspector interface {
	Entries(prefix cache.Key, withData bool) []cache.EntryInfo
}

// AdminHandlers handles the admin API endpoints
type AdminHandlers struct {
	facade  Facade
	cache   CacheInspector
	started time.Time
}

// NewAdminHandlers creates a new AdminHandlers instance. cache may be nil.
func NewAdminHandlers(facade Facade, cache CacheInspector) *AdminHandlers {
	return &AdminHandlers{
		facade:  facade,
		cache:   cache,
		started: time.Now(),
	}
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// parseLimit parses limit parameter with defaults
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 256, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %w", err)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be positive")
	}
	if limit > 1024 {
		return 0, fmt.Errorf("limit cannot exceed 1024")
	}
	return limit, nil
}
