package admin

import (
	"net/http"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/cache"
)

// handleCache handles GET /cache?key=a,b&data=true&limit=n
func (h *AdminHandlers) handleCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeErrorResponse(w, http.StatusNotFound, "cache inspection unavailable")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	entries := h.cache.Entries(cache.ParseKey(q.Get("key")), q.Get("data") == "true")
	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []cache.EntryInfo{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"entries":  entries,
		"has_more": hasMore,
	})
}
