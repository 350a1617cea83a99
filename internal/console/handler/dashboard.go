package handler

import (
	"net/http"
)

// GetStats — сводка по всему снимку для дашборда консоли (фильтры вкладок не учитываются).
// GET /v1/explorer/stats
func (h *ExplorerHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if !h.explorer.Ready() {
		writeError(w, http.StatusServiceUnavailable, "snapshot is loading")
		return
	}
	writeJSON(w, http.StatusOK, h.explorer.Stats())
}
