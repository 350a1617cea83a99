package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-audit-explorer/internal/explorer"
	"github.com/xela07ax/spaceai-audit-explorer/internal/filter"
)

const maxBodySize = 64 << 10

var validate = validator.New(validator.WithRequiredStructEnabled())

// SelectionRequest — тело PUT для мультивыбора. Пустой список снимает фильтр.
type SelectionRequest struct {
	Values []string `json:"values" validate:"max=500,dive,max=200"`
}

// StatusSelectionRequest — коды статусов приходят десятичными строками.
type StatusSelectionRequest struct {
	Values []string `json:"values" validate:"max=100,dive,numeric,max=3"`
}

type QueryRequest struct {
	Query string `json:"query" validate:"max=500"`
}

type DateRangeRequest struct {
	Start string `json:"start" validate:"max=40"`
	End   string `json:"end" validate:"max=40"`
}

type ExplorerHandler struct {
	explorer *explorer.Explorer
	logger   *zap.Logger
}

func NewExplorerHandler(x *explorer.Explorer, logger *zap.Logger) *ExplorerHandler {
	return &ExplorerHandler{explorer: x, logger: logger.Named("explorer-handler")}
}

// Routes монтируется в /v1/explorer
func (h *ExplorerHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/refresh", h.Refresh)
	r.Get("/events/{id}", h.GetEvent)
	r.Get("/stats", h.GetStats)

	r.Route("/agent", func(r chi.Router) {
		h.viewRoutes(r, explorer.ViewAgent)
		r.Put("/agents", selection(h, h.explorer.SetAgentIDs))
		r.Put("/tools", selection(h, h.explorer.SetToolNames))
		r.Put("/policies", selection(h, h.explorer.SetPolicies))
	})
	r.Route("/registry", func(r chi.Router) {
		h.viewRoutes(r, explorer.ViewRegistry)
		r.Put("/methods", selection(h, h.explorer.SetMethods))
		r.Put("/statuses", h.SetStatuses)
		r.Put("/stages", selection(h, h.explorer.SetStages))
	})
	return r
}

// viewRoutes регистрирует общие для обеих вкладок операции.
func (h *ExplorerHandler) viewRoutes(r chi.Router, v explorer.View) {
	r.Get("/", h.GetProjection(v))
	r.Put("/dates", h.SetDates(v))
	r.Put("/query", h.SetQuery(v))
	r.Post("/reset", h.Reset(v))
}

// Health — 200, когда загружен хотя бы один снимок.
// GET /health
func (h *ExplorerHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !h.explorer.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "snapshot": h.explorer.Snapshot()})
}

// Refresh перечитывает коллекцию; мультивыборы обеих вкладок сбрасываются.
// POST /v1/explorer/refresh
func (h *ExplorerHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.explorer.Refresh(r.Context())
	if err != nil {
		h.logger.Warn("refresh aborted", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "refresh aborted")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetEvent отдает полную запись для детального просмотра.
// GET /v1/explorer/events/{id}
func (h *ExplorerHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.explorer.Event(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// GET /v1/explorer/{view}
func (h *ExplorerHandler) GetProjection(v explorer.View) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.respond(w, func() (any, error) { return h.explorer.Projection(v) })
	}
}

// PUT /v1/explorer/{view}/dates
func (h *ExplorerHandler) SetDates(v explorer.View) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DateRangeRequest
		if !h.decode(w, r, &req) {
			return
		}
		h.respond(w, func() (any, error) {
			return h.explorer.SetDateRange(v, filter.DateRange{Start: req.Start, End: req.End})
		})
	}
}

// PUT /v1/explorer/{view}/query
func (h *ExplorerHandler) SetQuery(v explorer.View) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		if !h.decode(w, r, &req) {
			return
		}
		h.respond(w, func() (any, error) { return h.explorer.SetQuery(v, req.Query) })
	}
}

// Reset очищает все фильтры вкладки, включая даты и поиск.
// POST /v1/explorer/{view}/reset
func (h *ExplorerHandler) Reset(v explorer.View) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.respond(w, func() (any, error) { return h.explorer.Reset(v) })
	}
}

// PUT /v1/explorer/registry/statuses
func (h *ExplorerHandler) SetStatuses(w http.ResponseWriter, r *http.Request) {
	var req StatusSelectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.explorer.SetStatuses(req.Values))
}

// selection — общий обработчик PUT мультивыбора для любой вкладки.
func selection[P any](h *ExplorerHandler, set func([]string) P) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectionRequest
		if !h.decode(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, set(req.Values))
	}
}

func (h *ExplorerHandler) respond(w http.ResponseWriter, op func() (any, error)) {
	res, err := op()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decode читает и проверяет тело; при ошибке ответ уже записан.
func (h *ExplorerHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return false
	}
	return true
}

func (h *ExplorerHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, explorer.ErrUnknownView), errors.Is(err, explorer.ErrEventNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
