package query

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handler serves the read-only HTTP surface over the batch log. Mounted on
// the operational mux next to /healthz and /metrics.
type Handler struct {
	qs  *QueryService
	log zerolog.Logger
}

func NewHandler(qs *QueryService, log zerolog.Logger) *Handler {
	return &Handler{
		qs:  qs,
		log: log.With().Str("component", "query_http").Logger(),
	}
}

// Register mounts the query routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/batches/{id}", h.getBatch)
	mux.HandleFunc("GET /v1/callers/{id}/batches", h.listCallerBatches)
	mux.HandleFunc("GET /v1/events", h.listEvents)
}

func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		httpError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	batch, err := h.qs.GetBatch(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httpError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("batch", id).Msg("get batch")
		httpError(w, http.StatusInternalServerError, "query failed")
		return
	}

	actions, err := h.qs.ListActions(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("batch", id).Msg("list actions")
		httpError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, map[string]any{
		"batch":   batch,
		"actions": actions,
	})
}

func (h *Handler) listCallerBatches(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		httpError(w, http.StatusBadRequest, "invalid caller id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	batches, err := h.qs.ListBatchesByCaller(r.Context(), id, limit)
	if err != nil {
		h.log.Error().Err(err).Str("caller", id).Msg("list batches")
		httpError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, map[string]any{"batches": batches})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	var from int64
	if raw := r.URL.Query().Get("from"); raw != "" {
		var err error
		from, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || from < 0 {
			httpError(w, http.StatusBadRequest, "from must be a non-negative sequence")
			return
		}
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.qs.ListEvents(r.Context(), from, limit)
	if err != nil {
		h.log.Error().Err(err).Int64("from", from).Msg("list events")
		httpError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, map[string]any{"events": events})
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
