package httpapi

import (
	"database/sql"
	"net/http"
	"strconv"

	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/store"
)

type RunsHandler struct {
	DB *sql.DB
}

func (h RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.DB == nil {
		WriteError(w, r, http.StatusNotFound, "storage_disabled", "run history is disabled")
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			WriteError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}
	runs, err := store.ListRuns(r.Context(), h.DB, limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"runs": runs})
}

// Records expects /runs/{id}/records.
func (h RunsHandler) Records(w http.ResponseWriter, r *http.Request) {
	if h.DB == nil {
		WriteError(w, r, http.StatusNotFound, "storage_disabled", "run history is disabled")
		return
	}
	id := r.PathValue("id")
	recs, err := store.ListRecords(r.Context(), h.DB, id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if recs == nil {
		recs = []domain.BusinessRecord{}
	}
	writeJSON(w, map[string]any{"run_id": id, "records": recs})
}
