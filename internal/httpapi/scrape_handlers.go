package httpapi

import (
	"net/http"
	"strings"
	"sync/atomic"

	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/jobs"
)

type ScrapeHandler struct {
	Jobs   JobService
	CfgVal *atomic.Value // config.Config
}

func (h ScrapeHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	cfg := loadConfig(h.CfgVal)

	var format domain.OutputFormat
	if strings.TrimSpace(req.OutputFormat) != "" {
		f, err := domain.ParseOutputFormat(req.OutputFormat)
		if err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid_format", err.Error())
			return
		}
		format = f
	}
	def, _ := domain.ParseOutputFormat(cfg.Output.DefaultFormat)
	headless := cfg.Browser.Headless
	if req.Headless != nil {
		headless = *req.Headless
	}

	job, err := domain.NewSearchJob(req.Query, format, headless, def)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_query", err.Error())
		return
	}
	st, err := h.Jobs.Submit(job)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, st)
}

func (h ScrapeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	if req.JobID == "" {
		req.JobID = r.URL.Query().Get("job_id")
	}
	st, err := h.Jobs.Cancel(req.JobID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, st)
}

// Status reports one job by id, or the active/latest job. With no jobs at
// all the engine is ready.
func (h ScrapeHandler) Status(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("job_id"); id != "" {
		st, err := h.Jobs.Get(id)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, st)
		return
	}
	st, ok := h.Jobs.Current()
	if !ok {
		writeJSON(w, jobs.Status{State: domain.StatusReady, Files: []string{}, Messages: []string{}})
		return
	}
	writeJSON(w, st)
}

func (h ScrapeHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"jobs": h.Jobs.List()})
}
