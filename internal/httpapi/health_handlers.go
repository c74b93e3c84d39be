package httpapi

import (
	"net/http"
	"time"

	"mapsharvest-engine/internal/domain"
)

type HealthHandler struct {
	Jobs    JobService
	Started time.Time
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	state := domain.StatusReady
	if h.Jobs != nil {
		if st, ok := h.Jobs.Current(); ok && !st.State.Terminal() {
			state = st.State
		}
	}
	resp := map[string]any{
		"ok":     true,
		"engine": state,
	}
	if !h.Started.IsZero() {
		resp["uptime_s"] = int64(time.Since(h.Started).Seconds())
	}
	writeJSON(w, resp)
}
