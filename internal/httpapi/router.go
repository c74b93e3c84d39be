package httpapi

import (
	"net/http"

	"mapsharvest-engine/internal/logging"
)

// NewMux returns the raw mux so main() can still attach /shutdown (needs srv+token).
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: HealthHandler{Jobs: d.Jobs, Started: d.Started}.Health,
	}))

	// Harvest jobs
	sch := ScrapeHandler{Jobs: d.Jobs, CfgVal: d.CfgVal}
	mux.HandleFunc("/scrape", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sch.Run,
	}))
	mux.HandleFunc("/scrape/cancel", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sch.Cancel,
	}))
	mux.HandleFunc("/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sch.Status,
	}))
	mux.HandleFunc("/api/jobs", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sch.List,
	}))

	// Output files
	fh := FilesHandler{Dir: d.OutputDir}
	mux.HandleFunc("/files", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: fh.List,
	}))
	mux.HandleFunc("/download/{name}", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: fh.Download,
	}))

	// Run history
	rh := RunsHandler{DB: d.DB}
	mux.HandleFunc("/runs", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: rh.List,
	}))
	mux.HandleFunc("/runs/{id}/records", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: rh.Records,
	}))
	mux.HandleFunc("/db/checkpoint", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: DBHandler{DB: d.DB}.Checkpoint,
	}))

	// Config
	ch := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
	}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
		http.MethodPut: ch.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))
	mux.HandleFunc("/config/validate", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Validate,
	}))

	// Secrets (use cfgVal, NOT a snapshot cfg)
	sh := SecretsHandler{CfgVal: d.CfgVal}
	mux.HandleFunc("/api/secrets/postgres", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.SetPostgresPassword,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	return mux
}

// Wrap applies the standard middleware stack.
func Wrap(h http.Handler) http.Handler {
	log := logging.New("http")
	return Chain(h, RequestID, Recover(log), AccessLog(log), Cors)
}
