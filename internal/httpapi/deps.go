package httpapi

import (
	"database/sql"
	"sync/atomic"
	"time"

	"mapsharvest-engine/internal/config"
	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/events"
	"mapsharvest-engine/internal/jobs"
)

// JobService is the slice of *jobs.Manager the API drives.
type JobService interface {
	Submit(job domain.SearchJob) (jobs.Status, error)
	Cancel(id string) (jobs.Status, error)
	Get(id string) (jobs.Status, error)
	Current() (jobs.Status, bool)
	List() []jobs.Status
}

type Deps struct {
	// DB is the run history database; nil disables /runs.
	DB *sql.DB

	Hub  *events.Hub
	Jobs JobService

	CfgVal *atomic.Value // stores config.Config

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// OutputDir is where result files are written and served from.
	OutputDir string

	Started time.Time
}

func loadConfig(v *atomic.Value) config.Config {
	if v == nil {
		return config.Default()
	}
	if c, ok := v.Load().(config.Config); ok {
		return c
	}
	return config.Default()
}
