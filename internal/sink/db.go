package sink

import (
	"context"
	"database/sql"
	"time"

	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/runctx"
	"mapsharvest-engine/internal/store"
)

// SQLite records the run and its records in the local history database.
type SQLite struct {
	DB *sql.DB
}

func (s *SQLite) Deliver(ctx context.Context, rc *runctx.RunContext, res Result) error {
	run := store.Run{
		ID:           rc.JobID,
		Query:        rc.Job.Query,
		OutputFormat: rc.Job.OutputFormat,
		Status:       res.Status,
		Files:        rc.Artifacts(),
		StartedAt:    rc.Started,
		FinishedAt:   time.Now(),
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}
	return store.SaveRun(ctx, s.DB, run, res.Records)
}

// RecordUpserter is the slice of *store.Postgres the sink needs.
type RecordUpserter interface {
	UpsertRecords(ctx context.Context, runID, query string, recs []domain.BusinessRecord) (int, error)
}

// Postgres mirrors records into the shared business_records table.
type Postgres struct {
	Store RecordUpserter
}

func (p *Postgres) Deliver(ctx context.Context, rc *runctx.RunContext, res Result) error {
	if len(res.Records) == 0 {
		return nil
	}
	n, err := p.Store.UpsertRecords(ctx, rc.JobID, rc.Job.Query, res.Records)
	if err != nil {
		return err
	}
	rc.Logger().Info("records mirrored to postgres", "count", n)
	return nil
}
