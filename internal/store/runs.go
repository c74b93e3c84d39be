package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mapsharvest-engine/internal/domain"
)

// Run is one finished pipeline execution.
type Run struct {
	ID           string              `json:"id"`
	Query        string              `json:"query"`
	OutputFormat domain.OutputFormat `json:"output_format"`
	Status       domain.Status       `json:"status"`
	Error        string              `json:"error,omitempty"`
	RecordCount  int                 `json:"record_count"`
	Files        []string            `json:"files"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
}

// SaveRun stores run and replaces its records in one transaction.
func SaveRun(ctx context.Context, db *sql.DB, run Run, recs []domain.BusinessRecord) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	files, _ := json.Marshal(nonNil(run.Files))
	if _, err := tx.ExecContext(ctx, `
INSERT INTO runs(id, query, output_format, status, error, record_count, files, started_at, finished_at)
VALUES(?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  status = excluded.status,
  error = excluded.error,
  record_count = excluded.record_count,
  files = excluded.files,
  finished_at = excluded.finished_at;
`,
		run.ID, run.Query, string(run.OutputFormat), string(run.Status), run.Error, len(recs), string(files),
		run.StartedAt.UTC().Format(time.RFC3339), run.FinishedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE run_id = ?;`, run.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO records(run_id, position, category, name, phone, address, website, email,
  booking_link, business_status, total_reviews, rating, hours, source_address)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?);
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range recs {
		if _, err := stmt.ExecContext(ctx, run.ID, i,
			r.Category, r.Name, r.Phone, r.Address, r.Website, r.Email,
			r.BookingLink, r.BusinessStatus, r.TotalReviews, r.Rating, r.Hours, r.SourceAddress,
		); err != nil {
			return fmt.Errorf("save record %d of run %s: %w", i, run.ID, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns the newest runs first.
func ListRuns(ctx context.Context, db *sql.DB, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
SELECT id, query, output_format, status, error, record_count, files, started_at, finished_at
FROM runs
ORDER BY finished_at DESC, id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var format, status, files, started, finished string
		if err := rows.Scan(&r.ID, &r.Query, &format, &status, &r.Error, &r.RecordCount, &files, &started, &finished); err != nil {
			return nil, err
		}
		r.OutputFormat = domain.OutputFormat(format)
		r.Status = domain.Status(status)
		_ = json.Unmarshal([]byte(files), &r.Files)
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRecords returns a run's records in harvest order.
func ListRecords(ctx context.Context, db *sql.DB, runID string) ([]domain.BusinessRecord, error) {
	rows, err := db.QueryContext(ctx, `
SELECT category, name, phone, address, website, email, booking_link,
  business_status, total_reviews, rating, hours, source_address
FROM records
WHERE run_id = ?
ORDER BY position;
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BusinessRecord
	for rows.Next() {
		var r domain.BusinessRecord
		if err := rows.Scan(
			&r.Category, &r.Name, &r.Phone, &r.Address, &r.Website, &r.Email, &r.BookingLink,
			&r.BusinessStatus, &r.TotalReviews, &r.Rating, &r.Hours, &r.SourceAddress,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CleanupOldRuns drops runs (and their records) finished before cutoff.
func CleanupOldRuns(ctx context.Context, db *sql.DB, cutoff time.Time) (deleted int64, err error) {
	if _, err := db.ExecContext(ctx, `
DELETE FROM records WHERE run_id IN (SELECT id FROM runs WHERE finished_at < ?);
`, cutoff.UTC().Format(time.RFC3339)); err != nil {
		return 0, fmt.Errorf("cleanup old records: %w", err)
	}
	res, err := db.ExecContext(ctx, `DELETE FROM runs WHERE finished_at < ?;`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("cleanup old runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
