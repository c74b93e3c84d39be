package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mapsharvest-engine/internal/domain"
)

// Postgres mirrors harvested records into a shared business_records table,
// keyed by the listing's source address.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pc.MaxConns = 4
	pc.MaxConnLifetime = 5 * time.Minute
	pc.ConnConfig.RuntimeParams["application_name"] = "mapsharvest"

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Close() {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS business_records (
  source_address TEXT PRIMARY KEY,
  run_id TEXT NOT NULL,
  query TEXT NOT NULL,
  category TEXT,
  name TEXT,
  phone TEXT,
  address TEXT,
  website TEXT,
  email TEXT,
  booking_link TEXT,
  business_status TEXT,
  total_reviews TEXT,
  rating TEXT,
  hours TEXT,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("ensure business_records: %w", err)
	}
	return nil
}

const upsertRecordSQL = `
INSERT INTO business_records (source_address, run_id, query, category, name, phone, address,
  website, email, booking_link, business_status, total_reviews, rating, hours)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (source_address) DO UPDATE
SET
  run_id = EXCLUDED.run_id,
  query = EXCLUDED.query,
  category = EXCLUDED.category,
  name = EXCLUDED.name,
  phone = EXCLUDED.phone,
  address = EXCLUDED.address,
  website = EXCLUDED.website,
  email = EXCLUDED.email,
  booking_link = EXCLUDED.booking_link,
  business_status = EXCLUDED.business_status,
  total_reviews = EXCLUDED.total_reviews,
  rating = EXCLUDED.rating,
  hours = EXCLUDED.hours,
  updated_at = NOW()`

// UpsertRecords writes recs in one transaction and returns how many were
// written. Records without a source address are skipped.
func (p *Postgres) UpsertRecords(ctx context.Context, runID, query string, recs []domain.BusinessRecord) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range recs {
		if r.SourceAddress == nil || *r.SourceAddress == "" {
			continue
		}
		batch.Queue(upsertRecordSQL,
			*r.SourceAddress, runID, query, r.Category, r.Name, r.Phone, r.Address,
			r.Website, r.Email, r.BookingLink, r.BusinessStatus, r.TotalReviews, r.Rating, r.Hours,
		)
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("upsert record %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return batch.Len(), nil
}
