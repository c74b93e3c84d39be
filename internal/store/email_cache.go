package store

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"mapsharvest-engine/internal/logging"
)

// GetCachedEmails returns the cached result for site if it is younger than ttl.
// A cached "" means the site had no address.
func GetCachedEmails(ctx context.Context, db *sql.DB, site string, ttl time.Duration) (emails string, ok bool, err error) {
	site = strings.TrimSpace(site)
	if site == "" {
		return "", false, nil
	}

	var fetched string
	err = db.QueryRowContext(ctx,
		`SELECT emails, fetched_at FROM site_email_cache WHERE site = ? LIMIT 1;`,
		site,
	).Scan(&emails, &fetched)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if ttl > 0 {
		at, perr := time.Parse(time.RFC3339, fetched)
		if perr != nil || time.Since(at) > ttl {
			return "", false, nil
		}
	}
	return emails, true, nil
}

func UpsertCachedEmails(ctx context.Context, db *sql.DB, site, emails string) error {
	site = strings.TrimSpace(site)
	if site == "" {
		return nil
	}

	_, err := db.ExecContext(ctx, `
INSERT INTO site_email_cache(site, emails, fetched_at)
VALUES(?,?,?)
ON CONFLICT(site) DO UPDATE SET
  emails = excluded.emails,
  fetched_at = excluded.fetched_at;
`, site, strings.TrimSpace(emails), time.Now().UTC().Format(time.RFC3339))

	return err
}

// EmailCache adapts the site_email_cache table to the enricher's cache.
type EmailCache struct {
	DB  *sql.DB
	TTL time.Duration
	log *slog.Logger
}

func NewEmailCache(db *sql.DB, ttl time.Duration) *EmailCache {
	return &EmailCache{DB: db, TTL: ttl, log: logging.New("store")}
}

func (c *EmailCache) Lookup(ctx context.Context, site string) (string, bool) {
	v, ok, err := GetCachedEmails(ctx, c.DB, site, c.TTL)
	if err != nil {
		c.log.Warn("email cache lookup failed", "site", site, "err", err)
		return "", false
	}
	return v, ok
}

func (c *EmailCache) Remember(ctx context.Context, site, emails string) {
	if err := UpsertCachedEmails(ctx, c.DB, site, emails); err != nil {
		c.log.Warn("email cache write failed", "site", site, "err", err)
	}
}
