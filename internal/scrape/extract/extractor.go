// Package extract visits each harvested identifier and builds its record.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"mapsharvest-engine/internal/config"
	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/logging"
	"mapsharvest-engine/internal/runctx"
	"mapsharvest-engine/internal/scrape/browser"
	"mapsharvest-engine/internal/scrape/util"
)

// Enricher finds contact emails for a website; "" means none.
type Enricher interface {
	Enrich(ctx context.Context, website string) string
}

type Extractor struct {
	cfg      config.Extract
	fields   []Field
	enricher Enricher
	log      *slog.Logger
}

func New(cfg config.Extract, enricher Enricher) (*Extractor, error) {
	fields, err := FieldsFromConfig(cfg.Fields)
	if err != nil {
		return nil, err
	}
	return NewWithFields(cfg, fields, enricher), nil
}

func NewWithFields(cfg config.Extract, fields []Field, enricher Enricher) *Extractor {
	return &Extractor{cfg: cfg, fields: fields, enricher: enricher, log: logging.New("extract")}
}

// ExtractAll visits ids in order. It stops early on cancellation, returning
// what it has; the only error is a lost browser session.
func (e *Extractor) ExtractAll(ctx context.Context, rc *runctx.RunContext, s browser.Session, ids []domain.CandidateIdentifier) ([]domain.BusinessRecord, error) {
	records := make([]domain.BusinessRecord, 0, len(ids))
	for i, id := range ids {
		if rc.Cancelled() || ctx.Err() != nil {
			rc.Progress("Extraction cancelled after %d of %d places", len(records), len(ids))
			return records, nil
		}

		rec, err := e.extractOne(ctx, s, id)
		if errors.Is(err, browser.ErrSessionLost) {
			return records, err
		}
		records = append(records, rec)

		name := "unknown"
		if rec.Name != nil {
			name = *rec.Name
		}
		rc.Progress("Processed %d/%d: %s", i+1, len(ids), name)
	}
	return records, nil
}

func (e *Extractor) extractOne(ctx context.Context, s browser.Session, id domain.CandidateIdentifier) (domain.BusinessRecord, error) {
	source := domain.Str(string(id))
	fallback := domain.BusinessRecord{SourceAddress: source}

	octx, cancel := context.WithTimeout(ctx, e.cfg.NavTimeout)
	err := s.Open(octx, string(id))
	cancel()
	if err != nil {
		if errors.Is(err, browser.ErrSessionLost) {
			return fallback, err
		}
		e.log.Warn("open failed", "id", id, "err", err)
		return fallback, nil
	}
	_ = util.Sleep(ctx, e.cfg.Settle)

	root, loc, err := e.root(ctx, s)
	if err != nil {
		if errors.Is(err, browser.ErrSessionLost) {
			return fallback, err
		}
		e.log.Warn("render unavailable", "id", id, "err", err)
		return fallback, nil
	}

	rec, ferrs := ExtractRecord(root, e.fields)
	for _, fe := range ferrs {
		e.log.Debug("field failed", "id", id, "field", fe.Field, "err", fe.Err)
	}

	rec.SourceAddress = source
	if loc != "" {
		rec.SourceAddress = domain.Str(loc)
	}
	if rec.Website != nil {
		rec.Website = domain.Str(util.ResolveURL(loc, *rec.Website))
	}
	if rec.BookingLink != nil {
		rec.BookingLink = domain.Str(util.ResolveURL(loc, *rec.BookingLink))
	}

	if e.enricher != nil && rec.Website != nil {
		rec.Email = domain.Str(e.enrich(ctx, *rec.Website))
	}
	return rec, nil
}

func (e *Extractor) root(ctx context.Context, s browser.Session) (*goquery.Selection, string, error) {
	html, err := s.HTML(ctx)
	if err != nil {
		return nil, "", err
	}
	loc, err := s.Location(ctx)
	if err != nil {
		return nil, "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, "", fmt.Errorf("parse detail page: %w", err)
	}
	for _, sel := range e.cfg.Root {
		if n := doc.Find(sel).First(); n.Length() > 0 {
			return n, loc, nil
		}
	}
	return doc.Selection, loc, nil
}

func (e *Extractor) enrich(ctx context.Context, website string) (email string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("enrichment panic", "website", website, "err", r)
			email = ""
		}
	}()
	return e.enricher.Enrich(ctx, website)
}
