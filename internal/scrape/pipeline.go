// Package scrape wires the browser, consent resolver, harvester, extractor
// and sink into one run.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"mapsharvest-engine/internal/config"
	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/logging"
	"mapsharvest-engine/internal/runctx"
	"mapsharvest-engine/internal/scrape/browser"
	"mapsharvest-engine/internal/scrape/extract"
	"mapsharvest-engine/internal/scrape/gateway"
	"mapsharvest-engine/internal/scrape/harvest"
	"mapsharvest-engine/internal/sink"
)

var ErrPanic = errors.New("pipeline panic")

// Outcome is the terminal state of one run.
type Outcome struct {
	Status  domain.Status
	Records []domain.BusinessRecord
	Gateway gateway.State
	Stop    harvest.StopReason
	Err     error
}

type Pipeline struct {
	NewSession browser.Factory
	Search     config.Search
	Gateway    config.Gateway
	NavTimeout time.Duration
	Harvester  *harvest.Harvester
	Extractor  *extract.Extractor
	Sink       sink.Sink

	log *slog.Logger
}

// New builds a pipeline from cfg. enricher and out may be nil.
func New(cfg config.Config, factory browser.Factory, enricher extract.Enricher, out sink.Sink) (*Pipeline, error) {
	h, err := harvest.New(cfg.Harvest)
	if err != nil {
		return nil, err
	}
	x, err := extract.New(cfg.Extract, enricher)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		NewSession: factory,
		Search:     cfg.Search,
		Gateway:    cfg.Gateway,
		NavTimeout: cfg.Browser.NavTimeout,
		Harvester:  h,
		Extractor:  x,
		Sink:       out,
		log:        logging.New("pipeline"),
	}, nil
}

// FormatQuery collapses whitespace and appends suffix unless the query
// already names a place with one of hints.
func FormatQuery(q, suffix string, hints []string) string {
	q = strings.Join(strings.Fields(q), " ")
	if q == "" || suffix == "" {
		return q
	}
	words := strings.Fields(strings.ToLower(q))
	joined := " " + strings.Join(words, " ") + " "
	for _, h := range hints {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" && strings.Contains(joined, " "+h+" ") {
			return q
		}
	}
	return q + suffix
}

// SearchAddress fills {query} in template with the form-encoded query.
func SearchAddress(template, q string) string {
	return strings.ReplaceAll(template, "{query}", url.QueryEscape(q))
}

// Run drives one job end to end. The sink receives the result exactly once on
// every path, including panics, and the session is always torn down.
func (p *Pipeline) Run(ctx context.Context, rc *runctx.RunContext) (out Outcome) {
	log := p.log.With("job_id", rc.JobID)
	once := sink.NewOnce(p.Sink)
	var sess browser.Session

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panic", "err", r, "stack", string(debug.Stack()))
			out.Status = domain.StatusError
			out.Err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		if sess != nil {
			teardown(log, sess)
		}
		if out.Status == "" {
			out.Status = statusFor(out.Records)
		}
		res := sink.Result{Status: out.Status, Records: out.Records, Err: out.Err}
		if err := once.Deliver(context.WithoutCancel(ctx), rc, res); err != nil {
			log.Error("delivery failed", "err", err)
			rc.Progress("Saving results failed: %v", err)
		}
	}()

	query := FormatQuery(rc.Job.Query, p.Search.NearMeSuffix, p.Search.LocationHints)
	address := SearchAddress(p.Search.URLTemplate, query)
	rc.Progress("Searching for %q", query)

	var err error
	sess, err = p.NewSession(ctx, rc.Job.Headless)
	if err != nil {
		sess = nil
		rc.Progress("Browser could not be started: %v", err)
		return Outcome{Status: domain.StatusError, Err: fmt.Errorf("%w: %v", browser.ErrSessionInit, err)}
	}

	if err := p.open(ctx, sess, address); err != nil {
		if errors.Is(err, browser.ErrSessionLost) {
			return lost(rc, nil, err)
		}
		log.Warn("search page did not finish loading", "address", address, "err", err)
	}

	resolver := gateway.FromConfig(p.Gateway)
	out.Gateway = resolver.Resolve(ctx, rc, sess, gateway.Target{Query: query, Address: address})

	hres, err := p.Harvester.Harvest(ctx, rc, sess, out.Gateway)
	out.Stop = hres.Stop
	if err != nil {
		o := lost(rc, nil, err)
		o.Gateway, o.Stop = out.Gateway, out.Stop
		return o
	}

	ids := hres.Set.Items()
	if len(ids) == 0 {
		out.Status = domain.StatusNoResults
		return out
	}
	if rc.Cancelled() {
		rc.Progress("Cancelled before extraction")
		return out
	}

	rc.Progress("Extracting details for %d places", len(ids))
	out.Records, err = p.Extractor.ExtractAll(ctx, rc, sess, ids)
	if err != nil {
		o := lost(rc, out.Records, err)
		o.Gateway, o.Stop = out.Gateway, out.Stop
		return o
	}

	out.Status = statusFor(out.Records)
	rc.Progress("Finished with %d records", len(out.Records))
	return out
}

func (p *Pipeline) open(ctx context.Context, s browser.Session, address string) error {
	if p.NavTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.NavTimeout)
		defer cancel()
	}
	return s.Open(ctx, address)
}

func lost(rc *runctx.RunContext, recs []domain.BusinessRecord, err error) Outcome {
	rc.Progress("Browser session lost: %v", err)
	return Outcome{Status: domain.StatusError, Records: recs, Err: err}
}

func statusFor(recs []domain.BusinessRecord) domain.Status {
	if len(recs) == 0 {
		return domain.StatusNoResults
	}
	return domain.StatusCompleted
}

func teardown(log *slog.Logger, s browser.Session) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("teardown panic", "err", r)
		}
	}()
	s.Teardown()
}
