// Package harvest discovers result identifiers from the scrolling result list.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"mapsharvest-engine/internal/config"
	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/logging"
	"mapsharvest-engine/internal/runctx"
	"mapsharvest-engine/internal/scrape/browser"
	"mapsharvest-engine/internal/scrape/gateway"
	"mapsharvest-engine/internal/scrape/util"
)

type StopReason string

const (
	StopEndMarker     StopReason = "end_marker"
	StopStalled       StopReason = "stalled"
	StopCapped        StopReason = "iteration_cap"
	StopCancelled     StopReason = "cancelled"
	StopRedirect      StopReason = "redirect"
	StopNoResults     StopReason = "no_results"
	StopGatewayFailed StopReason = "gateway_failed"
)

type Result struct {
	Set        *domain.ResultSet
	Iterations int
	Stop       StopReason
}

type Harvester struct {
	cfg   config.Harvest
	chain *Chain
	log   *slog.Logger
}

func New(cfg config.Harvest) (*Harvester, error) {
	chain, err := DefaultChain(cfg)
	if err != nil {
		return nil, fmt.Errorf("harvest: identifier pattern: %w", err)
	}
	return &Harvester{cfg: cfg, chain: chain, log: logging.New("harvest")}, nil
}

// IsPlace reports whether address is a single-result address.
func (h *Harvester) IsPlace(address string) bool {
	return h.chain.Identifier("", address) != ""
}

// Harvest builds the result set for the page the session is on. The only
// error it returns is a lost browser session.
func (h *Harvester) Harvest(ctx context.Context, rc *runctx.RunContext, s browser.Session, gw gateway.State) (Result, error) {
	res := Result{Set: domain.NewResultSet()}

	loc, err := s.Location(ctx)
	if errors.Is(err, browser.ErrSessionLost) {
		return res, err
	}
	if id := h.chain.Identifier("", loc); id != "" {
		res.Set.Add(id)
		res.Stop = StopRedirect
		rc.Progress("Search opened a single place directly")
		return res, nil
	}

	if gw == gateway.Failed {
		res.Stop = StopGatewayFailed
		rc.Progress("Consent page could not be cleared; no results available")
		return res, nil
	}

	container, err := h.waitForContainer(ctx, rc, s)
	if err != nil {
		return res, err
	}
	if container == "" {
		res.Stop = StopNoResults
		rc.Progress("No results found")
		return res, nil
	}
	h.log.Debug("results container located", "selector", container)

	stall := 0
	for iter := 0; ; iter++ {
		if rc.Cancelled() || ctx.Err() != nil {
			res.Stop = StopCancelled
			rc.Progress("Harvest cancelled with %d results", res.Set.Len())
			return res, nil
		}
		if iter >= h.cfg.MaxIterations {
			res.Stop = StopCapped
			break
		}

		snap, err := h.snapshot(ctx, s, container)
		if err != nil {
			if errors.Is(err, browser.ErrSessionLost) {
				return res, err
			}
			h.log.Warn("snapshot failed", "iter", iter, "err", err)
			stall++
		} else {
			ids, strategy := h.chain.Run(snap)
			added := res.Set.AddAll(ids)
			if added == 0 {
				stall++
			} else {
				stall = 0
			}
			res.Iterations++
			h.log.Debug("iteration", "iter", iter, "added", added, "total", res.Set.Len(), "strategy", strategy, "stall", stall)

			if h.endReached(snap) {
				res.Stop = StopEndMarker
				rc.Progress("Found %d results", res.Set.Len())
				break
			}
		}
		rc.Progress("Found %d results", res.Set.Len())

		if tol := Tolerance(h.cfg.Tiers, h.cfg.DefaultTolerance, res.Set.Len()); stall > tol {
			res.Stop = StopStalled
			break
		}

		if err := h.scroll(ctx, s, container, stall, res.Set.Len()); errors.Is(err, browser.ErrSessionLost) {
			return res, err
		}
	}

	// final pass over the whole page
	if snap, err := h.snapshot(ctx, s, container); err == nil {
		if n := res.Set.AddAll(h.chain.Sweep(snap)); n > 0 {
			rc.Progress("Final sweep recovered %d more results", n)
		}
	} else if errors.Is(err, browser.ErrSessionLost) {
		return res, err
	}

	rc.Progress("Harvest finished with %d results (%s)", res.Set.Len(), res.Stop)
	return res, nil
}

func (h *Harvester) waitForContainer(ctx context.Context, rc *runctx.RunContext, s browser.Session) (string, error) {
	deadline := time.Now().Add(h.cfg.ContainerWait)
	rc.Progress("Waiting for search results")
	for {
		doc, _, err := h.document(ctx, s)
		if errors.Is(err, browser.ErrSessionLost) {
			return "", err
		}
		if err == nil {
			for _, sel := range h.cfg.NoResultsMarkers {
				if doc.Find(sel).Length() > 0 {
					return "", nil
				}
			}
			for _, sel := range h.cfg.ContainerLocators {
				if doc.Find(sel).Length() > 0 {
					return sel, nil
				}
			}
		}
		if time.Now().After(deadline) {
			return "", nil
		}
		if util.Sleep(ctx, h.cfg.PollInterval) != nil {
			return "", nil
		}
	}
}

func (h *Harvester) document(ctx context.Context, s browser.Session) (*goquery.Document, string, error) {
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
		return nil, "", err
	}
	return doc, loc, nil
}

func (h *Harvester) snapshot(ctx context.Context, s browser.Session, container string) (Snapshot, error) {
	doc, loc, err := h.document(ctx, s)
	if err != nil {
		return Snapshot{}, err
	}
	c := doc.Find(container).First()
	return Snapshot{Base: loc, Document: doc, Container: c}, nil
}

func (h *Harvester) endReached(s Snapshot) bool {
	for _, sel := range h.cfg.EndSelectors {
		if s.Document.Find(sel).Length() > 0 {
			return true
		}
	}
	if len(h.cfg.EndTexts) == 0 {
		return false
	}
	text := normalizeQuotes(strings.ToLower(s.Document.Text()))
	for _, t := range h.cfg.EndTexts {
		if strings.Contains(text, normalizeQuotes(strings.ToLower(t))) {
			return true
		}
	}
	return false
}

func normalizeQuotes(s string) string {
	return strings.NewReplacer("\u2019", "'", "\u2018", "'").Replace(s)
}

// scroll moves one step normally, or several steps to the end with longer
// settles once the list seems stuck while still small.
func (h *Harvester) scroll(ctx context.Context, s browser.Session, container string, stall, count int) error {
	if stall >= h.cfg.StuckAfter && count < h.cfg.StuckBelow {
		h.log.Debug("aggressive scroll", "stall", stall, "count", count)
		for i := 0; i < h.cfg.AggressiveSteps; i++ {
			if err := s.Scroll(ctx, container, 0); err != nil {
				return err
			}
			if err := util.Sleep(ctx, h.cfg.ScrollSettle); err != nil {
				return err
			}
		}
		return util.Sleep(ctx, h.cfg.AggressiveSettle)
	}
	if err := s.Scroll(ctx, container, h.cfg.ScrollStep); err != nil {
		return err
	}
	return util.Sleep(ctx, h.cfg.ScrollSettle)
}
