// Package gateway detects the consent interstitial and tries to get past it.
package gateway

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"mapsharvest-engine/internal/config"
	"mapsharvest-engine/internal/logging"
	"mapsharvest-engine/internal/runctx"
	"mapsharvest-engine/internal/scrape/browser"
)

type Markers struct {
	Location []string
	Title    []string
}

// Classify reports Blocked when the location or title carries an interstitial marker.
func Classify(m Markers, location, title string) State {
	loc := strings.ToLower(location)
	for _, mk := range m.Location {
		if mk != "" && strings.Contains(loc, strings.ToLower(mk)) {
			return Blocked
		}
	}
	t := strings.ToLower(title)
	for _, mk := range m.Title {
		if mk != "" && strings.Contains(t, strings.ToLower(mk)) {
			return Blocked
		}
	}
	return Resolved
}

// Target is what the run was trying to reach when the interstitial appeared.
type Target struct {
	Query   string
	Address string
}

type Tactic interface {
	Name() string
	Timeout() time.Duration
	Attempt(ctx context.Context, s browser.Session, t Target) error
}

type Resolver struct {
	markers Markers
	tactics []Tactic
	overall time.Duration
	log     *slog.Logger

	state    State
	trail    []State
	attempts int
}

func NewResolver(m Markers, tactics []Tactic, overall time.Duration) *Resolver {
	return &Resolver{
		markers: m,
		tactics: tactics,
		overall: overall,
		log:     logging.New("gateway"),
		state:   Unknown,
	}
}

func FromConfig(g config.Gateway) *Resolver {
	m := Markers{Location: g.Markers.Location, Title: g.Markers.Title}
	return NewResolver(m, BuildTactics(g.Tactics), g.OverallTimeout)
}

func (r *Resolver) State() State { return r.state }

// Trail lists every state entered, in order.
func (r *Resolver) Trail() []State { return append([]State(nil), r.trail...) }

// Attempts is the number of tactics run by the last bypass.
func (r *Resolver) Attempts() int { return r.attempts }

func (r *Resolver) transition(to State) {
	if !canTransition(r.state, to) {
		r.log.Warn("ignored invalid transition", "from", r.state, "to", to)
		return
	}
	r.log.Debug("transition", "from", r.state, "to", to)
	r.state = to
	r.trail = append(r.trail, to)
}

func (r *Resolver) classify(ctx context.Context, s browser.Session) State {
	loc, err := s.Location(ctx)
	if err != nil {
		r.log.Debug("location unavailable", "err", err)
	}
	title, err := s.Title(ctx)
	if err != nil {
		r.log.Debug("title unavailable", "err", err)
	}
	return Classify(r.markers, loc, title)
}

// Resolve classifies the current page and, when blocked, runs the tactics in
// order until one clears the interstitial. Calling it again once Resolved is a no-op.
func (r *Resolver) Resolve(ctx context.Context, rc *runctx.RunContext, s browser.Session, target Target) State {
	if r.state == Resolved {
		return r.state
	}
	if r.state == Failed {
		r.transition(Unknown)
	}

	if r.classify(ctx, s) == Resolved {
		r.transition(Resolved)
		return r.state
	}

	r.transition(Blocked)
	rc.Progress("Consent page detected, trying %d bypass tactics", len(r.tactics))
	r.transition(BypassAttempt)

	octx, cancel := context.WithTimeout(ctx, r.overall)
	defer cancel()
	go stopOnCancel(octx, rc, cancel)

	r.attempts = 0
	for i, t := range r.tactics {
		if octx.Err() != nil || rc.Cancelled() {
			break
		}
		r.attempts++
		rc.Progress("Bypass tactic %d/%d: %s", i+1, len(r.tactics), t.Name())

		tctx, tcancel := context.WithTimeout(octx, t.Timeout())
		err := t.Attempt(tctx, s, target)
		tcancel()
		if err != nil {
			r.log.Debug("tactic failed", "tactic", t.Name(), "err", err)
		}

		if r.classify(ctx, s) == Resolved {
			r.transition(Resolved)
			rc.Progress("Consent page cleared by %s", t.Name())
			return r.state
		}
	}

	if rc.Cancelled() {
		rc.Progress("Consent bypass stopped: cancellation requested")
	} else if octx.Err() != nil && r.attempts < len(r.tactics) {
		rc.Progress("Consent bypass timed out after %s", r.overall)
	} else {
		rc.Progress("Consent bypass failed: all %d tactics exhausted", len(r.tactics))
	}
	r.transition(Failed)
	return r.state
}

// stopOnCancel aborts the running tactic once the job's cancel flag is set.
func stopOnCancel(ctx context.Context, rc *runctx.RunContext, cancel context.CancelFunc) {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if rc.Cancelled() {
				cancel()
				return
			}
		}
	}
}
