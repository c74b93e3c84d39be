package gateway

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"mapsharvest-engine/internal/config"
	"mapsharvest-engine/internal/logging"
	"mapsharvest-engine/internal/scrape/browser"
	"mapsharvest-engine/internal/scrape/util"
)

var ErrNoControl = errors.New("no acknowledgement control could be activated")

const visiblePoll = 250 * time.Millisecond

// AlternateAddress navigates to a variant of the target address.
// Template placeholders: {query} (escaped query) and {target} (the original address).
type AlternateAddress struct {
	name     string
	template string
	timeout  time.Duration
	settle   time.Duration
}

func NewAlternateAddress(name, template string, timeout, settle time.Duration) *AlternateAddress {
	if name == "" {
		name = "alternate:" + template
	}
	return &AlternateAddress{name: name, template: template, timeout: timeout, settle: settle}
}

func (a *AlternateAddress) Name() string           { return a.name }
func (a *AlternateAddress) Timeout() time.Duration { return a.timeout }

func (a *AlternateAddress) Attempt(ctx context.Context, s browser.Session, t Target) error {
	addr := Expand(a.template, t)
	if err := s.Open(ctx, addr); err != nil {
		return err
	}
	return util.Sleep(ctx, a.settle)
}

func Expand(template string, t Target) string {
	r := strings.NewReplacer(
		"{query}", url.QueryEscape(t.Query),
		"{target}", t.Address,
	)
	return r.Replace(template)
}

// AcknowledgeControl looks for a displayed consent button and clicks it,
// escalating through the activation methods.
type AcknowledgeControl struct {
	name     string
	locators []browser.Locator
	timeout  time.Duration
	settle   time.Duration
	wait     time.Duration
}

func NewAcknowledgeControl(name string, locators []browser.Locator, timeout, settle, wait time.Duration) *AcknowledgeControl {
	if name == "" {
		name = "acknowledge"
	}
	return &AcknowledgeControl{name: name, locators: locators, timeout: timeout, settle: settle, wait: wait}
}

func (a *AcknowledgeControl) Name() string           { return a.name }
func (a *AcknowledgeControl) Timeout() time.Duration { return a.timeout }

func (a *AcknowledgeControl) Attempt(ctx context.Context, s browser.Session, _ Target) error {
	for _, loc := range a.locators {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !waitVisible(ctx, s, loc, a.wait) {
			continue
		}
		for _, how := range browser.Activations {
			if err := s.Activate(ctx, loc, how); err != nil {
				continue
			}
			return util.Sleep(ctx, a.settle)
		}
	}
	return ErrNoControl
}

func waitVisible(ctx context.Context, s browser.Session, loc browser.Locator, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for {
		ok, err := s.Visible(ctx, loc)
		if err == nil && ok {
			return true
		}
		left := time.Until(deadline)
		if left <= 0 {
			return false
		}
		if util.Sleep(ctx, min(left, visiblePoll)) != nil {
			return false
		}
	}
}

// BuildTactics turns the configured tactic table into tactics, in order.
func BuildTactics(specs []config.TacticSpec) []Tactic {
	var out []Tactic
	for _, sp := range specs {
		switch sp.Kind {
		case "alternate_address":
			out = append(out, NewAlternateAddress(sp.Name, sp.Template, sp.Timeout, sp.Settle))
		case "acknowledge":
			locs := make([]browser.Locator, 0, len(sp.Locators))
			for _, l := range sp.Locators {
				locs = append(locs, browser.Locator{By: l.By, Expr: l.Expr})
			}
			out = append(out, NewAcknowledgeControl(sp.Name, locs, sp.Timeout, sp.Settle, sp.LocatorWait))
		default:
			logging.New("gateway").Warn("skipping unknown tactic", "kind", sp.Kind, "name", sp.Name)
		}
	}
	return out
}
