package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mapsharvest-engine/internal/config"
	"mapsharvest-engine/internal/scrape/browser"
	"mapsharvest-engine/internal/scrape/browser/browsertest"
)

func TestExpand(t *testing.T) {
	tg := Target{Query: "coffee in Doha", Address: resultsURL}
	if got := Expand("https://maps.google.com/maps/search/{query}/?hl=en", tg); got != "https://maps.google.com/maps/search/coffee+in+Doha/?hl=en" {
		t.Errorf("Expand query = %s", got)
	}
	if got := Expand("{target}", tg); got != resultsURL {
		t.Errorf("Expand target = %s", got)
	}
}

func TestAlternateAddress_OpensVariant(t *testing.T) {
	f := blockedFake()
	alt := "https://maps.google.com/maps/search/pizza/"
	f.Pages[alt] = &browsertest.Page{Title: "pizza - Google Maps"}

	r := NewResolver(testMarkers, []Tactic{
		NewAlternateAddress("maps-host", "https://maps.google.com/maps/search/{query}/", time.Second, 0),
	}, time.Second)

	if got := r.Resolve(context.Background(), newRC(), f, Target{Query: "pizza"}); got != Resolved {
		t.Fatalf("state = %v", got)
	}
	if diff := cmp.Diff([]string{alt}, f.Opened); diff != "" {
		t.Errorf("opened (-want +got):\n%s", diff)
	}
}

func TestAcknowledgeControl_EscalatesActivation(t *testing.T) {
	f := blockedFake()
	btn := browser.Locator{By: "xpath", Expr: "//button[contains(., 'Accept all')]"}
	f.VisibleExprs[btn.Expr] = true
	f.ActivateFunc = func(f *browsertest.Fake, loc browser.Locator, how browser.Activation) error {
		if how != browser.ActivateSynthetic {
			return errors.New("intercepted")
		}
		f.Land(resultsURL)
		return nil
	}

	hidden := browser.Locator{By: "css", Expr: "button[aria-label*='Accept']"}
	ack := NewAcknowledgeControl("accept", []browser.Locator{hidden, btn}, time.Second, 0, 10*time.Millisecond)
	r := NewResolver(testMarkers, []Tactic{ack}, 2*time.Second)

	if got := r.Resolve(context.Background(), newRC(), f, Target{}); got != Resolved {
		t.Fatalf("state = %v", got)
	}
	want := []browsertest.ActivationCall{
		{Locator: btn, How: browser.ActivateDirect},
		{Locator: btn, How: browser.ActivateScripted},
		{Locator: btn, How: browser.ActivateSynthetic},
	}
	if diff := cmp.Diff(want, f.Activations); diff != "" {
		t.Errorf("activations (-want +got):\n%s", diff)
	}
}

func TestAcknowledgeControl_NoControl(t *testing.T) {
	f := blockedFake()
	ack := NewAcknowledgeControl("", []browser.Locator{{By: "css", Expr: "#missing"}}, time.Second, 0, 10*time.Millisecond)
	if err := ack.Attempt(context.Background(), f, Target{}); !errors.Is(err, ErrNoControl) {
		t.Errorf("err = %v, want ErrNoControl", err)
	}
}

func TestBuildTactics_FromDefaults(t *testing.T) {
	g := config.DefaultGateway()
	tactics := BuildTactics(g.Tactics)
	if len(tactics) != len(g.Tactics) {
		t.Fatalf("built %d tactics from %d specs", len(tactics), len(g.Tactics))
	}
	if _, ok := tactics[6].(*AcknowledgeControl); !ok {
		t.Errorf("tactic 7 is %T, want *AcknowledgeControl", tactics[6])
	}
	if tactics[0].Name() != "maps-host" {
		t.Errorf("first tactic = %s", tactics[0].Name())
	}
}
