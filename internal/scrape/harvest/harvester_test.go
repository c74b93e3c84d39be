package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mapsharvest-engine/internal/config"
	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/runctx"
	"mapsharvest-engine/internal/scrape/browser/browsertest"
	"mapsharvest-engine/internal/scrape/gateway"
)

const searchURL = "https://www.google.com/maps/search/pizza/"

func placeURL(i int) string {
	return fmt.Sprintf("https://www.google.com/maps/place/Place+%d/data=!4m2", i)
}

// feed renders result cards from..to-1 inside the scrollable list, plus extra markup after it.
func feed(from, to int, extra string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div role="main"><div role="feed">`)
	for i := from; i < to; i++ {
		fmt.Fprintf(&b, `<div class="Nv2PK"><a class="hfpxzc" href="%s"></a></div>`, placeURL(i))
	}
	b.WriteString(`</div>`)
	b.WriteString(extra)
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func testConfig() config.Harvest {
	c := config.DefaultHarvest()
	c.ContainerWait = 30 * time.Millisecond
	c.PollInterval = 5 * time.Millisecond
	c.ScrollSettle = 0
	c.AggressiveSettle = 0
	c.MaxIterations = 100
	return c
}

func run(t *testing.T, cfg config.Harvest, f *browsertest.Fake, gw gateway.State) (Result, *browsertest.Fake) {
	t.Helper()
	h, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	rc := runctx.New("t", domain.SearchJob{Query: "pizza"}, nil, nil)
	res, err := h.Harvest(context.Background(), rc, f, gw)
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	return res, f
}

func fakeAt(p *browsertest.Page) *browsertest.Fake {
	f := browsertest.New()
	f.Pages[searchURL] = p
	f.Land(searchURL)
	return f
}

func TestTolerance(t *testing.T) {
	tiers := []config.Tier{{Below: 5, Tolerance: 15}, {Below: 20, Tolerance: 8}}
	for count, want := range map[int]int{0: 15, 4: 15, 5: 8, 19: 8, 20: 4, 200: 4} {
		if got := Tolerance(tiers, 4, count); got != want {
			t.Errorf("Tolerance(%d) = %d, want %d", count, got, want)
		}
	}
}

func TestHarvest_SparseListToleratesMoreStalls(t *testing.T) {
	cfg := testConfig()

	sparse, _ := run(t, cfg, fakeAt(&browsertest.Page{HTML: feed(0, 3, "")}), gateway.Resolved)
	dense, _ := run(t, cfg, fakeAt(&browsertest.Page{HTML: feed(0, 30, "")}), gateway.Resolved)

	if sparse.Stop != StopStalled || dense.Stop != StopStalled {
		t.Fatalf("stops = %s / %s, want stalled", sparse.Stop, dense.Stop)
	}
	// one productive pass, then stalls until the tier tolerance is exceeded
	if sparse.Iterations != 1+15+1 {
		t.Errorf("sparse iterations = %d, want 17", sparse.Iterations)
	}
	if dense.Iterations != 1+4+1 {
		t.Errorf("dense iterations = %d, want 6", dense.Iterations)
	}
	if sparse.Set.Len() != 3 || dense.Set.Len() != 30 {
		t.Errorf("set sizes = %d / %d", sparse.Set.Len(), dense.Set.Len())
	}
}

func TestHarvest_StopsAtEndMarker(t *testing.T) {
	cfg := testConfig()
	page := &browsertest.Page{Grow: func(scrolls int) string {
		extra := ""
		if scrolls >= 2 {
			extra = `<span class="HlvSq">You’ve reached the end of the list.</span>`
		}
		return feed(0, 5*(scrolls+1), extra)
	}}
	res, f := run(t, cfg, fakeAt(page), gateway.Resolved)

	if res.Stop != StopEndMarker {
		t.Fatalf("stop = %s, want end_marker", res.Stop)
	}
	if res.Iterations != 3 || res.Set.Len() != 15 {
		t.Errorf("iterations=%d len=%d, want 3 and 15", res.Iterations, res.Set.Len())
	}
	if f.Scrolls() != 2 {
		t.Errorf("scrolls = %d, want 2", f.Scrolls())
	}
}

func TestHarvest_EndTextWithoutSelector(t *testing.T) {
	cfg := testConfig()
	cfg.EndSelectors = nil
	page := &browsertest.Page{HTML: feed(0, 8, `<p>You've reached the end of the list.</p>`)}
	res, _ := run(t, cfg, fakeAt(page), gateway.Resolved)
	if res.Stop != StopEndMarker || res.Iterations != 1 {
		t.Errorf("stop=%s iterations=%d", res.Stop, res.Iterations)
	}
}

func TestHarvest_ReportsCountWhenSnapshotFails(t *testing.T) {
	f := fakeAt(&browsertest.Page{HTML: feed(0, 30, "")})
	// the container lookup succeeds, the first snapshot does not
	f.HTMLErrs = []error{nil, errors.New("render timeout")}

	h, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	var found []string
	rc := runctx.New("t", domain.SearchJob{Query: "pizza"}, runctx.MessageFunc(func(line string) {
		if strings.HasPrefix(line, "Found ") {
			found = append(found, line)
		}
	}), nil)
	res, err := h.Harvest(context.Background(), rc, f, gateway.Resolved)
	if err != nil {
		t.Fatal(err)
	}

	if res.Stop != StopStalled || res.Set.Len() != 30 {
		t.Fatalf("stop=%s len=%d", res.Stop, res.Set.Len())
	}
	// one failed pass, one productive pass, then four tolerated stalls and the one that ends it
	if len(found) != 7 || res.Iterations != 6 {
		t.Fatalf("progress lines=%d iterations=%d, want 7 and 6: %v", len(found), res.Iterations, found)
	}
	if found[0] != "Found 0 results" || found[6] != "Found 30 results" {
		t.Errorf("progress = %v", found)
	}
}

func TestHarvest_IterationCapWins(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 5
	page := &browsertest.Page{Grow: func(scrolls int) string { return feed(0, 10*(scrolls+1), "") }}
	res, _ := run(t, cfg, fakeAt(page), gateway.Resolved)

	if res.Stop != StopCapped || res.Iterations != 5 {
		t.Errorf("stop=%s iterations=%d, want iteration_cap after 5", res.Stop, res.Iterations)
	}
}

func TestHarvest_VirtualizedListKeepsOrderWithoutDuplicates(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 6
	// only a window of cards is in the DOM at any time
	page := &browsertest.Page{Grow: func(scrolls int) string { return feed(scrolls*3, scrolls*3+5, "") }}
	res, _ := run(t, cfg, fakeAt(page), gateway.Resolved)

	// six windows, plus the window the final sweep sees after the last scroll
	var want []domain.CandidateIdentifier
	for i := 0; i < 6*3+5; i++ {
		want = append(want, domain.CandidateIdentifier(placeURL(i)))
	}
	if diff := cmp.Diff(want, res.Set.Items()); diff != "" {
		t.Errorf("items (-want +got):\n%s", diff)
	}
}

func TestHarvest_RedirectShortCircuits(t *testing.T) {
	f := browsertest.New()
	place := placeURL(42)
	f.Pages[place] = &browsertest.Page{HTML: `<html><body><h1>Place 42</h1></body></html>`}
	f.Land(place)

	res, _ := run(t, testConfig(), f, gateway.Resolved)
	if res.Stop != StopRedirect || res.Set.Len() != 1 {
		t.Fatalf("stop=%s len=%d", res.Stop, res.Set.Len())
	}
	if f.Scrolls() != 0 || res.Iterations != 0 {
		t.Errorf("scroll loop ran: scrolls=%d iterations=%d", f.Scrolls(), res.Iterations)
	}
}

func TestHarvest_RedirectStillWorksWhenGatewayFailed(t *testing.T) {
	f := browsertest.New()
	f.Land(placeURL(1))
	res, _ := run(t, testConfig(), f, gateway.Failed)
	if res.Stop != StopRedirect || res.Set.Len() != 1 {
		t.Errorf("stop=%s len=%d", res.Stop, res.Set.Len())
	}
}

func TestHarvest_GatewayFailedGivesNoResults(t *testing.T) {
	res, f := run(t, testConfig(), fakeAt(&browsertest.Page{HTML: feed(0, 3, "")}), gateway.Failed)
	if res.Stop != StopGatewayFailed || res.Set.Len() != 0 || f.Scrolls() != 0 {
		t.Errorf("stop=%s len=%d scrolls=%d", res.Stop, res.Set.Len(), f.Scrolls())
	}
}

func TestHarvest_NoContainer(t *testing.T) {
	res, _ := run(t, testConfig(), fakeAt(&browsertest.Page{HTML: `<html><body><p>nothing</p></body></html>`}), gateway.Resolved)
	if res.Stop != StopNoResults || res.Set.Len() != 0 {
		t.Errorf("stop=%s len=%d", res.Stop, res.Set.Len())
	}
}

func TestHarvest_NoResultsMarkerEndsWaitEarly(t *testing.T) {
	cfg := testConfig()
	cfg.ContainerWait = 5 * time.Second
	start := time.Now()
	res, _ := run(t, cfg, fakeAt(&browsertest.Page{HTML: `<html><body><div class="section-no-results"></div></body></html>`}), gateway.Resolved)
	if res.Stop != StopNoResults {
		t.Errorf("stop = %s", res.Stop)
	}
	if time.Since(start) > time.Second {
		t.Error("no-results marker did not cut the wait short")
	}
}

func TestHarvest_CancelledBeforeLoop(t *testing.T) {
	h, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	rc := runctx.New("t", domain.SearchJob{}, nil, nil)
	rc.Cancel()
	res, err := h.Harvest(context.Background(), rc, fakeAt(&browsertest.Page{HTML: feed(0, 3, "")}), gateway.Resolved)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stop != StopCancelled || res.Set.Len() != 0 {
		t.Errorf("stop=%s len=%d", res.Stop, res.Set.Len())
	}
}

func TestHarvest_AggressiveScrollWhenStuckAndSmall(t *testing.T) {
	cfg := testConfig()
	cfg.StuckAfter = 2
	cfg.AggressiveSteps = 3
	cfg.Tiers = []config.Tier{{Below: 5, Tolerance: 3}}
	res, f := run(t, cfg, fakeAt(&browsertest.Page{HTML: feed(0, 2, "")}), gateway.Resolved)
	if res.Stop != StopStalled {
		t.Fatalf("stop = %s", res.Stop)
	}
	// iter1 normal, stall1 normal, stall2 aggressive x3, stall3 aggressive x3, stall4 stops
	want := []int{cfg.ScrollStep, cfg.ScrollStep, 0, 0, 0, 0, 0, 0}
	if diff := cmp.Diff(want, f.ScrollCalls); diff != "" {
		t.Errorf("scroll calls (-want +got):\n%s", diff)
	}
}

func TestHarvest_FinalSweepFindsStragglers(t *testing.T) {
	outside := `<a href="/maps/place/Straggler/data=!4m2">x</a><span class="HlvSq">end</span>`
	res, _ := run(t, testConfig(), fakeAt(&browsertest.Page{HTML: feed(0, 2, outside)}), gateway.Resolved)

	if res.Set.Len() != 3 {
		t.Fatalf("len = %d, want 3", res.Set.Len())
	}
	if got := res.Set.Items()[2]; got != "https://www.google.com/maps/place/Straggler/data=%214m2" && got != "https://www.google.com/maps/place/Straggler/data=!4m2" {
		t.Errorf("straggler = %s", got)
	}
}
