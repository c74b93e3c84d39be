package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mapsharvest-engine/internal/config"
	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/runctx"
	"mapsharvest-engine/internal/scrape/browser"
	"mapsharvest-engine/internal/scrape/browser/browsertest"
	"mapsharvest-engine/internal/scrape/gateway"
	"mapsharvest-engine/internal/scrape/harvest"
	"mapsharvest-engine/internal/sink"
)

const (
	query     = "pizza in amsterdam"
	searchURL = "https://www.google.com/maps/search/pizza+in+amsterdam/"
	detail    = `<html><body><div role="main"><h1 class="DUwDvf">A Place</h1></div></body></html>`
)

func placeURL(i int) string {
	return fmt.Sprintf("https://www.google.com/maps/place/Place+%d/data=!4m2", i)
}

func feed(n int, extra string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div role="main"><div role="feed">`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<div class="Nv2PK"><a class="hfpxzc" href="%s"></a></div>`, placeURL(i))
	}
	b.WriteString(`</div>` + extra + `</div></body></html>`)
	return b.String()
}

const endMarker = `<span class="HlvSq">You've reached the end of the list.</span>`

func testConfig() config.Config {
	c := config.Default()
	c.Harvest.ContainerWait = 50 * time.Millisecond
	c.Harvest.PollInterval = 5 * time.Millisecond
	c.Harvest.ScrollSettle = 0
	c.Harvest.AggressiveSettle = 0
	c.Extract.Settle = 0
	for i := range c.Gateway.Tactics {
		c.Gateway.Tactics[i].Settle = 0
		c.Gateway.Tactics[i].LocatorWait = 10 * time.Millisecond
	}
	c.Gateway.OverallTimeout = 5 * time.Second
	return c
}

// recorder counts deliveries and keeps the last one.
type recorder struct {
	mu    sync.Mutex
	calls int
	last  sink.Result
}

func (r *recorder) Deliver(_ context.Context, _ *runctx.RunContext, res sink.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = res
	return nil
}

func newPipeline(t *testing.T, factory browser.Factory, out sink.Sink) *Pipeline {
	t.Helper()
	p, err := New(testConfig(), factory, nil, out)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func newRC(cancel bool) *runctx.RunContext {
	rc := runctx.New("ab12cd34", domain.SearchJob{Query: query, OutputFormat: domain.FormatCSV, Headless: true}, nil, nil)
	if cancel {
		rc.Cancel()
	}
	return rc
}

func TestFormatQuery(t *testing.T) {
	hints := config.Default().Search.LocationHints
	cases := map[string]string{
		"  pizza   amsterdam ": "pizza amsterdam near me",
		"pizza in amsterdam":   "pizza in amsterdam",
		"Dining Hall":          "Dining Hall near me",
		"coffee close to me":   "coffee close to me",
		"مطعم في الدوحة":       "مطعم في الدوحة",
	}
	for in, want := range cases {
		if got := FormatQuery(in, " near me", hints); got != want {
			t.Errorf("FormatQuery(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSearchAddress(t *testing.T) {
	got := SearchAddress("https://www.google.com/maps/search/{query}/", "café & bar near me")
	if want := "https://www.google.com/maps/search/caf%C3%A9+%26+bar+near+me/"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRun_ZeroCandidatesIsNoResults(t *testing.T) {
	f := browsertest.New()
	f.Pages[searchURL] = &browsertest.Page{HTML: `<html><body><div class="section-no-results">No results</div></body></html>`}
	rec := &recorder{}

	out := newPipeline(t, f.Factory(), rec).Run(context.Background(), newRC(false))

	if out.Status != domain.StatusNoResults || out.Err != nil {
		t.Fatalf("status=%s err=%v", out.Status, out.Err)
	}
	if rec.calls != 1 || len(rec.last.Records) != 0 || rec.last.Status != domain.StatusNoResults {
		t.Errorf("sink calls=%d result=%+v", rec.calls, rec.last)
	}
	if f.Teardowns != 1 {
		t.Errorf("teardowns = %d", f.Teardowns)
	}
}

func TestRun_RedirectToSinglePlace(t *testing.T) {
	f := browsertest.New()
	f.Pages[searchURL] = &browsertest.Page{Redirect: placeURL(7)}
	f.Fallback = &browsertest.Page{HTML: detail}
	rec := &recorder{}

	out := newPipeline(t, f.Factory(), rec).Run(context.Background(), newRC(false))

	if out.Status != domain.StatusCompleted || len(out.Records) != 1 {
		t.Fatalf("status=%s records=%d", out.Status, len(out.Records))
	}
	if out.Stop != harvest.StopRedirect || len(f.ScrollCalls) != 0 {
		t.Errorf("stop=%s scrolls=%v", out.Stop, f.ScrollCalls)
	}
	if got := *out.Records[0].SourceAddress; got != placeURL(7) {
		t.Errorf("source = %s", got)
	}
	if rec.calls != 1 || len(rec.last.Records) != 1 {
		t.Errorf("sink calls=%d records=%d", rec.calls, len(rec.last.Records))
	}
}

func TestRun_CancelMidExtraction(t *testing.T) {
	const total, done = 6, 2
	f := browsertest.New()
	f.Pages[searchURL] = &browsertest.Page{HTML: feed(total, endMarker)}
	f.Fallback = &browsertest.Page{HTML: detail}
	rc := newRC(false)
	f.OnOpen = func(string) {
		// the first open is the search page
		if len(f.Opened) == 1+done {
			rc.Cancel()
		}
	}
	rec := &recorder{}

	out := newPipeline(t, f.Factory(), rec).Run(context.Background(), rc)

	if len(out.Records) != done {
		t.Errorf("records = %d, want %d", len(out.Records), done)
	}
	if out.Status != domain.StatusCompleted {
		t.Errorf("status = %s", out.Status)
	}
	if rec.calls != 1 || len(rec.last.Records) != done {
		t.Errorf("sink calls=%d records=%d", rec.calls, len(rec.last.Records))
	}
}

func TestRun_ConsentResolvedByAlternateAddress(t *testing.T) {
	const consent = "https://consent.google.com/ml?continue=maps"
	f := browsertest.New()
	f.Pages[searchURL] = &browsertest.Page{Redirect: consent}
	f.Pages[consent] = &browsertest.Page{Title: "Before you continue to Google Maps"}
	f.Pages["https://maps.google.com/maps/search/pizza+in+amsterdam/"] = &browsertest.Page{HTML: feed(2, endMarker)}
	f.Fallback = &browsertest.Page{HTML: detail}
	rec := &recorder{}

	out := newPipeline(t, f.Factory(), rec).Run(context.Background(), newRC(false))

	if out.Gateway != gateway.Resolved {
		t.Fatalf("gateway = %s", out.Gateway)
	}
	if out.Status != domain.StatusCompleted || len(out.Records) != 2 {
		t.Errorf("status=%s records=%d", out.Status, len(out.Records))
	}
	want := []string{searchURL, "https://maps.google.com/maps/search/pizza+in+amsterdam/", placeURL(0), placeURL(1)}
	if diff := cmp.Diff(want, f.Opened); diff != "" {
		t.Errorf("opened (-want +got):\n%s", diff)
	}
}

func TestRun_ConsentNeverClearsIsNoResults(t *testing.T) {
	const consent = "https://consent.google.com/ml"
	f := browsertest.New()
	f.Fallback = &browsertest.Page{Redirect: consent}
	f.Pages[consent] = &browsertest.Page{Title: "Before you continue"}
	rec := &recorder{}

	out := newPipeline(t, f.Factory(), rec).Run(context.Background(), newRC(false))

	if out.Gateway != gateway.Failed || out.Status != domain.StatusNoResults || out.Err != nil {
		t.Errorf("gateway=%s status=%s err=%v", out.Gateway, out.Status, out.Err)
	}
	if rec.calls != 1 {
		t.Errorf("sink calls = %d", rec.calls)
	}
}

func TestRun_SessionInitFailure(t *testing.T) {
	rec := &recorder{}
	factory := func(context.Context, bool) (browser.Session, error) { return nil, errors.New("chrome not found") }

	out := newPipeline(t, factory, rec).Run(context.Background(), newRC(false))

	if out.Status != domain.StatusError || !errors.Is(out.Err, browser.ErrSessionInit) {
		t.Errorf("status=%s err=%v", out.Status, out.Err)
	}
	if rec.calls != 1 || rec.last.Status != domain.StatusError {
		t.Errorf("sink calls=%d status=%s", rec.calls, rec.last.Status)
	}
}

func TestRun_SessionLostKeepsPartialRecords(t *testing.T) {
	f := browsertest.New()
	f.Pages[searchURL] = &browsertest.Page{HTML: feed(4, endMarker)}
	f.Fallback = &browsertest.Page{HTML: detail}
	f.OnOpen = func(string) {
		if len(f.Opened) == 3 {
			f.Lost = true
		}
	}
	rec := &recorder{}

	out := newPipeline(t, f.Factory(), rec).Run(context.Background(), newRC(false))

	if out.Status != domain.StatusError || !errors.Is(out.Err, browser.ErrSessionLost) {
		t.Fatalf("status=%s err=%v", out.Status, out.Err)
	}
	if len(out.Records) != 1 || len(rec.last.Records) != 1 || rec.calls != 1 {
		t.Errorf("records=%d delivered=%d calls=%d", len(out.Records), len(rec.last.Records), rec.calls)
	}
	if f.Teardowns != 1 {
		t.Errorf("teardowns = %d", f.Teardowns)
	}
}

// panicky blows up the first time anyone reads the title.
type panicky struct{ *browsertest.Fake }

func (panicky) Title(context.Context) (string, error) { panic("renderer crashed") }

func TestRun_PanicStillDeliversAndTearsDown(t *testing.T) {
	f := browsertest.New()
	factory := func(context.Context, bool) (browser.Session, error) { return panicky{f}, nil }
	rec := &recorder{}

	out := newPipeline(t, factory, rec).Run(context.Background(), newRC(false))

	if out.Status != domain.StatusError || !errors.Is(out.Err, ErrPanic) {
		t.Errorf("status=%s err=%v", out.Status, out.Err)
	}
	if rec.calls != 1 || f.Teardowns != 1 {
		t.Errorf("sink calls=%d teardowns=%d", rec.calls, f.Teardowns)
	}
}

func TestRun_CancelledBeforeStartDeliversEmpty(t *testing.T) {
	f := browsertest.New()
	f.Pages[searchURL] = &browsertest.Page{HTML: feed(3, "")}
	rec := &recorder{}

	out := newPipeline(t, f.Factory(), rec).Run(context.Background(), newRC(true))

	if out.Status != domain.StatusNoResults || rec.calls != 1 {
		t.Errorf("status=%s calls=%d", out.Status, rec.calls)
	}
}
