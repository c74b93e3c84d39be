package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/runctx"
	"mapsharvest-engine/internal/scrape/browser"
	"mapsharvest-engine/internal/scrape/browser/browsertest"
)

const (
	wallURL    = "https://consent.google.com/ml?continue=https://www.google.com/maps/search/pizza/"
	resultsURL = "https://www.google.com/maps/search/pizza/"
)

var testMarkers = Markers{
	Location: []string{"consent.google.com"},
	Title:    []string{"Voordat je verdergaat", "Before you continue"},
}

// stubTactic lands the fake on resultsURL when it succeeds.
type stubTactic struct {
	name    string
	succeed bool
	block   bool
	calls   int
}

func (s *stubTactic) Name() string           { return s.name }
func (s *stubTactic) Timeout() time.Duration { return time.Second }

func (s *stubTactic) Attempt(ctx context.Context, sess browser.Session, _ Target) error {
	s.calls++
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if !s.succeed {
		return errors.New("no luck")
	}
	sess.(*browsertest.Fake).Land(resultsURL)
	return nil
}

func blockedFake() *browsertest.Fake {
	f := browsertest.New()
	f.Pages[wallURL] = &browsertest.Page{Title: "Before you continue to Google Maps"}
	f.Pages[resultsURL] = &browsertest.Page{Title: "pizza - Google Maps"}
	f.Land(wallURL)
	return f
}

func newRC() *runctx.RunContext {
	return runctx.New("t", domain.SearchJob{Query: "pizza"}, nil, nil)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name, loc, title string
		want             State
	}{
		{"consent host", wallURL, "", Blocked},
		{"dutch title", "https://www.google.com/", "Voordat je verdergaat naar Google", Blocked},
		{"case insensitive", "https://www.google.com/", "BEFORE YOU CONTINUE", Blocked},
		{"results", resultsURL, "pizza - Google Maps", Resolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(testMarkers, tt.loc, tt.title); got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve_NotBlockedSkipsTactics(t *testing.T) {
	f := browsertest.New()
	f.Pages[resultsURL] = &browsertest.Page{Title: "pizza - Google Maps"}
	f.Land(resultsURL)

	tac := &stubTactic{name: "never", succeed: true}
	r := NewResolver(testMarkers, []Tactic{tac}, time.Second)

	if got := r.Resolve(context.Background(), newRC(), f, Target{}); got != Resolved {
		t.Fatalf("state = %v, want resolved", got)
	}
	if tac.calls != 0 {
		t.Errorf("tactic ran %d times, want 0", tac.calls)
	}
	if diff := cmp.Diff([]State{Resolved}, r.Trail()); diff != "" {
		t.Errorf("trail (-want +got):\n%s", diff)
	}
}

func TestResolve_StopsAtFirstSuccessfulTactic(t *testing.T) {
	for k := 1; k <= 4; k++ {
		f := blockedFake()
		var tactics []Tactic
		var stubs []*stubTactic
		for i := 1; i <= 4; i++ {
			s := &stubTactic{name: "t", succeed: i == k}
			stubs = append(stubs, s)
			tactics = append(tactics, s)
		}
		r := NewResolver(testMarkers, tactics, 5*time.Second)

		if got := r.Resolve(context.Background(), newRC(), f, Target{}); got != Resolved {
			t.Fatalf("k=%d: state = %v, want resolved", k, got)
		}
		if r.Attempts() != k {
			t.Errorf("k=%d: attempts = %d", k, r.Attempts())
		}
		for i, s := range stubs {
			want := 0
			if i < k {
				want = 1
			}
			if s.calls != want {
				t.Errorf("k=%d: tactic %d called %d times, want %d", k, i+1, s.calls, want)
			}
		}
		want := []State{Blocked, BypassAttempt, Resolved}
		if diff := cmp.Diff(want, r.Trail()); diff != "" {
			t.Errorf("k=%d: trail (-want +got):\n%s", k, diff)
		}
	}
}

func TestResolve_FailsWhenTacticsExhausted(t *testing.T) {
	f := blockedFake()
	a, b := &stubTactic{name: "a"}, &stubTactic{name: "b"}
	r := NewResolver(testMarkers, []Tactic{a, b}, 5*time.Second)

	if got := r.Resolve(context.Background(), newRC(), f, Target{}); got != Failed {
		t.Fatalf("state = %v, want failed", got)
	}
	if r.Attempts() != 2 || a.calls != 1 || b.calls != 1 {
		t.Errorf("attempts=%d a=%d b=%d", r.Attempts(), a.calls, b.calls)
	}
}

func TestResolve_FailsWhenOverallTimeoutElapses(t *testing.T) {
	f := blockedFake()
	slow := &stubTactic{name: "slow", block: true}
	never := &stubTactic{name: "never", succeed: true}
	r := NewResolver(testMarkers, []Tactic{slow, never}, 50*time.Millisecond)

	start := time.Now()
	got := r.Resolve(context.Background(), newRC(), f, Target{})
	if got != Failed {
		t.Fatalf("state = %v, want failed", got)
	}
	if never.calls != 0 {
		t.Error("tactic after the overall timeout should not run")
	}
	if el := time.Since(start); el > 900*time.Millisecond {
		t.Errorf("resolve took %v; overall timeout not honoured", el)
	}
}

func TestResolve_StopsOnCancel(t *testing.T) {
	t.Run("before first tactic", func(t *testing.T) {
		tac := &stubTactic{name: "never", succeed: true}
		rc := newRC()
		rc.Cancel()
		r := NewResolver(testMarkers, []Tactic{tac}, 10*time.Second)
		if got := r.Resolve(context.Background(), rc, blockedFake(), Target{}); got != Failed {
			t.Fatalf("state = %v, want failed", got)
		}
		if tac.calls != 0 || r.Attempts() != 0 {
			t.Errorf("calls=%d attempts=%d, want none", tac.calls, r.Attempts())
		}
	})

	t.Run("during a tactic", func(t *testing.T) {
		slow := &stubTactic{name: "slow", block: true}
		never := &stubTactic{name: "never", succeed: true}
		rc := newRC()
		r := NewResolver(testMarkers, []Tactic{slow, never}, 10*time.Second)

		time.AfterFunc(30*time.Millisecond, rc.Cancel)
		start := time.Now()
		if got := r.Resolve(context.Background(), rc, blockedFake(), Target{}); got != Failed {
			t.Fatalf("state = %v, want failed", got)
		}
		if el := time.Since(start); el > 700*time.Millisecond {
			t.Errorf("resolve took %v after cancel", el)
		}
		if never.calls != 0 {
			t.Error("tactic after cancellation should not run")
		}
	})
}

func TestResolve_IdempotentOnceResolved(t *testing.T) {
	f := blockedFake()
	tac := &stubTactic{name: "ok", succeed: true}
	r := NewResolver(testMarkers, []Tactic{tac}, time.Second)

	r.Resolve(context.Background(), newRC(), f, Target{})
	f.Land(wallURL)
	if got := r.Resolve(context.Background(), newRC(), f, Target{}); got != Resolved {
		t.Fatalf("second Resolve = %v", got)
	}
	if tac.calls != 1 {
		t.Errorf("tactic ran %d times, want 1", tac.calls)
	}
}

func TestResolve_RetryAfterFailure(t *testing.T) {
	f := blockedFake()
	tac := &stubTactic{name: "flaky"}
	r := NewResolver(testMarkers, []Tactic{tac}, time.Second)

	if r.Resolve(context.Background(), newRC(), f, Target{}) != Failed {
		t.Fatal("expected first attempt to fail")
	}
	tac.succeed = true
	if got := r.Resolve(context.Background(), newRC(), f, Target{}); got != Resolved {
		t.Fatalf("retry = %v, want resolved", got)
	}
}
