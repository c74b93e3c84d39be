package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/events"
	"mapsharvest-engine/internal/runctx"
	"mapsharvest-engine/internal/scrape"
)

// blockingRunner reports progress, then waits for release or cancellation.
type blockingRunner struct {
	started chan string
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan string, 4), release: make(chan struct{})}
}

func (b *blockingRunner) Run(ctx context.Context, rc *runctx.RunContext) scrape.Outcome {
	rc.Progress("Searching for %q", rc.Job.Query)
	b.started <- rc.JobID
	for !rc.Cancelled() {
		select {
		case <-b.release:
			rc.AddArtifact("out/pizza.csv")
			return scrape.Outcome{Status: domain.StatusCompleted, Records: make([]domain.BusinessRecord, 3)}
		case <-ctx.Done():
			return scrape.Outcome{Status: domain.StatusNoResults}
		case <-time.After(5 * time.Millisecond):
		}
	}
	return scrape.Outcome{Status: domain.StatusCompleted, Records: make([]domain.BusinessRecord, 1)}
}

func job(q string) domain.SearchJob {
	return domain.SearchJob{Query: q, OutputFormat: domain.FormatCSV}
}

func TestSubmit_RunsAndReportsStatus(t *testing.T) {
	r := newBlockingRunner()
	hub := events.NewHub()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	m := NewManager(r, hub, Options{})
	st, err := m.Submit(job("pizza"))
	if err != nil {
		t.Fatal(err)
	}
	if len(st.ID) != 8 || st.State != domain.StatusRunning {
		t.Fatalf("initial status = %+v", st)
	}
	<-r.started

	if _, err := m.Submit(job("sushi")); !errors.Is(err, ErrBusy) {
		t.Errorf("second submit err = %v, want ErrBusy", err)
	}

	close(r.release)
	m.Wait()

	got, err := m.Get(st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != domain.StatusCompleted || got.Records != 3 || got.FinishedAt == nil {
		t.Errorf("final status = %+v", got)
	}
	if len(got.Files) != 1 || len(got.Messages) == 0 || !strings.Contains(got.Messages[0], `Searching for "pizza"`) {
		t.Errorf("files=%v messages=%v", got.Files, got.Messages)
	}

	var sawProgress, sawDone bool
	for len(sub) > 0 {
		evt := <-sub
		sawProgress = sawProgress || strings.Contains(evt, `"type":"progress"`)
		sawDone = sawDone || strings.Contains(evt, `"status":"completed"`)
	}
	if !sawProgress || !sawDone {
		t.Errorf("events: progress=%v done=%v", sawProgress, sawDone)
	}

	// the slot frees up once the job ends
	if _, err := m.Submit(job("sushi")); err != nil {
		t.Errorf("submit after finish: %v", err)
	}
	m.Close()
}

func TestCancel_StopsActiveJob(t *testing.T) {
	r := newBlockingRunner()
	m := NewManager(r, events.NewHub(), Options{})
	st, err := m.Submit(job("pizza"))
	if err != nil {
		t.Fatal(err)
	}
	<-r.started

	if _, err := m.Cancel(""); err != nil {
		t.Fatal(err)
	}
	m.Wait()

	got, _ := m.Get(st.ID)
	if got.State != domain.StatusCompleted || got.Records != 1 {
		t.Errorf("status after cancel = %+v", got)
	}
	if _, err := m.Cancel("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cancel unknown err = %v", err)
	}
}

// sessionRunner mimics a harvest whose browser dies with the job context:
// a context cancellation surfaces as an error.
func sessionRunner(started chan<- struct{}) Runner {
	return runnerFunc(func(ctx context.Context, rc *runctx.RunContext) scrape.Outcome {
		close(started)
		for {
			if rc.Cancelled() {
				return scrape.Outcome{Status: domain.StatusCompleted, Records: make([]domain.BusinessRecord, 2)}
			}
			select {
			case <-ctx.Done():
				return scrape.Outcome{Status: domain.StatusError, Err: ctx.Err()}
			case <-time.After(5 * time.Millisecond):
			}
		}
	})
}

func TestClose_LetsJobFinishWithPartialRecords(t *testing.T) {
	started := make(chan struct{})
	m := NewManager(sessionRunner(started), events.NewHub(), Options{ShutdownGrace: 5 * time.Second})
	st, err := m.Submit(job("pizza"))
	if err != nil {
		t.Fatal(err)
	}
	<-started
	m.Close()

	got, _ := m.Get(st.ID)
	if got.State != domain.StatusCompleted || got.Records != 2 || got.Error != "" {
		t.Errorf("status after shutdown = %+v", got)
	}
}

func TestClose_AbortsJobAfterGrace(t *testing.T) {
	started := make(chan struct{})
	m := NewManager(runnerFunc(func(ctx context.Context, _ *runctx.RunContext) scrape.Outcome {
		close(started)
		<-ctx.Done()
		return scrape.Outcome{Status: domain.StatusNoResults}
	}), events.NewHub(), Options{ShutdownGrace: 20 * time.Millisecond})
	st, _ := m.Submit(job("pizza"))
	<-started

	finished := make(chan struct{})
	go func() {
		m.Close()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return after the grace period")
	}
	if got, _ := m.Get(st.ID); got.State != domain.StatusNoResults {
		t.Errorf("status = %+v", got)
	}
}

func TestMessages_LimitedToLastN(t *testing.T) {
	m := NewManager(runnerFunc(func(_ context.Context, rc *runctx.RunContext) scrape.Outcome {
		for i := 0; i < 30; i++ {
			rc.Progress("step %d", i)
		}
		return scrape.Outcome{Status: domain.StatusNoResults}
	}), events.NewHub(), Options{MessageLimit: 5})

	st, _ := m.Submit(job("pizza"))
	m.Wait()
	got, _ := m.Get(st.ID)
	if len(got.Messages) != 5 || !strings.HasSuffix(got.Messages[4], "step 29") {
		t.Errorf("messages = %v", got.Messages)
	}
}

type runnerFunc func(ctx context.Context, rc *runctx.RunContext) scrape.Outcome

func (f runnerFunc) Run(ctx context.Context, rc *runctx.RunContext) scrape.Outcome { return f(ctx, rc) }

func TestRunnerPanicBecomesError(t *testing.T) {
	m := NewManager(runnerFunc(func(context.Context, *runctx.RunContext) scrape.Outcome {
		panic("boom")
	}), events.NewHub(), Options{})
	st, _ := m.Submit(job("pizza"))
	m.Wait()
	got, _ := m.Get(st.ID)
	if got.State != domain.StatusError || !strings.Contains(got.Error, "boom") {
		t.Errorf("status = %+v", got)
	}
}

func TestFileLockBlocksSecondManager(t *testing.T) {
	lock := filepath.Join(t.TempDir(), "engine.lock")
	r := newBlockingRunner()
	a := NewManager(r, events.NewHub(), Options{LockPath: lock})
	b := NewManager(newBlockingRunner(), events.NewHub(), Options{LockPath: lock})

	if _, err := a.Submit(job("pizza")); err != nil {
		t.Fatal(err)
	}
	<-r.started
	if _, err := b.Submit(job("sushi")); !errors.Is(err, ErrBusy) {
		t.Errorf("other process submit err = %v, want ErrBusy", err)
	}
	close(r.release)
	a.Wait()
	if _, err := b.Submit(job("sushi")); err != nil {
		t.Errorf("submit after release: %v", err)
	}
	b.Close()
}

func TestPruneAndList(t *testing.T) {
	m := NewManager(runnerFunc(func(context.Context, *runctx.RunContext) scrape.Outcome {
		return scrape.Outcome{Status: domain.StatusNoResults}
	}), events.NewHub(), Options{})
	first, _ := m.Submit(job("a"))
	m.Wait()
	time.Sleep(2 * time.Millisecond)
	second, _ := m.Submit(job("b"))
	m.Wait()

	list := m.List()
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("list order = %v", list)
	}
	if cur, ok := m.Current(); !ok || cur.ID != second.ID {
		t.Errorf("current = %+v", cur)
	}
	if n := m.Prune(time.Hour); n != 0 {
		t.Errorf("pruned fresh jobs: %d", n)
	}
	if n := m.Prune(-time.Second); n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}
}
