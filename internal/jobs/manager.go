// Package jobs runs one harvest at a time in the background and keeps the
// status other callers poll.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/events"
	"mapsharvest-engine/internal/logging"
	"mapsharvest-engine/internal/runctx"
	"mapsharvest-engine/internal/scrape"
)

var (
	ErrBusy     = errors.New("a harvest is already running")
	ErrNotFound = errors.New("job not found")
)

// Runner executes one job; *scrape.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, rc *runctx.RunContext) scrape.Outcome
}

// Status is the externally visible state of one job.
type Status struct {
	ID           string              `json:"job_id"`
	Query        string              `json:"query"`
	OutputFormat domain.OutputFormat `json:"output_format"`
	State        domain.Status       `json:"status"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
	Records      int                 `json:"records"`
	Files        []string            `json:"files"`
	Gateway      string              `json:"gateway,omitempty"`
	Stop         string              `json:"stop_reason,omitempty"`
	Error        string              `json:"error,omitempty"`
	Messages     []string            `json:"messages"`
}

type Options struct {
	// LockPath guards against a second engine process harvesting at the same time.
	LockPath     string
	MessageLimit int
	// ShutdownGrace bounds how long Close waits for jobs to honour the
	// cancel flag before their contexts are cancelled.
	ShutdownGrace time.Duration
}

type entry struct {
	status Status
	cancel *atomic.Bool
	stop   context.CancelFunc
	msgs   *runctx.MessageLog
}

type Manager struct {
	runner Runner
	hub    *events.Hub
	opts   Options
	log    *slog.Logger

	base     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*entry
	active string
	lock   *flock.Flock
}

func NewManager(runner Runner, hub *events.Hub, opts Options) *Manager {
	if opts.MessageLimit <= 0 {
		opts.MessageLimit = 20
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 30 * time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		runner:   runner,
		hub:      hub,
		opts:     opts,
		log:      logging.New("jobs"),
		base:     base,
		shutdown: cancel,
		jobs:     map[string]*entry{},
	}
	if opts.LockPath != "" {
		m.lock = flock.New(opts.LockPath)
	}
	return m
}

// Submit starts job in the background and returns its initial status.
func (m *Manager) Submit(job domain.SearchJob) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != "" {
		return Status{}, ErrBusy
	}
	if m.lock != nil {
		ok, err := m.lock.TryLock()
		if err != nil {
			return Status{}, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			return Status{}, ErrBusy
		}
	}

	id := uuid.NewString()[:8]
	e := &entry{cancel: new(atomic.Bool)}
	e.msgs = runctx.NewMessageLog(func(line string) {
		m.hub.PublishJob(id, events.TypeProgress, map[string]string{"message": line})
	})
	e.status = Status{
		ID:           id,
		Query:        job.Query,
		OutputFormat: job.OutputFormat,
		State:        domain.StatusRunning,
		StartedAt:    time.Now(),
		Files:        []string{},
	}

	ctx, stop := context.WithCancel(m.base)
	e.stop = stop
	rc := runctx.New(id, job, e.msgs, e.cancel)

	m.jobs[id] = e
	m.active = id
	st := m.snapshot(e)
	m.publishStatus(st)

	m.wg.Add(1)
	go m.run(ctx, rc, e)

	m.log.Info("job submitted", "job_id", id, "query", job.Query, "format", job.OutputFormat)
	return st, nil
}

func (m *Manager) run(ctx context.Context, rc *runctx.RunContext, e *entry) {
	defer m.wg.Done()
	defer e.stop()

	out := m.safeRun(ctx, rc)
	now := time.Now()

	m.mu.Lock()
	e.status.State = out.Status
	e.status.FinishedAt = &now
	e.status.Records = len(out.Records)
	e.status.Files = rc.Artifacts()
	e.status.Gateway = out.Gateway.String()
	e.status.Stop = string(out.Stop)
	if out.Err != nil {
		e.status.Error = out.Err.Error()
	}
	if m.active == e.status.ID {
		m.active = ""
	}
	if m.lock != nil {
		if err := m.lock.Unlock(); err != nil {
			m.log.Warn("release run lock", "err", err)
		}
	}
	st := m.snapshot(e)
	m.mu.Unlock()

	m.publishStatus(st)
	m.log.Info("job finished", "job_id", st.ID, "status", st.State, "records", st.Records)
}

// safeRun keeps a runner panic from leaving the job stuck in running.
func (m *Manager) safeRun(ctx context.Context, rc *runctx.RunContext) (out scrape.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("runner panic", "job_id", rc.JobID, "err", r)
			out = scrape.Outcome{Status: domain.StatusError, Err: fmt.Errorf("%w: %v", scrape.ErrPanic, r)}
		}
	}()
	return m.runner.Run(ctx, rc)
}

// Cancel asks a running job to stop at its next checkpoint. An empty id
// means the active job.
func (m *Manager) Cancel(id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "" {
		id = m.active
	}
	e, ok := m.jobs[id]
	if !ok {
		return Status{}, ErrNotFound
	}
	if !e.status.State.Terminal() {
		e.cancel.Store(true)
		e.msgs.Message("Cancellation requested")
	}
	return m.snapshot(e), nil
}

func (m *Manager) Get(id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return Status{}, ErrNotFound
	}
	return m.snapshot(e), nil
}

// Current is the active job, or the most recently started one.
func (m *Manager) Current() (Status, bool) {
	all := m.List()
	if len(all) == 0 {
		return Status{}, false
	}
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	for _, st := range all {
		if st.ID == active {
			return st, true
		}
	}
	return all[0], true
}

// List returns every known job, newest first.
func (m *Manager) List() []Status {
	m.mu.Lock()
	out := make([]Status, 0, len(m.jobs))
	for _, e := range m.jobs {
		out = append(out, m.snapshot(e))
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Prune forgets finished jobs older than retention and reports how many went.
func (m *Manager) Prune(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.jobs {
		if e.status.FinishedAt != nil && e.status.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	return n
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() { m.wg.Wait() }

// Close cancels running jobs and waits for them to deliver. Jobs first get
// the cancel flag so they finish with their partial records; their
// contexts are cancelled only once ShutdownGrace runs out.
func (m *Manager) Close() {
	m.mu.Lock()
	for _, e := range m.jobs {
		if !e.status.State.Terminal() {
			e.cancel.Store(true)
			e.msgs.Message("Cancellation requested")
		}
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(m.opts.ShutdownGrace):
		m.log.Warn("jobs still running after grace period, aborting", "grace", m.opts.ShutdownGrace)
	}
	m.shutdown()
	<-done
}

func (m *Manager) snapshot(e *entry) Status {
	st := e.status
	st.Files = append([]string{}, e.status.Files...)
	st.Messages = e.msgs.Recent(m.opts.MessageLimit)
	if st.Messages == nil {
		st.Messages = []string{}
	}
	return st
}

func (m *Manager) publishStatus(st Status) {
	m.hub.PublishJob(st.ID, events.TypeStatus, map[string]any{
		"status":  st.State,
		"records": st.Records,
	})
}
