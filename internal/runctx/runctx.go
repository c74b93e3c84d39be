// Package runctx carries the per-run state every pipeline stage needs: the job,
// the progress message sink and the cooperative cancel flag.
package runctx

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/logging"
)

// MessageSink receives free-text progress lines.
type MessageSink interface {
	Message(line string)
}

type MessageFunc func(line string)

func (f MessageFunc) Message(line string) { f(line) }

type RunContext struct {
	JobID   string
	Job     domain.SearchJob
	Started time.Time

	sink   MessageSink
	cancel *atomic.Bool
	log    *slog.Logger

	mu        sync.Mutex
	artifacts []string
}

// New builds a run context. A nil sink discards messages and a nil cancel
// flag gets a private one.
func New(jobID string, job domain.SearchJob, sink MessageSink, cancel *atomic.Bool) *RunContext {
	if sink == nil {
		sink = MessageFunc(func(string) {})
	}
	if cancel == nil {
		cancel = new(atomic.Bool)
	}
	return &RunContext{
		JobID:   jobID,
		Job:     job,
		Started: time.Now(),
		sink:    sink,
		cancel:  cancel,
		log:     logging.New("run").With(slog.String("job_id", jobID)),
	}
}

// Progress formats a message, logs it and hands it to the sink.
func (rc *RunContext) Progress(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	rc.log.Info(msg)
	rc.sink.Message(msg)
}

func (rc *RunContext) Cancelled() bool { return rc.cancel.Load() }

func (rc *RunContext) Cancel() { rc.cancel.Store(true) }

func (rc *RunContext) Logger() *slog.Logger { return rc.log }

// AddArtifact records a file written for this run.
func (rc *RunContext) AddArtifact(path string) {
	rc.mu.Lock()
	rc.artifacts = append(rc.artifacts, path)
	rc.mu.Unlock()
}

func (rc *RunContext) Artifacts() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]string(nil), rc.artifacts...)
}
