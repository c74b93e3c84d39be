// Package sink delivers a finished run's records to files and databases.
package sink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/runctx"
)

// Result is what a run hands over when it ends, whatever the path.
type Result struct {
	Status  domain.Status
	Records []domain.BusinessRecord
	Err     error
}

type Sink interface {
	Deliver(ctx context.Context, rc *runctx.RunContext, res Result) error
}

type Func func(ctx context.Context, rc *runctx.RunContext, res Result) error

func (f Func) Deliver(ctx context.Context, rc *runctx.RunContext, res Result) error {
	return f(ctx, rc, res)
}

var ErrAlreadyDelivered = errors.New("sink: result already delivered")

// Once forwards only the first Deliver; later calls return ErrAlreadyDelivered.
type Once struct {
	inner     Sink
	once      sync.Once
	delivered atomic.Bool
	err       error
}

func NewOnce(inner Sink) *Once { return &Once{inner: inner} }

func (o *Once) Deliver(ctx context.Context, rc *runctx.RunContext, res Result) error {
	first := false
	o.once.Do(func() {
		first = true
		o.delivered.Store(true)
		if o.inner != nil {
			o.err = o.inner.Deliver(ctx, rc, res)
		}
	})
	if !first {
		return ErrAlreadyDelivered
	}
	return o.err
}

func (o *Once) Delivered() bool { return o.delivered.Load() }

// Multi fans a result out to every sink concurrently and joins their errors.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, rc *runctx.RunContext, res Result) error {
	var g errgroup.Group
	errs := make([]error, len(m))
	for i, s := range m {
		if s == nil {
			continue
		}
		i, s := i, s
		g.Go(func() error {
			errs[i] = s.Deliver(ctx, rc, res)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Chain delivers to each sink in order, continuing past failures, so later
// sinks see artifacts recorded by earlier ones.
type Chain []Sink

func (c Chain) Deliver(ctx context.Context, rc *runctx.RunContext, res Result) error {
	var errs []error
	for _, s := range c {
		if s == nil {
			continue
		}
		errs = append(errs, s.Deliver(ctx, rc, res))
	}
	return errors.Join(errs...)
}
