// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kyeo-hub/worktools/internal/slogs"
)

// DefaultPoolSize bounds concurrency when no size is given.
const DefaultPoolSize = 4

// JobFn represents a function that can be executed by the worker pool
type JobFn func(ctx context.Context) error

// WorkerPool runs jobs on at most size goroutines and collects their errors.
type WorkerPool struct {
	semC chan struct{}

	ctx      context.Context
	cancelFn context.CancelFunc

	mx      sync.Mutex
	wg      sync.WaitGroup
	errs    []error
	drained bool

	size int
	name string
}

// NewWorkerPool creates a new worker pool with specified context and size
func NewWorkerPool(ctx context.Context, size int) *WorkerPool {
	return NewNamedWorkerPool(ctx, size, "default")
}

// NewNamedWorkerPool creates a new worker pool with a specific name for logging
func NewNamedWorkerPool(ctx context.Context, size int, name string) *WorkerPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	poolCtx, cancelFn := context.WithCancel(ctx)

	slog.Debug("Worker pool created", slogs.Name, name, slogs.Count, size)

	return &WorkerPool{
		semC:     make(chan struct{}, size),
		ctx:      poolCtx,
		cancelFn: cancelFn,
		size:     size,
		name:     name,
	}
}

// Add submits a job, blocking while every worker is busy. Jobs added after
// the pool context ended are not run and report the context error. A
// panicking job is reported as an error.
func (p *WorkerPool) Add(job JobFn) {
	if err := p.ctx.Err(); err != nil {
		p.collect(err)
		return
	}
	select {
	case p.semC <- struct{}{}:
	case <-p.ctx.Done():
		p.collect(p.ctx.Err())
		return
	}

	p.wg.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.collect(fmt.Errorf("job panicked: %v", r))
			}
			<-p.semC
			p.wg.Done()
		}()

		if err := job(p.ctx); err != nil {
			slog.Debug("Worker job failed", slogs.Name, p.name, slogs.Error, err)
			p.collect(err)
		}
	}()
}

// Drain waits for all jobs to complete and returns collected errors
func (p *WorkerPool) Drain() []error {
	p.mx.Lock()
	if p.drained {
		defer p.mx.Unlock()
		return p.errs
	}
	p.drained = true
	p.mx.Unlock()

	p.wg.Wait()
	p.cancelFn()

	p.mx.Lock()
	defer p.mx.Unlock()
	slog.Debug("Worker pool drained", slogs.Name, p.name, slogs.Count, len(p.errs))
	return p.errs
}

// Size returns the maximum number of concurrent workers
func (p *WorkerPool) Size() int {
	return p.size
}

// Name returns the pool name
func (p *WorkerPool) Name() string {
	return p.name
}

// ActiveJobs returns the number of currently active jobs
func (p *WorkerPool) ActiveJobs() int {
	return len(p.semC)
}

func (p *WorkerPool) collect(err error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.errs = append(p.errs, err)
}
