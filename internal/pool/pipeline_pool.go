// Package pool provides a bounded goroutine pool for running session
// pipelines in the background.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrPoolClosed = errors.New("pipeline pool is closed")
	ErrPoolFull   = errors.New("pipeline pool queue is full")
)

// Pipeline is one background session run.
type Pipeline func(ctx context.Context)

// Config configures a Pool.
type Config struct {
	// MaxWorkers caps concurrently running pipelines.
	MaxWorkers int `json:"max_workers" yaml:"max_workers"`

	// QueueSize bounds pipelines accepted but not yet running.
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// IdleTimeout is how long an idle worker lingers before exiting.
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// PanicHandler receives recovered pipeline panics.
	PanicHandler func(sessionID string, recovered any) `json:"-" yaml:"-"`
}

// DefaultConfig returns sensible defaults for a single-node deployment.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:  16,
		QueueSize:   64,
		IdleTimeout: 30 * time.Second,
	}
}

type queued struct {
	sessionID string
	ctx       context.Context
	run       Pipeline
}

// Pool runs submitted pipelines on a bounded set of worker goroutines.
// Workers are spawned on demand and retire after IdleTimeout.
type Pool struct {
	cfg     Config
	queue   chan queued
	workers atomic.Int32
	active  atomic.Int32
	closed  atomic.Bool
	wg      sync.WaitGroup

	submitted atomic.Int64
	finished  atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64
}

// New creates a pipeline pool.
func New(cfg Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultConfig().MaxWorkers
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	return &Pool{
		cfg:   cfg,
		queue: make(chan queued, cfg.QueueSize),
	}
}

// Submit enqueues a pipeline for background execution. It never blocks:
// when the queue is full and no worker slot is free, ErrPoolFull is
// returned and the caller decides how to surface the backpressure.
func (p *Pool) Submit(ctx context.Context, sessionID string, run Pipeline) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	item := queued{sessionID: sessionID, ctx: ctx, run: run}

	select {
	case p.queue <- item:
		p.ensureWorker()
		return nil
	default:
		if p.trySpawnWorker() {
			select {
			case p.queue <- item:
				return nil
			default:
			}
		}
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *Pool) ensureWorker() {
	if p.workers.Load() < int32(p.cfg.MaxWorkers) {
		p.trySpawnWorker()
	}
}

func (p *Pool) trySpawnWorker() bool {
	for {
		current := p.workers.Load()
		if current >= int32(p.cfg.MaxWorkers) {
			return false
		}
		if p.workers.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return true
		}
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	defer p.workers.Add(-1)

	timer := time.NewTimer(p.cfg.IdleTimeout)
	defer timer.Stop()

	for {
		select {
		case item, ok := <-p.queue:
			if !ok {
				return
			}

			p.active.Add(1)
			p.runPipeline(item)
			p.active.Add(-1)
			p.finished.Add(1)

			timer.Reset(p.cfg.IdleTimeout)

		case <-timer.C:
			// Keep one worker alive so a quiet pool stays responsive.
			if p.workers.Load() > 1 {
				return
			}
			timer.Reset(p.cfg.IdleTimeout)
		}
	}
}

func (p *Pool) runPipeline(item queued) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			if p.cfg.PanicHandler != nil {
				p.cfg.PanicHandler(item.sessionID, r)
			}
		}
	}()

	item.run(item.ctx)
}

// Close stops accepting pipelines and waits for in-flight runs to finish.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.queue)
	p.wg.Wait()
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Finished  int64 `json:"finished"`
	Panicked  int64 `json:"panicked"`
	Rejected  int64 `json:"rejected"`
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   int(p.workers.Load()),
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Finished:  p.finished.Load(),
		Panicked:  p.panicked.Load(),
		Rejected:  p.rejected.Load(),
	}
}
