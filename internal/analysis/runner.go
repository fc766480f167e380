package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

// Executor runs one analysis request. *Orchestrator implements it.
type Executor interface {
	Run(ctx context.Context, req Request) (*models.ErrorRecord, error)
}

type RunnerConfig struct {
	Workers   int
	QueueSize int
	// JobTimeout bounds a whole job. Zero means no bound beyond the stage timeouts.
	JobTimeout time.Duration
}

type job struct {
	req Request
}

// Runner executes analyses on a fixed pool of workers fed by a bounded queue.
// Every job runs under its own context, so one slow or cancelled job never
// affects another.
type Runner struct {
	exec   Executor
	status StatusTracker
	cfg    RunnerConfig

	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewRunner(exec Executor, status StatusTracker, cfg RunnerConfig) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		exec:   exec,
		status: status,
		cfg:    cfg,
		queue:  make(chan job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the workers.
func (r *Runner) Start() {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Submit enqueues req without blocking. It returns ErrQueueFull when the queue is at capacity.
func (r *Runner) Submit(req Request) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRunnerClosed
	}

	r.status.Set(r.ctx, req.Record.ID, StatusPending)
	select {
	case r.queue <- job{req: req}:
		return nil
	default:
		r.status.Set(r.ctx, req.Record.ID, StatusFailed)
		return ErrQueueFull
	}
}

// Trigger enqueues an analysis of record. ctx is not carried into the job.
func (r *Runner) Trigger(_ context.Context, record *models.ErrorRecord) error {
	return r.Submit(Request{Record: record})
}

// Close stops accepting jobs and waits for queued ones to finish. If ctx expires
// first, in-flight jobs are cancelled.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return fmt.Errorf("analysis runner drain: %w", ctx.Err())
	}
}

func (r *Runner) worker(n int) {
	defer r.wg.Done()
	for j := range r.queue {
		r.run(n, j)
	}
}

// run executes one job, recovering from panics so the worker survives.
func (r *Runner) run(worker int, j job) {
	recordID := j.req.Record.ID

	var ctx context.Context
	var cancel context.CancelFunc
	if r.cfg.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(r.ctx, r.cfg.JobTimeout)
	} else {
		ctx, cancel = context.WithCancel(r.ctx)
	}
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in analysis job", "error", rec, "record_id", recordID, "worker", worker)
			r.status.Set(context.WithoutCancel(ctx), recordID, StatusFailed)
		}
	}()

	// Failures are logged and recorded by the executor.
	_, _ = r.exec.Run(ctx, j.req)
}
