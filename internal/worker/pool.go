// Package worker implements a bounded worker pool that runs scan jobs so the
// number of concurrent engine processes stays fixed under load.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mtiwari1/scanvault/internal/scanner"
)

// ErrPoolClosed is returned when a job is submitted after Shutdown.
var ErrPoolClosed = errors.New("scan pool closed")

// Observer is notified after every finished job.
type Observer interface {
	ObserveScan(status scanner.Status, fallback bool, latency time.Duration)
}

// Job is a single scan request. The submitter waits on Reply.
type Job struct {
	Ctx    context.Context
	FileID string
	Path   string
	reply  chan Result
}

// Result holds the outcome of scanning a single file.
type Result struct {
	FileID  string
	Verdict scanner.Verdict
	Err     error
}

// Pool manages a fixed set of worker goroutines that pull Jobs from a
// channel and answer each on its own reply channel.
type Pool struct {
	workers  int
	engine   scanner.Engine
	observer Observer
	jobs     chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

// NewPool creates a pool with the given number of workers. observer may be nil.
// Call Start() to launch the goroutines.
func NewPool(workers int, engine scanner.Engine, observer Observer, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers:  workers,
		engine:   engine,
		observer: observer,
		jobs:     make(chan Job, workers*2), // small buffer for backpressure
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}
}

// Start launches worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Scan enqueues a job for path and waits for its verdict. It blocks while
// the queue is full and gives up when ctx is done or the pool shuts down.
func (p *Pool) Scan(ctx context.Context, fileID, path string) (scanner.Verdict, error) {
	job := Job{Ctx: ctx, FileID: fileID, Path: path, reply: make(chan Result, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return scanner.Verdict{}, ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return scanner.Verdict{}, fmt.Errorf("enqueue scan: %w", ctx.Err())
	case <-p.ctx.Done():
		p.mu.RUnlock()
		return scanner.Verdict{}, ErrPoolClosed
	}

	select {
	case res := <-job.reply:
		return res.Verdict, res.Err
	case <-ctx.Done():
		return scanner.Verdict{}, fmt.Errorf("await scan: %w", ctx.Err())
	}
}

// Shutdown stops accepting jobs, lets workers drain what is queued and waits
// for them to exit. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs) // signal workers to drain and exit
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

// Abort cancels in-flight scans and then shuts down.
func (p *Pool) Abort() {
	p.cancel()
	p.Shutdown()
}

// worker processes jobs until the channel is closed.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		job.reply <- p.process(id, job)
	}
	p.logger.Debug("scan worker exiting", slog.Int("worker_id", id))
}

// process runs one job. An engine panic is recovered into an error verdict.
func (p *Pool) process(workerID int, job Job) (res Result) {
	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// Pool abort cancels the job too.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	res.FileID = job.FileID

	if err := ctx.Err(); err != nil {
		res.Err = fmt.Errorf("job cancelled before processing: %w", err)
		return res
	}

	start := time.Now()
	p.logger.Info("scan started",
		slog.Int("worker_id", workerID),
		slog.String("file_id", job.FileID),
	)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("scan engine panicked",
				slog.Int("worker_id", workerID),
				slog.String("file_id", job.FileID),
				slog.Any("panic", r),
			)
			res.Verdict = scanner.ErrorVerdict("", fmt.Errorf("engine fault: %v", r))
			res.Err = nil
		}
		latency := time.Since(start)
		if res.Err == nil && p.observer != nil {
			p.observer.ObserveScan(res.Verdict.Status, res.Verdict.IsFallback(), latency)
		}
		p.logger.Info("scan completed",
			slog.Int("worker_id", workerID),
			slog.String("file_id", job.FileID),
			slog.String("status", string(res.Verdict.Status)),
			slog.Duration("latency", latency),
		)
	}()

	res.Verdict, res.Err = p.engine.Scan(ctx, job.Path)
	return res
}
