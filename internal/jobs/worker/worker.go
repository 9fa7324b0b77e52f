package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/casestudy-backend/internal/observability"
	"github.com/yungbote/casestudy-backend/internal/platform/envutil"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

var ErrQueueFull = errors.New("worker queue full")
var ErrPoolClosed = errors.New("worker pool closed")

// Job is one unit of background work. The context is the pool's, not the caller's.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type Config struct {
	Name        string
	Concurrency int
	QueueSize   int
	// EnqueueWait is how long Enqueue waits for a free slot before rejecting. Zero never waits.
	EnqueueWait time.Duration
}

// ConfigFromEnv reads EVAL_WORKER_CONCURRENCY, EVAL_QUEUE_SIZE and EVAL_ENQUEUE_WAIT_SECONDS.
func ConfigFromEnv(name string) Config {
	return Config{
		Name:        name,
		Concurrency: envutil.Int("EVAL_WORKER_CONCURRENCY", 4),
		QueueSize:   envutil.Int("EVAL_QUEUE_SIZE", 64),
		EnqueueWait: envutil.Duration("EVAL_ENQUEUE_WAIT_SECONDS", 2*time.Second),
	}
}

// Pool runs jobs on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	log   *logger.Logger
	name  string
	conc  int
	wait  time.Duration
	queue chan Job

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewPool(baseLog *logger.Logger, cfg Config) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	return &Pool{
		log:   baseLog.With("component", "WorkerPool", "pool", cfg.Name),
		name:  cfg.Name,
		conc:  cfg.Concurrency,
		wait:  cfg.EnqueueWait,
		queue: make(chan Job, cfg.QueueSize),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	p.log.Info("Starting worker pool", "concurrency", p.conc, "queue_size", cap(p.queue))
	for i := 0; i < p.conc; i++ {
		p.wg.Add(1)
		go p.runLoop(ctx, i+1)
	}
}

// Enqueue hands a job to the pool. When the queue is full it waits up to EnqueueWait for a slot,
// then returns ErrQueueFull.
func (p *Pool) Enqueue(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no run func", job.Name)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- job:
		observability.Current().SetQueueDepth(p.name, len(p.queue))
		return nil
	default:
	}
	if p.wait > 0 {
		timer := time.NewTimer(p.wait)
		defer timer.Stop()
		select {
		case p.queue <- job:
			observability.Current().SetQueueDepth(p.name, len(p.queue))
			return nil
		case <-timer.C:
		}
	}
	observability.Current().IncQueueRejected(p.name)
	return ErrQueueFull
}

func (p *Pool) Len() int { return len(p.queue) }

// Close stops accepting jobs and waits for queued ones to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()
	if started {
		p.wg.Wait()
	}
}

func (p *Pool) runLoop(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			observability.Current().SetQueueDepth(p.name, len(p.queue))
			p.run(ctx, workerID, job)
		}
	}
}

func (p *Pool) run(ctx context.Context, workerID int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Job panic",
				"worker_id", workerID,
				"job", job.Name,
				"panic", r,
			)
		}
	}()
	if err := job.Run(ctx); err != nil {
		p.log.Warn("Job failed", "worker_id", workerID, "job", job.Name, "error", err)
	}
}
