package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by TryEnqueue when the buffer has no room.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueClosed is returned when the queue is not running.
	ErrQueueClosed = errors.New("queue not running")
)

// Job represents a queued background task. Jobs sharing a non-empty Key
// coalesce: while one is waiting in the buffer, further jobs with the same
// key are absorbed by it.
type Job struct {
	ID       string
	Type     string
	Key      string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. A returned error schedules a retry.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Stats counts what happened to submitted jobs.
type Stats struct {
	Accepted  uint64
	Coalesced uint64
	Rejected  uint64
	Retried   uint64
	Abandoned uint64
}

// Queue is an in-memory job dispatcher backed by a fixed worker pool. Failed
// jobs are retried after RetryDelay until MaxRetries is exceeded.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	logger  *zap.Logger

	jobs chan Job
	wg   sync.WaitGroup

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	waiting map[string]struct{}
	stats   Stats
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  cfg.Logger.With(zap.String("queue", name)),
		jobs:    make(chan Job, cfg.BufferSize),
		waiting: make(map[string]struct{}),
	}
}

// Start launches the workers. Later calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(q.ctx)
	}
	q.running = true
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers), zap.Int("buffer", q.cfg.BufferSize))
}

// Stop cancels workers and waits for in-flight jobs. Buffered jobs are discarded.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("queue stopped", zap.Int("discarded", len(q.jobs)))
}

// Enqueue pushes a job, blocking while the buffer is full.
func (q *Queue) Enqueue(job Job) error {
	ctx, absorbed, err := q.admit(&job)
	if err != nil || absorbed {
		return err
	}
	select {
	case <-ctx.Done():
		q.release(job.Key)
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueClosed)
	case q.jobs <- job:
		return nil
	}
}

// TryEnqueue pushes a job without blocking the caller.
func (q *Queue) TryEnqueue(job Job) error {
	ctx, absorbed, err := q.admit(&job)
	if err != nil || absorbed {
		return err
	}
	select {
	case <-ctx.Done():
		q.release(job.Key)
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueClosed)
	case q.jobs <- job:
		return nil
	default:
		q.release(job.Key)
		q.mu.Lock()
		q.stats.Accepted--
		q.stats.Rejected++
		q.mu.Unlock()
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
	}
}

// admit reserves the job's key. absorbed reports that a waiting job with the
// same key will run instead.
func (q *Queue) admit(job *Job) (context.Context, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		q.stats.Rejected++
		return nil, false, fmt.Errorf("queue %s: %w", q.name, ErrQueueClosed)
	}
	if job.Key != "" {
		if _, ok := q.waiting[job.Key]; ok {
			q.stats.Coalesced++
			return q.ctx, true, nil
		}
		q.waiting[job.Key] = struct{}{}
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	q.stats.Accepted++
	return q.ctx, false, nil
}

func (q *Queue) release(key string) {
	if key == "" {
		return
	}
	q.mu.Lock()
	delete(q.waiting, key)
	q.mu.Unlock()
}

// Pending returns the number of buffered jobs.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Stats returns a copy of the counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			// The key is released before handling so changes made while the
			// job runs schedule a fresh job.
			q.release(job.Key)
			if err := q.handler(ctx, job); err != nil {
				q.retry(ctx, job, err)
			}
		}
	}
}

// retry schedules job on a timer tracked by the pool, so Stop waits for it.
func (q *Queue) retry(ctx context.Context, job Job, err error) {
	job.Attempt++
	fields := []zap.Field{zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt), zap.Error(err)}
	if job.Attempt > q.cfg.MaxRetries {
		q.mu.Lock()
		q.stats.Abandoned++
		q.mu.Unlock()
		q.logger.Error("job exceeded retries", fields...)
		return
	}
	q.mu.Lock()
	q.stats.Retried++
	q.mu.Unlock()
	q.logger.Warn("job failed, retrying", fields...)

	q.wg.Add(1)
	go func(j Job) {
		defer q.wg.Done()
		timer := time.NewTimer(q.cfg.RetryDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.logger.Error("failed to requeue job", zap.String("job_id", j.ID), zap.Error(err))
			}
		}
	}(job)
}
