// Package queue provides the bounded job queue and fixed worker pool that
// decouple webhook acceptance from pipeline processing.
package queue

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/forum-responder/internal/payload"
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity. The
// gateway translates it into a retryable-busy response; the caller is never
// blocked.
var ErrQueueFull = errors.New("job queue is full")

// Job is one unit of pipeline work. It is created at the gateway, owned by
// exactly one worker, and discarded after the ledger update.
type Job struct {
	ID            uuid.UUID
	CorrelationID string
	Forum         *payload.Forum
	ReceivedAt    time.Time
	RemoteAddr    string
	Headers       map[string]string
}

// NewJob constructs a job around a normalized payload plus intake metadata.
func NewJob(f *payload.Forum, remoteAddr string, headers map[string]string) *Job {
	return &Job{
		ID:            uuid.New(),
		CorrelationID: f.CorrelationID,
		Forum:         f,
		ReceivedAt:    time.Now().UTC(),
		RemoteAddr:    remoteAddr,
		Headers:       headers,
	}
}

// Handler processes one dequeued job to a terminal state. It must not
// panic-propagate; the runner converts faults into error results.
type Handler func(ctx context.Context, job *Job)

// Pool is the bounded FIFO queue drained by a fixed number of workers.
type Pool struct {
	jobs    chan *Job
	workers int
	handler Handler
}

// NewPool builds a pool with the given queue capacity and worker count.
func NewPool(capacity, workers int, handler Handler) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		jobs:    make(chan *Job, capacity),
		workers: workers,
		handler: handler,
	}
}

// Enqueue adds a job, failing fast with ErrQueueFull at capacity.
func (p *Pool) Enqueue(job *Job) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Depth reports the number of queued, not-yet-dequeued jobs.
func (p *Pool) Depth() int {
	return len(p.jobs)
}

// Capacity reports the queue's fixed capacity.
func (p *Pool) Capacity() int {
	return cap(p.jobs)
}

// Workers reports the fixed worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// Start launches the workers and blocks until ctx is cancelled and every
// worker has returned. A job already dequeued runs to its terminal state;
// jobs still queued at shutdown are dropped.
func (p *Pool) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		worker := i
		g.Go(func() error {
			log.Printf("worker %d started", worker)
			for {
				select {
				case <-ctx.Done():
					log.Printf("worker %d stopping", worker)
					return nil
				case job := <-p.jobs:
					p.handler(ctx, job)
				}
			}
		})
	}
	return g.Wait()
}
