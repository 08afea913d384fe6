package processor

import (
	"context"
	"fmt"
	"log"

	"github.com/jonathan/forum-responder/internal/queue"
)

// Ledger records intake and terminal updates for every accepted job.
type Ledger interface {
	RecordOutcome(ctx context.Context, job *queue.Job, res *Result, save *SaveStatus) error
}

// Counters is the slice of the metrics aggregator the runner updates.
type Counters interface {
	JobProcessed(status string)
	ImagesTranscribed(n int)
}

// Runner is the worker-side job handler: state machine, collaborator
// fan-out, ledger update. It guarantees a terminal ledger update for every
// dequeued job, even on internal faults.
type Runner struct {
	proc    *Processor
	pub     *Publisher
	ledger  Ledger
	metrics Counters
}

// NewRunner wires a runner. ledger and metrics may be nil in tests.
func NewRunner(proc *Processor, pub *Publisher, ledger Ledger, metrics Counters) *Runner {
	return &Runner{proc: proc, pub: pub, ledger: ledger, metrics: metrics}
}

// Handle processes one job to its terminal state. Satisfies queue.Handler.
func (r *Runner) Handle(ctx context.Context, job *queue.Job) {
	res := r.Run(ctx, job)
	log.Printf("[%s] job finished: status=%s classification=%s in %v",
		job.CorrelationID, res.Status, res.Classification, res.Duration)
}

// Run executes the pipeline and fan-out, returning the terminal result.
func (r *Runner) Run(ctx context.Context, job *queue.Job) *Result {
	res := r.safeProcess(ctx, job)

	var save *SaveStatus
	if r.pub != nil {
		save = r.pub.Publish(ctx, job.Forum, res)
	} else {
		_, skipReason := ShouldPost(res.Status, res.Classification, res.ValidationVerdict)
		save = &SaveStatus{ForumPostStatus: skipReason}
	}

	if r.ledger != nil {
		if err := r.ledger.RecordOutcome(ctx, job, res, save); err != nil {
			// Persistence failure never alters the terminal status already
			// computed.
			log.Printf("[%s] ledger update failed: %v", job.CorrelationID, err)
		}
	}

	if r.metrics != nil {
		r.metrics.JobProcessed(string(res.Status))
		r.metrics.ImagesTranscribed(res.ImagesTranscribed)
	}

	return res
}

// safeProcess converts any internal fault into an error-status result so
// the worker loop and the ledger invariant survive it.
func (r *Runner) safeProcess(ctx context.Context, job *queue.Job) (res *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[%s] internal fault: %v", job.CorrelationID, rec)
			res = &Result{
				CorrelationID: job.CorrelationID,
				Status:        StatusError,
				Error:         fmt.Sprintf("internal fault: %v", rec),
			}
		}
	}()
	return r.proc.Process(ctx, job.Forum)
}
