package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jupark12/docqueue/models"
	"github.com/jupark12/docqueue/observability"
	"github.com/jupark12/docqueue/queue"
)

// Worker represents a processing node that consumes jobs
type Worker struct {
	ID           string
	Queue        *queue.JobQueue
	Orchestrator *Orchestrator
	PollInterval time.Duration
	Processing   bool
	mu           sync.Mutex
	done         chan struct{}
	log          *observability.Logger
}

// NewWorker creates a new worker instance
func NewWorker(id string, q *queue.JobQueue, orch *Orchestrator, pollInterval time.Duration, log *observability.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if log == nil {
		log = observability.Nop()
	}
	return &Worker{
		ID:           id,
		Queue:        q,
		Orchestrator: orch,
		PollInterval: pollInterval,
		done:         make(chan struct{}),
		log:          log.With("worker_id", id),
	}
}

// Start begins processing jobs until ctx is cancelled. A job that has
// started always runs to completion.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker starting")

	go func() {
		defer close(w.done)
		for {
			w.setProcessing(false)

			if ctx.Err() != nil {
				w.log.Info().Msg("Worker stopped")
				return
			}

			job, err := w.Queue.DequeueJob(w.ID)
			if err != nil {
				select {
				case <-ctx.Done():
				case <-time.After(w.PollInterval):
				}
				continue
			}

			w.setProcessing(true)
			w.process(context.WithoutCancel(ctx), job)
		}
	}()
}

// Done is closed once the worker loop has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// IsProcessing reports whether the worker is running a job.
func (w *Worker) IsProcessing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Processing
}

func (w *Worker) setProcessing(v bool) {
	w.mu.Lock()
	w.Processing = v
	w.mu.Unlock()
}

func (w *Worker) process(ctx context.Context, job *models.Job) {
	w.log.Info().Str("job_id", job.ID()).Str("operation", string(job.Operation())).Msg("Processing job")

	err := w.Orchestrator.Run(ctx, job, w.ID)
	if errors.Is(err, models.ErrJobAlreadyRun) {
		w.log.Warn().Str("job_id", job.ID()).Msg("Job was already run, skipping")
	}

	switch job.Status() {
	case models.StatusSucceeded:
		if err := w.Queue.CompleteJob(job.ID()); err != nil {
			w.log.Error().Err(err).Str("job_id", job.ID()).Msg("Failed to book completed job")
		}
	default:
		if err := w.Queue.FailJob(job.ID()); err != nil {
			w.log.Error().Err(err).Str("job_id", job.ID()).Msg("Failed to book failed job")
		}
	}
}
