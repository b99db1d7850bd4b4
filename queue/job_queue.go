package queue

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jupark12/docqueue/models"
	"github.com/jupark12/docqueue/observability"
)

var (
	// ErrSessionBusy is returned when a session enqueues a job while another
	// of its jobs is pending or running.
	ErrSessionBusy = errors.New("session already has an active job")
	// ErrNoPendingJobs is returned by Dequeue when the queue is empty.
	ErrNoPendingJobs = errors.New("no pending jobs available")
	// ErrJobRunning is returned when discarding a job that is being processed.
	ErrJobRunning = errors.New("job is running")
)

// JobQueue manages jobs in memory, from enqueue until they are discarded.
type JobQueue struct {
	mu              sync.RWMutex
	pendingJobs     []*models.Job
	runningJobs     map[string]*models.Job
	completedJobs   map[string]*models.Job
	failedJobs      map[string]*models.Job
	jobsByID        map[string]*models.Job
	activeBySession map[string]string
	jobUpdateChan   chan models.JobSnapshot
	log             *observability.Logger
}

// NewJobQueue creates an empty JobQueue.
func NewJobQueue(log *observability.Logger) *JobQueue {
	if log == nil {
		log = observability.Nop()
	}
	return &JobQueue{
		pendingJobs:     make([]*models.Job, 0),
		runningJobs:     make(map[string]*models.Job),
		completedJobs:   make(map[string]*models.Job),
		failedJobs:      make(map[string]*models.Job),
		jobsByID:        make(map[string]*models.Job),
		activeBySession: make(map[string]string),
		jobUpdateChan:   make(chan models.JobSnapshot, 100),
		log:             log,
	}
}

// EnqueueJob adds an idle job to the queue. A session may only have one
// active job at a time.
func (q *JobQueue) EnqueueJob(job *models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.Status() != models.StatusIdle {
		return models.ErrJobAlreadyRun
	}
	if active, ok := q.activeBySession[job.SessionID()]; ok {
		return fmt.Errorf("%w: %s", ErrSessionBusy, active)
	}

	q.pendingJobs = append(q.pendingJobs, job)
	q.jobsByID[job.ID()] = job
	q.activeBySession[job.SessionID()] = job.ID()
	q.publishLocked(job)

	q.log.Info().
		Str("job_id", job.ID()).
		Str("session_id", job.SessionID()).
		Str("operation", string(job.Operation())).
		Int("inputs", len(job.Inputs())).
		Msg("Job enqueued")
	return nil
}

// DequeueJob takes the next pending job (FIFO) and books it as running.
// The caller is expected to run it.
func (q *JobQueue) DequeueJob(workerID string) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pendingJobs) == 0 {
		return nil, ErrNoPendingJobs
	}

	job := q.pendingJobs[0]
	q.pendingJobs = q.pendingJobs[1:]
	q.runningJobs[job.ID()] = job

	q.log.Debug().Str("job_id", job.ID()).Str("worker_id", workerID).Msg("Job dequeued")
	return job, nil
}

// CompleteJob books a succeeded job and frees its session.
func (q *JobQueue) CompleteJob(jobID string) error {
	return q.finish(jobID, q.completedJobs)
}

// FailJob books a failed job and frees its session.
func (q *JobQueue) FailJob(jobID string) error {
	return q.finish(jobID, q.failedJobs)
}

func (q *JobQueue) finish(jobID string, bucket map[string]*models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.runningJobs[jobID]
	if !exists {
		return fmt.Errorf("job %s not found in running jobs: %w", jobID, models.ErrJobNotFound)
	}

	delete(q.runningJobs, jobID)
	bucket[jobID] = job
	q.releaseSessionLocked(job)
	q.publishLocked(job)
	return nil
}

// NotifyJobUpdate publishes the current state of job. It is used as the
// orchestrator's progress notifier.
func (q *JobQueue) NotifyJobUpdate(job *models.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.publishLocked(job)
}

// publishLocked never blocks; updates are dropped when nobody drains the
// channel.
func (q *JobQueue) publishLocked(job *models.Job) {
	select {
	case q.jobUpdateChan <- job.Snapshot():
	default:
		q.log.Warn().Str("job_id", job.ID()).Msg("Job update channel full, dropping update")
	}
}

func (q *JobQueue) releaseSessionLocked(job *models.Job) {
	if q.activeBySession[job.SessionID()] == job.ID() {
		delete(q.activeBySession, job.SessionID())
	}
}

// GetJob retrieves a job by ID.
func (q *JobQueue) GetJob(jobID string) (*models.Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, exists := q.jobsByID[jobID]
	if !exists {
		return nil, fmt.Errorf("job %s: %w", jobID, models.ErrJobNotFound)
	}
	return job, nil
}

// SessionBusy reports whether sessionID has a pending or running job.
func (q *JobQueue) SessionBusy(sessionID string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.activeBySession[sessionID]
	return ok
}

// DiscardJob forgets a job and drops its buffers. Pending jobs are removed
// from the queue; running jobs cannot be discarded.
func (q *JobQueue) DiscardJob(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.jobsByID[jobID]
	if !exists {
		return fmt.Errorf("job %s: %w", jobID, models.ErrJobNotFound)
	}
	if _, running := q.runningJobs[jobID]; running {
		return ErrJobRunning
	}

	for i, p := range q.pendingJobs {
		if p.ID() == jobID {
			q.pendingJobs = append(q.pendingJobs[:i], q.pendingJobs[i+1:]...)
			_ = job.Fail(models.ErrorKindValidation, "Job discarded before it ran.")
			break
		}
	}
	job.ReleaseArtifact()

	delete(q.completedJobs, jobID)
	delete(q.failedJobs, jobID)
	delete(q.jobsByID, jobID)
	q.releaseSessionLocked(job)

	q.log.Info().Str("job_id", jobID).Msg("Job discarded")
	return nil
}

func sortedByCreation(jobs []*models.Job) []*models.Job {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt().Before(jobs[j].CreatedAt())
	})
	return jobs
}

func collect(m map[string]*models.Job) []*models.Job {
	jobs := make([]*models.Job, 0, len(m))
	for _, job := range m {
		jobs = append(jobs, job)
	}
	return sortedByCreation(jobs)
}

// GetPendingJobs returns a copy of the pending jobs in queue order.
func (q *JobQueue) GetPendingJobs() []*models.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	jobs := make([]*models.Job, len(q.pendingJobs))
	copy(jobs, q.pendingJobs)
	return jobs
}

// GetRunningJobs returns the jobs being processed, oldest first.
func (q *JobQueue) GetRunningJobs() []*models.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return collect(q.runningJobs)
}

// GetCompletedJobs returns the succeeded jobs, oldest first.
func (q *JobQueue) GetCompletedJobs() []*models.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return collect(q.completedJobs)
}

// GetFailedJobs returns the failed jobs, oldest first.
func (q *JobQueue) GetFailedJobs() []*models.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return collect(q.failedJobs)
}

// GetAllJobs returns every known job, oldest first.
func (q *JobQueue) GetAllJobs() []*models.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return collect(q.jobsByID)
}

// GetJobsByStatus filters GetAllJobs by the jobs' current status.
func (q *JobQueue) GetJobsByStatus(status models.JobStatus) []*models.Job {
	all := q.GetAllJobs()
	jobs := make([]*models.Job, 0, len(all))
	for _, job := range all {
		if job.Status() == status {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// GetJobUpdateChannel returns the job update channel.
func (q *JobQueue) GetJobUpdateChannel() <-chan models.JobSnapshot {
	return q.jobUpdateChan
}
