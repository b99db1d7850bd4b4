package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a job in the system
type JobStatus string

const (
	StatusIdle      JobStatus = "idle"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// OperationKind names one document operation offered on the dashboard.
type OperationKind string

const (
	OpMerge         OperationKind = "merge"
	OpSplit         OperationKind = "split"
	OpCompress      OperationKind = "compress"
	OpRotate        OperationKind = "rotate"
	OpWatermark     OperationKind = "watermark"
	OpPDFToImage    OperationKind = "pdf-to-image"
	OpImageToPDF    OperationKind = "image-to-pdf"
	OpWordToPDF     OperationKind = "word-to-pdf"
	OpPDFToPPT      OperationKind = "pdf-to-ppt"
	OpPPTToPDF      OperationKind = "ppt-to-pdf"
	OpPPTBlankSlide OperationKind = "ppt-blank-slide"
)

// AllOperations lists every kind in dashboard order.
var AllOperations = []OperationKind{
	OpMerge, OpSplit, OpCompress, OpRotate, OpWatermark,
	OpPDFToImage, OpImageToPDF, OpWordToPDF,
	OpPDFToPPT, OpPPTToPDF, OpPPTBlankSlide,
}

// Valid reports whether k is a known operation.
func (k OperationKind) Valid() bool {
	for _, op := range AllOperations {
		if op == k {
			return true
		}
	}
	return false
}

// SplitMode selects how a split job cuts its document.
type SplitMode string

const (
	SplitByRange SplitMode = "range"
	SplitByPages SplitMode = "pages"
	SplitByParts SplitMode = "parts"
)

// JobParams holds the operation-specific settings of a job. Only the
// fields relevant to the job's operation are read.
type JobParams struct {
	SplitMode     SplitMode `json:"split_mode,omitempty"`
	Range         string    `json:"range,omitempty"`
	PagesPerFile  int       `json:"pages_per_file,omitempty"`
	Parts         int       `json:"parts,omitempty"`
	Angle         int       `json:"angle,omitempty"`
	WatermarkText string    `json:"watermark_text,omitempty"`
}

// InputFile is one user-supplied file. Data is owned by the job.
type InputFile struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Data        []byte `json:"-"`
}

// Artifact is the single downloadable output of a succeeded job.
type Artifact struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Data        []byte `json:"-"`
}

// Job is one run of a single operation over a fixed set of inputs.
// A job is single use: once it has left StatusIdle it cannot be run again.
type Job struct {
	mu sync.RWMutex

	id             string
	sessionID      string
	operation      OperationKind
	params         JobParams
	inputs         []InputFile
	status         JobStatus
	progress       int
	message        string
	errorMessage   string
	errorKind      ErrorKind
	artifact       *Artifact
	createdAt      time.Time
	startedAt      time.Time
	completedAt    time.Time
	processingNode string
}

// JobSnapshot is a point-in-time, JSON-friendly copy of a job.
type JobSnapshot struct {
	ID             string        `json:"id"`
	SessionID      string        `json:"session_id"`
	Operation      OperationKind `json:"operation"`
	Params         JobParams     `json:"params"`
	Inputs         []InputFile   `json:"inputs"`
	Status         JobStatus     `json:"status"`
	Progress       int           `json:"progress"`
	Message        string        `json:"message,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	ErrorKind      ErrorKind     `json:"error_kind,omitempty"`
	Artifact       *Artifact     `json:"artifact,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	StartedAt      time.Time     `json:"started_at,omitempty"`
	CompletedAt    time.Time     `json:"completed_at,omitempty"`
	ProcessingNode string        `json:"processing_node,omitempty"`
}

// NewJob creates an idle job that exclusively owns inputs.
func NewJob(sessionID string, op OperationKind, inputs []InputFile, params JobParams) *Job {
	for i := range inputs {
		if inputs[i].Size == 0 {
			inputs[i].Size = len(inputs[i].Data)
		}
	}

	return &Job{
		id:        uuid.New().String(),
		sessionID: sessionID,
		operation: op,
		params:    params,
		inputs:    inputs,
		status:    StatusIdle,
		createdAt: time.Now(),
	}
}

func (j *Job) ID() string { return j.id }
func (j *Job) SessionID() string { return j.sessionID }
func (j *Job) Operation() OperationKind { return j.operation }
func (j *Job) Params() JobParams { return j.params }
func (j *Job) CreatedAt() time.Time { return j.createdAt }

// Inputs returns the job's files in the order they were supplied.
func (j *Job) Inputs() []InputFile {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.inputs
}

// Status returns the current state.
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Artifact returns the output of a succeeded job, or nil.
func (j *Job) Artifact() *Artifact {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.artifact
}

// Start moves an idle job to running.
func (j *Job) Start(workerID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != StatusIdle {
		return ErrJobAlreadyRun
	}
	j.status = StatusRunning
	j.startedAt = time.Now()
	j.processingNode = workerID
	return nil
}

// SetProgress records a milestone of a running job.
func (j *Job) SetProgress(percent int, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != StatusRunning {
		return
	}
	j.progress = percent
	j.message = message
}

// Succeed stores the artifact and ends the job. Inputs are released.
func (j *Job) Succeed(artifact Artifact) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != StatusRunning {
		return ErrJobAlreadyRun
	}
	artifact.Size = len(artifact.Data)
	j.artifact = &artifact
	j.status = StatusSucceeded
	j.progress = 100
	j.message = "Task completed successfully!"
	j.completedAt = time.Now()
	j.releaseInputsLocked()
	return nil
}

// Fail ends an idle or running job without an artifact. Inputs are released.
func (j *Job) Fail(kind ErrorKind, message string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status.Terminal() {
		return ErrJobAlreadyRun
	}
	j.status = StatusFailed
	j.artifact = nil
	j.progress = 0
	j.message = message
	j.errorMessage = message
	j.errorKind = kind
	j.completedAt = time.Now()
	j.releaseInputsLocked()
	return nil
}

// ReleaseArtifact drops the artifact bytes, keeping its name and size.
func (j *Job) ReleaseArtifact() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.artifact != nil {
		j.artifact.Data = nil
	}
}

func (j *Job) releaseInputsLocked() {
	for i := range j.inputs {
		j.inputs[i].Data = nil
	}
}

// Snapshot copies the job's current state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	snap := JobSnapshot{
		ID:             j.id,
		SessionID:      j.sessionID,
		Operation:      j.operation,
		Params:         j.params,
		Inputs:         append([]InputFile(nil), j.inputs...),
		Status:         j.status,
		Progress:       j.progress,
		Message:        j.message,
		ErrorMessage:   j.errorMessage,
		ErrorKind:      j.errorKind,
		CreatedAt:      j.createdAt,
		StartedAt:      j.startedAt,
		CompletedAt:    j.completedAt,
		ProcessingNode: j.processingNode,
	}
	if j.artifact != nil {
		a := *j.artifact
		snap.Artifact = &a
	}
	return snap
}
