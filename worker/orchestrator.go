package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/jupark12/docqueue/archive"
	"github.com/jupark12/docqueue/models"
	"github.com/jupark12/docqueue/observability"
	"github.com/jupark12/docqueue/operations"
)

// Progress milestones reported while a job runs.
const (
	ProgressStart    = 10
	ProgressDispatch = 40
	ProgressFinalize = 90

	MessageStart    = "Initializing..."
	MessageFinalize = "Finalizing..."
)

// Notifier receives a job every time its state or progress changes.
type Notifier func(job *models.Job)

// Orchestrator drives a single job from idle to a terminal state.
type Orchestrator struct {
	runner        *operations.Runner
	flattenErrors bool
	notify        Notifier
	log           *observability.Logger
}

// NewOrchestrator creates an Orchestrator. With flattenErrors set every
// failure carries models.GenericFailureMessage and no error kind.
func NewOrchestrator(runner *operations.Runner, flattenErrors bool, log *observability.Logger) *Orchestrator {
	if log == nil {
		log = observability.Nop()
	}
	return &Orchestrator{runner: runner, flattenErrors: flattenErrors, log: log}
}

// SetNotifier installs fn as the progress callback.
func (o *Orchestrator) SetNotifier(fn Notifier) {
	o.notify = fn
}

// Run executes job. A job that has already left the idle state is
// rejected with models.ErrJobAlreadyRun and left untouched. Otherwise Run
// returns the error that failed the job, or nil when it succeeded; either
// way the job ends in a terminal state.
func (o *Orchestrator) Run(ctx context.Context, job *models.Job, workerID string) error {
	if err := job.Start(workerID); err != nil {
		return err
	}
	log := o.log.WithJob(job.ID(), string(job.Operation())).With("worker_id", workerID)
	o.progress(job, ProgressStart, MessageStart)

	artifact, err := o.execute(ctx, job, log)
	if err != nil {
		o.fail(job, err, log)
		return err
	}

	if err := job.Succeed(artifact); err != nil {
		return err
	}
	o.publish(job)
	log.Info().
		Str("artifact", artifact.Name).
		Int("size", len(artifact.Data)).
		Msg("Job succeeded")
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, job *models.Job, log *observability.Logger) (artifact models.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Operation panicked")
			err = models.OperationFailure(fmt.Sprintf("operation panicked: %v", r), nil)
		}
	}()

	kind := job.Operation()
	def, ok := operations.Lookup(kind)
	if !ok {
		return artifact, models.ValidationError(fmt.Sprintf("unknown operation %q", kind), nil)
	}

	inputs := job.Inputs()
	params, err := o.runner.Validate(kind, inputs, job.Params())
	if err != nil {
		return artifact, err
	}

	o.progress(job, ProgressDispatch, def.Progress)
	outputs, err := o.runner.Run(ctx, kind, inputs, params)
	if err != nil {
		return artifact, err
	}
	if len(outputs) == 0 {
		return artifact, models.OperationFailure("operation produced no output", nil)
	}

	o.progress(job, ProgressFinalize, MessageFinalize)
	return assemble(def, inputs, outputs)
}

// assemble turns operation outputs into the job's single artifact.
func assemble(def operations.Definition, inputs []models.InputFile, outputs []operations.Output) (models.Artifact, error) {
	if len(outputs) == 1 && !def.AlwaysArchive {
		return models.Artifact{
			Name:        def.OutputName,
			ContentType: def.ContentType,
			Data:        outputs[0].Data,
		}, nil
	}

	entries := make([]archive.Entry, len(outputs))
	for i, out := range outputs {
		entries[i] = archive.Entry{Name: out.Name, Data: out.Data}
	}
	data, err := archive.Build(entries)
	if err != nil {
		return models.Artifact{}, models.OperationFailure("build archive", err)
	}
	return models.Artifact{
		Name:        def.ArchiveName(inputs),
		ContentType: operations.ContentTypeZIP,
		Data:        data,
	}, nil
}

func (o *Orchestrator) fail(job *models.Job, err error, log *observability.Logger) {
	kind := models.KindOf(err)
	log.Error().Err(err).Str("error_kind", string(kind)).Msg("Job failed")

	if o.flattenErrors {
		_ = job.Fail("", models.GenericFailureMessage)
	} else {
		_ = job.Fail(kind, fmt.Sprintf("%s: %s", kind, detail(err)))
	}
	o.publish(job)
}

// detail is the human part of err without the kind prefix.
func detail(err error) string {
	var de *models.DomainError
	if errors.As(err, &de) {
		if de.Err != nil {
			return fmt.Sprintf("%s: %v", de.Message, de.Err)
		}
		return de.Message
	}
	return err.Error()
}

func (o *Orchestrator) progress(job *models.Job, percent int, message string) {
	job.SetProgress(percent, message)
	o.publish(job)
}

func (o *Orchestrator) publish(job *models.Job) {
	if o.notify != nil {
		o.notify(job)
	}
}
