// Package store provides the authoritative, transactional state store for
// Jobs, Datums, InputFiles, and OutputFiles: the coordination core's
// state-store, ownership-guard, reservation-engine, and output-protocol
// layers (spec.md §4.1-§4.4).
package store

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle status of a Job.
type JobStatus string

const (
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobError    JobStatus = "error"
	JobCanceled JobStatus = "canceled"
)

// DatumStatus is the lifecycle status of a Datum.
type DatumStatus string

const (
	DatumReady    DatumStatus = "ready"
	DatumRunning  DatumStatus = "running"
	DatumDone     DatumStatus = "done"
	DatumError    DatumStatus = "error"
	DatumCanceled DatumStatus = "canceled"
)

// terminal reports whether a Datum in this status counts as finished for
// the purposes of job-terminal-status recomputation (spec.md §4.4 Step D).
func (s DatumStatus) terminal() bool {
	switch s {
	case DatumDone, DatumError, DatumCanceled:
		return true
	default:
		return false
	}
}

// OutputFileStatus is the lifecycle status of an OutputFile.
type OutputFileStatus string

const (
	OutputFileRunning OutputFileStatus = "running"
	OutputFileDone    OutputFileStatus = "done"
	OutputFileError   OutputFileStatus = "error"
)

// Job is one admitted pipeline run.
type Job struct {
	ID     uuid.UUID
	Name   string
	Status JobStatus

	// PipelineSpec is the embedded pipeline specification document,
	// stored and returned verbatim (spec.md §3, §6).
	PipelineSpec []byte

	// Namespace is the Kubernetes namespace this job's batch job and pods
	// were submitted into; needed to scope Orchestrator calls per job.
	Namespace string

	// ParallelismTarget is cached from pipeline_spec.parallelism_spec at
	// admission time for cheap display in describe responses.
	ParallelismTarget int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Datum is one indivisible unit of work belonging to a Job.
type Datum struct {
	ID    uuid.UUID
	JobID uuid.UUID

	Status DatumStatus

	// PodName identifies the worker process currently, or last,
	// responsible for this datum. Non-nil whenever Status is Running or
	// Done (invariant I2); an Error datum keeps its last owner's pod_name,
	// and a Ready datum has none.
	PodName *string

	AttemptedRunCount      int
	MaximumAllowedRunCount int

	Output       *string
	ErrorMessage *string
	Backtrace    *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// eligibleForRetry reports whether an Error datum may transition back to
// Ready (invariant I4).
func (d *Datum) eligibleForRetry() bool {
	return d.Status == DatumError && d.AttemptedRunCount < d.MaximumAllowedRunCount
}

// InputFile is a source file a worker must download before running its
// datum's command.
type InputFile struct {
	ID        uuid.UUID
	JobID     uuid.UUID
	DatumID   uuid.UUID
	URI       string
	LocalPath string
}

// OutputFile is a destination file a worker uploads after running its
// datum's command. The (JobID, URI) pair is globally unique within a job
// (invariant I5) — this is the anti-clobber constraint that makes
// ownership verification mandatory.
type OutputFile struct {
	ID      uuid.UUID
	JobID   uuid.UUID
	DatumID uuid.UUID
	URI     string
	Status  OutputFileStatus
	PodName string
}

// DatumWithInputs is the payload returned by datum reservation: the
// reserved Datum together with its InputFiles.
type DatumWithInputs struct {
	Datum  Datum
	Inputs []InputFile
}

// DatumStatusCounts summarizes a Job's datums by status, for the
// `/jobs/{id}/describe` composite endpoint.
type DatumStatusCounts struct {
	Ready    int
	Running  int
	Done     int
	Error    int
	Canceled int
}
