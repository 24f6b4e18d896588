package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/falconeri/falconeri/internal/store"
)

// JobResource is the wire representation of a Job.
type JobResource struct {
	ID                uuid.UUID       `json:"id"`
	Name              string          `json:"name"`
	Status            store.JobStatus `json:"status"`
	PipelineSpec      json.RawMessage `json:"pipeline_spec"`
	Namespace         string          `json:"namespace"`
	ParallelismTarget int             `json:"parallelism_target"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func newJobResource(job *store.Job) JobResource {
	return JobResource{
		ID:                job.ID,
		Name:              job.Name,
		Status:            job.Status,
		PipelineSpec:      json.RawMessage(job.PipelineSpec),
		Namespace:         job.Namespace,
		ParallelismTarget: job.ParallelismTarget,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
	}
}

// DatumResource is the wire representation of a Datum.
type DatumResource struct {
	ID                     uuid.UUID          `json:"id"`
	JobID                  uuid.UUID          `json:"job_id"`
	Status                 store.DatumStatus  `json:"status"`
	PodName                *string            `json:"pod_name,omitempty"`
	AttemptedRunCount      int                `json:"attempted_run_count"`
	MaximumAllowedRunCount int                `json:"maximum_allowed_run_count"`
	Output                 *string            `json:"output,omitempty"`
	ErrorMessage           *string            `json:"error_message,omitempty"`
	Backtrace              *string            `json:"backtrace,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

func newDatumResource(d *store.Datum) DatumResource {
	return DatumResource{
		ID:                     d.ID,
		JobID:                  d.JobID,
		Status:                 d.Status,
		PodName:                d.PodName,
		AttemptedRunCount:      d.AttemptedRunCount,
		MaximumAllowedRunCount: d.MaximumAllowedRunCount,
		Output:                 d.Output,
		ErrorMessage:           d.ErrorMessage,
		Backtrace:              d.Backtrace,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}
}

// InputFileResource is the wire representation of an InputFile.
type InputFileResource struct {
	ID        uuid.UUID `json:"id"`
	URI       string    `json:"uri"`
	LocalPath string    `json:"local_path"`
}

func newInputFileResource(f store.InputFile) InputFileResource {
	return InputFileResource{ID: f.ID, URI: f.URI, LocalPath: f.LocalPath}
}

// OutputFileResource is the wire representation of an OutputFile.
type OutputFileResource struct {
	ID     uuid.UUID               `json:"id"`
	URI    string                  `json:"uri"`
	Status store.OutputFileStatus  `json:"status"`
}

func newOutputFileResource(f store.OutputFile) OutputFileResource {
	return OutputFileResource{ID: f.ID, URI: f.URI, Status: f.Status}
}

// Envelope wraps single-resource bodies: {"resource": {...}}.
type Envelope struct {
	Resource any `json:"resource"`
}

// CollectionEnvelope wraps collection bodies: {"resources": [...]}.
type CollectionEnvelope struct {
	Resources  any `json:"resources"`
	TotalCount int `json:"total_count,omitempty"`
}

// SubmitJobRequest is the POST /jobs request body: the raw pipeline spec
// document under "pipeline_spec".
type SubmitJobRequest struct {
	PipelineSpec json.RawMessage `json:"pipeline_spec"`
}

// ReserveNextDatumRequest is the POST /jobs/{id}/reserve_next_datum body.
type ReserveNextDatumRequest struct {
	PodName string `json:"pod_name"`
}

// RegisterOutputFilesRequest is the POST /datums/{id}/output_files body.
type RegisterOutputFilesRequest struct {
	PodName     string                    `json:"pod_name"`
	OutputFiles []RegisterOutputFileEntry `json:"output_files"`
}

// RegisterOutputFileEntry is one entry of RegisterOutputFilesRequest.
type RegisterOutputFileEntry struct {
	URI string `json:"uri"`
}

// CommitOutputFilesRequest is the PATCH /datums/{id}/output_files body.
type CommitOutputFilesRequest struct {
	PodName     string                  `json:"pod_name"`
	OutputFiles []CommitOutputFileEntry `json:"output_files"`
}

// CommitOutputFileEntry is one entry of CommitOutputFilesRequest.
type CommitOutputFileEntry struct {
	ID     uuid.UUID              `json:"id"`
	Status store.OutputFileStatus `json:"status"`
}

// FinalizeDatumRequest is the PATCH /datums/{id} body.
type FinalizeDatumRequest struct {
	PodName      string             `json:"pod_name"`
	Status       store.DatumStatus  `json:"status"`
	Output       *string            `json:"output,omitempty"`
	ErrorMessage *string            `json:"error_message,omitempty"`
	Backtrace    *string            `json:"backtrace,omitempty"`
}

// DescribeJobResponse is the GET /jobs/{id}/describe composite body.
type DescribeJobResponse struct {
	Job               JobResource             `json:"job"`
	DatumStatusCounts store.DatumStatusCounts `json:"datum_status_counts"`
	FailedDatums      []DatumResource         `json:"failed_datums"`
	RunningDatums     []DatumResource         `json:"running_datums"`
}

// DescribeDatumResponse is the GET /datums/{id}/describe composite body.
type DescribeDatumResponse struct {
	Datum      DatumResource        `json:"datum"`
	InputFiles []InputFileResource `json:"input_files"`
}

// RetryJobResponse is the POST /jobs/{id}/retry response body.
type RetryJobResponse struct {
	RequeuedCount int `json:"requeued_count"`
}
