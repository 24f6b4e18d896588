package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned when a referenced Job does not exist.
var ErrJobNotFound = errors.New("job not found")

// NewDatumSpec describes one Datum to be created during Job Admission,
// together with the InputFiles it owns.
type NewDatumSpec struct {
	MaximumAllowedRunCount int
	Inputs                 []NewInputFileSpec
}

// NewInputFileSpec describes one InputFile to be created during Job Admission.
type NewInputFileSpec struct {
	URI       string
	LocalPath string
}

// CreateJobRequest is the payload for AdmitJob: everything Job Admission
// (spec.md §4.5) needs to insert in a single transaction.
type CreateJobRequest struct {
	Name              string
	PipelineSpec      []byte
	Namespace         string
	ParallelismTarget int
	Datums            []NewDatumSpec
}

// AdmitJob inserts a Job, its Datums, and their InputFiles within a single
// transaction (spec.md §4.5 step 3). The Job is created with status
// Running; Datums are created Ready with pod_name unset.
func (s *Store) AdmitJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	var job *Job

	err := withTx(ctx, s.conn.DB, func(tx *sql.Tx) error {
		job = &Job{
			ID:                uuid.New(),
			Name:              req.Name,
			Status:            JobRunning,
			PipelineSpec:      req.PipelineSpec,
			Namespace:         req.Namespace,
			ParallelismTarget: req.ParallelismTarget,
		}

		const insertJob = `
			INSERT INTO jobs (id, name, status, pipeline_spec, namespace, parallelism_target)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at
		`

		if err := tx.QueryRowContext(ctx, insertJob,
			job.ID, job.Name, job.Status, job.PipelineSpec, job.Namespace, job.ParallelismTarget,
		).Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}

		const insertDatum = `
			INSERT INTO datums (id, job_id, status, attempted_run_count, maximum_allowed_run_count)
			VALUES ($1, $2, $3, 0, $4)
		`

		const insertInput = `
			INSERT INTO input_files (id, job_id, datum_id, uri, local_path)
			VALUES ($1, $2, $3, $4, $5)
		`

		for _, datumSpec := range req.Datums {
			datumID := uuid.New()

			if _, err := tx.ExecContext(ctx, insertDatum, datumID, job.ID, DatumReady, datumSpec.MaximumAllowedRunCount); err != nil {
				return fmt.Errorf("insert datum: %w", err)
			}

			for _, in := range datumSpec.Inputs {
				if _, err := tx.ExecContext(ctx, insertInput, uuid.New(), job.ID, datumID, in.URI, in.LocalPath); err != nil {
					return fmt.Errorf("insert input file: %w", err)
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return job, nil
}

// GetJob fetches a Job by ID.
func (s *Store) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	const query = jobSelectColumns + ` FROM jobs WHERE id = $1`

	return s.scanJobRow(s.conn.QueryRowContext(ctx, query, jobID))
}

// GetJobByName fetches a Job by its unique name.
func (s *Store) GetJobByName(ctx context.Context, name string) (*Job, error) {
	const query = jobSelectColumns + ` FROM jobs WHERE name = $1`

	return s.scanJobRow(s.conn.QueryRowContext(ctx, query, name))
}

const jobSelectColumns = `
	SELECT id, name, status, pipeline_spec, namespace, parallelism_target, created_at, updated_at
`

func (s *Store) scanJobRow(row *sql.Row) (*Job, error) {
	job := &Job{}

	var status string

	err := row.Scan(
		&job.ID, &job.Name, &status, &job.PipelineSpec,
		&job.Namespace, &job.ParallelismTarget, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w", ErrJobNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	job.Status = JobStatus(status)

	return job, nil
}

// ListJobsPage is one page of the paginated job listing.
type ListJobsPage struct {
	Jobs       []Job
	TotalCount int
}

// ListJobs returns a page of Jobs ordered newest-first.
func (s *Store) ListJobs(ctx context.Context, limit, offset int) (*ListJobsPage, error) {
	const countQuery = `SELECT count(*) FROM jobs`

	var total int
	if err := s.conn.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	query := jobSelectColumns + ` FROM jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.conn.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job

	for rows.Next() {
		var job Job

		var status string
		if err := rows.Scan(
			&job.ID, &job.Name, &status, &job.PipelineSpec,
			&job.Namespace, &job.ParallelismTarget, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}

		job.Status = JobStatus(status)
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ListJobsPage{Jobs: jobs, TotalCount: total}, nil
}

// RetryJob re-queues every Error datum of a job that is still eligible for
// retry (attempted_run_count < maximum_allowed_run_count), up to each
// datum's individual cap, exactly like Babysitter Pass 3 (spec.md §4.6)
// but triggered explicitly via `POST /jobs/{id}/retry` instead of on a
// timer.
func (s *Store) RetryJob(ctx context.Context, jobID uuid.UUID) (int, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id FROM datums WHERE job_id = $1 AND status = $2 AND attempted_run_count < maximum_allowed_run_count`,
		jobID, DatumError,
	)
	if err != nil {
		return 0, fmt.Errorf("list retry-eligible datums: %w", err)
	}

	var ids []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()

			return 0, fmt.Errorf("scan retry-eligible datum: %w", err)
		}

		ids = append(ids, id)
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return 0, err
	}

	requeued := 0

	for _, id := range ids {
		ok, err := s.requeueErroredDatum(ctx, id)
		if err != nil {
			return requeued, err
		}

		if ok {
			requeued++
		}
	}

	return requeued, nil
}

// ListRunningJobsOlderThan returns Jobs with status Running whose
// created_at predates the grace threshold, for Babysitter Pass 1
// (vanished batch jobs, spec.md §4.6).
func (s *Store) ListRunningJobsOlderThan(ctx context.Context, olderThan time.Time) ([]Job, error) {
	query := jobSelectColumns + ` FROM jobs WHERE status = $1 AND created_at < $2`

	rows, err := s.conn.QueryContext(ctx, query, JobRunning, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job

	for rows.Next() {
		var job Job

		var status string
		if err := rows.Scan(
			&job.ID, &job.Name, &status, &job.PipelineSpec,
			&job.Namespace, &job.ParallelismTarget, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}

		job.Status = JobStatus(status)
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// MarkJobVanished transitions a single Job to Error with a fixed reason,
// re-checking the Running-and-still-vanished condition under the row lock
// (Babysitter Pass 1).
func (s *Store) MarkJobVanished(ctx context.Context, jobID uuid.UUID, stillVanished func(ctx context.Context) (bool, error)) (bool, error) {
	var marked bool

	err := withTx(ctx, s.conn.DB, func(tx *sql.Tx) error {
		var status string
		if err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}

			return fmt.Errorf("lock job: %w", err)
		}

		if JobStatus(status) != JobRunning {
			return nil
		}

		stillGone, err := stillVanished(ctx)
		if err != nil {
			return err
		}

		if !stillGone {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2`, JobError, jobID); err != nil {
			return fmt.Errorf("mark job vanished: %w", err)
		}

		marked = true

		return nil
	})

	return marked, err
}
