package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Store is the coordination core's authoritative state store: the single
// point of access to Jobs, Datums, InputFiles, and OutputFiles.
type Store struct {
	conn *Connection
}

// New wraps a Connection as a Store.
func New(conn *Connection) *Store {
	return &Store{conn: conn}
}

// ReserveNextDatum implements the Reservation Engine (spec.md §4.3).
//
// Within one transaction, it selects the (job_id, created_at, id)-lowest
// Ready datum for jobID using SELECT ... FOR UPDATE SKIP LOCKED, then
// transitions it to Running under the caller's pod_name. SKIP LOCKED
// ensures concurrent reservers never block each other and never return
// the same row (property P1). Returns (nil, nil) if no Ready datum exists;
// the caller is expected to exit cleanly (spec.md §4.3, law L2).
func (s *Store) ReserveNextDatum(ctx context.Context, jobID uuid.UUID, podName string) (*DatumWithInputs, error) {
	var result *DatumWithInputs

	err := withTx(ctx, s.conn.DB, func(tx *sql.Tx) error {
		const selectQuery = `
			SELECT id FROM datums
			WHERE job_id = $1 AND status = $2
			ORDER BY created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`

		var datumID uuid.UUID

		err := tx.QueryRowContext(ctx, selectQuery, jobID, DatumReady).Scan(&datumID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("select next ready datum: %w", err)
		}

		const updateQuery = `
			UPDATE datums
			SET status = $1, pod_name = $2, attempted_run_count = attempted_run_count + 1, updated_at = now()
			WHERE id = $3
			RETURNING id, job_id, status, pod_name, attempted_run_count, maximum_allowed_run_count,
			          output, error_message, backtrace, created_at, updated_at
		`

		datum := Datum{}

		var status string

		err = tx.QueryRowContext(ctx, updateQuery, DatumRunning, podName, datumID).Scan(
			&datum.ID, &datum.JobID, &status, &datum.PodName,
			&datum.AttemptedRunCount, &datum.MaximumAllowedRunCount,
			&datum.Output, &datum.ErrorMessage, &datum.Backtrace,
			&datum.CreatedAt, &datum.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("reserve datum: %w", err)
		}

		datum.Status = DatumStatus(status)

		inputs, err := listInputFiles(ctx, tx, datum.ID)
		if err != nil {
			return err
		}

		result = &DatumWithInputs{Datum: datum, Inputs: inputs}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetDatum fetches a Datum by ID without locking.
func (s *Store) GetDatum(ctx context.Context, datumID uuid.UUID) (*Datum, error) {
	const query = `
		SELECT id, job_id, status, pod_name, attempted_run_count, maximum_allowed_run_count,
		       output, error_message, backtrace, created_at, updated_at
		FROM datums
		WHERE id = $1
	`

	datum := &Datum{}

	var status string

	err := s.conn.QueryRowContext(ctx, query, datumID).Scan(
		&datum.ID, &datum.JobID, &status, &datum.PodName,
		&datum.AttemptedRunCount, &datum.MaximumAllowedRunCount,
		&datum.Output, &datum.ErrorMessage, &datum.Backtrace,
		&datum.CreatedAt, &datum.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDatumNotFound, datumID)
	}

	if err != nil {
		return nil, fmt.Errorf("get datum: %w", err)
	}

	datum.Status = DatumStatus(status)

	return datum, nil
}

// ListInputFiles returns the InputFiles belonging to a datum, for the
// `/datums/{id}/describe` composite endpoint.
func (s *Store) ListInputFiles(ctx context.Context, datumID uuid.UUID) ([]InputFile, error) {
	return listInputFilesDB(ctx, s.conn.DB, datumID)
}

func listInputFilesDB(ctx context.Context, db *sql.DB, datumID uuid.UUID) ([]InputFile, error) {
	const query = `SELECT id, job_id, datum_id, uri, local_path FROM input_files WHERE datum_id = $1 ORDER BY uri`

	rows, err := db.QueryContext(ctx, query, datumID)
	if err != nil {
		return nil, fmt.Errorf("list input files: %w", err)
	}
	defer rows.Close()

	return scanInputFiles(rows)
}

func listInputFiles(ctx context.Context, tx *sql.Tx, datumID uuid.UUID) ([]InputFile, error) {
	const query = `SELECT id, job_id, datum_id, uri, local_path FROM input_files WHERE datum_id = $1 ORDER BY uri`

	rows, err := tx.QueryContext(ctx, query, datumID)
	if err != nil {
		return nil, fmt.Errorf("list input files: %w", err)
	}
	defer rows.Close()

	return scanInputFiles(rows)
}

func scanInputFiles(rows *sql.Rows) ([]InputFile, error) {
	var inputs []InputFile

	for rows.Next() {
		var in InputFile
		if err := rows.Scan(&in.ID, &in.JobID, &in.DatumID, &in.URI, &in.LocalPath); err != nil {
			return nil, fmt.Errorf("scan input file: %w", err)
		}

		inputs = append(inputs, in)
	}

	return inputs, rows.Err()
}

// DatumStatusCounts summarizes a Job's datums by status (spec.md §4.7
// `/jobs/{id}/describe`).
func (s *Store) DatumStatusCounts(ctx context.Context, jobID uuid.UUID) (DatumStatusCounts, error) {
	const query = `SELECT status, count(*) FROM datums WHERE job_id = $1 GROUP BY status`

	rows, err := s.conn.QueryContext(ctx, query, jobID)
	if err != nil {
		return DatumStatusCounts{}, fmt.Errorf("datum status counts: %w", err)
	}
	defer rows.Close()

	var counts DatumStatusCounts

	for rows.Next() {
		var status string

		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return DatumStatusCounts{}, fmt.Errorf("scan datum status count: %w", err)
		}

		switch DatumStatus(status) {
		case DatumReady:
			counts.Ready = n
		case DatumRunning:
			counts.Running = n
		case DatumDone:
			counts.Done = n
		case DatumError:
			counts.Error = n
		case DatumCanceled:
			counts.Canceled = n
		}
	}

	return counts, rows.Err()
}

// ListFailedDatums returns the Error datums of a job, for describe responses.
func (s *Store) ListFailedDatums(ctx context.Context, jobID uuid.UUID) ([]Datum, error) {
	return s.listDatumsByStatus(ctx, jobID, DatumError)
}

// ListRunningDatums returns the Running datums of a job, for describe responses.
func (s *Store) ListRunningDatums(ctx context.Context, jobID uuid.UUID) ([]Datum, error) {
	return s.listDatumsByStatus(ctx, jobID, DatumRunning)
}

func (s *Store) listDatumsByStatus(ctx context.Context, jobID uuid.UUID, status DatumStatus) ([]Datum, error) {
	const query = `
		SELECT id, job_id, status, pod_name, attempted_run_count, maximum_allowed_run_count,
		       output, error_message, backtrace, created_at, updated_at
		FROM datums
		WHERE job_id = $1 AND status = $2
		ORDER BY created_at ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, jobID, status)
	if err != nil {
		return nil, fmt.Errorf("list datums by status: %w", err)
	}
	defer rows.Close()

	var datums []Datum

	for rows.Next() {
		var d Datum

		var st string
		if err := rows.Scan(
			&d.ID, &d.JobID, &st, &d.PodName,
			&d.AttemptedRunCount, &d.MaximumAllowedRunCount,
			&d.Output, &d.ErrorMessage, &d.Backtrace,
			&d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan datum: %w", err)
		}

		d.Status = DatumStatus(st)
		datums = append(datums, d)
	}

	return datums, rows.Err()
}
