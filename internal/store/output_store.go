package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/falconeri/falconeri/internal/apperror"
)

// ErrOutputFileNotFound is returned when a referenced OutputFile does not exist.
var ErrOutputFileNotFound = errors.New("output file not found")

// RegisterOutputFiles implements Output Protocol Step A (spec.md §4.4):
// it locks the Datum, verifies ownership, and inserts one OutputFile
// placeholder row per requested URI in status Running. Registering zero
// output files succeeds and changes no rows (boundary B3).
//
// A duplicate (job_id, uri) insertion surfaces as apperror.Conflict: under
// correct ownership discipline this indicates a programmer bug or direct
// database tampering, not a race (spec.md §4.4 Step A).
func (s *Store) RegisterOutputFiles(ctx context.Context, datumID uuid.UUID, podName string, uris []string) ([]OutputFile, error) {
	var created []OutputFile

	err := withTx(ctx, s.conn.DB, func(tx *sql.Tx) error {
		datum, err := verifyOwner(ctx, tx, datumID, podName)
		if err != nil {
			return err
		}

		const insertQuery = `
			INSERT INTO output_files (id, job_id, datum_id, uri, status, pod_name)
			VALUES ($1, $2, $3, $4, $5, $6)
		`

		for _, uri := range uris {
			of := OutputFile{
				ID:      uuid.New(),
				JobID:   datum.JobID,
				DatumID: datumID,
				URI:     canonicalizeURI(uri),
				Status:  OutputFileRunning,
				PodName: podName,
			}

			_, err := tx.ExecContext(ctx, insertQuery, of.ID, of.JobID, of.DatumID, of.URI, of.Status, of.PodName)
			if err != nil {
				return fmt.Errorf("%w: %w", apperror.Conflict("duplicate output file uri within job", err), err)
			}

			created = append(created, of)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// OutputFileOutcome is one entry of a Step C commit request: the id of a
// previously registered OutputFile and its terminal status.
type OutputFileOutcome struct {
	ID     uuid.UUID
	Status OutputFileStatus
}

// CommitOutcomes implements Output Protocol Step C (spec.md §4.4): it locks
// the Datum, verifies ownership, and updates each referenced OutputFile's
// status. It rejects the whole batch if any referenced OutputFile's
// datum_id differs from datumID or its recorded pod_name differs from the
// caller — a worker cannot commit another datum's (or another owner's)
// output placeholders.
func (s *Store) CommitOutcomes(ctx context.Context, datumID uuid.UUID, podName string, outcomes []OutputFileOutcome) error {
	return withTx(ctx, s.conn.DB, func(tx *sql.Tx) error {
		datum, err := verifyOwner(ctx, tx, datumID, podName)
		if err != nil {
			return err
		}

		for _, outcome := range outcomes {
			const selectQuery = `SELECT datum_id, pod_name FROM output_files WHERE id = $1 FOR UPDATE`

			var gotDatumID uuid.UUID

			var gotPodName string

			err := tx.QueryRowContext(ctx, selectQuery, outcome.ID).Scan(&gotDatumID, &gotPodName)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrOutputFileNotFound, outcome.ID)
			}

			if err != nil {
				return fmt.Errorf("lock output file: %w", err)
			}

			if gotDatumID != datumID {
				return apperror.Validation(fmt.Sprintf("output file %s does not belong to datum %s", outcome.ID, datumID))
			}

			if gotPodName != podName {
				return apperror.OwnershipMismatch(gotDatumID, datum.JobID, gotPodName, podName)
			}

			const updateQuery = `UPDATE output_files SET status = $1 WHERE id = $2`
			if _, err := tx.ExecContext(ctx, updateQuery, outcome.Status, outcome.ID); err != nil {
				return fmt.Errorf("commit output file outcome: %w", err)
			}
		}

		return nil
	})
}

// FinalizeDatumRequest is the body of Output Protocol Step D.
type FinalizeDatumRequest struct {
	PodName      string
	Status       DatumStatus // Done or Error
	Output       *string
	ErrorMessage *string
	Backtrace    *string
}

// FinalizeDatum implements Output Protocol Step D (spec.md §4.4): it locks
// the Datum, verifies ownership, updates the datum's terminal fields, and
// then — within the same transaction — recomputes the owning Job's
// terminal status once every datum has reached a terminal state
// (invariant I1, property P4).
func (s *Store) FinalizeDatum(ctx context.Context, datumID uuid.UUID, req FinalizeDatumRequest) error {
	return withTx(ctx, s.conn.DB, func(tx *sql.Tx) error {
		datum, err := verifyOwner(ctx, tx, datumID, req.PodName)
		if err != nil {
			return err
		}

		const updateQuery = `
			UPDATE datums
			SET status = $1, output = $2, error_message = $3, backtrace = $4, updated_at = now()
			WHERE id = $5
		`

		if _, err := tx.ExecContext(ctx, updateQuery, req.Status, req.Output, req.ErrorMessage, req.Backtrace, datumID); err != nil {
			return fmt.Errorf("finalize datum: %w", err)
		}

		return recomputeJobTerminalStatus(ctx, tx, datum.JobID)
	})
}

// recomputeJobTerminalStatus implements the remaining-non-terminal-count
// check from spec.md §4.4 Step D and §4.6 Pass 2: if the job has zero
// Ready/Running datums remaining, it becomes Done (every datum Done) or
// Error (otherwise).
func recomputeJobTerminalStatus(ctx context.Context, tx *sql.Tx, jobID uuid.UUID) error {
	const countQuery = `
		SELECT
			count(*) FILTER (WHERE status IN ('ready', 'running')) AS non_terminal,
			count(*) FILTER (WHERE status != 'done') AS non_done
		FROM datums
		WHERE job_id = $1
	`

	var nonTerminal, nonDone int

	if err := tx.QueryRowContext(ctx, countQuery, jobID).Scan(&nonTerminal, &nonDone); err != nil {
		return fmt.Errorf("count remaining datums: %w", err)
	}

	if nonTerminal > 0 {
		return nil
	}

	newStatus := JobDone
	if nonDone > 0 {
		newStatus = JobError
	}

	const updateQuery = `UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`
	if _, err := tx.ExecContext(ctx, updateQuery, newStatus, jobID, JobRunning); err != nil {
		return fmt.Errorf("update job terminal status: %w", err)
	}

	return nil
}
