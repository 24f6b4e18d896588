package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const vanishedPodMessage = "worker pod disappeared"

// requeueErroredDatum implements Babysitter Pass 3's per-datum retry step
// (spec.md §4.6): it locks the Datum, re-checks that it is still Error and
// still under its retry cap, deletes all of its OutputFile rows (invariant
// I6 — a re-queued datum starts with none), and resets it to Ready with no
// owner and no error fields. Applying it twice to the same datum is a
// no-op the second time (law L1): once requeued the status is no longer
// Error, so the re-check fails and it reports no-op via ok=false.
func (s *Store) requeueErroredDatum(ctx context.Context, datumID uuid.UUID) (bool, error) {
	var requeued bool

	err := withTx(ctx, s.conn.DB, func(tx *sql.Tx) error {
		datum, err := lockDatum(ctx, tx, datumID)
		if err != nil {
			if errors.Is(err, ErrDatumNotFound) {
				return nil
			}

			return err
		}

		if datum.Status != DatumError || !datum.eligibleForRetry() {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM output_files WHERE datum_id = $1`, datumID); err != nil {
			return fmt.Errorf("delete output files for retry: %w", err)
		}

		const updateQuery = `
			UPDATE datums
			SET status = $1, pod_name = NULL, output = NULL, error_message = NULL, backtrace = NULL, updated_at = now()
			WHERE id = $2
		`

		if _, err := tx.ExecContext(ctx, updateQuery, DatumReady, datumID); err != nil {
			return fmt.Errorf("requeue datum: %w", err)
		}

		const reopenJobQuery = `UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2 AND status != $1`
		if _, err := tx.ExecContext(ctx, reopenJobQuery, JobRunning, datum.JobID); err != nil {
			return fmt.Errorf("reopen job for retry: %w", err)
		}

		requeued = true

		return nil
	})

	return requeued, err
}

// ListRetryEligibleDatums returns every Datum across all Jobs that is
// status=Error and still under its retry cap, for Babysitter Pass 3
// (spec.md §4.6).
func (s *Store) ListRetryEligibleDatums(ctx context.Context) ([]uuid.UUID, error) {
	const query = `
		SELECT id FROM datums
		WHERE status = $1 AND attempted_run_count < maximum_allowed_run_count
	`

	rows, err := s.conn.QueryContext(ctx, query, DatumError)
	if err != nil {
		return nil, fmt.Errorf("list retry-eligible datums: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan retry-eligible datum: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// RequeueDatum is the Babysitter-facing entry point for Pass 3: it
// requeues one datum via requeueErroredDatum, which also sets the owning
// Job back to Running. No terminal-status recompute runs here, since the
// job then has a Ready datum; an exhausted-retry datum is left alone and
// its job is closed out by the next Step D or Pass 2 recompute.
func (s *Store) RequeueDatum(ctx context.Context, datumID uuid.UUID) (bool, error) {
	return s.requeueErroredDatum(ctx, datumID)
}

// ListRunningDatumsAllJobs returns every Datum currently Running across
// all Jobs, for Babysitter Pass 2 to cross-reference against the
// orchestrator's live pod set.
func (s *Store) ListRunningDatumsAllJobs(ctx context.Context) ([]Datum, error) {
	const query = `
		SELECT id, job_id, status, pod_name, attempted_run_count, maximum_allowed_run_count,
		       output, error_message, backtrace, created_at, updated_at
		FROM datums
		WHERE status = $1
	`

	rows, err := s.conn.QueryContext(ctx, query, DatumRunning)
	if err != nil {
		return nil, fmt.Errorf("list running datums: %w", err)
	}
	defer rows.Close()

	var datums []Datum

	for rows.Next() {
		var d Datum

		var status string
		if err := rows.Scan(
			&d.ID, &d.JobID, &status, &d.PodName,
			&d.AttemptedRunCount, &d.MaximumAllowedRunCount,
			&d.Output, &d.ErrorMessage, &d.Backtrace,
			&d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan datum: %w", err)
		}

		d.Status = DatumStatus(status)
		datums = append(datums, d)
	}

	return datums, rows.Err()
}

// MarkDatumZombie implements Babysitter Pass 2's per-datum step: it locks
// the Datum, re-checks that it is still Running and still orphaned
// (podIsLive returns false for its recorded pod_name), transitions it to
// Error with a fixed reason, and recomputes its owning Job's terminal
// status within the same transaction.
func (s *Store) MarkDatumZombie(ctx context.Context, datumID uuid.UUID, podIsLive func(podName string) bool) (bool, error) {
	var marked bool

	err := withTx(ctx, s.conn.DB, func(tx *sql.Tx) error {
		datum, err := lockDatum(ctx, tx, datumID)
		if err != nil {
			if errors.Is(err, ErrDatumNotFound) {
				return nil
			}

			return err
		}

		if datum.Status != DatumRunning {
			return nil
		}

		pod := ""
		if datum.PodName != nil {
			pod = *datum.PodName
		}

		if podIsLive(pod) {
			return nil
		}

		reason := vanishedPodMessage

		const updateQuery = `
			UPDATE datums
			SET status = $1, error_message = $2, updated_at = now()
			WHERE id = $3
		`

		if _, err := tx.ExecContext(ctx, updateQuery, DatumError, reason, datumID); err != nil {
			return fmt.Errorf("mark datum zombie: %w", err)
		}

		marked = true

		return recomputeJobTerminalStatus(ctx, tx, datum.JobID)
	})

	return marked, err
}
