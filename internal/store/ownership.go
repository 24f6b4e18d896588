package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/falconeri/falconeri/internal/apperror"
)

// ErrDatumNotFound is returned by verifyOwner when the referenced datum
// does not exist.
var ErrDatumNotFound = errors.New("datum not found")

// verifyOwner is the Ownership Guard (spec.md §4.2): the predicate every
// datum-mutating operation evaluates before touching a specific datum.
//
// It locks the Datum row FOR UPDATE within the caller's transaction, reads
// the recorded owner, and fails with apperror.OwnershipMismatch if it does
// not exactly match claimedPod. Callers that only need the lock (e.g. to
// then overwrite pod_name during reservation) should call lockDatum
// directly instead.
func verifyOwner(ctx context.Context, tx *sql.Tx, datumID uuid.UUID, claimedPod string) (*Datum, error) {
	datum, err := lockDatum(ctx, tx, datumID)
	if err != nil {
		return nil, err
	}

	actual := ""
	if datum.PodName != nil {
		actual = *datum.PodName
	}

	if actual != claimedPod {
		return nil, apperror.OwnershipMismatch(datum.ID, datum.JobID, actual, claimedPod)
	}

	return datum, nil
}

// lockDatum selects a Datum row FOR UPDATE, without checking ownership.
func lockDatum(ctx context.Context, tx *sql.Tx, datumID uuid.UUID) (*Datum, error) {
	const query = `
		SELECT id, job_id, status, pod_name, attempted_run_count, maximum_allowed_run_count,
		       output, error_message, backtrace, created_at, updated_at
		FROM datums
		WHERE id = $1
		FOR UPDATE
	`

	datum := &Datum{}

	var status string

	err := tx.QueryRowContext(ctx, query, datumID).Scan(
		&datum.ID, &datum.JobID, &status, &datum.PodName,
		&datum.AttemptedRunCount, &datum.MaximumAllowedRunCount,
		&datum.Output, &datum.ErrorMessage, &datum.Backtrace,
		&datum.CreatedAt, &datum.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDatumNotFound, datumID)
	}

	if err != nil {
		return nil, fmt.Errorf("lock datum: %w", err)
	}

	datum.Status = DatumStatus(status)

	return datum, nil
}
