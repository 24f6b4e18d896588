package babysitter

import (
	"context"
	"fmt"

	"github.com/falconeri/falconeri/internal/events"
)

// PassVanishedJobs implements spec.md §4.6 Pass 1: every Job still Running
// past the vanished grace period is rechecked against the orchestrator's
// current batch job list, and transitioned to Error if it still has none.
func (b *Babysitter) PassVanishedJobs(ctx context.Context) error {
	threshold := b.now().Add(-b.vanishedGrace)

	jobs, err := b.store.ListRunningJobsOlderThan(ctx, threshold)
	if err != nil {
		return fmt.Errorf("list running jobs older than grace period: %w", err)
	}

	batchJobs, err := b.orchestrator.ListBatchJobs(ctx)
	if err != nil {
		return fmt.Errorf("list batch jobs: %w", err)
	}

	live := make(map[string]bool, len(batchJobs))
	for _, bj := range batchJobs {
		live[bj.Namespace+"/"+bj.Name] = true
	}

	for _, job := range jobs {
		key := job.Namespace + "/" + job.Name

		marked, err := b.store.MarkJobVanished(ctx, job.ID, func(context.Context) (bool, error) {
			return !live[key], nil
		})
		if err != nil {
			b.log.Error("mark job vanished", "job_id", job.ID, "error", err)
			continue
		}

		if marked {
			b.log.Warn("job marked vanished", "job_id", job.ID, "job_name", job.Name)
			b.publisher.Publish(ctx, events.Event{
				Type:      events.JobError,
				JobID:     job.ID.String(),
				Reason:    "batch job vanished",
				Timestamp: b.now(),
			})
		}
	}

	return nil
}

// PassZombieDatums implements spec.md §4.6 Pass 2: every Datum still
// Running whose recorded pod is absent from the orchestrator's live pod
// set is rechecked and transitioned to Error.
func (b *Babysitter) PassZombieDatums(ctx context.Context) error {
	datums, err := b.store.ListRunningDatumsAllJobs(ctx)
	if err != nil {
		return fmt.Errorf("list running datums: %w", err)
	}

	pods, err := b.orchestrator.ListPods(ctx)
	if err != nil {
		return fmt.Errorf("list pods: %w", err)
	}

	live := make(map[string]bool, len(pods))
	for _, p := range pods {
		live[p.Name] = true
	}

	for _, datum := range datums {
		marked, err := b.store.MarkDatumZombie(ctx, datum.ID, func(podName string) bool {
			return live[podName]
		})
		if err != nil {
			b.log.Error("mark datum zombie", "datum_id", datum.ID, "error", err)
			continue
		}

		if marked {
			b.log.Warn("datum marked zombie", "datum_id", datum.ID, "job_id", datum.JobID)
			b.publisher.Publish(ctx, events.Event{
				Type:      events.DatumError,
				JobID:     datum.JobID.String(),
				DatumID:   datum.ID.String(),
				Reason:    "worker pod disappeared",
				Timestamp: b.now(),
			})
		}
	}

	return nil
}

// PassRetryAdmission implements spec.md §4.6 Pass 3: every Datum that is
// Error and still under its retry cap is requeued to Ready, with its
// OutputFiles deleted to free the (job_id, uri) uniqueness budget.
func (b *Babysitter) PassRetryAdmission(ctx context.Context) error {
	ids, err := b.store.ListRetryEligibleDatums(ctx)
	if err != nil {
		return fmt.Errorf("list retry-eligible datums: %w", err)
	}

	for _, id := range ids {
		requeued, err := b.store.RequeueDatum(ctx, id)
		if err != nil {
			b.log.Error("requeue datum", "datum_id", id, "error", err)
			continue
		}

		if requeued {
			b.log.Info("datum requeued for retry", "datum_id", id)
		}
	}

	return nil
}
