package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/falconeri/falconeri/internal/apperror"
)

// setupTestDatabase starts a PostgreSQL testcontainer and applies every
// falconeri-migrate schema migration against it.
func setupTestDatabase(ctx context.Context, t *testing.T) *Connection {
	t.Helper()

	container, err := pgcontainer.Run(ctx,
		"postgres:16-alpine",
		pgcontainer.WithDatabase("falconeri_test"),
		pgcontainer.WithUsername("test"),
		pgcontainer.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(120*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := NewConnection(&Config{
		DatabaseURL:     connStr,
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
	})

	require.NoError(t, runTestMigrations(conn.DB))

	return conn
}

func runTestMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://../../cmd/falconeri-migrate", postgresDriver, driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func admitTestJob(ctx context.Context, t *testing.T, s *Store, datumCount int, maxRuns int) *Job {
	t.Helper()

	var datums []NewDatumSpec

	for i := 0; i < datumCount; i++ {
		datums = append(datums, NewDatumSpec{
			MaximumAllowedRunCount: maxRuns,
			Inputs: []NewInputFileSpec{
				{URI: "s3://bucket/in", LocalPath: "/pfs/in"},
			},
		})
	}

	job, err := s.AdmitJob(ctx, CreateJobRequest{
		Name:              "job-" + uuid.NewString(),
		PipelineSpec:      []byte(`{}`),
		Namespace:         "default",
		ParallelismTarget: 1,
		Datums:            datums,
	})
	require.NoError(t, err)

	return job
}

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := setupTestDatabase(ctx, t)
	s := New(conn)

	t.Run("AdmitJob_CreatesDatumsReady", func(t *testing.T) {
		job := admitTestJob(ctx, t, s, 3, 1)

		counts, err := s.DatumStatusCounts(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, counts.Ready)
	})

	t.Run("ReserveNextDatum_NoReadyDatumReturnsNil", func(t *testing.T) {
		job := admitTestJob(ctx, t, s, 0, 1)

		datum, err := s.ReserveNextDatum(ctx, job.ID, "pod-a")
		require.NoError(t, err)
		assert.Nil(t, datum)
	})

	t.Run("ReserveNextDatum_ConcurrentReservationsNeverCollide", func(t *testing.T) {
		const workers = 8

		job := admitTestJob(ctx, t, s, workers, 1)

		seen := make(chan uuid.UUID, workers)

		var wg sync.WaitGroup

		for i := 0; i < workers; i++ {
			wg.Add(1)

			go func(n int) {
				defer wg.Done()

				datum, err := s.ReserveNextDatum(ctx, job.ID, "pod-"+uuid.NewString())
				assert.NoError(t, err)

				if datum != nil {
					seen <- datum.Datum.ID
				}
			}(i)
		}

		wg.Wait()
		close(seen)

		ids := make(map[uuid.UUID]bool)

		for id := range seen {
			assert.False(t, ids[id], "datum %s reserved more than once", id)
			ids[id] = true
		}

		assert.Len(t, ids, workers)
	})

	t.Run("OutputProtocol_FullLifecycleCommitsAndFinalizes", func(t *testing.T) {
		job := admitTestJob(ctx, t, s, 1, 2)

		datum, err := s.ReserveNextDatum(ctx, job.ID, "pod-1")
		require.NoError(t, err)
		require.NotNil(t, datum)

		outputs, err := s.RegisterOutputFiles(ctx, datum.Datum.ID, "pod-1", []string{"s3://out/a", "s3://out/b"})
		require.NoError(t, err)
		require.Len(t, outputs, 2)

		err = s.CommitOutcomes(ctx, datum.Datum.ID, "pod-1", []OutputFileOutcome{
			{ID: outputs[0].ID, Status: OutputFileDone},
			{ID: outputs[1].ID, Status: OutputFileDone},
		})
		require.NoError(t, err)

		err = s.FinalizeDatum(ctx, datum.Datum.ID, FinalizeDatumRequest{
			PodName: "pod-1",
			Status:  DatumDone,
		})
		require.NoError(t, err)

		gotJob, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, JobDone, gotJob.Status)
	})

	t.Run("OwnershipGuard_RejectsWrongPodName", func(t *testing.T) {
		job := admitTestJob(ctx, t, s, 1, 1)

		datum, err := s.ReserveNextDatum(ctx, job.ID, "pod-real")
		require.NoError(t, err)
		require.NotNil(t, datum)

		_, err = s.RegisterOutputFiles(ctx, datum.Datum.ID, "pod-zombie", []string{"s3://out/a"})

		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, apperror.KindOwnershipMismatch, appErr.Kind)
	})

	t.Run("OutputFiles_DuplicateURIWithinJobConflicts", func(t *testing.T) {
		job := admitTestJob(ctx, t, s, 2, 1)

		d1, err := s.ReserveNextDatum(ctx, job.ID, "pod-1")
		require.NoError(t, err)

		d2, err := s.ReserveNextDatum(ctx, job.ID, "pod-2")
		require.NoError(t, err)

		_, err = s.RegisterOutputFiles(ctx, d1.Datum.ID, "pod-1", []string{"s3://out/shared"})
		require.NoError(t, err)

		_, err = s.RegisterOutputFiles(ctx, d2.Datum.ID, "pod-2", []string{"s3://out/shared"})

		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, apperror.KindConflict, appErr.Kind)
	})

	t.Run("RegisterOutputFiles_EmptySliceIsNoOp", func(t *testing.T) {
		job := admitTestJob(ctx, t, s, 1, 1)

		datum, err := s.ReserveNextDatum(ctx, job.ID, "pod-1")
		require.NoError(t, err)

		outputs, err := s.RegisterOutputFiles(ctx, datum.Datum.ID, "pod-1", nil)
		require.NoError(t, err)
		assert.Empty(t, outputs)
	})

	t.Run("RetryExhaustion_NoRequeueAfterCapReached", func(t *testing.T) {
		job := admitTestJob(ctx, t, s, 1, 1)

		datum, err := s.ReserveNextDatum(ctx, job.ID, "pod-1")
		require.NoError(t, err)

		_, err = s.RegisterOutputFiles(ctx, datum.Datum.ID, "pod-1", []string{"s3://out/x"})
		require.NoError(t, err)

		err = s.FinalizeDatum(ctx, datum.Datum.ID, FinalizeDatumRequest{
			PodName: "pod-1",
			Status:  DatumError,
		})
		require.NoError(t, err)

		requeued, err := s.requeueErroredDatum(ctx, datum.Datum.ID)
		require.NoError(t, err)
		assert.False(t, requeued)

		gotJob, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, JobError, gotJob.Status)

		files, err := s.ListInputFiles(ctx, datum.Datum.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, files)
	})

	t.Run("ZombieSplitBrain_RetryAfterZombieMarkRejectsOldOwner", func(t *testing.T) {
		job := admitTestJob(ctx, t, s, 1, 2)

		d, err := s.ReserveNextDatum(ctx, job.ID, "w1")
		require.NoError(t, err)

		_, err = s.RegisterOutputFiles(ctx, d.Datum.ID, "w1", []string{"s3://out/x"})
		require.NoError(t, err)

		marked, err := s.MarkDatumZombie(ctx, d.Datum.ID, func(pod string) bool { return false })
		require.NoError(t, err)
		assert.True(t, marked)

		requeued, err := s.requeueErroredDatum(ctx, d.Datum.ID)
		require.NoError(t, err)
		assert.True(t, requeued)

		d2, err := s.ReserveNextDatum(ctx, job.ID, "w2")
		require.NoError(t, err)
		require.NotNil(t, d2)
		assert.Equal(t, d.Datum.ID, d2.Datum.ID)

		outputs, err := s.RegisterOutputFiles(ctx, d2.Datum.ID, "w2", []string{"s3://out/x"})
		require.NoError(t, err)

		err = s.CommitOutcomes(ctx, d2.Datum.ID, "w2", []OutputFileOutcome{{ID: outputs[0].ID, Status: OutputFileDone}})
		require.NoError(t, err)

		_, err = s.RegisterOutputFiles(ctx, d.Datum.ID, "w1", []string{"s3://out/y"})

		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, apperror.KindOwnershipMismatch, appErr.Kind)
	})

	t.Run("VanishedJob_MarkedErrorOnlyWhenStillVanished", func(t *testing.T) {
		job := admitTestJob(ctx, t, s, 1, 1)

		var calls int32

		marked, err := s.MarkJobVanished(ctx, job.ID, func(ctx context.Context) (bool, error) {
			atomic.AddInt32(&calls, 1)

			return true, nil
		})
		require.NoError(t, err)
		assert.True(t, marked)
		assert.Equal(t, int32(1), calls)

		gotJob, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, JobError, gotJob.Status)

		marked, err = s.MarkJobVanished(ctx, job.ID, func(ctx context.Context) (bool, error) {
			return true, nil
		})
		require.NoError(t, err)
		assert.False(t, marked, "job already terminal, second pass is a no-op")
	})

	t.Run("RetryJob_ReopensJobAndRequeuesEligibleDatums", func(t *testing.T) {
		job := admitTestJob(ctx, t, s, 2, 2)

		d1, err := s.ReserveNextDatum(ctx, job.ID, "pod-1")
		require.NoError(t, err)

		d2, err := s.ReserveNextDatum(ctx, job.ID, "pod-2")
		require.NoError(t, err)

		require.NoError(t, s.FinalizeDatum(ctx, d1.Datum.ID, FinalizeDatumRequest{PodName: "pod-1", Status: DatumError}))
		require.NoError(t, s.FinalizeDatum(ctx, d2.Datum.ID, FinalizeDatumRequest{PodName: "pod-2", Status: DatumDone}))

		gotJob, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, JobError, gotJob.Status)

		n, err := s.RetryJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		gotJob, err = s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, JobRunning, gotJob.Status)

		counts, err := s.DatumStatusCounts(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, counts.Ready)
		assert.Equal(t, 1, counts.Done)
	})
}
