package babysitter

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/falconeri/falconeri/internal/events"
	"github.com/falconeri/falconeri/internal/orchestrator"
	"github.com/falconeri/falconeri/internal/store"
)

const postgresDriver = "postgres"

func setupTestStore(ctx context.Context, t *testing.T) *store.Store {
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

	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := store.NewConnection(&store.Config{DatabaseURL: connStr, MaxOpenConns: 4, MaxIdleConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, runTestMigrations(conn.DB))

	return store.New(conn)
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

func admitJob(ctx context.Context, t *testing.T, s *store.Store) *store.Job {
	t.Helper()

	job, err := s.AdmitJob(ctx, store.CreateJobRequest{
		Name:              "job-" + time.Now().Format("150405.000000000"),
		PipelineSpec:      []byte(`{}`),
		Namespace:         "default",
		ParallelismTarget: 1,
		Datums: []store.NewDatumSpec{{
			MaximumAllowedRunCount: 2,
			Inputs:                 []store.NewInputFileSpec{{URI: "s3://bucket/in", LocalPath: "/pfs/in"}},
		}},
	})
	require.NoError(t, err)

	return job
}

func TestBabysitterIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	log := slog.New(slog.DiscardHandler)

	t.Run("PassVanishedJobs_MarksJobErrorPastGrace", func(t *testing.T) {
		s := setupTestStore(ctx, t)
		job := admitJob(ctx, t, s)

		orch := orchestrator.NewFakeOrchestrator() // reports no batch jobs at all
		pub := events.NewFakePublisher()

		b := New(s, orch, pub, log,
			WithVanishedGrace(0),
		)

		require.NoError(t, b.PassVanishedJobs(ctx))

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		require.Equal(t, store.JobError, got.Status)
		require.Len(t, pub.All(), 1)
		require.Equal(t, events.JobError, pub.All()[0].Type)
	})

	t.Run("PassZombieDatums_MarksRunningDatumWithNoLivePod", func(t *testing.T) {
		s := setupTestStore(ctx, t)
		job := admitJob(ctx, t, s)

		reserved, err := s.ReserveNextDatum(ctx, job.ID, "pod-vanished")
		require.NoError(t, err)
		require.NotNil(t, reserved)

		orch := orchestrator.NewFakeOrchestrator()
		orch.SetPods(nil) // no live pods: pod-vanished is a zombie
		pub := events.NewFakePublisher()

		b := New(s, orch, pub, log)

		require.NoError(t, b.PassZombieDatums(ctx))

		got, err := s.GetDatum(ctx, reserved.Datum.ID)
		require.NoError(t, err)
		require.Equal(t, store.DatumError, got.Status)
	})

	t.Run("PassRetryAdmission_RequeuesEligibleDatum", func(t *testing.T) {
		s := setupTestStore(ctx, t)
		job := admitJob(ctx, t, s)

		reserved, err := s.ReserveNextDatum(ctx, job.ID, "pod-1")
		require.NoError(t, err)
		require.NoError(t, s.FinalizeDatum(ctx, reserved.Datum.ID, store.FinalizeDatumRequest{
			PodName: "pod-1",
			Status:  store.DatumError,
		}))

		orch := orchestrator.NewFakeOrchestrator()
		pub := events.NewFakePublisher()
		b := New(s, orch, pub, log)

		require.NoError(t, b.PassRetryAdmission(ctx))

		got, err := s.GetDatum(ctx, reserved.Datum.ID)
		require.NoError(t, err)
		require.Equal(t, store.DatumReady, got.Status)
		require.Nil(t, got.PodName)
	})
}
