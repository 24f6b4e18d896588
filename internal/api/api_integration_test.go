package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/falconeri/falconeri/internal/admission"
	"github.com/falconeri/falconeri/internal/objectstorage"
	"github.com/falconeri/falconeri/internal/orchestrator"
	"github.com/falconeri/falconeri/internal/store"
)

const (
	postgresDriver = "postgres"
	testPassword   = "s3cret"
)

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

func setupTestServer(t *testing.T, s *store.Store) *httptest.Server {
	t.Helper()

	fakeStorage := objectstorage.NewFakeStorage()
	fakeStorage.Objects["s3://bucket/in/"] = []objectstorage.ObjectInfo{{URI: "s3://bucket/in/a.txt"}}

	dispatcher := objectstorage.NewDispatcher()
	dispatcher.Register("s3", fakeStorage)

	admitter := admission.NewAdmitter(s, dispatcher, orchestrator.NewFakeOrchestrator(), "default")

	cfg := ServerConfig{
		Port:            DefaultPort,
		Host:            DefaultHost,
		ReadTimeout:     DefaultTimeout,
		WriteTimeout:    DefaultTimeout,
		ShutdownTimeout: DefaultTimeout,
		LogLevel:        slog.LevelError,
		MaxRequestSize:  DefaultMaxRequestSize,
		AdminPassword:   testPassword,
		Namespace:       "default",
		GlobalRPS:       1000,
		PerClientRPS:    1000,
	}

	srv, err := NewServer(&cfg, s, admitter, "test")
	require.NoError(t, err)

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)

	return ts
}

func authedRequest(t *testing.T, method, url string, body []byte) *http.Request {
	t.Helper()

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)

	req.SetBasicAuth(BasicAuthUser, testPassword)
	req.Header.Set("Content-Type", "application/json")

	return req
}

func TestAPIIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	t.Run("SubmitJob_ThenReserveAndFinalise", func(t *testing.T) {
		s := setupTestStore(ctx, t)
		ts := setupTestServer(t, s)

		spec := []byte(`{"pipeline_spec": {
			"pipeline": {"name": "word-count"},
			"transform": {"image": "busybox", "cmd": ["wc"]},
			"input": {"atom": {"uri": "s3://bucket/in/", "glob": "/*"}},
			"egress": {"uri": "s3://bucket/out/"},
			"parallelism_spec": {"constant": 1},
			"resource_requests": {"memory": "256Mi", "cpu": "250m"}
		}}`)

		resp, err := ts.Client().Do(authedRequest(t, http.MethodPost, ts.URL+"/jobs", spec))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var submitted Envelope
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))

		job := submitted.Resource.(map[string]any)
		jobID := job["id"].(string)

		reserveResp, err := ts.Client().Do(authedRequest(t, http.MethodPost,
			ts.URL+"/jobs/"+jobID+"/reserve_next_datum", []byte(`{"pod_name":"pod-1"}`)))
		require.NoError(t, err)
		defer reserveResp.Body.Close()
		require.Equal(t, http.StatusOK, reserveResp.StatusCode)

		var reserved Envelope
		require.NoError(t, json.NewDecoder(reserveResp.Body).Decode(&reserved))
		datum := reserved.Resource.(map[string]any)["datum"].(map[string]any)
		datumID := datum["id"].(string)

		finalizeBody := []byte(`{"pod_name":"pod-1","status":"done"}`)
		finalizeResp, err := ts.Client().Do(authedRequest(t, http.MethodPatch,
			ts.URL+"/datums/"+datumID, finalizeBody))
		require.NoError(t, err)
		defer finalizeResp.Body.Close()
		require.Equal(t, http.StatusOK, finalizeResp.StatusCode)
	})

	t.Run("WrongCredentials_Returns401", func(t *testing.T) {
		s := setupTestStore(ctx, t)
		ts := setupTestServer(t, s)

		req, err := http.NewRequest(http.MethodGet, ts.URL+"/jobs/list", nil)
		require.NoError(t, err)
		req.SetBasicAuth(BasicAuthUser, "wrong-password")

		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("FinalizeWithWrongOwner_Returns403WithActualAndClaimed", func(t *testing.T) {
		s := setupTestStore(ctx, t)
		ts := setupTestServer(t, s)

		job, err := s.AdmitJob(ctx, store.CreateJobRequest{
			Name:              "job-ownership",
			PipelineSpec:      []byte(`{}`),
			Namespace:         "default",
			ParallelismTarget: 1,
			Datums: []store.NewDatumSpec{{
				MaximumAllowedRunCount: 2,
				Inputs:                 []store.NewInputFileSpec{{URI: "s3://bucket/in/a.txt", LocalPath: "/pfs/a.txt"}},
			}},
		})
		require.NoError(t, err)

		reserved, err := s.ReserveNextDatum(ctx, job.ID, "pod-real")
		require.NoError(t, err)
		require.NotNil(t, reserved)

		body := []byte(`{"pod_name":"pod-impostor","status":"done"}`)
		resp, err := ts.Client().Do(authedRequest(t, http.MethodPatch,
			ts.URL+"/datums/"+reserved.Datum.ID.String(), body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)

		var problem ProblemDetail
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
		require.Equal(t, "pod-real", problem.Actual)
		require.Equal(t, "pod-impostor", problem.Claimed)
	})

	t.Run("GetVersion_IsPublicAndNeedsNoAuth", func(t *testing.T) {
		s := setupTestStore(ctx, t)
		ts := setupTestServer(t, s)

		resp, err := ts.Client().Get(ts.URL + "/version")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
