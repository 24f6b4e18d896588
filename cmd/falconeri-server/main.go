// Package main provides the Falconeri coordination core: the REST API,
// Job Admission, and Babysitter reconciliation loop, wired together
// behind a single PostgreSQL-backed Store.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/falconeri/falconeri/internal/admission"
	"github.com/falconeri/falconeri/internal/api"
	"github.com/falconeri/falconeri/internal/babysitter"
	"github.com/falconeri/falconeri/internal/config"
	"github.com/falconeri/falconeri/internal/events"
	"github.com/falconeri/falconeri/internal/objectstorage"
	"github.com/falconeri/falconeri/internal/orchestrator"
	"github.com/falconeri/falconeri/internal/store"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "falconeri-server"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("starting falconeri coordination core",
		slog.String("service", name),
		slog.String("version", version),
	)

	dbConfig := store.LoadConfig()
	if err := dbConfig.Validate(); err != nil {
		logger.Error("invalid database configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	conn, err := store.NewConnection(dbConfig)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer conn.Close()

	s := store.New(conn)

	orch, err := newOrchestrator(logger)
	if err != nil {
		logger.Error("failed to build orchestrator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dispatcher, err := newObjectStorage(context.Background())
	if err != nil {
		logger.Error("failed to build object storage", slog.String("error", err.Error()))
		os.Exit(1)
	}

	publisher := events.New(logger)
	defer publisher.Close()

	admitter := admission.NewAdmitter(s, dispatcher, orch, serverConfig.Namespace)

	reconciler := babysitter.New(s, orch, publisher, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reconciler.Run(ctx)

	server, err := api.NewServer(&serverConfig, s, admitter, version)
	if err != nil {
		logger.Error("failed to build api server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := server.Start(); err != nil {
		logger.Error("server failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("falconeri coordination core stopped")
}

// newOrchestrator builds a Kubernetes-backed Orchestrator, or a Fake one
// when FALCONERI_KUBECONFIG is unset, mirroring the "no broker configured"
// fallback events.New uses for FALCONERI_KAFKA_BROKERS.
func newOrchestrator(logger *slog.Logger) (orchestrator.Orchestrator, error) {
	kubeconfig := config.GetEnvStr("FALCONERI_KUBECONFIG", "")
	if kubeconfig == "" {
		logger.Warn("FALCONERI_KUBECONFIG not set, using in-memory fake orchestrator")

		return orchestrator.NewFakeOrchestrator(), nil
	}

	return orchestrator.NewKubernetesOrchestrator(kubeconfig, logger)
}

// newObjectStorage registers every object storage backend this deployment
// carries a driver for. gs:// is registered but always fails loudly,
// since no repository in this dependency set carries a GCS SDK.
func newObjectStorage(ctx context.Context) (*objectstorage.Dispatcher, error) {
	dispatcher := objectstorage.NewDispatcher()

	s3Endpoint := config.GetEnvStr("FALCONERI_S3_ENDPOINT", "")

	s3Storage, err := objectstorage.NewS3Storage(ctx, s3Endpoint)
	if err != nil {
		return nil, err
	}

	dispatcher.Register("s3", s3Storage)
	dispatcher.Register("gs", objectstorage.UnimplementedGCSStorage{})

	return dispatcher, nil
}
