// Package main provides falconeri-migrate, the coordination core's
// database migration CLI: up/down/status/version/drop commands over an
// embedded schema, for zero-config deployment.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
)

//nolint:gochecknoglobals // build-time version injection via -ldflags -X
var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

// ErrUnknownCommand is returned for an unrecognized CLI command.
var ErrUnknownCommand = errors.New("unknown command")

// ErrDropRequiresForce guards the destructive drop command.
var ErrDropRequiresForce = errors.New("drop command requires --force (this destroys all data)")

func main() {
	var (
		showHelp    = flag.Bool("help", false, "show help information")
		showVersion = flag.Bool("version", false, "show version information")
		force       = flag.Bool("force", false, "force dangerous operations without confirmation")
	)

	flag.Parse()

	if *showVersion {
		printVersionInfo()
		os.Exit(0)
	}

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	runner, err := NewMigrationRunner(cfg)
	if err != nil {
		log.Fatalf("failed to create migration runner: %v", err)
	}

	defer func() {
		_ = runner.Close()
	}()

	if err := executeCommand(args[0], runner, *force); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
}

func executeCommand(command string, runner MigrationRunner, force bool) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "version":
		return runner.Version()
	case "drop":
		if !force {
			return ErrDropRequiresForce
		}

		return runner.Drop()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

func printVersionInfo() {
	log.Printf("falconeri-migrate v%s", version)
	log.Printf("git commit: %s", gitCommit)
	log.Printf("build time: %s", buildTime)
}

func printUsage() {
	log.Print(`falconeri-migrate - coordination core database migration tool

USAGE:
    falconeri-migrate [OPTIONS] COMMAND

COMMANDS:
    up       apply all pending migrations
    down     roll back the last migration
    status   show migration status
    version  show current migration version
    drop     drop all tables (DESTRUCTIVE, requires --force)

OPTIONS:
    --help     show this help message
    --version  show version information
    --force    force dangerous operations without confirmation

ENVIRONMENT VARIABLES:
    DATABASE_URL     PostgreSQL connection string (required)
    MIGRATION_TABLE  name of migration tracking table (default: schema_migrations)
`)
}
