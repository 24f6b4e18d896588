package main

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// EmbeddedMigration validates and serves the coordination core's schema
// migrations from a go:embed filesystem, so the falconeri-migrate binary
// needs no external file dependencies at deploy time.
type EmbeddedMigration struct {
	fs        fs.FS
	checksums map[string]string
}

// MigrationInfo is the parsed form of one migration filename.
type MigrationInfo struct {
	Sequence  int
	Name      string
	Direction string // "up" or "down"
	Filename  string
}

//go:embed *.sql
var embeddedMigrations embed.FS

// migrationFilenameRegex matches 001_name.up.sql / 001_name.down.sql.
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// NewEmbeddedMigration wraps filesystem for testing; pass nil for the
// real embedded migrations.
func NewEmbeddedMigration(filesystem fs.FS) *EmbeddedMigration {
	if filesystem == nil {
		filesystem = embeddedMigrations
	}

	return &EmbeddedMigration{
		fs:        filesystem,
		checksums: make(map[string]string),
	}
}

// GetEmbeddedMigrations returns the embedded filesystem.
func (e *EmbeddedMigration) GetEmbeddedMigrations() fs.FS {
	return e.fs
}

// ListEmbeddedMigrations lists every embedded file matching the naming
// convention, lexicographically sorted (which sorts down before up within
// a sequence).
func (e *EmbeddedMigration) ListEmbeddedMigrations() ([]string, error) {
	entries, err := fs.ReadDir(e.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()

		if filepath.Ext(filename) == ".sql" && migrationFilenameRegex.MatchString(filename) {
			files = append(files, filename)
		}
	}

	sort.Strings(files)

	return files, nil
}

// ValidateEmbeddedMigrations runs filename, pairing, sequence, and
// checksum validation over the embedded migration set.
func (e *EmbeddedMigration) ValidateEmbeddedMigrations() error {
	files, err := e.ListEmbeddedMigrations()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}

	for _, file := range files {
		if _, err := e.GetEmbeddedMigrationContent(file); err != nil {
			return fmt.Errorf("read migration file %s: %w", file, err)
		}
	}

	if err := e.validateFilenames(files); err != nil {
		return err
	}

	if err := e.validatePairing(files); err != nil {
		return err
	}

	if err := e.validateSequence(files); err != nil {
		return err
	}

	if len(e.checksums) > 0 {
		if err := e.validateChecksums(files); err != nil {
			return err
		}
	}

	for _, file := range files {
		content, err := e.GetEmbeddedMigrationContent(file)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", file, err)
		}

		e.checksums[file] = e.calculateChecksum(content)
	}

	return nil
}

// GetEmbeddedMigrationContent returns the raw content of one migration file.
func (e *EmbeddedMigration) GetEmbeddedMigrationContent(filename string) ([]byte, error) {
	return fs.ReadFile(e.fs, filename)
}

func (e *EmbeddedMigration) parseMigrationFilename(filename string) (*MigrationInfo, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if len(matches) != 4 {
		return nil, fmt.Errorf("invalid migration filename: %s", filename)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid sequence number in %s: %w", filename, err)
	}

	return &MigrationInfo{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, nil
}

func (e *EmbeddedMigration) validateFilenames(files []string) error {
	for _, file := range files {
		if _, err := e.parseMigrationFilename(file); err != nil {
			return fmt.Errorf("filename validation failed for %s: %w", file, err)
		}
	}

	return nil
}

func (e *EmbeddedMigration) validatePairing(files []string) error {
	migrations := make(map[string]map[string]*MigrationInfo)

	for _, file := range files {
		migration, err := e.parseMigrationFilename(file)
		if err != nil {
			return err
		}

		key := fmt.Sprintf("%03d_%s", migration.Sequence, migration.Name)
		if migrations[key] == nil {
			migrations[key] = make(map[string]*MigrationInfo)
		}

		migrations[key][migration.Direction] = migration
	}

	for key, directions := range migrations {
		if len(directions) != 2 {
			if _, hasUp := directions["up"]; !hasUp {
				return fmt.Errorf("orphaned down migration: missing up migration for %s", key)
			}

			if _, hasDown := directions["down"]; !hasDown {
				return fmt.Errorf("orphaned up migration: missing down migration for %s", key)
			}
		}
	}

	return nil
}

func (e *EmbeddedMigration) validateSequence(files []string) error {
	sequences := make(map[int]bool)

	for _, file := range files {
		migration, err := e.parseMigrationFilename(file)
		if err != nil {
			return err
		}

		sequences[migration.Sequence] = true
	}

	var sequenceNumbers []int
	for seq := range sequences {
		sequenceNumbers = append(sequenceNumbers, seq)
	}

	sort.Ints(sequenceNumbers)

	if len(sequenceNumbers) == 0 {
		return nil
	}

	if sequenceNumbers[0] != 1 {
		return fmt.Errorf("migration sequence should start with 001, found %03d", sequenceNumbers[0])
	}

	for i := 1; i < len(sequenceNumbers); i++ {
		expected := sequenceNumbers[i-1] + 1
		if sequenceNumbers[i] != expected {
			return fmt.Errorf("gap in migration sequence: expected %03d, found %03d", expected, sequenceNumbers[i])
		}
	}

	return nil
}

func (e *EmbeddedMigration) calculateChecksum(content []byte) string {
	hash := sha256.Sum256(content)

	return fmt.Sprintf("%x", hash)
}

func (e *EmbeddedMigration) validateChecksums(files []string) error {
	for _, file := range files {
		content, err := e.GetEmbeddedMigrationContent(file)
		if err != nil {
			return fmt.Errorf("read file %s for checksum validation: %w", file, err)
		}

		currentChecksum := e.calculateChecksum(content)
		if storedChecksum, exists := e.checksums[file]; exists && storedChecksum != currentChecksum {
			return fmt.Errorf("checksum mismatch for %s: file has been modified", file)
		}
	}

	return nil
}
