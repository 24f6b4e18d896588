// Package objectstorage abstracts the object store that Job Admission
// resolves input-file globs against and that workers read/write through;
// the coordination core itself never moves bytes, but Admission's glob
// resolution (spec.md §4.5 step 2) needs to list keys under a prefix.
package objectstorage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/falconeri/falconeri/internal/apperror"
)

// ErrUnsupportedScheme is returned when a URI's scheme has no registered
// Storage implementation.
var ErrUnsupportedScheme = errors.New("unsupported object storage scheme")

// ObjectInfo is one object found under a prefix.
type ObjectInfo struct {
	URI  string
	Size int64
}

// Storage is the object-store collaborator contract as the coordination
// core uses it: list objects under a prefix (for glob resolution). Reading
// and writing single objects is not part of this interface.
type Storage interface {
	// ListPrefix lists every object whose URI starts with prefix.
	ListPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Dispatcher routes Storage calls to the implementation registered for a
// URI's scheme, the way a single coordination-core deployment can admit
// jobs whose inputs live in more than one object store.
type Dispatcher struct {
	backends map[string]Storage
}

// NewDispatcher builds a Dispatcher with no registered backends.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{backends: make(map[string]Storage)}
}

// Register associates a scheme (e.g. "s3") with a Storage implementation.
func (d *Dispatcher) Register(scheme string, backend Storage) {
	d.backends[scheme] = backend
}

// ListPrefix implements Storage by dispatching on the URI's scheme.
func (d *Dispatcher) ListPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	scheme, _, ok := strings.Cut(prefix, "://")
	if !ok {
		return nil, apperror.Validation(fmt.Sprintf("object storage URI missing scheme: %s", prefix))
	}

	backend, ok := d.backends[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}

	return backend.ListPrefix(ctx, prefix)
}
