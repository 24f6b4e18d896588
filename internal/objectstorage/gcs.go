package objectstorage

import (
	"context"

	"github.com/falconeri/falconeri/internal/apperror"
)

// UnimplementedGCSStorage rejects every call: no repository in this
// deployment's dependency set carries a Google Cloud Storage SDK. Rather
// than silently succeed with no objects, every ListPrefix against a gs://
// prefix fails loudly (apperror.Fatal), so a job whose inputs live on gs://
// is rejected at admission before any datum is created.
type UnimplementedGCSStorage struct{}

// ListPrefix implements Storage by always failing.
func (UnimplementedGCSStorage) ListPrefix(_ context.Context, _ string) ([]ObjectInfo, error) {
	return nil, apperror.Fatal("gs:// object storage is not implemented in this deployment", nil)
}
