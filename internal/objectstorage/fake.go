package objectstorage

import "context"

// FakeStorage is an in-memory Storage for Admission tests.
type FakeStorage struct {
	Objects map[string][]ObjectInfo // prefix -> objects to return verbatim

	ListPrefixFunc func(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// NewFakeStorage returns an empty FakeStorage.
func NewFakeStorage() *FakeStorage {
	return &FakeStorage{Objects: make(map[string][]ObjectInfo)}
}

// ListPrefix implements Storage.
func (f *FakeStorage) ListPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if f.ListPrefixFunc != nil {
		return f.ListPrefixFunc(ctx, prefix)
	}

	return f.Objects[prefix], nil
}
