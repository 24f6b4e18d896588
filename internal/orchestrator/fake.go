package orchestrator

import (
	"context"
	"sync"
)

// FakeOrchestrator is an in-memory Orchestrator for Babysitter and
// Admission tests, mirroring the teacher's Mock*Func-field convention but
// carrying real state across calls, since reconciliation tests need
// List/Submit/Delete to observe each other's effects within one test.
type FakeOrchestrator struct {
	mu sync.Mutex

	pods []PodInfo
	jobs map[string]BatchJobSpec

	ListPodsFunc       func(ctx context.Context) ([]PodInfo, error)
	ListBatchJobsFunc  func(ctx context.Context) ([]BatchJobInfo, error)
	SubmitBatchJobFunc func(ctx context.Context, spec BatchJobSpec) error
	DeleteBatchJobFunc func(ctx context.Context, namespace, name string) error
}

// NewFakeOrchestrator returns an empty FakeOrchestrator.
func NewFakeOrchestrator() *FakeOrchestrator {
	return &FakeOrchestrator{jobs: make(map[string]BatchJobSpec)}
}

// SetPods replaces the set of pods ListPods reports as live, so tests can
// simulate a worker vanishing between Babysitter passes.
func (f *FakeOrchestrator) SetPods(pods []PodInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pods = pods
}

// ListPods implements Orchestrator.
func (f *FakeOrchestrator) ListPods(ctx context.Context) ([]PodInfo, error) {
	if f.ListPodsFunc != nil {
		return f.ListPodsFunc(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]PodInfo, len(f.pods))
	copy(out, f.pods)

	return out, nil
}

// ListBatchJobs implements Orchestrator.
func (f *FakeOrchestrator) ListBatchJobs(ctx context.Context) ([]BatchJobInfo, error) {
	if f.ListBatchJobsFunc != nil {
		return f.ListBatchJobsFunc(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	jobs := make([]BatchJobInfo, 0, len(f.jobs))

	for _, spec := range f.jobs {
		jobs = append(jobs, BatchJobInfo{Name: spec.Name, Namespace: spec.Namespace})
	}

	return jobs, nil
}

// SubmitBatchJob implements Orchestrator.
func (f *FakeOrchestrator) SubmitBatchJob(ctx context.Context, spec BatchJobSpec) error {
	if f.SubmitBatchJobFunc != nil {
		return f.SubmitBatchJobFunc(ctx, spec)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.jobs[key(spec.Namespace, spec.Name)] = spec

	return nil
}

// DeleteBatchJob implements Orchestrator.
func (f *FakeOrchestrator) DeleteBatchJob(ctx context.Context, namespace, name string) error {
	if f.DeleteBatchJobFunc != nil {
		return f.DeleteBatchJobFunc(ctx, namespace, name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.jobs, key(namespace, name))

	return nil
}

func key(namespace, name string) string {
	return namespace + "/" + name
}
