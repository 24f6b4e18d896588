package events

import (
	"context"
	"sync"
)

// FakePublisher records every published Event for assertions in tests that
// exercise the Babysitter passes.
type FakePublisher struct {
	mu     sync.Mutex
	Events []Event
}

// NewFakePublisher returns an empty FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish implements Publisher.
func (f *FakePublisher) Publish(_ context.Context, event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Events = append(f.Events, event)
}

// Close implements Publisher.
func (f *FakePublisher) Close() error { return nil }

// All returns a copy of every Event published so far.
func (f *FakePublisher) All() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Event, len(f.Events))
	copy(out, f.Events)

	return out
}
