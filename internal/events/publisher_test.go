package events

import (
	"context"
	"testing"
	"time"
)

func TestFakePublisherRecordsEvents(t *testing.T) {
	pub := NewFakePublisher()

	pub.Publish(context.Background(), Event{
		Type:      JobDone,
		JobID:     "job-1",
		Timestamp: time.Unix(0, 0),
	})

	events := pub.All()
	if len(events) != 1 || events[0].Type != JobDone || events[0].JobID != "job-1" {
		t.Fatalf("All() = %+v, want one JobDone event for job-1", events)
	}
}

func TestNoopPublisherDiscardsEvents(t *testing.T) {
	var pub Publisher = NoopPublisher{}

	pub.Publish(context.Background(), Event{Type: JobError, JobID: "job-2"})

	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestNewReturnsNoopWithoutBrokers(t *testing.T) {
	t.Setenv("FALCONERI_KAFKA_BROKERS", "")

	pub := New(nil)
	if _, ok := pub.(NoopPublisher); !ok {
		t.Fatalf("New() = %T, want NoopPublisher", pub)
	}
}
