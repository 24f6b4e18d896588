// Package events publishes the Babysitter's Job and Datum Error transitions
// (vanished batch jobs, zombie datums) for downstream consumers (dashboards, alerting, billing) that should not sit
// in the hot path of the Reservation Engine or the Ownership Guard.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventType names the terminal transition an Event records.
type EventType string

const (
	// JobDone records a Job reaching the Done status. No coordinator code
	// path publishes it.
	JobDone EventType = "job.done"
	// JobError fires when a Job reaches the Error status.
	JobError EventType = "job.error"
	// DatumError fires when a Datum reaches the Error status.
	DatumError EventType = "datum.error"
)

// Event is the wire payload published for one terminal-state transition.
type Event struct {
	Type      EventType `json:"type"`
	JobID     string    `json:"job_id"`
	DatumID   string    `json:"datum_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher publishes Events. Publish is best-effort: a failure to publish
// must never block or fail the state transition that produced the event.
type Publisher interface {
	Publish(ctx context.Context, event Event)
	Close() error
}

// KafkaPublisher publishes Events to a Kafka topic via kafka-go. Publish
// waits for the write to finish or ctx to end; a send failure is logged, not
// returned, since no caller-observable guarantee depends on delivery.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *slog.Logger
}

// NewKafkaPublisher builds a KafkaPublisher targeting topic across brokers.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           100 * time.Millisecond,
		},
		log: log,
	}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("marshal event", "type", event.Type, "job_id", event.JobID, "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(event.JobID),
		Value: payload,
		Time:  event.Timestamp,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("publish event", "type", event.Type, "job_id", event.JobID, "error", err)
	}
}

// Close implements Publisher.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher discards every Event. Used when no broker is configured, so
// the rest of the coordination core does not need a nil check on Publisher.
type NoopPublisher struct{}

// Publish implements Publisher by discarding event.
func (NoopPublisher) Publish(context.Context, Event) {}

// Close implements Publisher.
func (NoopPublisher) Close() error { return nil }
