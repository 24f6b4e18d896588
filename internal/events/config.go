package events

import (
	"log/slog"

	"github.com/falconeri/falconeri/internal/config"
)

// New builds a Publisher from environment configuration. With no brokers
// configured it returns a NoopPublisher so callers never need a nil check.
func New(log *slog.Logger) Publisher {
	brokers := config.ParseCommaSeparatedList(config.GetEnvStr("FALCONERI_KAFKA_BROKERS", ""))
	if len(brokers) == 0 {
		return NoopPublisher{}
	}

	topic := config.GetEnvStr("FALCONERI_KAFKA_TOPIC", "falconeri.job-events")

	return NewKafkaPublisher(brokers, topic, log)
}
