// README: Publisher abstraction plus the log-only implementation.
package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"tripengine/internal/config"
)

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// LogPublisher writes events to the structured log. It is the default when no
// broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With("component", "event_log")}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.InfoContext(ctx, "event",
		"id", e.ID,
		"type", e.Type,
		"trip_id", e.TripID,
		"kind", e.Kind,
		"worker_id", e.WorkerID,
		"status", e.Status,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// New builds the publisher selected by cfg.Driver.
func New(cfg config.MessagingConfig, logger *slog.Logger) (Publisher, error) {
	switch cfg.Driver {
	case "", "log":
		return NewLogPublisher(logger), nil
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	case "amqp":
		return DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	default:
		return nil, fmt.Errorf("unknown messaging driver %q", cfg.Driver)
	}
}
