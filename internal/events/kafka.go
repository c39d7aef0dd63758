package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"licensegate/internal/config"
	contract "licensegate/pkg/contracts/events"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON messages
type KafkaSink struct {
	writer          messageWriter
	requestLogTopic string
	auditTopic      string
	logger          *slog.Logger
	now             func() time.Time
}

// NewKafkaSink creates an asynchronous writer for the configured brokers.
// Delivery failures are reported through the writer completion callback.
func NewKafkaSink(cfg config.EventsConfig, logger *slog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker")
	}
	if cfg.RequestLogTopic == "" || cfg.AuditTopic == "" {
		return nil, fmt.Errorf("kafka sink requires request log and audit topics")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "events"))

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to publish events",
					slog.Int("count", len(msgs)),
					slog.String("error", err.Error()))
			}
		},
	}
	return newKafkaSink(w, cfg, logger), nil
}

func newKafkaSink(w messageWriter, cfg config.EventsConfig, logger *slog.Logger) *KafkaSink {
	return &KafkaSink{
		writer:          w,
		requestLogTopic: cfg.RequestLogTopic,
		auditTopic:      cfg.AuditTopic,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *KafkaSink) RequestLog(ctx context.Context, e contract.RequestLog) {
	s.publish(ctx, s.requestLogTopic, e.Key(), e)
}

func (s *KafkaSink) Audit(ctx context.Context, e contract.Audit) {
	s.publish(ctx, s.auditTopic, e.Key(), e)
}

func (s *KafkaSink) publish(ctx context.Context, topic, key string, payload any) {
	value, err := json.Marshal(payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode event",
			slog.String("topic", topic),
			slog.String("error", err.Error()))
		return
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  s.now().UTC(),
		Headers: []kafka.Header{
			{Key: "protocol", Value: []byte(contract.ProtocolName + "/" + contract.ProtocolVersion)},
		},
	}
	// The request context may be canceled once the response is written
	if err := s.writer.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("topic", topic),
			slog.String("error", err.Error()))
	}
}

// Close flushes pending messages
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
