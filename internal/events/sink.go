package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"licensegate/internal/config"
	"licensegate/internal/license"
	contract "licensegate/pkg/contracts/events"
)

// Sink receives pipeline request logs and audit records
type Sink interface {
	RequestLog(ctx context.Context, entry contract.RequestLog)
	Audit(ctx context.Context, entry contract.Audit)
	Close() error
}

var (
	_ license.AuditSink = Sink(nil)
	_ Sink              = (*LogSink)(nil)
	_ Sink              = Multi(nil)
	_ Sink              = Noop{}
)

// New builds the sink selected by cfg.Sink
func New(cfg config.EventsConfig, logger *slog.Logger) (Sink, error) {
	switch cfg.Sink {
	case "", "log":
		return NewLogSink(logger), nil
	case "kafka":
		return NewKafkaSink(cfg, logger)
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unsupported events sink: %s", cfg.Sink)
	}
}

// LogSink writes events as structured log records
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs on logger
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With(slog.String("component", "events"))}
}

func (s *LogSink) RequestLog(ctx context.Context, e contract.RequestLog) {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "request log",
		slog.String("event_id", e.ID),
		slog.String("request_id", e.RequestID),
		slog.String("operation", string(e.Operation)),
		slog.String("team_id", e.TeamID),
		slog.String("license_id", e.LicenseID),
		slog.String("status", e.Status),
		slog.Int("http_status", e.HTTPStatus),
		slog.String("ip", e.IPAddress),
		slog.String("country", e.Country),
		slog.Duration("duration", e.Duration),
	)
}

func (s *LogSink) Audit(ctx context.Context, e contract.Audit) {
	attrs := []slog.Attr{
		slog.String("event_id", e.ID),
		slog.String("request_id", e.RequestID),
		slog.String("action", string(e.Action)),
		slog.String("team_id", e.TeamID),
		slog.String("license_id", e.LicenseID),
	}
	for k, v := range e.Metadata {
		attrs = append(attrs, slog.String("meta."+k, v))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}

func (s *LogSink) Close() error { return nil }

// Multi fans events out to every sink in order
type Multi []Sink

func (m Multi) RequestLog(ctx context.Context, e contract.RequestLog) {
	for _, s := range m {
		s.RequestLog(ctx, e)
	}
}

func (m Multi) Audit(ctx context.Context, e contract.Audit) {
	for _, s := range m {
		s.Audit(ctx, e)
	}
}

// Close closes every sink and joins their errors
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop discards everything
type Noop struct{}

func (Noop) RequestLog(context.Context, contract.RequestLog) {}
func (Noop) Audit(context.Context, contract.Audit)           {}
func (Noop) Close() error                                    { return nil }
