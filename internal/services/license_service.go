package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"licensegate/internal/events"
	"licensegate/internal/license"
	api "licensegate/pkg/contracts/api/v1"
	contract "licensegate/pkg/contracts/events"
)

// LicenseService is the entry point used by the HTTP handlers
type LicenseService interface {
	Verify(ctx context.Context, teamID string, req api.VerifyRequest, caller license.Caller) license.Verdict
	Download(ctx context.Context, teamID string, req api.DownloadRequest, caller license.Caller) (*license.Delivery, license.Verdict)
	// Reject records an attempt refused before any pipeline ran, such as an
	// undecodable body, and returns its BAD_REQUEST verdict
	Reject(ctx context.Context, op contract.Operation, teamID string, caller license.Caller) license.Verdict
	// RecordDelivered accounts bytes after a download stream finished
	RecordDelivered(ctx context.Context, n int64)
}

// Verifier runs the verification pipeline
type Verifier interface {
	Verify(ctx context.Context, teamID string, req api.VerifyRequest, caller license.Caller) license.Verdict
}

// Distributor runs the distribution pipeline
type Distributor interface {
	Prepare(ctx context.Context, teamID string, req api.DownloadRequest, caller license.Caller) (*license.Delivery, license.Verdict)
}

type licenseService struct {
	verifier    Verifier
	distributor Distributor
	sink        events.Sink
	metrics     *license.Metrics
	clock       quartz.Clock
	logger      *slog.Logger
}

// NewLicenseService wires the pipelines to the event sink. A nil sink
// discards request logs and a nil metrics value disables instruments.
func NewLicenseService(v Verifier, d Distributor, sink events.Sink, metrics *license.Metrics, clock quartz.Clock, logger *slog.Logger) LicenseService {
	if sink == nil {
		sink = events.Noop{}
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &licenseService{
		verifier:    v,
		distributor: d,
		sink:        sink,
		metrics:     metrics,
		clock:       clock,
		logger:      logger.With(slog.String("service", "license")),
	}
}

func (s *licenseService) Verify(ctx context.Context, teamID string, req api.VerifyRequest, caller license.Caller) license.Verdict {
	start := s.clock.Now()
	verdict := s.verifier.Verify(ctx, teamID, req, caller)
	s.finish(ctx, contract.OperationVerification, teamID, req.LicenseKey, req.DeviceIdentifier, caller, verdict, start)
	return verdict
}

func (s *licenseService) Download(ctx context.Context, teamID string, req api.DownloadRequest, caller license.Caller) (*license.Delivery, license.Verdict) {
	start := s.clock.Now()
	delivery, verdict := s.distributor.Prepare(ctx, teamID, req, caller)
	s.finish(ctx, contract.OperationDownload, teamID, req.LicenseKey, req.DeviceIdentifier, caller, verdict, start)
	if delivery != nil {
		s.logger.DebugContext(ctx, "download stream opened",
			slog.String("release_version", delivery.Release.Version),
			slog.Int64("plain_size", delivery.PlainSize),
			slog.Int64("encoded_size", delivery.Size),
			slog.Bool("watermarked", delivery.Watermarked),
		)
	}
	return delivery, verdict
}

func (s *licenseService) Reject(ctx context.Context, op contract.Operation, teamID string, caller license.Caller) license.Verdict {
	verdict := license.Verdict{Code: license.CodeBadRequest}
	s.finish(ctx, op, teamID, "", "", caller, verdict, s.clock.Now())
	return verdict
}

func (s *licenseService) RecordDelivered(ctx context.Context, n int64) {
	s.metrics.RecordDelivered(ctx, n)
}

func (s *licenseService) finish(ctx context.Context, op contract.Operation, teamID, licenseKey, device string, caller license.Caller, v license.Verdict, start time.Time) {
	now := s.clock.Now()
	elapsed := now.Sub(start)
	s.metrics.RecordAttempt(ctx, string(op), v.Code, elapsed)

	attrs := append(v.LogAttrs(),
		slog.String("operation", string(op)),
		slog.String("license_key", license.MaskLicenseKey(licenseKey)),
		slog.String("ip", caller.IP),
		slog.Duration("duration", elapsed),
	)
	level := slog.LevelInfo
	switch {
	case v.Code == license.CodeInternalError:
		level = slog.LevelError
	case !v.Valid():
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "license "+string(op)+" finished", attrs...)

	if teamID == "" {
		return
	}
	s.sink.RequestLog(ctx, contract.RequestLog{
		Version:          contract.ProtocolVersion,
		ID:               uuid.NewString(),
		RequestID:        caller.RequestID,
		Operation:        op,
		TeamID:           teamID,
		LicenseID:        v.LicenseID,
		CustomerID:       v.CustomerID,
		ProductID:        v.ProductID,
		ReleaseID:        v.ReleaseID,
		ReleaseVersion:   v.ReleaseVersion,
		DeviceIdentifier: device,
		IPAddress:        caller.IP,
		Country:          caller.Country,
		Status:           string(v.Code),
		HTTPStatus:       v.Code.HTTPStatus(),
		Duration:         elapsed,
		Timestamp:        now.UTC(),
	})
}
