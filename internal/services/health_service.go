package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"

	"licensegate/pkg/contracts"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// HealthStatus is the body of the health endpoints
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Uptime    string                   `json:"uptime,omitempty"`
	Checks    map[string]ServiceHealth `json:"checks,omitempty"`
}

// ServiceHealth represents individual dependency health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthService runs the readiness checks
type HealthService struct {
	checks    map[string]CheckFunc
	timeout   time.Duration
	clock     quartz.Clock
	startTime time.Time
	logger    *slog.Logger
}

// NewHealthService creates a health service. Each check gets timeout to
// answer.
func NewHealthService(checks map[string]CheckFunc, timeout time.Duration, clock quartz.Clock, logger *slog.Logger) *HealthService {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthService{
		checks:    checks,
		timeout:   timeout,
		clock:     clock,
		startTime: clock.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// Live reports process liveness without touching dependencies
func (s *HealthService) Live() HealthStatus {
	now := s.clock.Now()
	return HealthStatus{
		Status:    StatusHealthy,
		Timestamp: now.UTC(),
		Version:   contracts.Version,
		Uptime:    now.Sub(s.startTime).Round(time.Second).String(),
	}
}

// Ready runs every check concurrently. The bool is false when any check
// failed.
func (s *HealthService) Ready(ctx context.Context) (HealthStatus, bool) {
	status := s.Live()
	status.Checks = make(map[string]ServiceHealth, len(s.checks))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range s.checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			began := time.Now()
			err := check(checkCtx)
			h := ServiceHealth{Status: StatusHealthy, Latency: time.Since(began).Round(time.Microsecond).String()}
			if err != nil {
				h.Status = StatusUnhealthy
				h.Message = err.Error()
				s.logger.WarnContext(ctx, "readiness check failed",
					slog.String("check", name),
					slog.String("error", err.Error()))
			}
			mu.Lock()
			status.Checks[name] = h
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	ready := true
	for _, h := range status.Checks {
		if h.Status != StatusHealthy {
			ready = false
		}
	}
	if !ready {
		status.Status = StatusUnhealthy
	}
	return status, ready
}
