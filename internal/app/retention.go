package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/quartz"
	"github.com/robfig/cron/v3"

	"licensegate/internal/config"
	"licensegate/internal/infrastructure"
	"licensegate/internal/license"
)

// RetentionJob prunes request logs older than the configured age. Logs
// inside the longest IP-limit window must survive, so MaxAge is at least
// one month.
type RetentionJob struct {
	cron   *cron.Cron
	store  license.Store
	maxAge time.Duration
	clock  quartz.Clock
	logger *slog.Logger
}

// minRetention covers the MONTH IP-limit period
const minRetention = 31 * 24 * time.Hour

// NewRetentionJob schedules pruning on cfg.Schedule (standard cron syntax or
// descriptors such as @hourly)
func NewRetentionJob(store license.Store, cfg config.RetentionConfig, clock quartz.Clock, logger *slog.Logger) (*RetentionJob, error) {
	maxAge := cfg.MaxAge
	if maxAge < minRetention {
		maxAge = minRetention
	}
	job := &RetentionJob{
		cron:   cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		store:  store,
		maxAge: maxAge,
		clock:  clock,
		logger: infrastructure.WithComponent(logger, "retention"),
	}
	// Each run gets its own trace ID so its log lines correlate
	run := func() { _, _ = job.Prune(infrastructure.EnsureTraceID(context.Background())) }
	if _, err := job.cron.AddFunc(cfg.Schedule, run); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", cfg.Schedule, err)
	}
	return job, nil
}

// Prune deletes request logs created before now minus the retention age
func (j *RetentionJob) Prune(ctx context.Context) (int64, error) {
	before := j.clock.Now().Add(-j.maxAge)
	deleted, err := j.store.PruneRequestLogs(ctx, before)
	if err != nil {
		infrastructure.WithError(j.logger, err).ErrorContext(ctx, "request log pruning failed")
		return 0, err
	}
	j.logger.InfoContext(ctx, "request logs pruned",
		slog.Int64("deleted", deleted),
		slog.Time("before", before))
	return deleted, nil
}

// Start begins the schedule
func (j *RetentionJob) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running prune or ctx
func (j *RetentionJob) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		j.logger.WarnContext(ctx, "retention job did not stop in time")
	}
}
