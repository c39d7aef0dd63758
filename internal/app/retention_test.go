package app

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/config"
	"licensegate/internal/infrastructure"
	"licensegate/internal/license"
	"licensegate/internal/shared/testutil"
)

type pruneStore struct {
	license.Store
	before time.Time
	err    error
}

func (s *pruneStore) PruneRequestLogs(_ context.Context, before time.Time) (int64, error) {
	s.before = before
	return 3, s.err
}

func TestRetentionJobPrune(t *testing.T) {
	clock := quartz.NewMock(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock.Set(now)
	store := &pruneStore{}

	job, err := NewRetentionJob(store, config.RetentionConfig{Schedule: "@hourly", MaxAge: 60 * 24 * time.Hour}, clock, infrastructure.DiscardLogger())
	require.NoError(t, err)

	deleted, err := job.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	assert.Equal(t, now.Add(-60*24*time.Hour), store.before)
}

func TestRetentionJobKeepsIPWindow(t *testing.T) {
	clock := quartz.NewMock(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock.Set(now)
	store := &pruneStore{}

	job, err := NewRetentionJob(store, config.RetentionConfig{Schedule: "@daily", MaxAge: time.Hour}, clock, infrastructure.DiscardLogger())
	require.NoError(t, err)

	_, err = job.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(-minRetention), store.before)
}

func TestRetentionJobErrors(t *testing.T) {
	_, err := NewRetentionJob(&pruneStore{}, config.RetentionConfig{Schedule: "every tuesday"}, quartz.NewReal(), infrastructure.DiscardLogger())
	assert.Error(t, err)

	logger, logs := testutil.NewTestLogger(t)
	store := &pruneStore{err: errors.New("db down")}
	job, err := NewRetentionJob(store, config.RetentionConfig{Schedule: "@hourly"}, quartz.NewReal(), logger)
	require.NoError(t, err)
	ctx := infrastructure.WithTraceID(context.Background(), "prune-run-1")
	deleted, err := job.Prune(ctx)
	assert.Error(t, err)
	assert.Zero(t, deleted)

	r := testutil.AssertLogged(t, logs, slog.LevelError, "request log pruning failed")
	assert.Equal(t, "retention", r.Attrs["component"])
	assert.Equal(t, "db down", r.Attrs["error"])
}

func TestRetentionJobStartStop(t *testing.T) {
	job, err := NewRetentionJob(&pruneStore{}, config.RetentionConfig{Schedule: "@hourly"}, quartz.NewReal(), infrastructure.DiscardLogger())
	require.NoError(t, err)
	job.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	job.Stop(ctx)
}
