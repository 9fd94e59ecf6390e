package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trashbin/models"
)

func TestScheduler_TriggerScanKeepsOneQueued(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := NewScheduler(f.queue, "", f.opts()...)

	created, err := s.TriggerScan(ctx)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.TriggerScan(ctx)
	require.NoError(t, err)
	assert.False(t, created)

	task, err := f.queue.Get(ctx, ScanTaskID)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, models.TaskKindScan, task.Kind)
}

func TestScheduler_RejectsInvalidSchedule(t *testing.T) {
	f := newFixture(t)
	s := NewScheduler(f.queue, "every day at noon", f.opts()...)
	err := s.Start(context.Background())
	assert.ErrorContains(t, err, "invalid cron schedule")
}

func TestScheduler_RunsDailyAtMidnightUTC(t *testing.T) {
	f := newFixture(t)
	s := NewScheduler(f.queue, DefaultScanSchedule, f.opts()...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	next := s.NextRun()
	require.NotNil(t, next)
	assert.Equal(t, time.UTC, next.Location())
	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 0, next.Minute())

	s.Stop()
	s.Stop()
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	f := newFixture(t)
	s := NewScheduler(f.queue, DefaultScanSchedule, f.opts()...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))
	assert.Len(t, s.cron.Entries(), 1)

	s.Stop()
	assert.Empty(t, s.cron.Entries())
	assert.Nil(t, s.NextRun())

	require.NoError(t, s.Start(ctx))
	assert.Len(t, s.cron.Entries(), 1)
	s.Stop()
}
