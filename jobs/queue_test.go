package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"trashbin/models"
)

func TestTaskID(t *testing.T) {
	id, err := primitive.ObjectIDFromHex("65a1b2c3d4e5f60718293a4b")
	require.NoError(t, err)

	assert.Equal(t, "purge-user-65a1b2c3d4e5f60718293a4b", PurgeTaskID("user", id))
	assert.Equal(t, PurgeTaskID("user", id), TaskID(models.TaskKindPurgeEntity, "user", id.Hex()))
	assert.Equal(t, ScanTaskID, TaskID(models.TaskKindScan, "", ""))
	assert.NotEqual(t, PurgeTaskID("user", id), PurgeTaskID("file", id))
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{5, 16 * time.Minute},
		{40, maxBackoff},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(time.Minute, tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestQueue_EnqueueDeduplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := primitive.NewObjectID()

	created, err := f.queue.Enqueue(ctx, PurgeSpec("user", id, time.Hour))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.queue.Enqueue(ctx, PurgeSpec("user", id, 0))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, f.tasks.Len())

	task, err := f.queue.Get(ctx, PurgeTaskID("user", id))
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.True(t, f.clock.Now().Add(time.Hour).Equal(task.RunAt), "the first enqueue wins")
	assert.Equal(t, 5, task.MaxAttempts)
	assert.Equal(t, time.Minute.Milliseconds(), task.BackoffMillis)
}

func TestQueue_ClaimRespectsDelay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := primitive.NewObjectID()
	_, err := f.queue.Enqueue(ctx, PurgeSpec("user", id, time.Hour))
	require.NoError(t, err)

	task, err := f.queue.Claim(ctx, "w1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, task)

	f.clock.Advance(time.Hour)
	task, err = f.queue.Claim(ctx, "w1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, models.TaskStatusActive, task.Status)
	assert.Equal(t, "w1", task.LeaseOwner)
	assert.Equal(t, 1, task.Attempts)

	again, err := f.queue.Claim(ctx, "w2", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, again, "an active task is not claimed twice while leased")
}

func TestQueue_ClaimOrdersByRunAt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	late, early := primitive.NewObjectID(), primitive.NewObjectID()
	_, err := f.queue.Enqueue(ctx, PurgeSpec("user", late, 2*time.Minute))
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, PurgeSpec("user", early, time.Minute))
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	task, err := f.queue.Claim(ctx, "w1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, early.Hex(), task.EntityID)
}

func TestQueue_ExpiredLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.queue.Enqueue(ctx, PurgeSpec("user", primitive.NewObjectID(), 0))
	require.NoError(t, err)

	first, err := f.queue.Claim(ctx, "crashed", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, first)

	f.clock.Advance(2 * time.Minute)
	second, err := f.queue.Claim(ctx, "w2", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "w2", second.LeaseOwner)
	assert.Equal(t, 2, second.Attempts)

	require.NoError(t, f.queue.Complete(ctx, first))
	assert.Equal(t, 1, f.tasks.Len(), "a stale owner cannot complete the task")
	require.NoError(t, f.queue.Complete(ctx, second))
	assert.Equal(t, 0, f.tasks.Len())
}

func TestQueue_CancelOnlyPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pendingID, activeID := primitive.NewObjectID(), primitive.NewObjectID()
	_, err := f.queue.Enqueue(ctx, PurgeSpec("user", activeID, 0))
	require.NoError(t, err)
	_, err = f.queue.Claim(ctx, "w1", time.Minute)
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, PurgeSpec("user", pendingID, time.Hour))
	require.NoError(t, err)

	removed, err := f.queue.Cancel(ctx, PurgeTaskID("user", pendingID))
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.queue.Cancel(ctx, PurgeTaskID("user", activeID))
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = f.queue.Cancel(ctx, "purge-user-unknown")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestQueue_FailRetriesWithBackoffThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.queue.Enqueue(ctx, PurgeSpec("user", primitive.NewObjectID(), 0))
	require.NoError(t, err)
	cause := errors.New("storage unavailable")

	for attempt := 1; attempt <= 4; attempt++ {
		task, err := f.queue.Claim(ctx, "w1", time.Minute)
		require.NoError(t, err)
		require.NotNil(t, task, "attempt %d", attempt)
		assert.Equal(t, attempt, task.Attempts)

		terminal, err := f.queue.Fail(ctx, task, cause)
		require.NoError(t, err)
		assert.False(t, terminal)

		stored, err := f.queue.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusPending, stored.Status)
		assert.Empty(t, stored.LeaseOwner)
		assert.Equal(t, "storage unavailable", stored.LastError)
		wantDelay := Backoff(time.Minute, attempt)
		assert.True(t, f.clock.Now().Add(wantDelay).Equal(stored.RunAt), "attempt %d", attempt)

		f.clock.Advance(wantDelay)
	}

	task, err := f.queue.Claim(ctx, "w1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, 5, task.Attempts)

	terminal, err := f.queue.Fail(ctx, task, cause)
	require.NoError(t, err)
	assert.True(t, terminal)
	assert.Equal(t, 0, f.tasks.Len())

	failed, err := f.queue.Failures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, task.ID, failed[0].TaskID)
	assert.Equal(t, 5, failed[0].Attempts)
	assert.Equal(t, "storage unavailable", failed[0].LastError)
}

func TestQueue_PermanentFailureSkipsRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.queue.Enqueue(ctx, PurgeSpec("user", primitive.NewObjectID(), 0))
	require.NoError(t, err)

	task, err := f.queue.Claim(ctx, "w1", time.Minute)
	require.NoError(t, err)
	terminal, err := f.queue.Fail(ctx, task, Permanent(errors.New("bad id")))
	require.NoError(t, err)
	assert.True(t, terminal)
	assert.Equal(t, 0, f.tasks.Len())
	assert.Equal(t, 1, f.failures.Len())
}

func TestQueue_List(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.queue.Enqueue(ctx, PurgeSpec("file", primitive.NewObjectID(), time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	_, err := f.queue.Claim(ctx, "w1", time.Minute)
	require.NoError(t, err)

	all, err := f.queue.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pending, err := f.queue.List(ctx, models.TaskStatusPending, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, f.clock.Now().Add(time.Minute).Equal(pending[0].RunAt))
}

func TestPermanent(t *testing.T) {
	base := errors.New("boom")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}
