package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"trashbin/models"
	"trashbin/softdelete"
)

func purgeTask(entityType, id string) *models.PurgeTask {
	return &models.PurgeTask{
		ID:         TaskID(models.TaskKindPurgeEntity, entityType, id),
		Kind:       models.TaskKindPurgeEntity,
		EntityType: entityType,
		EntityID:   id,
	}
}

func TestPurgeExecutor_PurgesOverdueRecordOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.deletedUsers(t, 1)[0]
	f.clock.Advance(testRetention + time.Minute)

	var cleaned []primitive.ObjectID
	target := f.userTarget()
	target.AfterPurge = func(_ context.Context, u *models.User) error {
		cleaned = append(cleaned, u.ID)
		return nil
	}
	exec := NewPurgeExecutor(testRetention, []PurgeTarget{target}, f.opts()...)

	require.NoError(t, exec.Handle(ctx, purgeTask("user", id.Hex())))
	assert.Equal(t, []primitive.ObjectID{id}, cleaned)

	count, err := f.users.Count(ctx, bson.M{}, softdelete.WithDeleted())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	require.NoError(t, exec.Handle(ctx, purgeTask("user", id.Hex())), "a second run is a successful no-op")
	assert.Len(t, cleaned, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.EntitiesPurged.WithLabelValues("user")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PurgesSkipped.WithLabelValues("user")))
}

func TestPurgeExecutor_RevalidatesAtExecution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := f.deletedUsers(t, 2)
	restored, recent := ids[0], ids[1]
	f.clock.Advance(testRetention + time.Minute)

	_, err := f.users.Restore(ctx, restored)
	require.NoError(t, err)
	_, err = f.users.Restore(ctx, recent)
	require.NoError(t, err)
	_, err = f.users.SoftDelete(ctx, recent)
	require.NoError(t, err)

	exec := NewPurgeExecutor(testRetention, []PurgeTarget{f.userTarget()}, f.opts()...)
	require.NoError(t, exec.Handle(ctx, purgeTask("user", restored.Hex())))
	require.NoError(t, exec.Handle(ctx, purgeTask("user", recent.Hex())))

	count, err := f.users.Count(ctx, bson.M{}, softdelete.WithDeleted())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "restored and re-deleted records survive")
}

func TestPurgeExecutor_CleanupFailureDoesNotFailTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.deletedUsers(t, 1)[0]
	f.clock.Advance(testRetention)

	core, logs := observer.New(zap.WarnLevel)
	target := f.userTarget()
	target.AfterPurge = func(context.Context, *models.User) error { return errors.New("blob store down") }
	exec := NewPurgeExecutor(testRetention, []PurgeTarget{target}, f.opts(WithLogger(zap.New(core)))...)

	require.NoError(t, exec.Handle(ctx, purgeTask("user", id.Hex())))
	require.Equal(t, 1, logs.FilterMessage("after-purge cleanup failed").Len())
}

func TestPurgeExecutor_BeforePurgeVetoKeepsRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := f.deletedUsers(t, 1)
	id := ids[0]
	f.clock.Advance(testRetention + time.Minute)

	veto := errors.New("blob store not configured")
	var vetted []primitive.ObjectID
	target := f.userTarget()
	target.BeforePurge = func(_ context.Context, u *models.User) error {
		vetted = append(vetted, u.ID)
		return veto
	}
	target.AfterPurge = func(context.Context, *models.User) error {
		t.Fatal("after-purge must not run for a vetoed record")
		return nil
	}
	exec := NewPurgeExecutor(testRetention, []PurgeTarget{target}, f.opts()...)

	err := exec.Handle(ctx, purgeTask("user", id.Hex()))
	require.ErrorIs(t, err, veto)
	assert.False(t, IsPermanent(err), "the attempt is retried once the store is back")
	assert.Equal(t, []primitive.ObjectID{id}, vetted)

	count, err := f.users.Count(ctx, bson.M{}, softdelete.OnlyDeleted())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	target.BeforePurge = nil
	target.AfterPurge = nil
	require.NoError(t, exec.Handle(ctx, purgeTask("user", id.Hex())))
	count, err = f.users.Count(ctx, bson.M{}, softdelete.WithDeleted())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestPurgeExecutor_BadTasksArePermanent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := NewPurgeExecutor(testRetention, []PurgeTarget{f.userTarget()}, f.opts()...)

	err := exec.Handle(ctx, purgeTask("invoice", primitive.NewObjectID().Hex()))
	assert.True(t, IsPermanent(err))
	assert.ErrorContains(t, err, "unknown entity type")

	err = exec.Handle(ctx, purgeTask("user", "not-an-id"))
	assert.True(t, IsPermanent(err))
}

type brokenTarget struct {
	PurgeTarget
}

func (brokenTarget) Purge(context.Context, primitive.ObjectID, time.Time) (PurgeOutcome, error) {
	return PurgeOutcome{}, errors.New("connection reset")
}

func TestPurgeExecutor_StoreErrorsAreRetryable(t *testing.T) {
	f := newFixture(t)
	exec := NewPurgeExecutor(testRetention, []PurgeTarget{brokenTarget{f.userTarget()}}, f.opts()...)

	err := exec.Handle(context.Background(), purgeTask("user", primitive.NewObjectID().Hex()))
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}
