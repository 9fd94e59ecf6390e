package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"trashbin/jobs"
	"trashbin/softdelete"
)

// PurgeQueue is the part of jobs.Queue the lifecycle needs.
type PurgeQueue interface {
	Enqueue(ctx context.Context, spec jobs.TaskSpec) (bool, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

// Lifecycle couples soft delete and restore of one entity kind to its
// delayed purge task. Every restore path goes through Restore so a pending
// purge never outlives the restore.
type Lifecycle[T any] struct {
	model     *softdelete.Model[T]
	queue     PurgeQueue
	kind      string
	retention time.Duration
	logger    *zap.Logger
}

func NewLifecycle[T any](model *softdelete.Model[T], queue PurgeQueue, kind string, retention time.Duration, logger *zap.Logger) *Lifecycle[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle[T]{
		model:     model,
		queue:     queue,
		kind:      kind,
		retention: retention,
		logger: logger.Named("lifecycle").With(
			zap.String("entity_type", kind),
			zap.String("collection", model.CollectionName()),
		),
	}
}

func (l *Lifecycle[T]) Model() *softdelete.Model[T] {
	return l.model
}

// PurgeTarget exposes the entity kind to the purge pipeline.
func (l *Lifecycle[T]) PurgeTarget(afterPurge func(ctx context.Context, removed *T) error) *jobs.Target[T] {
	return &jobs.Target[T]{Type: l.kind, Model: l.model, AfterPurge: afterPurge}
}

// SoftDelete moves the entity to the trash and schedules its purge at the
// end of the retention window. Returns nil if no active entity has the id.
// Scheduling failures are logged; the daily scan picks such entities up.
func (l *Lifecycle[T]) SoftDelete(ctx context.Context, id primitive.ObjectID) (*T, error) {
	entity, err := l.model.SoftDelete(ctx, id)
	if err != nil || entity == nil {
		return entity, err
	}

	taskID := jobs.PurgeTaskID(l.kind, id)
	if _, err := l.queue.Cancel(ctx, taskID); err != nil {
		l.logger.Warn("failed to cancel stale purge task", zap.String("task_id", taskID), zap.Error(err))
	}
	created, err := l.queue.Enqueue(ctx, jobs.PurgeSpec(l.kind, id, l.retention))
	switch {
	case err != nil:
		l.logger.Error("failed to schedule purge", zap.String("task_id", taskID), zap.Error(err))
	case !created:
		// A claimed task still holds the id; the daily scan re-enqueues it.
		l.logger.Warn("purge task already running, left to the daily scan", zap.String("task_id", taskID))
	}
	return entity, nil
}

// Restore returns the entity to the active state and cancels its pending
// purge. Returns nil if the id is unknown. Cancellation is best effort: a
// purge that still runs re-validates and skips the restored entity.
func (l *Lifecycle[T]) Restore(ctx context.Context, id primitive.ObjectID) (*T, error) {
	entity, err := l.model.Restore(ctx, id)
	if err != nil || entity == nil {
		return entity, err
	}

	taskID := jobs.PurgeTaskID(l.kind, id)
	if _, err := l.queue.Cancel(ctx, taskID); err != nil {
		l.logger.Warn("failed to cancel purge task after restore", zap.String("task_id", taskID), zap.Error(err))
	}
	return entity, nil
}
