package jobs

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"trashbin/models"
	"trashbin/softdelete"
)

// PurgeOutcome describes one conditional purge. CleanupErr is set when the
// record was removed but its after-purge cleanup failed.
type PurgeOutcome struct {
	Removed    bool
	CleanupErr error
}

// PurgeTarget is a soft-deletable collection the purge pipeline works on.
type PurgeTarget interface {
	EntityType() string
	OverdueIDs(ctx context.Context, cutoff time.Time, after primitive.ObjectID, limit int) ([]primitive.ObjectID, error)
	Purge(ctx context.Context, id primitive.ObjectID, cutoff time.Time) (PurgeOutcome, error)
}

// Target adapts a softdelete.Model to PurgeTarget. BeforePurge, when set,
// vets the trashed record before it is removed; an error keeps the record
// and fails the attempt. AfterPurge, when set, runs on the removed record,
// e.g. to delete its blob.
type Target[T any] struct {
	Type        string
	Model       *softdelete.Model[T]
	BeforePurge func(ctx context.Context, candidate *T) error
	AfterPurge  func(ctx context.Context, removed *T) error
}

func (t *Target[T]) EntityType() string {
	return t.Type
}

func (t *Target[T]) OverdueIDs(ctx context.Context, cutoff time.Time, after primitive.ObjectID, limit int) ([]primitive.ObjectID, error) {
	return t.Model.OverdueIDs(ctx, cutoff, after, limit)
}

func (t *Target[T]) Purge(ctx context.Context, id primitive.ObjectID, cutoff time.Time) (PurgeOutcome, error) {
	if t.BeforePurge != nil {
		candidate, err := t.Model.FindByID(ctx, id, softdelete.OnlyDeleted())
		if err != nil {
			return PurgeOutcome{}, err
		}
		if candidate != nil {
			if err := t.BeforePurge(ctx, candidate); err != nil {
				return PurgeOutcome{}, err
			}
		}
	}
	removed, err := t.Model.PurgeExpired(ctx, id, cutoff)
	if err != nil {
		return PurgeOutcome{}, err
	}
	if removed == nil {
		return PurgeOutcome{}, nil
	}
	outcome := PurgeOutcome{Removed: true}
	if t.AfterPurge != nil {
		outcome.CleanupErr = t.AfterPurge(ctx, removed)
	}
	return outcome, nil
}

// PurgeExecutor handles purge-entity tasks. It re-validates the entity at
// execution time, so a restored or already purged record is a no-op.
type PurgeExecutor struct {
	targets   map[string]PurgeTarget
	retention time.Duration
	rt        runtime
}

func NewPurgeExecutor(retention time.Duration, targets []PurgeTarget, opts ...Option) *PurgeExecutor {
	byType := make(map[string]PurgeTarget, len(targets))
	for _, t := range targets {
		byType[t.EntityType()] = t
	}
	return &PurgeExecutor{
		targets:   byType,
		retention: retention,
		rt:        newRuntime("purge-executor", opts),
	}
}

func (e *PurgeExecutor) Handle(ctx context.Context, task *models.PurgeTask) error {
	target, ok := e.targets[task.EntityType]
	if !ok {
		return Permanent(fmt.Errorf("unknown entity type %q", task.EntityType))
	}
	id, err := primitive.ObjectIDFromHex(task.EntityID)
	if err != nil {
		return Permanent(fmt.Errorf("invalid entity id %q: %w", task.EntityID, err))
	}

	cutoff := e.rt.now().Add(-e.retention)
	outcome, err := target.Purge(ctx, id, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge %s %s: %w", task.EntityType, task.EntityID, err)
	}

	if !outcome.Removed {
		e.rt.logger.Info("purge skipped",
			zap.String("entity_type", task.EntityType),
			zap.String("entity_id", task.EntityID),
		)
		e.rt.metrics.PurgesSkipped.WithLabelValues(task.EntityType).Inc()
		return nil
	}

	if outcome.CleanupErr != nil {
		e.rt.logger.Warn("after-purge cleanup failed",
			zap.String("entity_type", task.EntityType),
			zap.String("entity_id", task.EntityID),
			zap.Error(outcome.CleanupErr),
		)
	}
	e.rt.logger.Info("entity purged",
		zap.String("entity_type", task.EntityType),
		zap.String("entity_id", task.EntityID),
	)
	e.rt.metrics.EntitiesPurged.WithLabelValues(task.EntityType).Inc()
	return nil
}
