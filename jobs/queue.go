package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trashbin/models"
	"trashbin/store"
)

// ScanTaskID identifies the recurring trash scan. Only one can be queued.
const ScanTaskID = "scan-trash-daily"

const maxBackoff = 24 * time.Hour

type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Backoff: time.Minute}
}

// TaskID returns the deterministic id of a task. Identical work always maps
// to the same id, which is what deduplicates enqueues.
func TaskID(kind models.TaskKind, entityType, entityID string) string {
	if kind == models.TaskKindScan {
		return ScanTaskID
	}
	return fmt.Sprintf("purge-%s-%s", entityType, entityID)
}

func PurgeTaskID(entityType string, id primitive.ObjectID) string {
	return TaskID(models.TaskKindPurgeEntity, entityType, id.Hex())
}

type TaskSpec struct {
	Kind       models.TaskKind
	EntityType string
	EntityID   string
	Delay      time.Duration
}

func PurgeSpec(entityType string, id primitive.ObjectID, delay time.Duration) TaskSpec {
	return TaskSpec{
		Kind:       models.TaskKindPurgeEntity,
		EntityType: entityType,
		EntityID:   id.Hex(),
		Delay:      delay,
	}
}

func (s TaskSpec) ID() string {
	return TaskID(s.Kind, s.EntityType, s.EntityID)
}

// Queue is a durable delayed-task queue stored in a collection. Tasks are
// removed when they complete, when they are canceled while pending, and
// when they fail for the last time (after being copied to the failures
// collection).
type Queue struct {
	tasks    store.Collection
	failures store.Collection
	policy   RetryPolicy
	now      func() time.Time
}

type QueueOption func(*Queue)

func WithRetryPolicy(p RetryPolicy) QueueOption {
	return func(q *Queue) {
		if p.MaxAttempts > 0 {
			q.policy.MaxAttempts = p.MaxAttempts
		}
		if p.Backoff > 0 {
			q.policy.Backoff = p.Backoff
		}
	}
}

func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		q.now = now
	}
}

func NewQueue(tasks, failures store.Collection, opts ...QueueOption) *Queue {
	q := &Queue{
		tasks:    tasks,
		failures: failures,
		policy:   DefaultRetryPolicy(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) EnsureIndexes(ctx context.Context) error {
	if err := q.tasks.CreateIndexes(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "run_at", Value: 1}}},
		{Keys: bson.D{{Key: "lease_expires_at", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create task indexes: %w", err)
	}
	if err := q.failures.CreateIndexes(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "failed_at", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("failed to create failure indexes: %w", err)
	}
	return nil
}

// Enqueue adds a task unless one with the same id already exists. It
// reports whether a new task was stored.
func (q *Queue) Enqueue(ctx context.Context, spec TaskSpec) (bool, error) {
	now := q.now()
	task := models.PurgeTask{
		ID:            spec.ID(),
		Kind:          spec.Kind,
		EntityType:    spec.EntityType,
		EntityID:      spec.EntityID,
		Status:        models.TaskStatusPending,
		RunAt:         now.Add(spec.Delay),
		MaxAttempts:   q.policy.MaxAttempts,
		BackoffMillis: q.policy.Backoff.Milliseconds(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := q.tasks.InsertOne(ctx, task); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to enqueue task %s: %w", task.ID, err)
	}
	return true, nil
}

// Cancel removes a task that has not started yet. A running task is left
// alone; its handler re-validates the entity before acting.
func (q *Queue) Cancel(ctx context.Context, id string) (bool, error) {
	n, err := q.tasks.DeleteOne(ctx, bson.M{"_id": id, "status": models.TaskStatusPending})
	if err != nil {
		return false, fmt.Errorf("failed to cancel task %s: %w", id, err)
	}
	return n > 0, nil
}

// Claim leases the oldest due task to owner, or a running task whose lease
// has expired. Returns nil when nothing is due.
func (q *Queue) Claim(ctx context.Context, owner string, lease time.Duration) (*models.PurgeTask, error) {
	now := q.now()
	filter := bson.M{"$or": bson.A{
		bson.M{"status": models.TaskStatusPending, "run_at": bson.M{"$lte": now}},
		bson.M{"status": models.TaskStatusActive, "lease_expires_at": bson.M{"$lte": now}},
	}}
	update := bson.M{
		"$set": bson.M{
			"status":           models.TaskStatusActive,
			"lease_owner":      owner,
			"lease_expires_at": now.Add(lease),
			"updated_at":       now,
		},
		"$inc": bson.M{"attempts": 1},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "run_at", Value: 1}}).
		SetReturnDocument(options.After)

	var task models.PurgeTask
	err := q.tasks.FindOneAndUpdate(ctx, filter, update, &task, opts)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	return &task, nil
}

// Complete removes a finished task if the caller still holds its lease.
func (q *Queue) Complete(ctx context.Context, task *models.PurgeTask) error {
	_, err := q.tasks.DeleteOne(ctx, bson.M{"_id": task.ID, "lease_owner": task.LeaseOwner})
	if err != nil {
		return fmt.Errorf("failed to complete task %s: %w", task.ID, err)
	}
	return nil
}

// Backoff returns the delay before the next attempt of a task that has
// already been attempted `attempts` times.
func Backoff(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// Fail records a failed attempt. The task is rescheduled with exponential
// backoff, or, when cause is permanent or attempts are exhausted, moved to
// the failures collection. terminal reports the latter.
func (q *Queue) Fail(ctx context.Context, task *models.PurgeTask, cause error) (bool, error) {
	now := q.now()
	terminal := IsPermanent(cause) || task.Attempts >= task.MaxAttempts

	if terminal {
		failed := models.FailedPurgeTask{
			TaskID:     task.ID,
			Kind:       task.Kind,
			EntityType: task.EntityType,
			EntityID:   task.EntityID,
			Attempts:   task.Attempts,
			LastError:  cause.Error(),
			FailedAt:   now,
		}
		if _, err := q.failures.InsertOne(ctx, failed); err != nil {
			return true, fmt.Errorf("failed to record failure of task %s: %w", task.ID, err)
		}
		if _, err := q.tasks.DeleteOne(ctx, bson.M{"_id": task.ID, "lease_owner": task.LeaseOwner}); err != nil {
			return true, fmt.Errorf("failed to remove task %s: %w", task.ID, err)
		}
		return true, nil
	}

	delay := Backoff(time.Duration(task.BackoffMillis)*time.Millisecond, task.Attempts)
	_, err := q.tasks.UpdateOne(ctx, bson.M{"_id": task.ID, "lease_owner": task.LeaseOwner}, bson.M{
		"$set": bson.M{
			"status":     models.TaskStatusPending,
			"run_at":     now.Add(delay),
			"last_error": cause.Error(),
			"updated_at": now,
		},
		"$unset": bson.M{"lease_owner": "", "lease_expires_at": ""},
	})
	if err != nil {
		return false, fmt.Errorf("failed to reschedule task %s: %w", task.ID, err)
	}
	return false, nil
}

// Get returns nil when no task has the id.
func (q *Queue) Get(ctx context.Context, id string) (*models.PurgeTask, error) {
	var task models.PurgeTask
	err := q.tasks.FindOne(ctx, bson.M{"_id": id}, &task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// List returns queued tasks ordered by run_at. An empty status lists all.
func (q *Queue) List(ctx context.Context, status models.TaskStatus, limit int) ([]models.PurgeTask, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "run_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	var tasks []models.PurgeTask
	if err := q.tasks.Find(ctx, filter, &tasks, opts); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// Failures returns dead-lettered tasks, newest first.
func (q *Queue) Failures(ctx context.Context, limit int) ([]models.FailedPurgeTask, error) {
	opts := options.Find().SetSort(bson.D{{Key: "failed_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	var failed []models.FailedPurgeTask
	if err := q.failures.Find(ctx, bson.M{}, &failed, opts); err != nil {
		return nil, fmt.Errorf("failed to list failed tasks: %w", err)
	}
	return failed, nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
