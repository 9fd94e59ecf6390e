package models

import "time"

type TaskKind string

const (
	TaskKindScan        TaskKind = "scan"
	TaskKindPurgeEntity TaskKind = "purge-entity"
)

type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusActive  TaskStatus = "active"
)

// PurgeTask is a queued unit of work in the purge_tasks collection. ID is
// deterministic (see jobs.TaskID) and doubles as the dedup key.
type PurgeTask struct {
	ID             string     `bson:"_id" json:"id"`
	Kind           TaskKind   `bson:"kind" json:"kind"`
	EntityType     string     `bson:"entity_type,omitempty" json:"entity_type,omitempty"`
	EntityID       string     `bson:"entity_id,omitempty" json:"entity_id,omitempty"`
	Status         TaskStatus `bson:"status" json:"status"`
	RunAt          time.Time  `bson:"run_at" json:"run_at"`
	Attempts       int        `bson:"attempts" json:"attempts"`
	MaxAttempts    int        `bson:"max_attempts" json:"max_attempts"`
	BackoffMillis  int64      `bson:"backoff_ms" json:"backoff_ms"`
	LeaseOwner     string     `bson:"lease_owner,omitempty" json:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time `bson:"lease_expires_at,omitempty" json:"lease_expires_at,omitempty"`
	LastError      string     `bson:"last_error,omitempty" json:"last_error,omitempty"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at" json:"updated_at"`
}

// FailedPurgeTask is the dead-letter copy of a task that exhausted its
// retries or failed permanently.
type FailedPurgeTask struct {
	TaskID     string    `bson:"task_id" json:"task_id"`
	Kind       TaskKind  `bson:"kind" json:"kind"`
	EntityType string    `bson:"entity_type,omitempty" json:"entity_type,omitempty"`
	EntityID   string    `bson:"entity_id,omitempty" json:"entity_id,omitempty"`
	Attempts   int       `bson:"attempts" json:"attempts"`
	LastError  string    `bson:"last_error" json:"last_error"`
	FailedAt   time.Time `bson:"failed_at" json:"failed_at"`
}
