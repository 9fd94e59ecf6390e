package models

import "time"

// Lifecycle field names shared by every soft-deletable collection.
const (
	FieldDeleted   = "deleted"
	FieldDeletedAt = "deleted_at"
)

// SoftDelete is embedded inline by every entity that opts into the
// soft-delete lifecycle. Deleted is true exactly when DeletedAt is set.
type SoftDelete struct {
	Deleted   bool       `bson:"deleted" json:"deleted"`
	DeletedAt *time.Time `bson:"deleted_at" json:"deleted_at"`
}

// IsDeleted reports whether the record is currently in the trash.
func (s SoftDelete) IsDeleted() bool {
	return s.Deleted && s.DeletedAt != nil
}

// PurgeAt returns when the record becomes eligible for hard removal.
func (s SoftDelete) PurgeAt(retention time.Duration) *time.Time {
	if s.DeletedAt == nil {
		return nil
	}
	at := s.DeletedAt.Add(retention)
	return &at
}
