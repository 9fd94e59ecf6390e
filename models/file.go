package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type File struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	OriginalName string             `bson:"original_name" json:"original_name"`
	Size         int64              `bson:"size" json:"size"`
	MimeType     string             `bson:"mime_type" json:"mime_type"`
	OwnerID      primitive.ObjectID `bson:"owner_id" json:"owner_id"`
	B2FileID     string             `bson:"b2_file_id" json:"b2_file_id"`
	B2FileName   string             `bson:"b2_file_name" json:"b2_file_name"`
	SHA1Hash     string             `bson:"sha1_hash" json:"sha1_hash"` // For file integrity checks
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
	SoftDelete   `bson:",inline"`
}
