package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TrashItem struct {
	ItemID      primitive.ObjectID `json:"item_id"`
	ItemType    string             `json:"item_type"` // "file" or "user"
	Name        string             `json:"name"`
	OwnerID     primitive.ObjectID `json:"owner_id"`
	Size        int64              `json:"size"`
	DeletedAt   time.Time          `json:"deleted_at"`
	AutoPurgeAt time.Time          `json:"auto_purge_at"`
}
