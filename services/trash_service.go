package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"trashbin/models"
	"trashbin/softdelete"
)

var ErrNotInTrash = errors.New("item not found in trash")

const itemTypeFile = "file"

// RestoreItem represents an item to be restored
type RestoreItem struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type RestoreResult struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type TrashService struct {
	files     *Lifecycle[models.File]
	retention time.Duration
	logger    *zap.Logger
}

func NewTrashService(files *Lifecycle[models.File], retention time.Duration, logger *zap.Logger) *TrashService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrashService{files: files, retention: retention, logger: logger.Named("trash")}
}

// List returns the owner's trashed files, most recently deleted first.
func (s *TrashService) List(ctx context.Context, ownerID primitive.ObjectID, limit, offset int) ([]models.TrashItem, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	findOpts := options.Find().
		SetSort(bson.D{{Key: models.FieldDeletedAt, Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	files, err := s.files.Model().Find(ctx, bson.M{"owner_id": ownerID}, softdelete.OnlyDeleted(), findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deleted files: %w", err)
	}

	items := make([]models.TrashItem, 0, len(files))
	for _, file := range files {
		item := models.TrashItem{
			ItemID:   file.ID,
			ItemType: itemTypeFile,
			Name:     file.Name,
			OwnerID:  file.OwnerID,
			Size:     file.Size,
		}
		if file.DeletedAt != nil {
			item.DeletedAt = *file.DeletedAt
			item.AutoPurgeAt = *file.PurgeAt(s.retention)
		}
		items = append(items, item)
	}
	return items, nil
}

// RestoreFile takes the owner's file out of the trash and cancels its purge.
func (s *TrashService) RestoreFile(ctx context.Context, ownerID, fileID primitive.ObjectID) (*models.File, error) {
	file, err := s.files.Model().FindOne(ctx, bson.M{"_id": fileID, "owner_id": ownerID}, softdelete.OnlyDeleted())
	if err != nil {
		return nil, fmt.Errorf("failed to find file: %w", err)
	}
	if file == nil {
		return nil, ErrNotInTrash
	}

	restored, err := s.files.Restore(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore file: %w", err)
	}
	if restored == nil {
		return nil, ErrNotInTrash
	}
	s.logger.Info("file restored", zap.String("file_id", fileID.Hex()), zap.String("owner_id", ownerID.Hex()))
	return restored, nil
}

func (s *TrashService) RestoreMultipleItems(ctx context.Context, ownerID primitive.ObjectID, items []RestoreItem) []RestoreResult {
	results := make([]RestoreResult, 0, len(items))
	for _, item := range items {
		result := RestoreResult{ID: item.ID, Type: item.Type}
		if item.Type != itemTypeFile {
			result.Error = "invalid item type"
			results = append(results, result)
			continue
		}
		id, err := primitive.ObjectIDFromHex(item.ID)
		if err != nil {
			result.Error = "invalid item id"
			results = append(results, result)
			continue
		}
		if _, err := s.RestoreFile(ctx, ownerID, id); err != nil {
			result.Error = err.Error()
		} else {
			result.Success = true
		}
		results = append(results, result)
	}
	return results
}
