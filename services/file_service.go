package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"trashbin/jobs"
	"trashbin/models"
	"trashbin/softdelete"
	"trashbin/utils"
)

var (
	ErrFileNotFound      = errors.New("file not found")
	ErrFileTooLarge      = errors.New("file exceeds maximum size")
	ErrBlobStoreDisabled = errors.New("file storage is not configured")
)

const downloadURLTTL = time.Hour

type UploadInput struct {
	OwnerID  primitive.ObjectID
	Filename string
	MimeType string
	Size     int64
	Content  io.Reader
}

type FileService struct {
	files       *Lifecycle[models.File]
	blobs       BlobStore
	maxFileSize int64
	searchIndex string
	logger      *zap.Logger
}

// NewFileService accepts a nil blobs store; uploads then fail with
// ErrBlobStoreDisabled.
func NewFileService(files *Lifecycle[models.File], blobs BlobStore, maxFileSize int64, logger *zap.Logger) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileService{
		files:       files,
		blobs:       blobs,
		maxFileSize: maxFileSize,
		logger:      logger.Named("files"),
	}
}

// UseSearchIndex makes Search run against the named Atlas Search index
// instead of a regex scan.
func (s *FileService) UseSearchIndex(name string) {
	s.searchIndex = name
}

func (s *FileService) EnsureIndexes(ctx context.Context) error {
	return s.files.Model().EnsureIndexes(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
}

func (s *FileService) Upload(ctx context.Context, in UploadInput) (*models.File, error) {
	if s.blobs == nil {
		return nil, ErrBlobStoreDisabled
	}
	if s.maxFileSize > 0 && in.Size > s.maxFileSize {
		return nil, ErrFileTooLarge
	}

	name := filepath.Base(in.Filename)
	if err := utils.ValidateFileName(name); err != nil {
		return nil, err
	}
	objectName := fmt.Sprintf("users/%s/%s%s", in.OwnerID.Hex(), uuid.NewString(), filepath.Ext(name))
	blob, err := s.blobs.Upload(ctx, in.Content, objectName)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	file := &models.File{
		Name:         name,
		OriginalName: in.Filename,
		Size:         blob.Size,
		MimeType:     in.MimeType,
		OwnerID:      in.OwnerID,
		B2FileID:     blob.ObjectName,
		B2FileName:   blob.ObjectName,
		SHA1Hash:     blob.SHA1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	id, err := s.files.Model().Insert(ctx, file)
	if err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), objectName); delErr != nil {
			s.logger.Warn("failed to remove orphaned blob", zap.String("object", objectName), zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to save file metadata: %w", err)
	}
	file.ID = id
	return file, nil
}

// List returns the owner's active files, newest first.
func (s *FileService) List(ctx context.Context, ownerID primitive.ObjectID, limit, offset int) ([]models.File, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))
	files, err := s.files.Model().Find(ctx, bson.M{"owner_id": ownerID}, softdelete.QueryOptions{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// Search finds the owner's active files whose name contains query. A
// $search stage must come first and is left as is by AggregateSafe, so
// that pipeline filters deleted files itself.
func (s *FileService) Search(ctx context.Context, ownerID primitive.ObjectID, query string, limit, offset int) ([]models.File, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.File{}, nil
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var pipeline []bson.M
	if s.searchIndex != "" {
		pipeline = []bson.M{
			{"$search": bson.M{
				"index": s.searchIndex,
				"text":  bson.M{"query": query, "path": bson.A{"name", "original_name"}},
			}},
			{"$match": bson.M{"owner_id": ownerID, "deleted": false}},
		}
	} else {
		pattern := bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"}
		pipeline = []bson.M{
			{"$match": bson.M{
				"owner_id": ownerID,
				"$or":      bson.A{bson.M{"name": pattern}, bson.M{"original_name": pattern}},
			}},
			{"$sort": bson.D{{Key: "created_at", Value: -1}}},
		}
	}
	if offset > 0 {
		pipeline = append(pipeline, bson.M{"$skip": offset})
	}
	pipeline = append(pipeline, bson.M{"$limit": limit})

	var files []models.File
	if err := s.files.Model().AggregateSafe(ctx, pipeline, &files); err != nil {
		return nil, fmt.Errorf("failed to search files: %w", err)
	}
	if files == nil {
		files = []models.File{}
	}
	return files, nil
}

func (s *FileService) Get(ctx context.Context, ownerID, fileID primitive.ObjectID) (*models.File, error) {
	file, err := s.files.Model().FindOne(ctx, bson.M{"_id": fileID, "owner_id": ownerID}, softdelete.QueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	if file == nil {
		return nil, ErrFileNotFound
	}
	return file, nil
}

// DownloadURL returns a signed url for an active file.
func (s *FileService) DownloadURL(ctx context.Context, ownerID, fileID primitive.ObjectID) (string, error) {
	if s.blobs == nil {
		return "", ErrBlobStoreDisabled
	}
	file, err := s.Get(ctx, ownerID, fileID)
	if err != nil {
		return "", err
	}
	return s.blobs.SignedURL(ctx, file.B2FileName, downloadURLTTL)
}

// Delete moves the owner's file to the trash.
func (s *FileService) Delete(ctx context.Context, ownerID, fileID primitive.ObjectID) (*models.File, error) {
	if _, err := s.Get(ctx, ownerID, fileID); err != nil {
		return nil, err
	}
	file, err := s.files.SoftDelete(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete file: %w", err)
	}
	if file == nil {
		return nil, ErrFileNotFound
	}
	s.logger.Info("file moved to trash", zap.String("file_id", fileID.Hex()), zap.String("owner_id", ownerID.Hex()))
	return file, nil
}

// PurgeTarget removes the blob once the file record is gone. A file with a
// blob is not purged while no blob store is configured, so the record
// keeps pointing at the object until it can be deleted.
func (s *FileService) PurgeTarget() *jobs.Target[models.File] {
	target := s.files.PurgeTarget(func(ctx context.Context, removed *models.File) error {
		if removed.B2FileName == "" {
			return nil
		}
		return s.blobs.Delete(ctx, removed.B2FileName)
	})
	target.BeforePurge = func(_ context.Context, candidate *models.File) error {
		if candidate.B2FileName != "" && s.blobs == nil {
			return fmt.Errorf("cannot purge file %s: blob %s: %w", candidate.ID.Hex(), candidate.B2FileName, ErrBlobStoreDisabled)
		}
		return nil
	}
	return target
}
