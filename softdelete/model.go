// Package softdelete layers the soft-delete lifecycle over a store.Collection:
// reads hide deleted records unless asked otherwise, deletes only flip the
// lifecycle fields, and destructive removal is refused except for the
// conditional purge used by the purge pipeline.
package softdelete

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

const CleanupIndexName = "idx_soft_delete_cleanup"

type settings struct {
	now func() time.Time
}

type Option func(*settings)

// WithClock overrides the time source used for deleted_at.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// Model is the soft-delete operation set for entities of type T stored in
// one collection. T must embed models.SoftDelete inline and carry an
// ObjectID _id.
type Model[T any] struct {
	coll store.Collection
	now  func() time.Time
}

func New[T any](coll store.Collection, opts ...Option) *Model[T] {
	s := settings{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&s)
	}
	return &Model[T]{coll: coll, now: s.now}
}

func (m *Model[T]) CollectionName() string {
	return m.coll.Name()
}

// EnsureIndexes creates the lifecycle indexes, one on deleted for the
// default filter and a partial one on deleted_at for the purge scan, plus
// any entity-specific extra indexes.
func (m *Model[T]) EnsureIndexes(ctx context.Context, extra ...mongo.IndexModel) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: models.FieldDeleted, Value: 1}}},
		{
			Keys: bson.D{{Key: models.FieldDeletedAt, Value: 1}},
			Options: options.Index().
				SetName(CleanupIndexName).
				SetPartialFilterExpression(bson.M{models.FieldDeleted: true}),
		},
	}
	indexes = append(indexes, extra...)
	if err := m.coll.CreateIndexes(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create lifecycle indexes on %s: %w", m.coll.Name(), err)
	}
	return nil
}

// Insert stores doc as an active record and returns its id.
func (m *Model[T]) Insert(ctx context.Context, doc *T) (primitive.ObjectID, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return primitive.NilObjectID, err
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return primitive.NilObjectID, err
	}
	fields[models.FieldDeleted] = false
	fields[models.FieldDeletedAt] = nil

	id, err := m.coll.InsertOne(ctx, fields)
	if err != nil {
		return primitive.NilObjectID, err
	}
	oid, ok := id.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("unexpected id type %T in %s", id, m.coll.Name())
	}
	return oid, nil
}

func (m *Model[T]) Find(ctx context.Context, filter bson.M, opts QueryOptions, findOpts ...*options.FindOptions) ([]T, error) {
	var results []T
	if err := m.coll.Find(ctx, ApplyFilter(filter, opts), &results, findOpts...); err != nil {
		return nil, err
	}
	return results, nil
}

// FindOne returns nil when nothing matches.
func (m *Model[T]) FindOne(ctx context.Context, filter bson.M, opts QueryOptions) (*T, error) {
	var result T
	err := m.coll.FindOne(ctx, ApplyFilter(filter, opts), &result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (m *Model[T]) FindByID(ctx context.Context, id primitive.ObjectID, opts QueryOptions) (*T, error) {
	return m.FindOne(ctx, bson.M{"_id": id}, opts)
}

func (m *Model[T]) Count(ctx context.Context, filter bson.M, opts QueryOptions) (int64, error) {
	return m.coll.CountDocuments(ctx, ApplyFilter(filter, opts))
}

func (m *Model[T]) UpdateMany(ctx context.Context, filter bson.M, update bson.M, opts QueryOptions) (*mongo.UpdateResult, error) {
	return m.coll.UpdateMany(ctx, ApplyFilter(filter, opts), update)
}

// CountActive counts active records even if filter asks for deleted ones.
func (m *Model[T]) CountActive(ctx context.Context, filter bson.M) (int64, error) {
	return m.coll.CountDocuments(ctx, ForceActive(filter))
}

// UpdateActive updates active records even if filter asks for deleted ones.
func (m *Model[T]) UpdateActive(ctx context.Context, filter bson.M, update bson.M) (*mongo.UpdateResult, error) {
	return m.coll.UpdateMany(ctx, ForceActive(filter), update)
}

func (m *Model[T]) UpdateAllIncludingDeleted(ctx context.Context, filter bson.M, update bson.M) (*mongo.UpdateResult, error) {
	return m.coll.UpdateMany(ctx, filter, update)
}

// UpdateByID applies update to an active record and returns the new state,
// or nil when no active record has that id.
func (m *Model[T]) UpdateByID(ctx context.Context, id primitive.ObjectID, update bson.M) (*T, error) {
	return m.findOneAndUpdate(ctx, ForceActive(bson.M{"_id": id}), update)
}

// SoftDelete marks the active record deleted and returns it. Returns nil if
// the id is unknown or already deleted, leaving the original deleted_at.
func (m *Model[T]) SoftDelete(ctx context.Context, id primitive.ObjectID) (*T, error) {
	return m.findOneAndUpdate(ctx, ApplyFilter(bson.M{"_id": id}, QueryOptions{}), bson.M{
		"$set": bson.M{
			models.FieldDeleted:   true,
			models.FieldDeletedAt: m.now(),
		},
	})
}

// Restore returns a record to the active state regardless of its current
// state. Returns nil if the id is unknown.
func (m *Model[T]) Restore(ctx context.Context, id primitive.ObjectID) (*T, error) {
	return m.findOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			models.FieldDeleted:   false,
			models.FieldDeletedAt: nil,
		},
	})
}

func (m *Model[T]) findOneAndUpdate(ctx context.Context, filter bson.M, update bson.M) (*T, error) {
	var result T
	err := m.coll.FindOneAndUpdate(ctx, filter, update, &result,
		options.FindOneAndUpdate().SetReturnDocument(options.After))
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// AggregateSafe runs pipeline with soft-deleted records excluded.
func (m *Model[T]) AggregateSafe(ctx context.Context, pipeline []bson.M, results interface{}) error {
	return m.coll.Aggregate(ctx, RewritePipeline(pipeline), results)
}

func (m *Model[T]) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	return 0, hardDeleteError(m.coll.Name(), "DeleteOne")
}

func (m *Model[T]) DeleteMany(ctx context.Context, filter bson.M) (int64, error) {
	return 0, hardDeleteError(m.coll.Name(), "DeleteMany")
}

func (m *Model[T]) FindOneAndDelete(ctx context.Context, filter bson.M) (*T, error) {
	return nil, hardDeleteError(m.coll.Name(), "FindOneAndDelete")
}

func (m *Model[T]) FindByIDAndDelete(ctx context.Context, id primitive.ObjectID) (*T, error) {
	return nil, hardDeleteError(m.coll.Name(), "FindByIDAndDelete")
}

// OverdueIDs returns up to limit ids of records deleted at or before
// cutoff, in ascending _id order starting after the given id. A zero after
// starts from the beginning.
func (m *Model[T]) OverdueIDs(ctx context.Context, cutoff time.Time, after primitive.ObjectID, limit int) ([]primitive.ObjectID, error) {
	filter := bson.M{
		models.FieldDeleted:   true,
		models.FieldDeletedAt: bson.M{"$lte": cutoff},
	}
	if !after.IsZero() {
		filter["_id"] = bson.M{"$gt": after}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"_id": 1})

	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := m.coll.Find(ctx, filter, &rows, opts); err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// PurgeExpired permanently removes the record only if it is still deleted
// and its deletion is at or before cutoff, in one atomic operation. Returns
// the removed record, or nil when nothing qualified.
func (m *Model[T]) PurgeExpired(ctx context.Context, id primitive.ObjectID, cutoff time.Time) (*T, error) {
	var removed T
	err := m.coll.FindOneAndDelete(ctx, bson.M{
		"_id":                 id,
		models.FieldDeleted:   true,
		models.FieldDeletedAt: bson.M{"$lte": cutoff},
	}, &removed)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &removed, nil
}
