// Package store defines the document-store contract the soft-delete layer
// and the job queue are written against, with its MongoDB adapter. Test
// doubles live in store/storetest.
package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the subset of a MongoDB collection used by this service.
// Not-found single-document reads return mongo.ErrNoDocuments and unique
// key violations satisfy mongo.IsDuplicateKeyError for every implementation.
type Collection interface {
	Name() string
	InsertOne(ctx context.Context, doc interface{}) (interface{}, error)
	Find(ctx context.Context, filter bson.M, results interface{}, opts ...*options.FindOptions) error
	FindOne(ctx context.Context, filter bson.M, result interface{}, opts ...*options.FindOneOptions) error
	CountDocuments(ctx context.Context, filter bson.M) (int64, error)
	UpdateOne(ctx context.Context, filter bson.M, update bson.M) (*mongo.UpdateResult, error)
	UpdateMany(ctx context.Context, filter bson.M, update bson.M) (*mongo.UpdateResult, error)
	FindOneAndUpdate(ctx context.Context, filter bson.M, update bson.M, result interface{}, opts ...*options.FindOneAndUpdateOptions) error
	FindOneAndDelete(ctx context.Context, filter bson.M, result interface{}) error
	DeleteOne(ctx context.Context, filter bson.M) (int64, error)
	Aggregate(ctx context.Context, pipeline []bson.M, results interface{}) error
	CreateIndexes(ctx context.Context, indexes []mongo.IndexModel) error
}

type mongoCollection struct {
	coll *mongo.Collection
}

// Mongo adapts a driver collection to Collection.
func Mongo(coll *mongo.Collection) Collection {
	return &mongoCollection{coll: coll}
}

func (c *mongoCollection) Name() string {
	return c.coll.Name()
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc interface{}) (interface{}, error) {
	res, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

func (c *mongoCollection) Find(ctx context.Context, filter bson.M, results interface{}, opts ...*options.FindOptions) error {
	cursor, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	return cursor.All(ctx, results)
}

func (c *mongoCollection) FindOne(ctx context.Context, filter bson.M, result interface{}, opts ...*options.FindOneOptions) error {
	return c.coll.FindOne(ctx, filter, opts...).Decode(result)
}

func (c *mongoCollection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	return c.coll.CountDocuments(ctx, filter)
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter bson.M, update bson.M) (*mongo.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update)
}

func (c *mongoCollection) UpdateMany(ctx context.Context, filter bson.M, update bson.M) (*mongo.UpdateResult, error) {
	return c.coll.UpdateMany(ctx, filter, update)
}

func (c *mongoCollection) FindOneAndUpdate(ctx context.Context, filter bson.M, update bson.M, result interface{}, opts ...*options.FindOneAndUpdateOptions) error {
	return c.coll.FindOneAndUpdate(ctx, filter, update, opts...).Decode(result)
}

func (c *mongoCollection) FindOneAndDelete(ctx context.Context, filter bson.M, result interface{}) error {
	return c.coll.FindOneAndDelete(ctx, filter).Decode(result)
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	res, err := c.coll.DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *mongoCollection) Aggregate(ctx context.Context, pipeline []bson.M, results interface{}) error {
	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	return cursor.All(ctx, results)
}

func (c *mongoCollection) CreateIndexes(ctx context.Context, indexes []mongo.IndexModel) error {
	if len(indexes) == 0 {
		return nil
	}
	_, err := c.coll.Indexes().CreateMany(ctx, indexes)
	return err
}
