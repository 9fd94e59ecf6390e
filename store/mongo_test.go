package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trashbin/store"
	"trashbin/store/storetest"
)

type item struct {
	ID    primitive.ObjectID `bson:"_id,omitempty"`
	Name  string             `bson:"name"`
	Value int                `bson:"value"`
}

// The memory engine and the Mongo adapter must agree on the contract.
func TestMongoCollection_Contract(t *testing.T) {
	db := storetest.NewMongoDatabase(t)
	ctx := context.Background()
	coll := store.Mongo(db.Collection("items"))

	id, err := coll.InsertOne(ctx, item{Name: "a", Value: 1})
	require.NoError(t, err)
	_, err = coll.InsertOne(ctx, bson.M{"_id": id, "name": "dup"})
	assert.True(t, mongo.IsDuplicateKeyError(err))

	var missing item
	assert.ErrorIs(t, coll.FindOne(ctx, bson.M{"name": "nobody"}, &missing), mongo.ErrNoDocuments)

	var updated item
	err = coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"value": 2}}, &updated,
		options.FindOneAndUpdate().SetReturnDocument(options.After))
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Value)

	var counted []bson.M
	require.NoError(t, coll.Aggregate(ctx, []bson.M{{"$match": bson.M{"value": 3}}, {"$count": "total"}}, &counted))
	require.Len(t, counted, 1)
	assert.EqualValues(t, 1, counted[0]["total"])

	var removed item
	require.NoError(t, coll.FindOneAndDelete(ctx, bson.M{"_id": id}, &removed))
	assert.Equal(t, "a", removed.Name)

	n, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
