// Package storetest provides test doubles for store.Collection: an
// in-process engine for unit tests and a containerised MongoDB for
// integration tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trashbin/store"
)

// MemoryCollection is an in-process store.Collection. It understands the
// query, update and aggregation subset this service issues. It does not
// enforce index requirements: $geoNear runs without a 2dsphere index and
// $search without an Atlas search index.
type MemoryCollection struct {
	name string

	mu   sync.Mutex
	docs []bson.M
}

var _ store.Collection = (*MemoryCollection)(nil)

func NewMemoryCollection(name string) *MemoryCollection {
	return &MemoryCollection{name: name}
}

func (c *MemoryCollection) Name() string {
	return c.name
}

// Len reports the number of stored documents regardless of their content.
func (c *MemoryCollection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}

func (c *MemoryCollection) duplicateKey(id interface{}) error {
	return mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{
			Index:   0,
			Code:    11000,
			Message: fmt.Sprintf("E11000 duplicate key error collection: %s index: _id_ dup key: { _id: %v }", c.name, id),
		}},
	}
}

func (c *MemoryCollection) indexOf(id interface{}) int {
	for i, doc := range c.docs {
		if valuesEqual(doc["_id"], id) {
			return i
		}
	}
	return -1
}

func (c *MemoryCollection) InsertOne(ctx context.Context, doc interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	if _, ok := m["_id"]; !ok {
		m["_id"] = primitive.NewObjectID()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.indexOf(m["_id"]) >= 0 {
		return nil, c.duplicateKey(m["_id"])
	}
	c.docs = append(c.docs, m)
	return m["_id"], nil
}

// selectLocked returns the positions of matching documents in storage order.
func (c *MemoryCollection) selectLocked(filter bson.M) ([]int, error) {
	normalized, err := normalize(filter)
	if err != nil {
		return nil, err
	}
	var hits []int
	for i, doc := range c.docs {
		ok, err := matches(doc, normalized)
		if err != nil {
			return nil, err
		}
		if ok {
			hits = append(hits, i)
		}
	}
	return hits, nil
}

func normalizeSort(spec interface{}) ([]sortKey, error) {
	if spec == nil {
		return nil, nil
	}
	ordered, err := normalizeOrdered(spec)
	if err != nil {
		return nil, err
	}
	return parseSort(ordered)
}

// orderLocked returns matching positions after sort and skip are applied.
func (c *MemoryCollection) orderLocked(filter bson.M, sortSpec interface{}, skip int64) ([]int, error) {
	hits, err := c.selectLocked(filter)
	if err != nil {
		return nil, err
	}
	keys, err := normalizeSort(sortSpec)
	if err != nil {
		return nil, err
	}
	if len(keys) > 0 {
		sort.SliceStable(hits, func(i, j int) bool {
			return lessDocs(c.docs[hits[i]], c.docs[hits[j]], keys)
		})
	}
	if skip > 0 {
		if skip >= int64(len(hits)) {
			return nil, nil
		}
		hits = hits[skip:]
	}
	return hits, nil
}

func (c *MemoryCollection) Find(ctx context.Context, filter bson.M, results interface{}, opts ...*options.FindOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fo := options.MergeFindOptions(opts...)
	var skip int64
	if fo.Skip != nil {
		skip = *fo.Skip
	}

	c.mu.Lock()
	hits, err := c.orderLocked(filter, fo.Sort, skip)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if fo.Limit != nil && *fo.Limit > 0 && int64(len(hits)) > *fo.Limit {
		hits = hits[:*fo.Limit]
	}
	docs := make([]bson.M, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, c.docs[h])
	}
	c.mu.Unlock()

	return decodeAll(docs, results)
}

func (c *MemoryCollection) FindOne(ctx context.Context, filter bson.M, result interface{}, opts ...*options.FindOneOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fo := options.MergeFindOneOptions(opts...)
	var skip int64
	if fo.Skip != nil {
		skip = *fo.Skip
	}

	c.mu.Lock()
	hits, err := c.orderLocked(filter, fo.Sort, skip)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if len(hits) == 0 {
		c.mu.Unlock()
		return mongo.ErrNoDocuments
	}
	doc := c.docs[hits[0]]
	c.mu.Unlock()

	return decodeOne(doc, result)
}

func (c *MemoryCollection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	hits, err := c.selectLocked(filter)
	if err != nil {
		return 0, err
	}
	return int64(len(hits)), nil
}

// updateLocked applies update to the document at position i. The stored
// document is replaced only if the whole update succeeds.
func (c *MemoryCollection) updateLocked(i int, update bson.M) (bool, error) {
	current := c.docs[i]
	next, err := normalize(current)
	if err != nil {
		return false, err
	}
	if err := applyUpdate(next, update); err != nil {
		return false, err
	}
	modified := !reflect.DeepEqual(current, next)
	c.docs[i] = next
	return modified, nil
}

func (c *MemoryCollection) update(ctx context.Context, filter bson.M, update bson.M, many bool) (*mongo.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	normalizedUpdate, err := normalize(update)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	hits, err := c.selectLocked(filter)
	if err != nil {
		return nil, err
	}
	if !many && len(hits) > 1 {
		hits = hits[:1]
	}
	res := &mongo.UpdateResult{MatchedCount: int64(len(hits))}
	for _, h := range hits {
		modified, err := c.updateLocked(h, normalizedUpdate)
		if err != nil {
			return nil, err
		}
		if modified {
			res.ModifiedCount++
		}
	}
	return res, nil
}

func (c *MemoryCollection) UpdateOne(ctx context.Context, filter bson.M, update bson.M) (*mongo.UpdateResult, error) {
	return c.update(ctx, filter, update, false)
}

func (c *MemoryCollection) UpdateMany(ctx context.Context, filter bson.M, update bson.M) (*mongo.UpdateResult, error) {
	return c.update(ctx, filter, update, true)
}

func (c *MemoryCollection) FindOneAndUpdate(ctx context.Context, filter bson.M, update bson.M, result interface{}, opts ...*options.FindOneAndUpdateOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fo := options.MergeFindOneAndUpdateOptions(opts...)
	if fo.Upsert != nil && *fo.Upsert {
		return errors.New("store: upsert is not supported by the memory engine")
	}
	normalizedUpdate, err := normalize(update)
	if err != nil {
		return err
	}

	c.mu.Lock()
	hits, err := c.orderLocked(filter, fo.Sort, 0)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if len(hits) == 0 {
		c.mu.Unlock()
		return mongo.ErrNoDocuments
	}
	before := c.docs[hits[0]]
	if _, err := c.updateLocked(hits[0], normalizedUpdate); err != nil {
		c.mu.Unlock()
		return err
	}
	after := c.docs[hits[0]]
	c.mu.Unlock()

	if fo.ReturnDocument != nil && *fo.ReturnDocument == options.After {
		return decodeOne(after, result)
	}
	return decodeOne(before, result)
}

func (c *MemoryCollection) FindOneAndDelete(ctx context.Context, filter bson.M, result interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	hits, err := c.selectLocked(filter)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if len(hits) == 0 {
		c.mu.Unlock()
		return mongo.ErrNoDocuments
	}
	doc := c.docs[hits[0]]
	c.docs = append(c.docs[:hits[0]], c.docs[hits[0]+1:]...)
	c.mu.Unlock()

	if result == nil {
		return nil
	}
	return decodeOne(doc, result)
}

func (c *MemoryCollection) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	hits, err := c.selectLocked(filter)
	if err != nil {
		return 0, err
	}
	if len(hits) == 0 {
		return 0, nil
	}
	c.docs = append(c.docs[:hits[0]], c.docs[hits[0]+1:]...)
	return 1, nil
}

func (c *MemoryCollection) Aggregate(ctx context.Context, pipeline []bson.M, results interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stages := make([]bson.D, 0, len(pipeline))
	for _, stage := range pipeline {
		d, err := normalizeOrdered(stage)
		if err != nil {
			return err
		}
		if len(d) != 1 {
			return fmt.Errorf("store: a pipeline stage must have exactly one field, got %d", len(d))
		}
		stages = append(stages, d)
	}

	c.mu.Lock()
	docs := make([]bson.M, len(c.docs))
	copy(docs, c.docs)
	c.mu.Unlock()

	out, err := runPipeline(docs, stages)
	if err != nil {
		return err
	}
	return decodeAll(out, results)
}

// CreateIndexes accepts any index model; the memory engine scans linearly.
func (c *MemoryCollection) CreateIndexes(ctx context.Context, indexes []mongo.IndexModel) error {
	return ctx.Err()
}
