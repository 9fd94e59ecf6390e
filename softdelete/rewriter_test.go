package softdelete

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestApplyFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter bson.M
		opts   QueryOptions
		want   bson.M
	}{
		{"default injects active", bson.M{"email": "a@b.c"}, QueryOptions{}, bson.M{"email": "a@b.c", "deleted": false}},
		{"default nil filter", nil, QueryOptions{}, bson.M{"deleted": false}},
		{"caller constraint wins", bson.M{"deleted": true}, QueryOptions{}, bson.M{"deleted": true}},
		{"include deleted", bson.M{"email": "a@b.c"}, WithDeleted(), bson.M{"email": "a@b.c"}},
		{"only deleted", bson.M{"deleted": false}, OnlyDeleted(), bson.M{"deleted": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyFilter(tt.filter, tt.opts))
		})
	}
}

func TestApplyFilter_DoesNotMutateInput(t *testing.T) {
	filter := bson.M{"email": "a@b.c"}
	ApplyFilter(filter, QueryOptions{})
	ApplyFilter(filter, OnlyDeleted())
	assert.Equal(t, bson.M{"email": "a@b.c"}, filter)
}

func TestForceActive(t *testing.T) {
	filter := bson.M{"deleted": true, "role": "admin"}
	assert.Equal(t, bson.M{"deleted": false, "role": "admin"}, ForceActive(filter))
	assert.Equal(t, true, filter["deleted"])
}

func TestRewritePipeline(t *testing.T) {
	t.Run("empty pipeline", func(t *testing.T) {
		assert.Equal(t, []bson.M{{"$match": bson.M{"deleted": false}}}, RewritePipeline(nil))
	})

	t.Run("prepends match", func(t *testing.T) {
		in := []bson.M{{"$match": bson.M{"value": bson.M{"$gte": 10}}}}
		out := RewritePipeline(in)
		assert.Equal(t, []bson.M{
			{"$match": bson.M{"deleted": false}},
			{"$match": bson.M{"value": bson.M{"$gte": 10}}},
		}, out)
		assert.Len(t, in, 1)
	})

	t.Run("merges into geoNear query", func(t *testing.T) {
		geo := bson.M{
			"near":          bson.M{"type": "Point", "coordinates": bson.A{0, 0}},
			"distanceField": "distance",
			"query":         bson.M{"category": "cafe"},
		}
		in := []bson.M{{"$geoNear": geo}, {"$limit": 5}}
		out := RewritePipeline(in)

		assert.Len(t, out, 2)
		merged := out[0]["$geoNear"].(bson.M)
		assert.Equal(t, bson.M{"category": "cafe", "deleted": false}, merged["query"])
		assert.Equal(t, "distance", merged["distanceField"])
		assert.Equal(t, bson.M{"category": "cafe"}, geo["query"], "input stage must not change")
	})

	t.Run("geoNear without query", func(t *testing.T) {
		out := RewritePipeline([]bson.M{{"$geoNear": bson.M{"near": bson.A{1, 2}, "distanceField": "d"}}})
		assert.Equal(t, bson.M{"deleted": false}, out[0]["$geoNear"].(bson.M)["query"])
	})

	for _, stage := range []string{"$search", "$vectorSearch", "$searchMeta"} {
		t.Run("passthrough "+stage, func(t *testing.T) {
			in := []bson.M{{stage: bson.M{"index": "default"}}, {"$limit": 10}}
			assert.Equal(t, in, RewritePipeline(in))
		})
	}
}
