package softdelete

import (
	"go.mongodb.org/mongo-driver/bson"

	"trashbin/models"
)

// QueryOptions selects which lifecycle states a read sees. The zero value
// hides soft-deleted records.
type QueryOptions struct {
	IncludeDeleted bool
	OnlyDeleted    bool
}

func WithDeleted() QueryOptions {
	return QueryOptions{IncludeDeleted: true}
}

func OnlyDeleted() QueryOptions {
	return QueryOptions{OnlyDeleted: true}
}

func copyFilter(filter bson.M) bson.M {
	out := make(bson.M, len(filter)+1)
	for k, v := range filter {
		out[k] = v
	}
	return out
}

// ApplyFilter returns filter rewritten for opts. A caller that already
// constrains the deleted field keeps its own constraint under the default
// options. The input is never modified.
func ApplyFilter(filter bson.M, opts QueryOptions) bson.M {
	out := copyFilter(filter)
	switch {
	case opts.OnlyDeleted:
		out[models.FieldDeleted] = true
	case opts.IncludeDeleted:
	default:
		if _, ok := filter[models.FieldDeleted]; !ok {
			out[models.FieldDeleted] = false
		}
	}
	return out
}

// ForceActive returns filter restricted to active records, overriding any
// deleted constraint the caller supplied.
func ForceActive(filter bson.M) bson.M {
	out := copyFilter(filter)
	out[models.FieldDeleted] = false
	return out
}

// Stages that must stay first in a pipeline and do not accept a $match
// in front of them.
var passthroughStages = []string{"$search", "$vectorSearch", "$searchMeta"}

// RewritePipeline makes an aggregation exclude soft-deleted records.
// $geoNear gets the condition merged into its query, search stages are left
// untouched, anything else gets a leading $match.
func RewritePipeline(pipeline []bson.M) []bson.M {
	activeMatch := bson.M{"$match": bson.M{models.FieldDeleted: false}}
	if len(pipeline) == 0 {
		return []bson.M{activeMatch}
	}

	first := pipeline[0]
	for _, stage := range passthroughStages {
		if _, ok := first[stage]; ok {
			out := make([]bson.M, len(pipeline))
			copy(out, pipeline)
			return out
		}
	}

	if geo, ok := first["$geoNear"]; ok {
		spec := toM(geo)
		query := toM(spec["query"])
		query[models.FieldDeleted] = false
		spec["query"] = query

		out := make([]bson.M, len(pipeline))
		copy(out, pipeline)
		out[0] = bson.M{"$geoNear": spec}
		return out
	}

	out := make([]bson.M, 0, len(pipeline)+1)
	out = append(out, activeMatch)
	return append(out, pipeline...)
}

// toM copies a stage sub-document into a fresh bson.M.
func toM(v interface{}) bson.M {
	out := bson.M{}
	switch t := v.(type) {
	case bson.M:
		for k, val := range t {
			out[k] = val
		}
	case map[string]interface{}:
		for k, val := range t {
			out[k] = val
		}
	case bson.D:
		for _, e := range t {
			out[e.Key] = e.Value
		}
	}
	return out
}
