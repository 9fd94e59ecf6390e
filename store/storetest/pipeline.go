package storetest

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

const earthRadiusMeters = 6378100.0

func runPipeline(docs []bson.M, stages []bson.D) ([]bson.M, error) {
	for i, stage := range stages {
		name, arg := stage[0].Key, stage[0].Value
		var err error
		switch name {
		case "$match":
			docs, err = stageMatch(docs, arg)
		case "$geoNear":
			if i != 0 {
				return nil, fmt.Errorf("store: $geoNear is only valid as the first stage in a pipeline")
			}
			docs, err = stageGeoNear(docs, arg)
		case "$search":
			if i != 0 {
				return nil, fmt.Errorf("store: $search is only valid as the first stage in a pipeline")
			}
			docs, err = stageSearch(docs, arg)
		case "$sort":
			var keys []sortKey
			keys, err = parseSort(arg)
			if err == nil {
				sorted := make([]bson.M, len(docs))
				copy(sorted, docs)
				sortDocs(sorted, keys)
				docs = sorted
			}
		case "$skip":
			n, ok := numeric(arg)
			if !ok || n < 0 {
				return nil, fmt.Errorf("store: $skip needs a non-negative number")
			}
			if int(n) >= len(docs) {
				docs = nil
			} else {
				docs = docs[int(n):]
			}
		case "$limit":
			n, ok := numeric(arg)
			if !ok || n <= 0 {
				return nil, fmt.Errorf("store: $limit needs a positive number")
			}
			if int(n) < len(docs) {
				docs = docs[:int(n)]
			}
		case "$count":
			field, ok := arg.(string)
			if !ok || field == "" || strings.HasPrefix(field, "$") || strings.Contains(field, ".") {
				return nil, fmt.Errorf("store: $count needs a plain field name")
			}
			if len(docs) == 0 {
				docs = nil
			} else {
				docs = []bson.M{{field: int32(len(docs))}}
			}
		default:
			return nil, fmt.Errorf("store: unsupported pipeline stage %s", name)
		}
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func stageMatch(docs []bson.M, arg interface{}) ([]bson.M, error) {
	filter, ok := asDoc(arg)
	if !ok {
		return nil, fmt.Errorf("store: $match needs a document")
	}
	var out []bson.M
	for _, doc := range docs {
		hit, err := matches(doc, filter)
		if err != nil {
			return nil, err
		}
		if hit {
			out = append(out, doc)
		}
	}
	return out, nil
}

// point extracts [lng, lat] from a GeoJSON Point or a legacy coordinate pair.
func point(v interface{}) (float64, float64, bool) {
	if m, ok := asDoc(v); ok {
		if t, _ := m["type"].(string); t != "Point" {
			return 0, 0, false
		}
		v = m["coordinates"]
	}
	pair, ok := asArray(v)
	if !ok || len(pair) != 2 {
		return 0, 0, false
	}
	lng, ok1 := numeric(pair[0])
	lat, ok2 := numeric(pair[1])
	return lng, lat, ok1 && ok2
}

func haversine(lng1, lat1, lng2, lat2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}

func stageGeoNear(docs []bson.M, arg interface{}) ([]bson.M, error) {
	spec, ok := asDoc(arg)
	if !ok {
		return nil, fmt.Errorf("store: $geoNear needs a document")
	}
	lng, lat, ok := point(spec["near"])
	if !ok {
		return nil, fmt.Errorf("store: $geoNear needs a near point")
	}
	distanceField, _ := spec["distanceField"].(string)
	if distanceField == "" {
		return nil, fmt.Errorf("store: $geoNear requires a distanceField")
	}
	key, _ := spec["key"].(string)
	if key == "" {
		key = "location"
	}
	maxDistance, hasMax := numeric(spec["maxDistance"])
	minDistance, hasMin := numeric(spec["minDistance"])

	var query bson.M
	if q, exists := spec["query"]; exists {
		if query, ok = asDoc(q); !ok {
			return nil, fmt.Errorf("store: $geoNear query must be a document")
		}
	}

	type hit struct {
		doc      bson.M
		distance float64
	}
	var hits []hit
	for _, doc := range docs {
		loc, found := lookup(doc, key)
		if !found {
			continue
		}
		dLng, dLat, ok := point(loc)
		if !ok {
			continue
		}
		if query != nil {
			match, err := matches(doc, query)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}
		}
		d := haversine(lng, lat, dLng, dLat)
		if (hasMax && d > maxDistance) || (hasMin && d < minDistance) {
			continue
		}
		out := make(bson.M, len(doc)+1)
		for k, v := range doc {
			out[k] = v
		}
		setPath(out, distanceField, d)
		hits = append(hits, hit{doc: out, distance: d})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })

	out := make([]bson.M, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.doc)
	}
	return out, nil
}

// stageSearch supports the text operator only: a case-insensitive substring
// match of query against the listed path(s).
func stageSearch(docs []bson.M, arg interface{}) ([]bson.M, error) {
	spec, ok := asDoc(arg)
	if !ok {
		return nil, fmt.Errorf("store: $search needs a document")
	}
	text, ok := asDoc(spec["text"])
	if !ok {
		return nil, fmt.Errorf("store: $search supports only the text operator")
	}
	query, _ := text["query"].(string)
	var paths []string
	switch p := text["path"].(type) {
	case string:
		paths = []string{p}
	default:
		arr, _ := asArray(p)
		for _, e := range arr {
			if s, ok := e.(string); ok {
				paths = append(paths, s)
			}
		}
	}
	if query == "" || len(paths) == 0 {
		return nil, fmt.Errorf("store: $search text needs query and path")
	}

	needle := strings.ToLower(query)
	var out []bson.M
	for _, doc := range docs {
		for _, path := range paths {
			v, _ := lookup(doc, path)
			if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
				out = append(out, doc)
				break
			}
		}
	}
	return out, nil
}
