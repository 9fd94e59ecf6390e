package storetest

import (
	"bytes"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BSON comparison order for values of different types.
func typeRank(v interface{}) int {
	if v == nil {
		return 0
	}
	if _, ok := numeric(v); ok {
		return 1
	}
	switch v.(type) {
	case string:
		return 2
	case bson.M, map[string]interface{}, bson.D:
		return 3
	case bson.A, []interface{}:
		return 4
	case primitive.ObjectID:
		return 7
	case bool:
		return 8
	case primitive.DateTime, time.Time:
		return 9
	}
	return 10
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func dateTime(v interface{}) (primitive.DateTime, bool) {
	switch t := v.(type) {
	case primitive.DateTime:
		return t, true
	case time.Time:
		return primitive.NewDateTimeFromTime(t), true
	}
	return 0, false
}

// compareValues orders two scalars of the same BSON type class. ok is false
// when the values are not comparable.
func compareValues(a, b interface{}) (int, bool) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, true
		}
		return 0, false
	}
	if x, ok := numeric(a); ok {
		y, ok := numeric(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	if x, ok := dateTime(a); ok {
		y, ok := dateTime(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case primitive.ObjectID:
		y, ok := b.(primitive.ObjectID)
		if !ok {
			return 0, false
		}
		return bytes.Compare(x[:], y[:]), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func valuesEqual(a, b interface{}) bool {
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// equalsOrContains implements implicit equality: null matches a missing
// field and a scalar matches any element of an array field.
func equalsOrContains(val interface{}, found bool, target interface{}) bool {
	if target == nil {
		return !found || val == nil
	}
	if !found {
		return false
	}
	if valuesEqual(val, target) {
		return true
	}
	if arr, ok := asArray(val); ok {
		for _, elem := range arr {
			if valuesEqual(elem, target) {
				return true
			}
		}
	}
	return false
}

func compareAny(val interface{}, target interface{}, accept func(int) bool) bool {
	candidates := []interface{}{val}
	if arr, ok := asArray(val); ok {
		candidates = arr
	}
	for _, c := range candidates {
		if typeRank(c) != typeRank(target) {
			continue
		}
		if cmp, ok := compareValues(c, target); ok && accept(cmp) {
			return true
		}
	}
	return false
}

func isOperatorDoc(v interface{}) (bson.M, bool) {
	m, ok := asDoc(v)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matches(doc bson.M, filter bson.M) (bool, error) {
	for key, cond := range filter {
		switch key {
		case "$and", "$or", "$nor":
			clauses, ok := asArray(cond)
			if !ok || len(clauses) == 0 {
				return false, fmt.Errorf("store: %s must be a nonempty array", key)
			}
			hits := 0
			for _, clause := range clauses {
				sub, ok := asDoc(clause)
				if !ok {
					return false, fmt.Errorf("store: %s entries must be documents", key)
				}
				hit, err := matches(doc, sub)
				if err != nil {
					return false, err
				}
				if hit {
					hits++
				}
			}
			switch key {
			case "$and":
				if hits != len(clauses) {
					return false, nil
				}
			case "$or":
				if hits == 0 {
					return false, nil
				}
			case "$nor":
				if hits > 0 {
					return false, nil
				}
			}
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("store: unsupported top-level operator %s", key)
			}
			val, found := lookup(doc, key)
			ok, err := matchField(val, found, cond)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func matchField(val interface{}, found bool, cond interface{}) (bool, error) {
	ops, isOps := isOperatorDoc(cond)
	if !isOps {
		return equalsOrContains(val, found, cond), nil
	}

	for op, arg := range ops {
		var ok bool
		switch op {
		case "$eq":
			ok = equalsOrContains(val, found, arg)
		case "$ne":
			ok = !equalsOrContains(val, found, arg)
		case "$gt":
			ok = found && compareAny(val, arg, func(c int) bool { return c > 0 })
		case "$gte":
			ok = found && compareAny(val, arg, func(c int) bool { return c >= 0 })
		case "$lt":
			ok = found && compareAny(val, arg, func(c int) bool { return c < 0 })
		case "$lte":
			ok = found && compareAny(val, arg, func(c int) bool { return c <= 0 })
		case "$in", "$nin":
			candidates, isArr := asArray(arg)
			if !isArr {
				return false, fmt.Errorf("store: %s needs an array", op)
			}
			for _, c := range candidates {
				if equalsOrContains(val, found, c) {
					ok = true
					break
				}
			}
			if op == "$nin" {
				ok = !ok
			}
		case "$exists":
			want, _ := arg.(bool)
			ok = want == found
		case "$regex":
			var err error
			ok, err = matchRegex(val, found, arg, ops["$options"])
			if err != nil {
				return false, err
			}
		case "$options":
			if _, hasRegex := ops["$regex"]; !hasRegex {
				return false, fmt.Errorf("store: $options needs a $regex")
			}
			ok = true
		default:
			return false, fmt.Errorf("store: unsupported query operator %s", op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// matchRegex supports the i, m and s options of a $regex condition.
func matchRegex(val interface{}, found bool, pattern interface{}, options interface{}) (bool, error) {
	var expr, flags string
	switch p := pattern.(type) {
	case string:
		expr = p
	case primitive.Regex:
		expr, flags = p.Pattern, p.Options
	default:
		return false, fmt.Errorf("store: $regex needs a string")
	}
	if o, ok := options.(string); ok {
		flags += o
	}
	var prefix string
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(prefix, f) {
				prefix += string(f)
			}
		default:
			return false, fmt.Errorf("store: unsupported $regex option %q", f)
		}
	}
	if prefix != "" {
		expr = "(?" + prefix + ")" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return false, fmt.Errorf("store: invalid $regex: %w", err)
	}
	s, isString := val.(string)
	return found && isString && re.MatchString(s), nil
}

func addNumbers(current interface{}, delta interface{}) (interface{}, error) {
	if current == nil {
		return delta, nil
	}
	switch a := current.(type) {
	case int32:
		switch b := delta.(type) {
		case int32:
			return a + b, nil
		case int64:
			return int64(a) + b, nil
		}
	case int64:
		switch b := delta.(type) {
		case int32:
			return a + int64(b), nil
		case int64:
			return a + b, nil
		}
	}
	x, ok := numeric(current)
	y, ok2 := numeric(delta)
	if !ok || !ok2 {
		return nil, fmt.Errorf("store: cannot apply $inc to non-numeric value %v", current)
	}
	return x + y, nil
}

func applyUpdate(doc bson.M, update bson.M) error {
	if len(update) == 0 {
		return fmt.Errorf("store: update document must not be empty")
	}
	for op, arg := range update {
		fields, ok := asDoc(arg)
		if !ok {
			return fmt.Errorf("store: %s expects a document", op)
		}
		switch op {
		case "$set":
			for path, value := range fields {
				if path == "_id" && !valuesEqual(doc["_id"], value) {
					return fmt.Errorf("store: the _id field cannot be changed")
				}
				setPath(doc, path, value)
			}
		case "$unset":
			for path := range fields {
				unsetPath(doc, path)
			}
		case "$inc":
			for path, delta := range fields {
				current, _ := lookup(doc, path)
				next, err := addNumbers(current, delta)
				if err != nil {
					return err
				}
				setPath(doc, path, next)
			}
		default:
			if !strings.HasPrefix(op, "$") {
				return fmt.Errorf("store: replacement documents are not supported")
			}
			return fmt.Errorf("store: unsupported update operator %s", op)
		}
	}
	return nil
}

type sortKey struct {
	field string
	desc  bool
}

func parseSort(spec interface{}) ([]sortKey, error) {
	if spec == nil {
		return nil, nil
	}
	var keys []sortKey
	add := func(field string, dir interface{}) error {
		n, ok := numeric(dir)
		if !ok || (n != 1 && n != -1) {
			return fmt.Errorf("store: invalid sort direction for %s", field)
		}
		keys = append(keys, sortKey{field: field, desc: n < 0})
		return nil
	}
	switch s := spec.(type) {
	case bson.D:
		for _, e := range s {
			if err := add(e.Key, e.Value); err != nil {
				return nil, err
			}
		}
	default:
		m, ok := asDoc(spec)
		if !ok {
			return nil, fmt.Errorf("store: unsupported sort specification %T", spec)
		}
		fields := make([]string, 0, len(m))
		for k := range m {
			fields = append(fields, k)
		}
		sort.Strings(fields)
		for _, f := range fields {
			if err := add(f, m[f]); err != nil {
				return nil, err
			}
		}
	}
	return keys, nil
}

func lessDocs(a, b bson.M, keys []sortKey) bool {
	for _, k := range keys {
		x, _ := lookup(a, k.field)
		y, _ := lookup(b, k.field)
		c, ok := compareValues(x, y)
		if !ok {
			c = typeRank(x) - typeRank(y)
		}
		if c == 0 {
			continue
		}
		if k.desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

func sortDocs(docs []bson.M, keys []sortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return lessDocs(docs[i], docs[j], keys)
	})
}
