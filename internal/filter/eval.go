package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/planetlabs/go-stac"
	"github.com/rkm/geocatalog/pkg/geo"
)

// Evaluate walks the expression tree against a concrete item and returns
// whether it matches. and/or short-circuit left to right. Absent properties
// evaluate as null under three-valued logic: null never compares equal, and
// isNull is the only operator that matches it. Type mismatches return
// ErrEvaluation; callers exclude the item rather than aborting the search.
func Evaluate(n Node, item *stac.Item) (bool, error) {
	switch node := n.(type) {
	case *Comparison:
		return evalComparison(node, item)
	case *Logical:
		return evalLogical(node, item)
	case *Spatial:
		return evalSpatial(node, item)
	case *Temporal:
		return evalTemporal(node, item)
	default:
		return false, fmt.Errorf("%w: unknown node type %T", ErrEvaluation, n)
	}
}

func evalLogical(node *Logical, item *stac.Item) (bool, error) {
	switch node.Op {
	case OpAnd:
		for _, child := range node.Children {
			ok, err := Evaluate(child, item)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case OpOr:
		for _, child := range node.Children {
			ok, err := Evaluate(child, item)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case OpNot:
		ok, err := Evaluate(node.Children[0], item)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("%w: unknown logical operator %q", ErrEvaluation, node.Op)
	}
}

func evalComparison(node *Comparison, item *stac.Item) (bool, error) {
	value := FromAny(ItemProperty(item, node.Property))

	if node.Op == OpIsNull {
		return value.Kind == KindNull, nil
	}
	if value.Kind == KindNull || node.Literal.Kind == KindNull {
		return false, nil
	}

	switch node.Op {
	case OpEq:
		return equalValues(value, node.Literal)
	case OpNeq:
		eq, err := equalValues(value, node.Literal)
		return !eq, err
	case OpLt, OpLte, OpGt, OpGte:
		cmp, err := orderValues(value, node.Literal)
		if err != nil {
			return false, err
		}
		switch node.Op {
		case OpLt:
			return cmp < 0, nil
		case OpLte:
			return cmp <= 0, nil
		case OpGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case OpLike:
		if value.Kind != KindString {
			return false, fmt.Errorf("%w: 'like' requires a string property, got kind %d", ErrEvaluation, value.Kind)
		}
		return likeMatch(node.Literal.Str, value.Str)
	case OpIn:
		for _, el := range node.Literal.Arr {
			if el.Kind == KindNull {
				continue
			}
			eq, err := equalValues(value, el)
			if err != nil {
				return false, err
			}
			if eq {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown comparison operator %q", ErrEvaluation, node.Op)
	}
}

func evalSpatial(node *Spatial, item *stac.Item) (bool, error) {
	raw := ItemProperty(item, node.Property)
	if raw == nil {
		return false, nil
	}
	itemGeom, err := geo.FromAny(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEvaluation, err)
	}

	if node.BBox != nil {
		return evalSpatialBBox(node, itemGeom)
	}

	var ok bool
	switch node.Op {
	case OpIntersects:
		ok, err = geo.Intersects(itemGeom, node.Geometry)
	case OpContains:
		ok, err = geo.Contains(itemGeom, node.Geometry)
	case OpWithin:
		ok, err = geo.Within(itemGeom, node.Geometry)
	default:
		return false, fmt.Errorf("%w: unknown spatial operator %q", ErrEvaluation, node.Op)
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEvaluation, err)
	}
	return ok, nil
}

// evalSpatialBBox evaluates a spatial predicate whose literal is a raw bbox.
// The box is split at the antimeridian and each planar part is tested.
func evalSpatialBBox(node *Spatial, itemGeom *geo.Geometry) (bool, error) {
	parts, err := geo.SplitBBox(node.BBox)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEvaluation, err)
	}

	switch node.Op {
	case OpIntersects:
		for _, part := range parts {
			poly, err := geo.NewPolygonFromBBox(part)
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrEvaluation, err)
			}
			ok, err := geo.Intersects(itemGeom, poly)
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrEvaluation, err)
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case OpWithin:
		// An axis-aligned box contains a geometry exactly when it contains
		// the geometry's bounding box.
		geomBBox, err := geo.ComputeBBox(itemGeom)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrEvaluation, err)
		}
		ok, err := geo.BBoxContains(node.BBox, geomBBox)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrEvaluation, err)
		}
		return ok, nil

	case OpContains:
		for _, part := range parts {
			poly, err := geo.NewPolygonFromBBox(part)
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrEvaluation, err)
			}
			ok, err := geo.Contains(itemGeom, poly)
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrEvaluation, err)
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	default:
		return false, fmt.Errorf("%w: unknown spatial operator %q", ErrEvaluation, node.Op)
	}
}

func evalTemporal(node *Temporal, item *stac.Item) (bool, error) {
	start, end, present, err := itemInterval(item, node.Property)
	if err != nil {
		return false, err
	}
	if !present {
		return false, nil
	}

	switch node.Op {
	case OpBefore:
		if node.OpenStart {
			return false, nil
		}
		return end.Before(node.Start), nil
	case OpAfter:
		if node.OpenEnd {
			return false, nil
		}
		return start.After(node.End), nil
	case OpDuring:
		if !node.OpenStart && start.Before(node.Start) {
			return false, nil
		}
		if !node.OpenEnd && end.After(node.End) {
			return false, nil
		}
		return true, nil
	default:
		return false, fmt.Errorf("%w: unknown temporal operator %q", ErrEvaluation, node.Op)
	}
}

// ItemInterval resolves a datetime-valued property to a [start, end]
// interval. A single instant yields a degenerate interval, and the reserved
// datetime field falls back to the item's start_datetime/end_datetime range
// when the instant is null.
func ItemInterval(item *stac.Item, prop string) (start, end time.Time, present bool, err error) {
	return itemInterval(item, prop)
}

func itemInterval(item *stac.Item, prop string) (start, end time.Time, present bool, err error) {
	value := ItemProperty(item, prop)
	if value != nil {
		t, err := asTime(value)
		if err != nil {
			return time.Time{}, time.Time{}, false, err
		}
		return t, t, true, nil
	}

	if prop != FieldDatetime && strings.TrimPrefix(prop, "properties.") != FieldDatetime {
		return time.Time{}, time.Time{}, false, nil
	}

	rawStart := ItemProperty(item, "start_datetime")
	rawEnd := ItemProperty(item, "end_datetime")
	if rawStart == nil && rawEnd == nil {
		return time.Time{}, time.Time{}, false, nil
	}
	if rawStart != nil {
		if start, err = asTime(rawStart); err != nil {
			return time.Time{}, time.Time{}, false, err
		}
	}
	if rawEnd != nil {
		if end, err = asTime(rawEnd); err != nil {
			return time.Time{}, time.Time{}, false, err
		}
	} else {
		end = start
	}
	if rawStart == nil {
		start = end
	}
	return start, end, true, nil
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: value %q is not a timestamp", ErrEvaluation, t)
		}
		return parsed, nil
	default:
		return time.Time{}, fmt.Errorf("%w: value %v is not a timestamp", ErrEvaluation, v)
	}
}

func equalValues(a, b Value) (bool, error) {
	if a.Kind == KindNull || b.Kind == KindNull {
		return false, nil
	}
	if a.Kind == b.Kind {
		switch a.Kind {
		case KindString:
			return a.Str == b.Str, nil
		case KindNumber:
			return a.Num == b.Num, nil
		case KindBool:
			return a.Bool == b.Bool, nil
		case KindTime:
			return a.Time.Equal(b.Time), nil
		case KindArray:
			if len(a.Arr) != len(b.Arr) {
				return false, nil
			}
			for i := range a.Arr {
				eq, err := equalValues(a.Arr[i], b.Arr[i])
				if err != nil {
					return false, err
				}
				if !eq {
					return false, nil
				}
			}
			return true, nil
		default:
			return false, fmt.Errorf("%w: values of kind %d are not comparable", ErrEvaluation, a.Kind)
		}
	}

	// A timestamp property may be stored as its string form.
	if ta, tb, ok := coerceTimes(a, b); ok {
		return ta.Equal(tb), nil
	}
	return false, fmt.Errorf("%w: cannot compare kind %d with kind %d", ErrEvaluation, a.Kind, b.Kind)
}

func orderValues(a, b Value) (int, error) {
	if a.Kind == b.Kind {
		switch a.Kind {
		case KindString:
			return strings.Compare(a.Str, b.Str), nil
		case KindNumber:
			switch {
			case a.Num < b.Num:
				return -1, nil
			case a.Num > b.Num:
				return 1, nil
			}
			return 0, nil
		case KindTime:
			return a.Time.Compare(b.Time), nil
		default:
			return 0, fmt.Errorf("%w: values of kind %d are not ordered", ErrEvaluation, a.Kind)
		}
	}
	if ta, tb, ok := coerceTimes(a, b); ok {
		return ta.Compare(tb), nil
	}
	return 0, fmt.Errorf("%w: cannot order kind %d against kind %d", ErrEvaluation, a.Kind, b.Kind)
}

func coerceTimes(a, b Value) (time.Time, time.Time, bool) {
	ta, okA := valueTime(a)
	tb, okB := valueTime(b)
	if okA && okB {
		return ta, tb, true
	}
	return time.Time{}, time.Time{}, false
}

func valueTime(v Value) (time.Time, bool) {
	switch v.Kind {
	case KindTime:
		return v.Time, true
	case KindString:
		t, err := time.Parse(time.RFC3339, v.Str)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// likeMatch applies SQL-style pattern matching: % matches any run of
// characters, _ matches exactly one.
func likeMatch(pattern, s string) (bool, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false, fmt.Errorf("%w: invalid like pattern %q", ErrEvaluation, pattern)
	}
	return re.MatchString(s), nil
}
