// Package filter implements the search filter expression language: a tagged
// expression tree parsed from CQL2-JSON or CQL2-text, an evaluator that runs
// the tree against a single item, and a pushdown gate that decides whether a
// backing store can execute the tree natively.
package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/planetlabs/go-stac"
	"github.com/rkm/geocatalog/pkg/geo"
)

var (
	// ErrSyntax is returned when a filter expression cannot be parsed.
	ErrSyntax = errors.New("invalid filter expression")

	// ErrEvaluation is returned when an expression cannot be evaluated
	// against an item, typically a type mismatch. The search path treats
	// this as "item does not match" rather than a fatal error.
	ErrEvaluation = errors.New("filter evaluation failed")
)

// Op identifies a filter operator.
type Op string

// Comparison operators.
const (
	OpEq     Op = "="
	OpNeq    Op = "<>"
	OpLt     Op = "<"
	OpLte    Op = "<="
	OpGt     Op = ">"
	OpGte    Op = ">="
	OpLike   Op = "like"
	OpIn     Op = "in"
	OpIsNull Op = "isNull"
)

// Logical operators.
const (
	OpAnd Op = "and"
	OpOr  Op = "or"
	OpNot Op = "not"
)

// Spatial operators.
const (
	OpIntersects Op = "s_intersects"
	OpContains   Op = "s_contains"
	OpWithin     Op = "s_within"
)

// Temporal operators.
const (
	OpBefore Op = "t_before"
	OpAfter  Op = "t_after"
	OpDuring Op = "t_during"
)

// Reserved fields resolvable outside the open item property mapping.
const (
	FieldID         = "id"
	FieldCollection = "collection"
	FieldGeometry   = "geometry"
	FieldDatetime   = "datetime"
	FieldBBox       = "bbox"
)

// Node is a single node of a parsed filter expression tree. Trees are
// immutable once parsed.
type Node interface {
	node()
}

// Comparison compares a property reference against a literal value.
type Comparison struct {
	Op       Op
	Property string
	Literal  Value
}

// Logical combines child expressions with and/or/not. Child order is
// significant: evaluation short-circuits left to right.
type Logical struct {
	Op       Op
	Children []Node
}

// Spatial tests a geometry-valued property against a geometry literal.
// Exactly one of Geometry and BBox is set; a BBox literal keeps its raw
// corner representation so antimeridian-crossing boxes stay exact.
type Spatial struct {
	Op       Op
	Property string
	Geometry *geo.Geometry
	BBox     []float64
}

// Temporal tests a datetime-valued property against an instant or interval.
// For instants Start equals End. Open interval sides are zero times with the
// corresponding Open flag set.
type Temporal struct {
	Op        Op
	Property  string
	Start     time.Time
	End       time.Time
	OpenStart bool
	OpenEnd   bool
}

func (*Comparison) node() {}
func (*Logical) node()    {}
func (*Spatial) node()    {}
func (*Temporal) node()   {}

// Kind tags the dynamic type of an item property or literal value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
	KindTime
)

// Value is a tagged variant over the scalar/array/object values that item
// properties and filter literals can take.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	Arr  []Value
	Obj  map[string]any
	Time time.Time
}

// NullValue is the value of an absent or null property.
var NullValue = Value{Kind: KindNull}

// StringValue returns a string-kinded Value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// NumberValue returns a number-kinded Value.
func NumberValue(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// BoolValue returns a bool-kinded Value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// TimeValue returns a time-kinded Value.
func TimeValue(t time.Time) Value { return Value{Kind: KindTime, Time: t} }

// FromAny converts a JSON-decoded value into a tagged Value.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return NullValue
	case bool:
		return BoolValue(x)
	case float64:
		return NumberValue(x)
	case float32:
		return NumberValue(float64(x))
	case int:
		return NumberValue(float64(x))
	case int64:
		return NumberValue(float64(x))
	case string:
		return StringValue(x)
	case time.Time:
		return TimeValue(x)
	case []any:
		arr := make([]Value, len(x))
		for i, el := range x {
			arr[i] = FromAny(el)
		}
		return Value{Kind: KindArray, Arr: arr}
	case []string:
		arr := make([]Value, len(x))
		for i, el := range x {
			arr[i] = StringValue(el)
		}
		return Value{Kind: KindArray, Arr: arr}
	case map[string]any:
		return Value{Kind: KindObject, Obj: x}
	default:
		return Value{Kind: KindObject, Obj: map[string]any{"value": fmt.Sprintf("%v", v)}}
	}
}

// Interface returns the plain Go representation of a Value, suitable for
// JSON encoding.
func (v Value) Interface() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindTime:
		return v.Time.Format(time.RFC3339)
	case KindArray:
		out := make([]any, len(v.Arr))
		for i, el := range v.Arr {
			out[i] = el.Interface()
		}
		return out
	case KindObject:
		return v.Obj
	default:
		return nil
	}
}

// IsReservedField reports whether name is one of the closed reserved fields.
func IsReservedField(name string) bool {
	switch name {
	case FieldID, FieldCollection, FieldGeometry, FieldDatetime, FieldBBox:
		return true
	}
	return false
}

// ItemProperty resolves a property reference against an item. Reserved
// fields resolve to the item's top-level attributes; anything else is a dot
// path into the open property mapping (an optional "properties." prefix is
// accepted). Absent properties resolve to nil.
func ItemProperty(item *stac.Item, path string) any {
	switch path {
	case FieldID:
		return item.Id
	case FieldCollection:
		return item.Collection
	case FieldGeometry:
		return item.Geometry
	case FieldBBox:
		bbox := make([]any, len(item.Bbox))
		for i, v := range item.Bbox {
			bbox[i] = v
		}
		return bbox
	}

	path = strings.TrimPrefix(path, "properties.")
	if item.Properties == nil {
		return nil
	}

	parts := strings.Split(path, ".")
	var current any = item.Properties
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

// Ops returns every operator used in the tree, in traversal order.
func Ops(n Node) []Op {
	var out []Op
	walk(n, func(op Op) { out = append(out, op) })
	return out
}

func walk(n Node, fn func(Op)) {
	switch node := n.(type) {
	case *Comparison:
		fn(node.Op)
	case *Logical:
		fn(node.Op)
		for _, child := range node.Children {
			walk(child, fn)
		}
	case *Spatial:
		fn(node.Op)
	case *Temporal:
		fn(node.Op)
	}
}
