package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rkm/geocatalog/pkg/geo"
)

// Parse parses a filter expression from either CQL2-JSON (a JSON object) or
// CQL2-text. Parsing is total and pure: it performs no I/O and a failure
// leaves no partial state behind.
func Parse(input string) (Node, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty filter", ErrSyntax)
	}
	if strings.HasPrefix(trimmed, "{") {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		return ParseJSON(decoded)
	}
	return ParseText(trimmed)
}

// ParseJSON parses a decoded CQL2-JSON expression ({"op": ..., "args": [...]})
// into a Node.
func ParseJSON(v any) (Node, error) {
	expr, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: filter must be a JSON object", ErrSyntax)
	}

	opVal, ok := expr["op"]
	if !ok {
		return nil, fmt.Errorf("%w: missing 'op' field", ErrSyntax)
	}
	opStr, ok := opVal.(string)
	if !ok {
		return nil, fmt.Errorf("%w: 'op' must be a string", ErrSyntax)
	}

	argsVal, ok := expr["args"]
	if !ok {
		return nil, fmt.Errorf("%w: missing 'args' field", ErrSyntax)
	}
	args, ok := argsVal.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: 'args' must be an array", ErrSyntax)
	}

	op := Op(strings.ToLower(opStr))
	switch op {
	case OpAnd, OpOr:
		if len(args) < 2 {
			return nil, fmt.Errorf("%w: %q requires at least 2 arguments, got %d", ErrSyntax, op, len(args))
		}
		children := make([]Node, 0, len(args))
		for _, arg := range args {
			child, err := ParseJSON(arg)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return &Logical{Op: op, Children: children}, nil

	case OpNot:
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: 'not' requires exactly 1 argument, got %d", ErrSyntax, len(args))
		}
		child, err := ParseJSON(args[0])
		if err != nil {
			return nil, err
		}
		return &Logical{Op: op, Children: []Node{child}}, nil

	case OpIsNull:
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: 'isNull' requires exactly 1 argument, got %d", ErrSyntax, len(args))
		}
		prop, err := parsePropertyRef(args[0])
		if err != nil {
			return nil, err
		}
		return &Comparison{Op: op, Property: prop}, nil

	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpLike, OpIn:
		return parseJSONComparison(Op(opStr), args)

	case OpIntersects, OpContains, OpWithin:
		return parseJSONSpatial(op, args)

	case OpBefore, OpAfter, OpDuring:
		return parseJSONTemporal(op, args)

	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrSyntax, opStr)
	}
}

func parseJSONComparison(op Op, args []any) (Node, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%w: %q requires exactly 2 arguments, got %d", ErrSyntax, op, len(args))
	}
	prop, err := parsePropertyRef(args[0])
	if err != nil {
		return nil, err
	}
	if prop == FieldGeometry {
		return nil, fmt.Errorf("%w: %q cannot compare the geometry field", ErrSyntax, op)
	}

	literal := FromAny(args[1])
	if literal.Kind == KindObject {
		return nil, fmt.Errorf("%w: %q literal must be a scalar or array", ErrSyntax, op)
	}
	if op == OpIn && literal.Kind != KindArray {
		return nil, fmt.Errorf("%w: 'in' literal must be an array", ErrSyntax)
	}
	if op == OpLike && literal.Kind != KindString {
		return nil, fmt.Errorf("%w: 'like' literal must be a string", ErrSyntax)
	}

	return &Comparison{Op: op, Property: prop, Literal: literal}, nil
}

func parseJSONSpatial(op Op, args []any) (Node, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%w: %q requires exactly 2 arguments, got %d", ErrSyntax, op, len(args))
	}
	prop, err := parsePropertyRef(args[0])
	if err != nil {
		return nil, err
	}
	if IsReservedField(prop) && prop != FieldGeometry {
		return nil, fmt.Errorf("%w: %q requires a geometry-valued property, got %q", ErrSyntax, op, prop)
	}

	// A bbox literal keeps its corner form so antimeridian wrapping survives.
	if lit, ok := args[1].(map[string]any); ok {
		if rawBBox, ok := lit["bbox"]; ok {
			bbox, err := parseBBoxLiteral(rawBBox)
			if err != nil {
				return nil, err
			}
			return &Spatial{Op: op, Property: prop, BBox: bbox}, nil
		}
	}

	g, err := geo.FromAny(args[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return &Spatial{Op: op, Property: prop, Geometry: g}, nil
}

func parseJSONTemporal(op Op, args []any) (Node, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%w: %q requires exactly 2 arguments, got %d", ErrSyntax, op, len(args))
	}
	prop, err := parsePropertyRef(args[0])
	if err != nil {
		return nil, err
	}
	if IsReservedField(prop) && prop != FieldDatetime {
		return nil, fmt.Errorf("%w: %q requires a datetime-valued property, got %q", ErrSyntax, op, prop)
	}

	node := &Temporal{Op: op, Property: prop}
	switch lit := args[1].(type) {
	case string:
		t, err := parseRFC3339(lit)
		if err != nil {
			return nil, err
		}
		node.Start, node.End = t, t
	case map[string]any:
		if ts, ok := lit["timestamp"].(string); ok {
			t, err := parseRFC3339(ts)
			if err != nil {
				return nil, err
			}
			node.Start, node.End = t, t
			break
		}
		interval, ok := lit["interval"].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q literal must be a timestamp or interval", ErrSyntax, op)
		}
		if err := fillInterval(node, interval); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q literal must be a timestamp or interval", ErrSyntax, op)
	}

	if op == OpDuring && node.Start.Equal(node.End) && !node.OpenStart && !node.OpenEnd {
		// Degenerate interval is allowed; it matches only exact instants.
		return node, nil
	}
	return node, nil
}

func fillInterval(node *Temporal, interval []any) error {
	if len(interval) != 2 {
		return fmt.Errorf("%w: interval must have exactly 2 elements, got %d", ErrSyntax, len(interval))
	}
	for i, el := range interval {
		s, ok := el.(string)
		if !ok {
			return fmt.Errorf("%w: interval elements must be strings", ErrSyntax)
		}
		if s == ".." {
			if i == 0 {
				node.OpenStart = true
			} else {
				node.OpenEnd = true
			}
			continue
		}
		t, err := parseRFC3339(s)
		if err != nil {
			return err
		}
		if i == 0 {
			node.Start = t
		} else {
			node.End = t
		}
	}
	if !node.OpenStart && !node.OpenEnd && node.Start.After(node.End) {
		return fmt.Errorf("%w: interval start after end", ErrSyntax)
	}
	return nil
}

func parsePropertyRef(arg any) (string, error) {
	propMap, ok := arg.(map[string]any)
	if !ok {
		return "", fmt.Errorf("%w: property reference must be an object", ErrSyntax)
	}
	propVal, ok := propMap["property"]
	if !ok {
		return "", fmt.Errorf("%w: missing 'property' field in property reference", ErrSyntax)
	}
	name, ok := propVal.(string)
	if !ok {
		return "", fmt.Errorf("%w: 'property' must be a string", ErrSyntax)
	}
	if name == "" {
		return "", fmt.Errorf("%w: empty property name", ErrSyntax)
	}
	return name, nil
}

func parseBBoxLiteral(v any) ([]float64, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: bbox literal must be an array", ErrSyntax)
	}
	if len(arr) != 4 && len(arr) != 6 {
		return nil, fmt.Errorf("%w: bbox literal must have 4 or 6 values, got %d", ErrSyntax, len(arr))
	}
	bbox := make([]float64, len(arr))
	for i, el := range arr {
		f, ok := el.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: bbox values must be numbers", ErrSyntax)
		}
		bbox[i] = f
	}
	return bbox, nil
}

func parseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid timestamp %q: %v", ErrSyntax, s, err)
	}
	return t, nil
}
