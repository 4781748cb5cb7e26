package filter

import (
	"encoding/json"
	"time"
)

// EncodeJSON renders a tree back to its canonical CQL2-JSON form. Both text
// and JSON inputs that parse to the same tree encode identically, which is
// what makes the query fingerprint stable across filter languages.
func EncodeJSON(n Node) any {
	switch node := n.(type) {
	case *Comparison:
		args := []any{propertyRef(node.Property)}
		if node.Op != OpIsNull {
			args = append(args, node.Literal.Interface())
		}
		return map[string]any{"op": string(node.Op), "args": args}

	case *Logical:
		args := make([]any, len(node.Children))
		for i, child := range node.Children {
			args[i] = EncodeJSON(child)
		}
		return map[string]any{"op": string(node.Op), "args": args}

	case *Spatial:
		var literal any
		if node.BBox != nil {
			literal = map[string]any{"bbox": node.BBox}
		} else {
			literal = node.Geometry
		}
		return map[string]any{
			"op":   string(node.Op),
			"args": []any{propertyRef(node.Property), literal},
		}

	case *Temporal:
		var literal any
		if node.Start.Equal(node.End) && !node.OpenStart && !node.OpenEnd {
			literal = map[string]any{"timestamp": node.Start.Format(time.RFC3339)}
		} else {
			interval := []any{"..", ".."}
			if !node.OpenStart {
				interval[0] = node.Start.Format(time.RFC3339)
			}
			if !node.OpenEnd {
				interval[1] = node.End.Format(time.RFC3339)
			}
			literal = map[string]any{"interval": interval}
		}
		return map[string]any{
			"op":   string(node.Op),
			"args": []any{propertyRef(node.Property), literal},
		}

	default:
		return nil
	}
}

// MarshalCanonical returns the canonical JSON text of a tree. Map keys are
// emitted in sorted order by encoding/json, so the output is deterministic.
func MarshalCanonical(n Node) ([]byte, error) {
	if n == nil {
		return []byte("null"), nil
	}
	return json.Marshal(EncodeJSON(n))
}

func propertyRef(name string) map[string]any {
	return map[string]any{"property": name}
}
