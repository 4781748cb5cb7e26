package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/planetlabs/go-stac"
)

// alwaysFields are present in every projected item regardless of the
// include and exclude lists. Dropping the identifier or collection would
// leave features that cannot be dereferenced.
var alwaysFields = []string{"id", "collection"}

// RenderItem converts an item to the generic document the projection and
// response layers work with.
func RenderItem(item *stac.Item) (map[string]any, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encoding item %q: %w", item.Id, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding item %q: %w", item.Id, err)
	}
	return doc, nil
}

// Project applies a fields specification to a rendered item. A non-empty
// include list selects only the named paths; excludes then prune from the
// result. Paths use dot notation and may reach inside properties.
func Project(doc map[string]any, spec *FieldsSpec) map[string]any {
	if spec == nil || (len(spec.Include) == 0 && len(spec.Exclude) == 0) {
		return doc
	}

	out := doc
	if len(spec.Include) > 0 {
		out = make(map[string]any)
		for _, path := range append(append([]string{}, alwaysFields...), spec.Include...) {
			copyPath(doc, out, strings.Split(path, "."))
		}
	}

	for _, path := range spec.Exclude {
		if isAlwaysField(path) {
			continue
		}
		prunePath(out, strings.Split(path, "."))
	}
	return out
}

func isAlwaysField(path string) bool {
	for _, f := range alwaysFields {
		if path == f {
			return true
		}
	}
	return false
}

// copyPath transfers one dotted path from src into dst, creating the
// intermediate maps dst is missing.
func copyPath(src, dst map[string]any, path []string) {
	key := path[0]
	value, ok := src[key]
	if !ok {
		return
	}
	if len(path) == 1 {
		dst[key] = value
		return
	}

	srcChild, ok := value.(map[string]any)
	if !ok {
		// The path reaches through a scalar; keep the whole value.
		dst[key] = value
		return
	}
	dstChild, ok := dst[key].(map[string]any)
	if !ok {
		dstChild = make(map[string]any)
		dst[key] = dstChild
	}
	copyPath(srcChild, dstChild, path[1:])
}

// prunePath removes one dotted path from a document in place.
func prunePath(doc map[string]any, path []string) {
	key := path[0]
	if len(path) == 1 {
		delete(doc, key)
		return
	}
	child, ok := doc[key].(map[string]any)
	if !ok {
		return
	}
	prunePath(child, path[1:])
}
