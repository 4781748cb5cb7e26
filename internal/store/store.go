// Package store defines the contract between the search engine and a
// backing document store, plus the ordering helpers both sides share.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/planetlabs/go-stac"
	"github.com/rkm/geocatalog/internal/filter"
)

// ErrNotFound is returned when a referenced collection or item does not
// exist.
var ErrNotFound = errors.New("not found")

// Predicate is the store-native query: structural constraints plus an
// optional filter expression the store has declared it can execute.
type Predicate struct {
	Collections []string
	IDs         []string

	// BBox is [west, south, east, north]; west > east wraps the
	// antimeridian.
	BBox []float64

	// Datetime overlap range. Nil sides are open.
	Start *time.Time
	End   *time.Time

	// Expr is non-nil only when the planner verified every operator is in
	// the store's capability set.
	Expr filter.Node
}

// SortKey is one (field, direction) pair of the total order.
type SortKey struct {
	Field string
	Desc  bool
}

// AfterKey marks a position in the total order: the sort-key values of the
// last consumed item plus its identifier as tie-break.
type AfterKey struct {
	SortValues []any
	ID         string
}

// PageRequest asks a store for one ordered batch of items strictly after a
// position.
type PageRequest struct {
	Predicate Predicate
	Sort      []SortKey
	After     *AfterKey
	Limit     int
}

// Store is the abstract document store the search engine runs against.
// Implementations must return FetchPage results in the total order defined
// by Sort with the id ascending tie-break appended.
type Store interface {
	// Capabilities reports which filter operators the store executes
	// natively. The planner falls back to in-process evaluation when any
	// operator of a query's filter is missing from this set.
	Capabilities() filter.OpSet

	// FetchPage returns up to Limit items matching the predicate, ordered
	// by the requested sort keys, strictly after the After position.
	FetchPage(ctx context.Context, req PageRequest) ([]*stac.Item, error)

	// CountMatched returns the total number of items matching the
	// predicate, or nil when counting is not cheap for this store.
	CountMatched(ctx context.Context, p Predicate) (*int, error)

	CollectionExists(ctx context.Context, id string) (bool, error)
	GetCollection(ctx context.Context, id string) (*stac.Collection, error)
	ListCollections(ctx context.Context) ([]*stac.Collection, error)
	GetItem(ctx context.Context, collection, id string) (*stac.Item, error)
}

// DefaultSort is the order applied when a query carries no sort keys:
// datetime descending with the id ascending tie-break appended by the store.
func DefaultSort() []SortKey {
	return []SortKey{{Field: "datetime", Desc: true}}
}

// SortValue extracts an item's value for a sort field, normalized to the
// JSON-stable types a cursor can round-trip: string, float64, or nil.
// The reserved datetime field falls back to start_datetime for range items.
func SortValue(item *stac.Item, field string) any {
	v := filter.ItemProperty(item, field)
	if v == nil && strings.TrimPrefix(field, "properties.") == "datetime" {
		v = filter.ItemProperty(item, "start_datetime")
	}
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case bool:
		if t {
			return 1.0
		}
		return 0.0
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return nil
	}
}

// SortValues extracts an item's values for all sort keys.
func SortValues(item *stac.Item, sort []SortKey) []any {
	out := make([]any, len(sort))
	for i, key := range sort {
		out[i] = SortValue(item, key.Field)
	}
	return out
}

// CompareItems orders two items by the sort keys with id ascending as the
// final tie-break. The result is negative when a precedes b.
func CompareItems(a, b *stac.Item, sort []SortKey) int {
	for _, key := range sort {
		cmp := compareDirected(SortValue(a, key.Field), SortValue(b, key.Field), key.Desc)
		if cmp != 0 {
			return cmp
		}
	}
	return strings.Compare(a.Id, b.Id)
}

// CompareToAfter orders an item against a resume position. The result is
// positive when the item comes strictly after the position.
func CompareToAfter(item *stac.Item, sort []SortKey, after *AfterKey) int {
	for i, key := range sort {
		var av any
		if i < len(after.SortValues) {
			av = after.SortValues[i]
		}
		cmp := compareDirected(SortValue(item, key.Field), av, key.Desc)
		if cmp != 0 {
			return cmp
		}
	}
	return strings.Compare(item.Id, after.ID)
}

// compareDirected applies a sort direction. Nil stays last in both
// directions, matching the NULLS LAST ordering the SQL path emits.
func compareDirected(a, b any, desc bool) int {
	if a == nil || b == nil {
		return compareRaw(a, b)
	}
	cmp := compareRaw(a, b)
	if desc {
		cmp = -cmp
	}
	return cmp
}

// compareRaw orders normalized sort values. Nil sorts after everything so
// items missing the sort property land at the end of ascending order.
// Strings that parse as RFC 3339 compare as instants.
func compareRaw(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}

	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
		// Mixed types: numbers order before strings, deterministically.
		return -1
	case string:
		bv, ok := b.(string)
		if !ok {
			return 1
		}
		if ta, err := time.Parse(time.RFC3339, av); err == nil {
			if tb, err := time.Parse(time.RFC3339, bv); err == nil {
				return ta.Compare(tb)
			}
		}
		return strings.Compare(av, bv)
	default:
		return 0
	}
}
