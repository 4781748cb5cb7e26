package search

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rkm/geocatalog/internal/filter"
	"github.com/rkm/geocatalog/internal/store"
	"github.com/rkm/geocatalog/pkg/geo"
)

// Query is a validated search request. Cursor is the only part that varies
// between pages of the same search.
type Query struct {
	Collections []string
	IDs         []string

	// BBox is [west, south, east, north]; west > east wraps the
	// antimeridian.
	BBox []float64

	Start *time.Time
	End   *time.Time

	Intersects *geo.Geometry
	Filter     filter.Node

	Sort   []store.SortKey
	Limit  int
	Fields *FieldsSpec
	Cursor string
}

// FieldsSpec selects which item fields appear in responses.
type FieldsSpec struct {
	Include []string
	Exclude []string
}

// EffectiveSort returns the query's sort keys, falling back to the default
// order when none were requested.
func (q *Query) EffectiveSort() []store.SortKey {
	if len(q.Sort) == 0 {
		return store.DefaultSort()
	}
	return q.Sort
}

// Fingerprint hashes every part of the query except the cursor. Cursors
// embed this value so a token minted by one search cannot silently resume
// a different one.
func (q *Query) Fingerprint() uint64 {
	var b strings.Builder

	writeSorted(&b, "c", q.Collections)
	writeSorted(&b, "i", q.IDs)

	b.WriteString("b:")
	for _, v := range q.BBox {
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		b.WriteByte(',')
	}
	b.WriteByte(';')

	b.WriteString("t:")
	if q.Start != nil {
		b.WriteString(q.Start.UTC().Format(time.RFC3339Nano))
	}
	b.WriteByte('/')
	if q.End != nil {
		b.WriteString(q.End.UTC().Format(time.RFC3339Nano))
	}
	b.WriteByte(';')

	b.WriteString("g:")
	if q.Intersects != nil {
		if wkt, err := geo.ToWKT(q.Intersects); err == nil {
			b.WriteString(wkt)
		}
	}
	b.WriteByte(';')

	b.WriteString("f:")
	if encoded, err := filter.MarshalCanonical(q.Filter); err == nil {
		b.Write(encoded)
	}
	b.WriteByte(';')

	b.WriteString("s:")
	for _, key := range q.EffectiveSort() {
		if key.Desc {
			b.WriteByte('-')
		} else {
			b.WriteByte('+')
		}
		b.WriteString(key.Field)
		b.WriteByte(',')
	}
	b.WriteByte(';')

	fmt.Fprintf(&b, "l:%d", q.Limit)

	return xxhash.Sum64String(b.String())
}

func writeSorted(b *strings.Builder, tag string, values []string) {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	b.WriteString(tag)
	b.WriteByte(':')
	for _, v := range sorted {
		b.WriteString(v)
		b.WriteByte(',')
	}
	b.WriteByte(';')
}
