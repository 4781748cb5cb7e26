// Package search plans and executes catalog searches: it validates the
// query, decides between filter pushdown and in-process evaluation, pages
// through the store with keyset cursors, and projects the results.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/planetlabs/go-stac"
	"github.com/rkm/geocatalog/internal/filter"
	"github.com/rkm/geocatalog/internal/store"
	"github.com/rkm/geocatalog/pkg/geo"
)

// Options tune the searcher's paging behavior.
type Options struct {
	// DefaultLimit applies when a query does not set a page size.
	DefaultLimit int
	// MaxLimit caps the page size; larger requests are clamped, not
	// rejected.
	MaxLimit int
	// FetchBatchCap bounds the batch size the fallback path requests from
	// the store while hunting for matches.
	FetchBatchCap int
}

// Searcher executes queries against a store.
type Searcher struct {
	store  store.Store
	opts   Options
	logger *slog.Logger
}

// Result is one page of a search.
type Result struct {
	Features   []map[string]any
	NextCursor string
	Matched    *int
	Limit      int
}

// New creates a searcher. Zero option fields get conservative defaults.
func New(st store.Store, opts Options, logger *slog.Logger) *Searcher {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 250
	}
	if opts.FetchBatchCap <= 0 {
		opts.FetchBatchCap = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{store: st, opts: opts, logger: logger}
}

// Search runs one page of a query.
func (s *Searcher) Search(ctx context.Context, q *Query) (*Result, error) {
	if err := s.validate(ctx, q); err != nil {
		return nil, err
	}

	fingerprint := q.Fingerprint()
	var after *store.AfterKey
	if q.Cursor != "" {
		decoded, err := DecodeCursor(q.Cursor, fingerprint)
		if err != nil {
			switch {
			case errors.Is(err, ErrCursorMismatch):
				cursorRejectedTotal.WithLabelValues("mismatch").Inc()
			default:
				cursorRejectedTotal.WithLabelValues("invalid").Inc()
			}
			return nil, err
		}
		after = decoded
	}

	expr := q.Filter
	if q.Intersects != nil {
		geomNode := &filter.Spatial{
			Op:       filter.OpIntersects,
			Property: filter.FieldGeometry,
			Geometry: q.Intersects,
		}
		if expr == nil {
			expr = geomNode
		} else {
			expr = &filter.Logical{Op: filter.OpAnd, Children: []filter.Node{expr, geomNode}}
		}
	}

	predicate := store.Predicate{
		Collections: q.Collections,
		IDs:         q.IDs,
		BBox:        q.BBox,
		Start:       q.Start,
		End:         q.End,
	}
	sort := q.EffectiveSort()

	_, pushable := filter.Pushdown(expr, s.store.Capabilities())

	var (
		items []*stac.Item
		err   error
	)
	if pushable {
		searchesTotal.WithLabelValues("pushdown").Inc()
		predicate.Expr = expr
		items, err = s.store.FetchPage(ctx, store.PageRequest{
			Predicate: predicate,
			Sort:      sort,
			After:     after,
			Limit:     q.Limit + 1,
		})
	} else {
		searchesTotal.WithLabelValues("fallback").Inc()
		items, err = s.fetchEvaluating(ctx, predicate, sort, after, q.Limit, expr)
	}
	if err != nil {
		return nil, err
	}

	// One extra item was requested to detect whether another page exists.
	hasMore := len(items) > q.Limit
	if hasMore {
		items = items[:q.Limit]
	}

	var matched *int
	if pushable {
		if count, err := s.store.CountMatched(ctx, predicate); err == nil {
			matched = count
		} else {
			s.logger.Warn("count failed", "error", err)
		}
	}

	features := make([]map[string]any, 0, len(items))
	for _, item := range items {
		doc, err := RenderItem(item)
		if err != nil {
			return nil, err
		}
		features = append(features, Project(doc, q.Fields))
	}

	result := &Result{Features: features, Matched: matched, Limit: q.Limit}
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		token, err := EncodeCursor(store.AfterKey{
			SortValues: store.SortValues(last, sort),
			ID:         last.Id,
		}, fingerprint)
		if err != nil {
			return nil, err
		}
		result.NextCursor = token
	}
	return result, nil
}

// validate normalizes the limit and rejects structurally invalid queries
// before any store work happens.
func (s *Searcher) validate(ctx context.Context, q *Query) error {
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrInvalidQuery)
	}
	if q.Limit == 0 {
		q.Limit = s.opts.DefaultLimit
	}
	if q.Limit > s.opts.MaxLimit {
		q.Limit = s.opts.MaxLimit
	}

	if err := validateBBox(q.BBox); err != nil {
		return err
	}
	if q.Start != nil && q.End != nil && q.End.Before(*q.Start) {
		return fmt.Errorf("%w: datetime interval end precedes start", ErrInvalidQuery)
	}

	for _, id := range q.Collections {
		exists, err := s.store.CollectionExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("collection %q: %w", id, store.ErrNotFound)
		}
	}
	return nil
}

// validateBBox accepts 4 or 6 element boxes. West greater than east is
// legal and means the box wraps the antimeridian; south greater than north
// is not.
func validateBBox(box []float64) error {
	switch len(box) {
	case 0:
		return nil
	case 4, 6:
	default:
		return fmt.Errorf("%w: bbox must have 4 or 6 values, got %d", ErrInvalidQuery, len(box))
	}
	west, south := box[0], box[1]
	east, north := box[len(box)-2], box[len(box)-1]
	if south > north {
		return fmt.Errorf("%w: bbox south %g exceeds north %g", ErrInvalidQuery, south, north)
	}
	if west < -180 || west > 180 || east < -180 || east > 180 {
		return fmt.Errorf("%w: bbox longitude out of range", ErrInvalidQuery)
	}
	if south < -90 || north > 90 {
		return fmt.Errorf("%w: bbox latitude out of range", ErrInvalidQuery)
	}
	return nil
}

// fetchEvaluating pages through the store with only structural constraints
// applied and runs the filter expression in process. Batches grow
// geometrically so selective filters over large stores do not take a round
// trip per matching item.
func (s *Searcher) fetchEvaluating(
	ctx context.Context,
	predicate store.Predicate,
	sort []store.SortKey,
	after *store.AfterKey,
	limit int,
	expr filter.Node,
) ([]*stac.Item, error) {
	var kept []*stac.Item
	want := limit + 1
	batch := want

	for len(kept) < want {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
			}
			return nil, err
		}

		fetchBatchesTotal.Inc()
		items, err := s.store.FetchPage(ctx, store.PageRequest{
			Predicate: predicate,
			Sort:      sort,
			After:     after,
			Limit:     batch,
		})
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			ok, err := filter.Evaluate(expr, item)
			if err != nil {
				itemsExcludedTotal.Inc()
				s.logger.Debug("item excluded by evaluation error",
					"item", item.Id, "error", err)
				continue
			}
			if ok {
				kept = append(kept, item)
				if len(kept) == want {
					break
				}
			}
		}

		if len(items) < batch {
			// Store exhausted.
			break
		}
		last := items[len(items)-1]
		after = &store.AfterKey{SortValues: store.SortValues(last, sort), ID: last.Id}
		if batch < s.opts.FetchBatchCap {
			batch *= 2
			if batch > s.opts.FetchBatchCap {
				batch = s.opts.FetchBatchCap
			}
		}
	}
	return kept, nil
}

// ValidateIntersects rejects geometries outside WGS84 bounds before they
// reach the planner.
func ValidateIntersects(g *geo.Geometry) error {
	if g == nil {
		return nil
	}
	if _, err := geo.ComputeBBox(g); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return nil
}
