// Package memstore provides an in-memory Store used by tests and by
// deployments that load a static catalog at startup.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/planetlabs/go-stac"
	"github.com/rkm/geocatalog/internal/filter"
	"github.com/rkm/geocatalog/internal/store"
	"github.com/rkm/geocatalog/pkg/geo"
)

// Store holds collections and items in memory. It executes the full filter
// operator set, so the planner always pushes filters down to it.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*stac.Collection
	items       map[string]map[string]*stac.Item
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]*stac.Collection),
		items:       make(map[string]map[string]*stac.Item),
	}
}

// PutCollection inserts or replaces a collection.
func (s *Store) PutCollection(c *stac.Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[c.Id] = c
	if _, ok := s.items[c.Id]; !ok {
		s.items[c.Id] = make(map[string]*stac.Item)
	}
}

// PutItem inserts or replaces an item under its collection.
func (s *Store) PutItem(item *stac.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.Collection == "" {
		return fmt.Errorf("item %q has no collection", item.Id)
	}
	byId, ok := s.items[item.Collection]
	if !ok {
		byId = make(map[string]*stac.Item)
		s.items[item.Collection] = byId
	}
	byId[item.Id] = item
	return nil
}

// Capabilities reports the full operator set. In-memory evaluation uses the
// same evaluator the search fallback does, so nothing is off the table.
func (s *Store) Capabilities() filter.OpSet {
	return filter.NewOpSet(filter.AllOps()...)
}

func (s *Store) FetchPage(ctx context.Context, req store.PageRequest) ([]*stac.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*stac.Item
	for _, byId := range s.items {
		for _, item := range byId {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			ok, err := matches(item, req.Predicate)
			if err != nil {
				// Evaluation failures exclude the item, matching the
				// fallback path's behavior.
				continue
			}
			if ok {
				matched = append(matched, item)
			}
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return store.CompareItems(matched[i], matched[j], req.Sort) < 0
	})

	if req.After != nil {
		cut := sort.Search(len(matched), func(i int) bool {
			return store.CompareToAfter(matched[i], req.Sort, req.After) > 0
		})
		matched = matched[cut:]
	}
	if req.Limit > 0 && len(matched) > req.Limit {
		matched = matched[:req.Limit]
	}
	return matched, nil
}

func (s *Store) CountMatched(ctx context.Context, p store.Predicate) (*int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, byId := range s.items {
		for _, item := range byId {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			ok, err := matches(item, p)
			if err != nil {
				continue
			}
			if ok {
				count++
			}
		}
	}
	return &count, nil
}

func (s *Store) CollectionExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[id]
	return ok, nil
}

func (s *Store) GetCollection(ctx context.Context, id string) (*stac.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[id]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", id, store.ErrNotFound)
	}
	return c, nil
}

func (s *Store) ListCollections(ctx context.Context) ([]*stac.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*stac.Collection, 0, len(s.collections))
	for _, c := range s.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (s *Store) GetItem(ctx context.Context, collection, id string) (*stac.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byId, ok := s.items[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, store.ErrNotFound)
	}
	item, ok := byId[id]
	if !ok {
		return nil, fmt.Errorf("item %q: %w", id, store.ErrNotFound)
	}
	return item, nil
}

func matches(item *stac.Item, p store.Predicate) (bool, error) {
	if len(p.Collections) > 0 && !contains(p.Collections, item.Collection) {
		return false, nil
	}
	if len(p.IDs) > 0 && !contains(p.IDs, item.Id) {
		return false, nil
	}

	if len(p.BBox) > 0 {
		box := item.Bbox
		if len(box) == 0 {
			box = bboxFromGeometry(item.Geometry)
		}
		if len(box) == 0 {
			return false, nil
		}
		ok, err := geo.BBoxIntersects(p.BBox, box)
		if err != nil || !ok {
			return false, err
		}
	}

	if p.Start != nil || p.End != nil {
		start, end, present, err := filter.ItemInterval(item, filter.FieldDatetime)
		if err != nil || !present {
			return false, err
		}
		if p.Start != nil && end.Before(*p.Start) {
			return false, nil
		}
		if p.End != nil && start.After(*p.End) {
			return false, nil
		}
	}

	if p.Expr != nil {
		return filter.Evaluate(p.Expr, item)
	}
	return true, nil
}

// bboxFromGeometry derives an extent for items that carry geometry but no
// stored bbox. Unusable geometry yields nil and the item does not match.
func bboxFromGeometry(geom any) []float64 {
	g, err := geo.FromAny(geom)
	if err != nil || g == nil {
		return nil
	}
	box, err := geo.ComputeBBox(g)
	if err != nil {
		return nil
	}
	return box
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
