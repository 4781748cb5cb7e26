// Package colcache wraps a store with a bounded read-through cache for
// collection lookups. Collection documents change rarely but are read on
// every search validation, so caching them keeps the hot path off the
// backing store.
package colcache

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/planetlabs/go-stac"
	"github.com/rkm/geocatalog/internal/store"
)

type entry struct {
	collection *stac.Collection
	exists     bool
	loadedAt   time.Time
}

// Store delegates everything to the wrapped store and caches collection
// reads with a TTL.
type Store struct {
	store.Store
	cache *lru.Cache[string, entry]
	ttl   time.Duration
	now   func() time.Time
}

// New wraps a store with a collection cache of the given size and TTL.
func New(inner store.Store, size int, ttl time.Duration) (*Store, error) {
	cache, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Store{Store: inner, cache: cache, ttl: ttl, now: time.Now}, nil
}

func (s *Store) CollectionExists(ctx context.Context, id string) (bool, error) {
	if e, ok := s.lookup(id); ok {
		return e.exists, nil
	}
	e, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	return e.exists, nil
}

func (s *Store) GetCollection(ctx context.Context, id string) (*stac.Collection, error) {
	if e, ok := s.lookup(id); ok && e.exists {
		return e.collection, nil
	}
	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.exists {
		return nil, store.ErrNotFound
	}
	return e.collection, nil
}

// Invalidate drops a cached collection, for use after writes.
func (s *Store) Invalidate(id string) {
	s.cache.Remove(id)
}

func (s *Store) lookup(id string) (entry, bool) {
	e, ok := s.cache.Get(id)
	if !ok || s.now().Sub(e.loadedAt) > s.ttl {
		return entry{}, false
	}
	return e, true
}

func (s *Store) load(ctx context.Context, id string) (entry, error) {
	c, err := s.Store.GetCollection(ctx, id)
	var e entry
	switch {
	case err == nil:
		e = entry{collection: c, exists: true, loadedAt: s.now()}
	case errors.Is(err, store.ErrNotFound):
		e = entry{exists: false, loadedAt: s.now()}
	default:
		return entry{}, err
	}
	s.cache.Add(id, e)
	return e, nil
}
