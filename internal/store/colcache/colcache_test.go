package colcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/planetlabs/go-stac"
	"github.com/rkm/geocatalog/internal/store"
	"github.com/rkm/geocatalog/internal/store/memstore"
)

// countingStore records how often collection reads reach the backing store.
type countingStore struct {
	*memstore.Store
	gets int
}

func (c *countingStore) GetCollection(ctx context.Context, id string) (*stac.Collection, error) {
	c.gets++
	return c.Store.GetCollection(ctx, id)
}

func newCachedStore(t *testing.T, ttl time.Duration) (*Store, *countingStore) {
	t.Helper()
	inner := &countingStore{Store: memstore.New()}
	inner.PutCollection(&stac.Collection{Id: "sentinel-1"})
	cached, err := New(inner, 8, ttl)
	if err != nil {
		t.Fatalf("creating cache: %v", err)
	}
	return cached, inner
}

func TestGetCollection_Caches(t *testing.T) {
	cached, inner := newCachedStore(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		collection, err := cached.GetCollection(ctx, "sentinel-1")
		if err != nil {
			t.Fatalf("get collection: %v", err)
		}
		if collection.Id != "sentinel-1" {
			t.Fatalf("expected sentinel-1, got %q", collection.Id)
		}
	}

	if inner.gets != 1 {
		t.Errorf("expected 1 backing read, got %d", inner.gets)
	}
}

func TestGetCollection_TTLExpiry(t *testing.T) {
	cached, inner := newCachedStore(t, time.Minute)
	ctx := context.Background()

	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return current }

	if _, err := cached.GetCollection(ctx, "sentinel-1"); err != nil {
		t.Fatalf("get collection: %v", err)
	}

	// Within the TTL the cached entry is served.
	current = current.Add(30 * time.Second)
	if _, err := cached.GetCollection(ctx, "sentinel-1"); err != nil {
		t.Fatalf("get collection: %v", err)
	}
	if inner.gets != 1 {
		t.Fatalf("expected 1 backing read before expiry, got %d", inner.gets)
	}

	current = current.Add(2 * time.Minute)
	if _, err := cached.GetCollection(ctx, "sentinel-1"); err != nil {
		t.Fatalf("get collection: %v", err)
	}
	if inner.gets != 2 {
		t.Errorf("expected reload after expiry, got %d backing reads", inner.gets)
	}
}

func TestGetCollection_NotFound(t *testing.T) {
	cached, _ := newCachedStore(t, time.Minute)

	_, err := cached.GetCollection(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCollectionExists_NegativeCaching(t *testing.T) {
	cached, inner := newCachedStore(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		exists, err := cached.CollectionExists(ctx, "missing")
		if err != nil {
			t.Fatalf("collection exists: %v", err)
		}
		if exists {
			t.Fatal("expected missing collection to not exist")
		}
	}

	if inner.gets != 1 {
		t.Errorf("expected 1 backing read for repeated misses, got %d", inner.gets)
	}

	exists, err := cached.CollectionExists(ctx, "sentinel-1")
	if err != nil {
		t.Fatalf("collection exists: %v", err)
	}
	if !exists {
		t.Fatal("expected sentinel-1 to exist")
	}
}

func TestInvalidate(t *testing.T) {
	cached, inner := newCachedStore(t, time.Minute)
	ctx := context.Background()

	if _, err := cached.GetCollection(ctx, "sentinel-1"); err != nil {
		t.Fatalf("get collection: %v", err)
	}
	cached.Invalidate("sentinel-1")
	if _, err := cached.GetCollection(ctx, "sentinel-1"); err != nil {
		t.Fatalf("get collection: %v", err)
	}

	if inner.gets != 2 {
		t.Errorf("expected reload after invalidation, got %d backing reads", inner.gets)
	}
}
