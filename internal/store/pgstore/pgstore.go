// Package pgstore implements the store contract on PostgreSQL. Items are
// stored as denormalized rows with the full document in a JSONB column, so
// queries hit typed columns while reads return the original item unchanged.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/planetlabs/go-stac"
	"github.com/rkm/geocatalog/internal/filter"
	"github.com/rkm/geocatalog/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
    id      TEXT PRIMARY KEY,
    content JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
    collection     TEXT NOT NULL,
    id             TEXT NOT NULL,
    start_datetime TIMESTAMPTZ,
    end_datetime   TIMESTAMPTZ,
    bbox_west      DOUBLE PRECISION,
    bbox_south     DOUBLE PRECISION,
    bbox_east      DOUBLE PRECISION,
    bbox_north     DOUBLE PRECISION,
    properties     JSONB NOT NULL,
    content        JSONB NOT NULL,
    PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS items_datetime_idx
    ON items (start_datetime DESC, id ASC);

CREATE INDEX IF NOT EXISTS items_properties_idx
    ON items USING GIN (properties);
`

// Store runs catalog queries against a PostgreSQL pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New connects to PostgreSQL and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate applies the schema. All statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Capabilities reports the operators the SQL compiler covers. Spatial
// operators are absent, so spatial filters run through the in-process
// evaluator instead.
func (s *Store) Capabilities() filter.OpSet {
	return filter.NewOpSet(append(append(append([]filter.Op{},
		filter.ComparisonOps()...),
		filter.LogicalOps()...),
		filter.TemporalOps()...)...)
}

// PutCollection upserts a collection document.
func (s *Store) PutCollection(ctx context.Context, c *stac.Collection) error {
	content, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding collection %q: %w", c.Id, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO collections (id, content) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content`,
		c.Id, content)
	if err != nil {
		return fmt.Errorf("upserting collection %q: %w", c.Id, err)
	}
	return nil
}

// PutItem upserts an item, denormalizing the temporal and spatial extents
// into queryable columns.
func (s *Store) PutItem(ctx context.Context, item *stac.Item) error {
	if item.Collection == "" {
		return fmt.Errorf("item %q has no collection", item.Id)
	}
	content, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding item %q: %w", item.Id, err)
	}
	properties, err := json.Marshal(item.Properties)
	if err != nil {
		return fmt.Errorf("encoding item %q properties: %w", item.Id, err)
	}

	var start, end *time.Time
	if s0, e0, present, err := filter.ItemInterval(item, filter.FieldDatetime); err == nil && present {
		start, end = &s0, &e0
	}

	var west, south, east, north *float64
	if box := normalizeBBox(item.Bbox); box != nil {
		west, south, east, north = &box[0], &box[1], &box[2], &box[3]
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO items
			(collection, id, start_datetime, end_datetime,
			 bbox_west, bbox_south, bbox_east, bbox_north,
			 properties, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (collection, id) DO UPDATE SET
			start_datetime = EXCLUDED.start_datetime,
			end_datetime   = EXCLUDED.end_datetime,
			bbox_west = EXCLUDED.bbox_west, bbox_south = EXCLUDED.bbox_south,
			bbox_east = EXCLUDED.bbox_east, bbox_north = EXCLUDED.bbox_north,
			properties = EXCLUDED.properties,
			content    = EXCLUDED.content`,
		item.Collection, item.Id, start, end, west, south, east, north, properties, content)
	if err != nil {
		return fmt.Errorf("upserting item %q: %w", item.Id, err)
	}
	return nil
}

func (s *Store) FetchPage(ctx context.Context, req store.PageRequest) ([]*stac.Item, error) {
	b := newBuilder()
	if err := b.predicate(req.Predicate); err != nil {
		return nil, err
	}
	sort := effectiveSort(req.Sort)
	if req.After != nil {
		b.where(b.afterClause(sort, req.After))
	}

	sql := "SELECT content FROM items" + b.whereSQL() + orderBySQL(sort)
	if req.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", req.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []*stac.Item
	for rows.Next() {
		var content []byte
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		var item stac.Item
		if err := json.Unmarshal(content, &item); err != nil {
			return nil, fmt.Errorf("decoding item: %w", err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading items: %w", err)
	}
	return items, nil
}

func (s *Store) CountMatched(ctx context.Context, p store.Predicate) (*int, error) {
	b := newBuilder()
	if err := b.predicate(p); err != nil {
		return nil, err
	}
	var count int
	err := s.pool.QueryRow(ctx, "SELECT count(*) FROM items"+b.whereSQL(), b.args...).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("counting items: %w", err)
	}
	return &count, nil
}

func (s *Store) CollectionExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM collections WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking collection %q: %w", id, err)
	}
	return exists, nil
}

func (s *Store) GetCollection(ctx context.Context, id string) (*stac.Collection, error) {
	var content []byte
	err := s.pool.QueryRow(ctx,
		"SELECT content FROM collections WHERE id = $1", id).Scan(&content)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("collection %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading collection %q: %w", id, err)
	}
	var c stac.Collection
	if err := json.Unmarshal(content, &c); err != nil {
		return nil, fmt.Errorf("decoding collection %q: %w", id, err)
	}
	return &c, nil
}

func (s *Store) ListCollections(ctx context.Context) ([]*stac.Collection, error) {
	rows, err := s.pool.Query(ctx, "SELECT content FROM collections ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var out []*stac.Collection
	for rows.Next() {
		var content []byte
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		var c stac.Collection
		if err := json.Unmarshal(content, &c); err != nil {
			return nil, fmt.Errorf("decoding collection: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) GetItem(ctx context.Context, collection, id string) (*stac.Item, error) {
	var content []byte
	err := s.pool.QueryRow(ctx,
		"SELECT content FROM items WHERE collection = $1 AND id = $2",
		collection, id).Scan(&content)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("item %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading item %q: %w", id, err)
	}
	var item stac.Item
	if err := json.Unmarshal(content, &item); err != nil {
		return nil, fmt.Errorf("decoding item %q: %w", id, err)
	}
	return &item, nil
}

// normalizeBBox reduces a 4 or 6 element bbox to 2D corners, or nil when the
// bbox is absent or malformed.
func normalizeBBox(box []float64) []float64 {
	switch len(box) {
	case 4:
		return []float64{box[0], box[1], box[2], box[3]}
	case 6:
		return []float64{box[0], box[1], box[3], box[4]}
	default:
		return nil
	}
}

func effectiveSort(sort []store.SortKey) []store.SortKey {
	if len(sort) == 0 {
		return store.DefaultSort()
	}
	return sort
}

func orderBySQL(sort []store.SortKey) string {
	var keys []string
	for _, key := range sort {
		for _, expr := range sortKeyExprs(key.Field) {
			k := expr
			if key.Desc {
				k += " DESC"
			}
			keys = append(keys, k+" NULLS LAST")
		}
	}
	return " ORDER BY " + strings.Join(keys, ", ") + ", id ASC"
}

// sortKeyExprs returns the ORDER BY expressions realizing one sort key.
// Reserved fields are typed columns. A custom property becomes a
// three-part key (type rank, numeric value, text value) so numbers
// order numerically and ahead of strings, the order store.CompareItems
// produces in process.
func sortKeyExprs(field string) []string {
	switch stripProperties(field) {
	case filter.FieldID:
		return []string{"id"}
	case filter.FieldCollection:
		return []string{"collection"}
	case filter.FieldDatetime:
		return []string{"start_datetime"}
	default:
		return []string{typeRankExpr(field), numberExpr(field), textExpr(field)}
	}
}
