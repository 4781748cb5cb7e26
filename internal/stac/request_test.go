package stac

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rkm/geocatalog/internal/filter"
)

func TestParseSearchRequest(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		expectError bool
		check       func(t *testing.T, req *SearchRequest)
	}{
		{
			name: "bbox",
			url:  "/search?bbox=-10,50,2,60",
			check: func(t *testing.T, req *SearchRequest) {
				if len(req.BBox) != 4 || req.BBox[0] != -10 || req.BBox[3] != 60 {
					t.Errorf("bbox = %v", req.BBox)
				}
			},
		},
		{
			name:        "bbox with wrong count",
			url:         "/search?bbox=1,2,3",
			expectError: true,
		},
		{
			name:        "bbox with bad number",
			url:         "/search?bbox=a,2,3,4",
			expectError: true,
		},
		{
			name: "collections and ids",
			url:  "/search?collections=sentinel-1,%20sentinel-2&ids=a,b",
			check: func(t *testing.T, req *SearchRequest) {
				if len(req.Collections) != 2 || req.Collections[1] != "sentinel-2" {
					t.Errorf("collections = %v", req.Collections)
				}
				if len(req.IDs) != 2 {
					t.Errorf("ids = %v", req.IDs)
				}
			},
		},
		{
			name: "limit and cursor",
			url:  "/search?limit=50&cursor=abc.def",
			check: func(t *testing.T, req *SearchRequest) {
				if req.Limit != 50 || req.Cursor != "abc.def" {
					t.Errorf("limit = %d, cursor = %q", req.Limit, req.Cursor)
				}
			},
		},
		{
			name:        "negative limit",
			url:         "/search?limit=-5",
			expectError: true,
		},
		{
			name: "datetime interval",
			url:  "/search?datetime=2023-01-01T00:00:00Z/..",
			check: func(t *testing.T, req *SearchRequest) {
				if req.DateTime != "2023-01-01T00:00:00Z/.." {
					t.Errorf("datetime = %q", req.DateTime)
				}
			},
		},
		{
			name: "intersects geojson",
			url:  `/search?intersects={"type":"Point","coordinates":[0,0]}`,
			check: func(t *testing.T, req *SearchRequest) {
				if len(req.Intersects) == 0 {
					t.Error("expected raw intersects geometry")
				}
			},
		},
		{
			name:        "intersects invalid json",
			url:         `/search?intersects={"type":`,
			expectError: true,
		},
		{
			name: "sortby directions",
			url:  "/search?sortby=-datetime,%2Bplatform,collection",
			check: func(t *testing.T, req *SearchRequest) {
				want := []SortbyItem{
					{Field: "datetime", Direction: "desc"},
					{Field: "platform", Direction: "asc"},
					{Field: "collection", Direction: "asc"},
				}
				if len(req.Sortby) != len(want) {
					t.Fatalf("sortby = %v", req.Sortby)
				}
				for i := range want {
					if req.Sortby[i] != want[i] {
						t.Errorf("sortby[%d] = %v, want %v", i, req.Sortby[i], want[i])
					}
				}
			},
		},
		{
			name:        "sortby empty field",
			url:         "/search?sortby=-",
			expectError: true,
		},
		{
			name: "fields include and exclude",
			url:  "/search?fields=properties.datetime,-assets",
			check: func(t *testing.T, req *SearchRequest) {
				if req.Fields == nil {
					t.Fatal("expected fields spec")
				}
				if len(req.Fields.Include) != 1 || req.Fields.Include[0] != "properties.datetime" {
					t.Errorf("include = %v", req.Fields.Include)
				}
				if len(req.Fields.Exclude) != 1 || req.Fields.Exclude[0] != "assets" {
					t.Errorf("exclude = %v", req.Fields.Exclude)
				}
			},
		},
		{
			name: "cql2-text filter stays string",
			url:  "/search?filter=platform%20%3D%20%27sentinel-1a%27",
			check: func(t *testing.T, req *SearchRequest) {
				if _, ok := req.Filter.(string); !ok {
					t.Errorf("filter = %T, want string", req.Filter)
				}
			},
		},
		{
			name: "cql2-json filter auto-detected",
			url:  `/search?filter={"op":"=","args":[{"property":"platform"},"sentinel-1a"]}`,
			check: func(t *testing.T, req *SearchRequest) {
				if _, ok := req.Filter.(map[string]any); !ok {
					t.Errorf("filter = %T, want object", req.Filter)
				}
			},
		},
		{
			name:        "cql2-json filter with bad json",
			url:         `/search?filter={"op":&filter-lang=cql2-json`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			req, err := ParseSearchRequest(r)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, req)
		})
	}
}

func TestParseSearchRequestBody(t *testing.T) {
	body := `{
		"collections": ["sentinel-1"],
		"bbox": [-10, 50, 2, 60],
		"datetime": "2023-01-01T00:00:00Z/2023-12-31T23:59:59Z",
		"limit": 25,
		"sortby": [{"field": "datetime", "direction": "desc"}],
		"fields": {"include": ["properties.datetime"], "exclude": ["assets"]},
		"filter": {"op": "=", "args": [{"property": "platform"}, "sentinel-1a"]},
		"filter-lang": "cql2-json"
	}`
	req, err := ParseSearchRequestBody(strings.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Collections) != 1 || req.Collections[0] != "sentinel-1" {
		t.Errorf("collections = %v", req.Collections)
	}
	if req.Limit != 25 {
		t.Errorf("limit = %d", req.Limit)
	}
	if len(req.Sortby) != 1 || req.Sortby[0].Direction != "desc" {
		t.Errorf("sortby = %v", req.Sortby)
	}
	if req.Fields == nil || len(req.Fields.Include) != 1 {
		t.Errorf("fields = %v", req.Fields)
	}
	if req.FilterLang != "cql2-json" {
		t.Errorf("filter-lang = %q", req.FilterLang)
	}

	if _, err := ParseSearchRequestBody(strings.NewReader("{not json")); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func TestToQuery(t *testing.T) {
	t.Run("full request", func(t *testing.T) {
		req := &SearchRequest{
			Collections: []string{"sentinel-1"},
			BBox:        []float64{-10, 50, 2, 60},
			DateTime:    "2023-01-01T00:00:00Z/..",
			Limit:       25,
			Cursor:      "token",
			Sortby:      []SortbyItem{{Field: "datetime", Direction: "desc"}},
			Fields:      &FieldsSpec{Exclude: []string{"assets"}},
			Filter:      "platform = 'sentinel-1a'",
		}
		q, err := req.ToQuery()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if q.Start == nil || q.End != nil {
			t.Errorf("interval = [%v, %v], want open end", q.Start, q.End)
		}
		if len(q.Sort) != 1 || !q.Sort[0].Desc || q.Sort[0].Field != "datetime" {
			t.Errorf("sort = %v", q.Sort)
		}
		if q.Fields == nil || len(q.Fields.Exclude) != 1 {
			t.Errorf("fields = %v", q.Fields)
		}
		if _, ok := q.Filter.(*filter.Comparison); !ok {
			t.Errorf("filter = %T, want *filter.Comparison", q.Filter)
		}
		if q.Cursor != "token" || q.Limit != 25 {
			t.Errorf("cursor = %q, limit = %d", q.Cursor, q.Limit)
		}
	})

	t.Run("bare instant datetime becomes degenerate interval", func(t *testing.T) {
		req := &SearchRequest{DateTime: "2023-06-15T12:00:00Z"}
		q, err := req.ToQuery()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if q.Start == nil || q.End == nil || !q.Start.Equal(*q.End) {
			t.Errorf("interval = [%v, %v], want degenerate", q.Start, q.End)
		}
	})

	t.Run("intersects geometry", func(t *testing.T) {
		req := &SearchRequest{Intersects: []byte(`{"type":"Point","coordinates":[0,0]}`)}
		q, err := req.ToQuery()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if q.Intersects == nil || q.Intersects.Type != "Point" {
			t.Errorf("intersects = %v", q.Intersects)
		}
	})

	t.Run("out of range intersects rejected", func(t *testing.T) {
		req := &SearchRequest{Intersects: []byte(`{"type":"Point","coordinates":[500,0]}`)}
		if _, err := req.ToQuery(); err == nil {
			t.Fatal("expected error for out-of-range geometry")
		}
	})

	t.Run("bbox and intersects together rejected", func(t *testing.T) {
		req := &SearchRequest{
			BBox:       []float64{0, 0, 1, 1},
			Intersects: []byte(`{"type":"Point","coordinates":[0,0]}`),
		}
		if _, err := req.ToQuery(); err == nil {
			t.Fatal("expected error for bbox plus intersects")
		}
	})

	t.Run("object filter", func(t *testing.T) {
		req := &SearchRequest{
			Filter: map[string]any{
				"op":   "=",
				"args": []any{map[string]any{"property": "platform"}, "sentinel-1a"},
			},
		}
		q, err := req.ToQuery()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := q.Filter.(*filter.Comparison); !ok {
			t.Errorf("filter = %T", q.Filter)
		}
	})

	t.Run("unsupported filter-lang", func(t *testing.T) {
		req := &SearchRequest{Filter: "a = 1", FilterLang: "cql3"}
		if _, err := req.ToQuery(); err == nil {
			t.Fatal("expected error for unsupported filter-lang")
		}
	})

	t.Run("object filter with cql2-text lang rejected", func(t *testing.T) {
		req := &SearchRequest{
			Filter:     map[string]any{"op": "=", "args": []any{}},
			FilterLang: "cql2-text",
		}
		if _, err := req.ToQuery(); err == nil {
			t.Fatal("expected error for object filter declared as text")
		}
	})
}

func TestToQueryParams(t *testing.T) {
	req := &SearchRequest{
		Collections: []string{"sentinel-1", "sentinel-2"},
		BBox:        []float64{-10, 50, 2, 60},
		DateTime:    "2023-01-01T00:00:00Z/..",
		Sortby:      []SortbyItem{{Field: "datetime", Direction: "desc"}},
		Fields:      &FieldsSpec{Include: []string{"properties.datetime"}, Exclude: []string{"assets"}},
		Filter: map[string]any{
			"op":   "=",
			"args": []any{map[string]any{"property": "platform"}, "sentinel-1a"},
		},
	}

	params := req.ToQueryParams()
	if got := params.Get("collections"); got != "sentinel-1,sentinel-2" {
		t.Errorf("collections = %q", got)
	}
	if got := params.Get("bbox"); got != "-10,50,2,60" {
		t.Errorf("bbox = %q", got)
	}
	if got := params.Get("sortby"); got != "-datetime" {
		t.Errorf("sortby = %q", got)
	}
	if got := params.Get("fields"); got != "properties.datetime,-assets" {
		t.Errorf("fields = %q", got)
	}
	if got := params.Get("filter-lang"); got != "cql2-json" {
		t.Errorf("filter-lang = %q", got)
	}
	if got := params.Get("filter"); !strings.Contains(got, `"property":"platform"`) {
		t.Errorf("filter = %q", got)
	}

	// A text filter round-trips unchanged.
	text := &SearchRequest{Filter: "platform = 'sentinel-1a'", FilterLang: "cql2-text"}
	params = text.ToQueryParams()
	if got := params.Get("filter"); got != "platform = 'sentinel-1a'" {
		t.Errorf("filter = %q", got)
	}
	if got := params.Get("filter-lang"); got != "cql2-text" {
		t.Errorf("filter-lang = %q", got)
	}
}
