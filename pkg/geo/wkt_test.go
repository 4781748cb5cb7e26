package geo

import "testing"

func TestToWKT(t *testing.T) {
	tests := []struct {
		name     string
		geometry string
		expected string
	}{
		{
			name:     "point",
			geometry: `{"type":"Point","coordinates":[-118.2,34.05]}`,
			expected: "POINT(-118.2 34.05)",
		},
		{
			name:     "polygon",
			geometry: `{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}`,
			expected: "POLYGON((0 0,10 0,10 10,0 10,0 0))",
		},
		{
			name:     "multipolygon",
			geometry: `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,1],[0,0]]],[[[5,5],[6,5],[6,6],[5,6],[5,5]]]]}`,
			expected: "MULTIPOLYGON(((0 0,1 0,1 1,0 1,0 0)),((5 5,6 5,6 6,5 6,5 5)))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToWKT(mustGeometry(t, tt.geometry))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("ToWKT = %q, want %q", got, tt.expected)
			}
		})
	}

	t.Run("unsupported type", func(t *testing.T) {
		g := mustGeometry(t, `{"type":"LineString","coordinates":[[0,0],[1,1]]}`)
		if _, err := ToWKT(g); err == nil {
			t.Fatal("expected error, got nil")
		}
	})

	t.Run("nil geometry", func(t *testing.T) {
		if _, err := ToWKT(nil); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestFromWKT(t *testing.T) {
	tests := []struct {
		name        string
		wkt         string
		expectError bool
	}{
		{name: "point", wkt: "POINT(-118.2 34.05)"},
		{name: "polygon", wkt: "POLYGON((0 0,10 0,10 10,0 10,0 0))"},
		{name: "polygon with hole", wkt: "POLYGON((0 0,10 0,10 10,0 10,0 0),(2 2,4 2,4 4,2 4,2 2))"},
		{name: "multipolygon", wkt: "MULTIPOLYGON(((0 0,1 0,1 1,0 1,0 0)),((5 5,6 5,6 6,5 6,5 5)))"},
		{name: "lowercase", wkt: "point(1 2)"},
		{name: "empty", wkt: "", expectError: true},
		{name: "unsupported type", wkt: "LINESTRING(0 0,1 1)", expectError: true},
		{name: "unbalanced parens", wkt: "POLYGON((0 0,10 0,10 10)", expectError: true},
		{name: "bad coordinate", wkt: "POINT(abc 34.05)", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := FromWKT(tt.wkt)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if g == nil || g.Type == "" {
				t.Fatal("expected geometry with type")
			}
		})
	}
}

func TestWKTRoundTrip(t *testing.T) {
	inputs := []string{
		"POINT(-118.2 34.05)",
		"POLYGON((0 0,10 0,10 10,0 10,0 0))",
		"MULTIPOLYGON(((0 0,1 0,1 1,0 1,0 0)),((5 5,6 5,6 6,5 6,5 5)))",
	}
	for _, in := range inputs {
		g, err := FromWKT(in)
		if err != nil {
			t.Fatalf("FromWKT(%q): %v", in, err)
		}
		out, err := ToWKT(g)
		if err != nil {
			t.Fatalf("ToWKT(%q): %v", in, err)
		}
		if out != in {
			t.Errorf("round trip of %q produced %q", in, out)
		}
	}
}
