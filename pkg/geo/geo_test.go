package geo

import (
	"errors"
	"testing"
)

func TestComputeBBox(t *testing.T) {
	tests := []struct {
		name        string
		geometry    string
		expected    []float64
		expectError bool
	}{
		{
			name:     "point",
			geometry: `{"type":"Point","coordinates":[-118.2,34.05]}`,
			expected: []float64{-118.2, 34.05, -118.2, 34.05},
		},
		{
			name:     "polygon",
			geometry: `{"type":"Polygon","coordinates":[[[-10,50],[2,50],[2,60],[-10,60],[-10,50]]]}`,
			expected: []float64{-10, 50, 2, 60},
		},
		{
			name:     "multipolygon spans both parts",
			geometry: `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,1],[0,0]]],[[[10,10],[11,10],[11,11],[10,11],[10,10]]]]}`,
			expected: []float64{0, 0, 11, 11},
		},
		{
			name:        "unsupported type",
			geometry:    `{"type":"LineString","coordinates":[[0,0],[1,1]]}`,
			expectError: true,
		},
		{
			name:        "latitude out of range",
			geometry:    `{"type":"Point","coordinates":[0,95]}`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustGeometry(t, tt.geometry)
			got, err := ComputeBBox(g)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidGeometry) {
					t.Errorf("expected ErrInvalidGeometry, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("bbox length = %d, want %d", len(got), len(tt.expected))
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("bbox[%d] = %f, want %f", i, got[i], tt.expected[i])
				}
			}
		})
	}

	t.Run("nil geometry", func(t *testing.T) {
		if _, err := ComputeBBox(nil); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestNewPolygonFromBBox(t *testing.T) {
	g, err := NewPolygonFromBBox([]float64{-10, 50, 2, 60})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Type != "Polygon" {
		t.Errorf("type = %s, want Polygon", g.Type)
	}
	rings, err := g.Polygon()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rings) != 1 || len(rings[0]) != 5 {
		t.Fatalf("expected single closed ring with 5 positions, got %v", rings)
	}
	first, last := rings[0][0], rings[0][4]
	if first[0] != last[0] || first[1] != last[1] {
		t.Error("ring is not closed")
	}

	if _, err := NewPolygonFromBBox([]float64{0, 0, 10}); err == nil {
		t.Fatal("expected error for 3-value bbox, got nil")
	}
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name        string
		input       any
		expected    string
		expectError bool
	}{
		{
			name:     "map",
			input:    map[string]any{"type": "Point", "coordinates": []any{1.0, 2.0}},
			expected: "Point",
		},
		{
			name:     "raw json",
			input:    []byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`),
			expected: "Polygon",
		},
		{
			name:     "existing geometry",
			input:    &Geometry{Type: "Point", Coordinates: []byte(`[1,2]`)},
			expected: "Point",
		},
		{
			name:        "nil",
			input:       nil,
			expectError: true,
		},
		{
			name:        "missing type",
			input:       map[string]any{"coordinates": []any{1.0, 2.0}},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := FromAny(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if g.Type != tt.expected {
				t.Errorf("type = %s, want %s", g.Type, tt.expected)
			}
		})
	}
}
