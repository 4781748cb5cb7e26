package filter

import (
	"errors"
	"testing"

	"github.com/planetlabs/go-stac"
)

func testItem() *stac.Item {
	return &stac.Item{
		Id:         "S1A_IW_GRDH_001",
		Collection: "sentinel-1",
		Bbox:       []float64{-10, 50, 2, 60},
		Geometry: map[string]any{
			"type":        "Polygon",
			"coordinates": []any{[]any{[]any{-10.0, 50.0}, []any{2.0, 50.0}, []any{2.0, 60.0}, []any{-10.0, 60.0}, []any{-10.0, 50.0}}},
		},
		Properties: map[string]any{
			"datetime":    "2023-06-15T12:00:00Z",
			"platform":    "sentinel-1a",
			"cloud_cover": 12.5,
			"archived":    false,
			"sar": map[string]any{
				"polarization": "VV",
			},
		},
	}
}

func TestEvaluateComparisons(t *testing.T) {
	item := testItem()

	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: "string equality match", input: "platform = 'sentinel-1a'", expected: true},
		{name: "string equality mismatch", input: "platform = 'landsat-8'", expected: false},
		{name: "not equal", input: "platform <> 'landsat-8'", expected: true},
		{name: "numeric less than", input: "cloud_cover < 20", expected: true},
		{name: "numeric greater than fails", input: "cloud_cover > 20", expected: false},
		{name: "numeric bounds inclusive", input: "cloud_cover <= 12.5", expected: true},
		{name: "bool equality", input: "archived = false", expected: true},
		{name: "reserved id field", input: "id LIKE 'S1A%'", expected: true},
		{name: "reserved collection field", input: "collection = 'sentinel-1'", expected: true},
		{name: "nested dot path", input: "sar.polarization = 'VV'", expected: true},
		{name: "properties prefix accepted", input: "properties.platform = 'sentinel-1a'", expected: true},
		{name: "in list match", input: "platform IN ('sentinel-1a', 'sentinel-1b')", expected: true},
		{name: "in list miss", input: "platform IN ('landsat-8', 'landsat-9')", expected: false},
		{name: "like underscore", input: "sar.polarization LIKE 'V_'", expected: true},
		{name: "like no match", input: "platform LIKE 'landsat%'", expected: false},
		{name: "timestamp string ordered against time literal", input: "datetime > TIMESTAMP('2023-01-01T00:00:00Z')", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := ParseText(tt.input)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got, err := Evaluate(node, item)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEvaluateNullSemantics(t *testing.T) {
	item := testItem()

	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		// Absent properties are null: only isNull matches them.
		{name: "absent property never equal", input: "missing = 'x'", expected: false},
		{name: "absent property never not-equal", input: "missing <> 'x'", expected: false},
		{name: "absent property not less than", input: "missing < 5", expected: false},
		{name: "absent property not in list", input: "missing IN ('x')", expected: false},
		{name: "isNull matches absent", input: "missing IS NULL", expected: true},
		{name: "isNull rejects present", input: "platform IS NULL", expected: false},
		{name: "is not null on present", input: "platform IS NOT NULL", expected: true},
		// NOT over a null comparison still flips the non-match.
		{name: "not of null comparison", input: "NOT missing = 'x'", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := ParseText(tt.input)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got, err := Evaluate(node, item)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEvaluateLogicalShortCircuit(t *testing.T) {
	item := testItem()

	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: "and both true", input: "platform = 'sentinel-1a' AND cloud_cover < 20", expected: true},
		{name: "and one false", input: "platform = 'sentinel-1a' AND cloud_cover > 20", expected: false},
		{name: "or one true", input: "platform = 'landsat-8' OR cloud_cover < 20", expected: true},
		{name: "or all false", input: "platform = 'landsat-8' OR cloud_cover > 20", expected: false},
		{name: "not", input: "NOT platform = 'landsat-8'", expected: true},
		{name: "nested", input: "(platform = 'landsat-8' OR platform = 'sentinel-1a') AND NOT archived = true", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := ParseText(tt.input)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got, err := Evaluate(node, item)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}

	// A type mismatch inside an OR aborts evaluation; the error propagates so
	// the caller can exclude the item.
	node, err := ParseText("cloud_cover LIKE 'x%' OR platform = 'sentinel-1a'")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := Evaluate(node, item); !errors.Is(err, ErrEvaluation) {
		t.Fatalf("expected ErrEvaluation, got %v", err)
	}
}

func TestEvaluateSpatial(t *testing.T) {
	item := testItem()

	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: "intersecting point", input: "s_intersects(geometry, POINT(0 55))", expected: true},
		{name: "disjoint point", input: "s_intersects(geometry, POINT(100 0))", expected: false},
		{name: "intersecting bbox", input: "s_intersects(geometry, BBOX(-5, 52, 0, 58))", expected: true},
		{name: "disjoint bbox", input: "s_intersects(geometry, BBOX(100, 0, 110, 10))", expected: false},
		{name: "within covering bbox", input: "s_within(geometry, BBOX(-20, 40, 10, 70))", expected: true},
		{name: "not within partial bbox", input: "s_within(geometry, BBOX(-5, 52, 0, 58))", expected: false},
		{name: "contains interior point", input: "s_contains(geometry, POINT(0 55))", expected: true},
		{name: "does not contain exterior point", input: "s_contains(geometry, POINT(100 0))", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := ParseText(tt.input)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got, err := Evaluate(node, item)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}

	t.Run("missing geometry never matches", func(t *testing.T) {
		bare := &stac.Item{Id: "x", Properties: map[string]any{}}
		node, err := ParseText("s_intersects(geometry, POINT(0 0))")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		got, err := Evaluate(node, bare)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if got {
			t.Error("expected no match for item without geometry")
		}
	})

	t.Run("antimeridian bbox literal", func(t *testing.T) {
		fiji := &stac.Item{
			Id: "fiji",
			Geometry: map[string]any{
				"type":        "Point",
				"coordinates": []any{179.0, -17.0},
			},
			Properties: map[string]any{},
		}
		node, err := ParseText("s_intersects(geometry, BBOX(170, -25, -170, -10))")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		got, err := Evaluate(node, fiji)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if !got {
			t.Error("expected point east of the antimeridian to match a wrapping bbox")
		}
	})
}

func TestEvaluateTemporal(t *testing.T) {
	item := testItem()

	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: "before later instant", input: "t_before(datetime, '2024-01-01T00:00:00Z')", expected: true},
		{name: "not before earlier instant", input: "t_before(datetime, '2023-01-01T00:00:00Z')", expected: false},
		{name: "after earlier instant", input: "t_after(datetime, '2023-01-01T00:00:00Z')", expected: true},
		{name: "during enclosing interval", input: "t_during(datetime, INTERVAL('2023-01-01T00:00:00Z', '2024-01-01T00:00:00Z'))", expected: true},
		{name: "during open-ended interval", input: "t_during(datetime, INTERVAL('2023-01-01T00:00:00Z', '..'))", expected: true},
		{name: "outside interval", input: "t_during(datetime, INTERVAL('2024-01-01T00:00:00Z', '..'))", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := ParseText(tt.input)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got, err := Evaluate(node, item)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}

	t.Run("range item falls back to start and end datetime", func(t *testing.T) {
		ranged := &stac.Item{
			Id: "ranged",
			Properties: map[string]any{
				"start_datetime": "2023-06-01T00:00:00Z",
				"end_datetime":   "2023-06-10T00:00:00Z",
			},
		}
		node, err := ParseText("t_during(datetime, INTERVAL('2023-05-01T00:00:00Z', '2023-07-01T00:00:00Z'))")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		got, err := Evaluate(node, ranged)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if !got {
			t.Error("expected range item to match interval covering its extent")
		}

		// A range straddling the interval boundary is not during it.
		node, err = ParseText("t_during(datetime, INTERVAL('2023-06-05T00:00:00Z', '2023-07-01T00:00:00Z'))")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		got, err = Evaluate(node, ranged)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if got {
			t.Error("expected straddling range not to match")
		}
	})

	t.Run("missing datetime never matches", func(t *testing.T) {
		bare := &stac.Item{Id: "x", Properties: map[string]any{}}
		node, err := ParseText("t_before(datetime, '2024-01-01T00:00:00Z')")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		got, err := Evaluate(node, bare)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if got {
			t.Error("expected no match for item without temporal extent")
		}
	})
}

func TestItemInterval(t *testing.T) {
	t.Run("instant", func(t *testing.T) {
		start, end, present, err := ItemInterval(testItem(), FieldDatetime)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !present || !start.Equal(end) {
			t.Fatalf("expected degenerate interval, got [%v, %v] present=%v", start, end, present)
		}
	})

	t.Run("start only", func(t *testing.T) {
		item := &stac.Item{Properties: map[string]any{"start_datetime": "2023-06-01T00:00:00Z"}}
		start, end, present, err := ItemInterval(item, FieldDatetime)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !present || !start.Equal(end) {
			t.Fatalf("expected end to default to start, got [%v, %v]", start, end)
		}
	})

	t.Run("absent", func(t *testing.T) {
		item := &stac.Item{Properties: map[string]any{}}
		_, _, present, err := ItemInterval(item, FieldDatetime)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if present {
			t.Error("expected absent interval")
		}
	})

	t.Run("malformed timestamp", func(t *testing.T) {
		item := &stac.Item{Properties: map[string]any{"datetime": "not-a-time"}}
		if _, _, _, err := ItemInterval(item, FieldDatetime); !errors.Is(err, ErrEvaluation) {
			t.Fatalf("expected ErrEvaluation, got %v", err)
		}
	})
}
