// Package geo provides GeoJSON geometry types and planar geometry
// predicates over WGS84 coordinates.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is returned when coordinates are malformed or outside
// the WGS84 valid ranges.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Geometry represents a GeoJSON geometry object.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Point returns the coordinates as a Point [lon, lat].
// Returns error if geometry is not a Point.
func (g *Geometry) Point() ([]float64, error) {
	if g.Type != "Point" {
		return nil, fmt.Errorf("%w: geometry is not a Point, got %s", ErrInvalidGeometry, g.Type)
	}
	var coords []float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal Point coordinates: %v", ErrInvalidGeometry, err)
	}
	if len(coords) < 2 {
		return nil, fmt.Errorf("%w: Point needs at least 2 values, got %d", ErrInvalidGeometry, len(coords))
	}
	if err := validateCoord(coords[0], coords[1]); err != nil {
		return nil, err
	}
	return coords, nil
}

// Polygon returns the coordinates as a Polygon [][][lon, lat].
// Returns error if geometry is not a Polygon.
func (g *Geometry) Polygon() ([][][]float64, error) {
	if g.Type != "Polygon" {
		return nil, fmt.Errorf("%w: geometry is not a Polygon, got %s", ErrInvalidGeometry, g.Type)
	}
	var coords [][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal Polygon coordinates: %v", ErrInvalidGeometry, err)
	}
	if err := validateRings(coords); err != nil {
		return nil, err
	}
	return coords, nil
}

// MultiPolygon returns the coordinates as a MultiPolygon [][][][lon, lat].
// Returns error if geometry is not a MultiPolygon.
func (g *Geometry) MultiPolygon() ([][][][]float64, error) {
	if g.Type != "MultiPolygon" {
		return nil, fmt.Errorf("%w: geometry is not a MultiPolygon, got %s", ErrInvalidGeometry, g.Type)
	}
	var coords [][][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal MultiPolygon coordinates: %v", ErrInvalidGeometry, err)
	}
	for _, polygon := range coords {
		if err := validateRings(polygon); err != nil {
			return nil, err
		}
	}
	return coords, nil
}

// polygons normalizes the geometry into a list of polygons (ring lists).
// A Point becomes a degenerate single-vertex ring.
func (g *Geometry) polygons() ([][][][]float64, error) {
	switch g.Type {
	case "Point":
		coords, err := g.Point()
		if err != nil {
			return nil, err
		}
		ring := [][]float64{{coords[0], coords[1]}}
		return [][][][]float64{{ring}}, nil
	case "Polygon":
		coords, err := g.Polygon()
		if err != nil {
			return nil, err
		}
		return [][][][]float64{coords}, nil
	case "MultiPolygon":
		return g.MultiPolygon()
	default:
		return nil, fmt.Errorf("%w: unsupported geometry type: %s", ErrInvalidGeometry, g.Type)
	}
}

// BBox computes the bounding box of the geometry.
// Returns [west, south, east, north].
func (g *Geometry) BBox() ([]float64, error) {
	return ComputeBBox(g)
}

// ComputeBBox computes the bounding box of a geometry.
// Returns [west, south, east, north].
func ComputeBBox(g *Geometry) ([]float64, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: geometry is nil", ErrInvalidGeometry)
	}

	polygons, err := g.polygons()
	if err != nil {
		return nil, err
	}

	minLon, minLat := math.Inf(1), math.Inf(1)
	maxLon, maxLat := math.Inf(-1), math.Inf(-1)

	for _, polygon := range polygons {
		for _, ring := range polygon {
			for _, point := range ring {
				if len(point) < 2 {
					continue
				}
				minLon = math.Min(minLon, point[0])
				maxLon = math.Max(maxLon, point[0])
				minLat = math.Min(minLat, point[1])
				maxLat = math.Max(maxLat, point[1])
			}
		}
	}

	if math.IsInf(minLon, 0) || math.IsInf(minLat, 0) {
		return nil, fmt.Errorf("%w: no valid coordinates found", ErrInvalidGeometry)
	}

	return []float64{minLon, minLat, maxLon, maxLat}, nil
}

// NewPolygonFromBBox creates a polygon geometry from a bounding box.
// bbox should be [west, south, east, north].
func NewPolygonFromBBox(bbox []float64) (*Geometry, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("%w: bbox must have 4 values [west, south, east, north], got %d", ErrInvalidGeometry, len(bbox))
	}

	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]

	coords := [][][]float64{
		{
			{west, south},
			{east, south},
			{east, north},
			{west, north},
			{west, south}, // close the ring
		},
	}

	coordsJSON, err := json.Marshal(coords)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal polygon coordinates: %w", err)
	}

	return &Geometry{
		Type:        "Polygon",
		Coordinates: coordsJSON,
	}, nil
}

// FromAny converts a JSON-decoded geometry representation (map, raw JSON, or
// an existing *Geometry) into a Geometry.
func FromAny(v any) (*Geometry, error) {
	switch g := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: geometry is nil", ErrInvalidGeometry)
	case *Geometry:
		return g, nil
	case Geometry:
		return &g, nil
	case json.RawMessage:
		var out Geometry
		if err := json.Unmarshal(g, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		return &out, nil
	case []byte:
		var out Geometry
		if err := json.Unmarshal(g, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		return &out, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		var out Geometry
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		if out.Type == "" {
			return nil, fmt.Errorf("%w: missing geometry type", ErrInvalidGeometry)
		}
		return &out, nil
	}
}

func validateCoord(lon, lat float64) error {
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %f out of range [-180, 180]", ErrInvalidGeometry, lon)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrInvalidGeometry, lat)
	}
	return nil
}

func validateRings(rings [][][]float64) error {
	if len(rings) == 0 {
		return fmt.Errorf("%w: polygon has no rings", ErrInvalidGeometry)
	}
	for _, ring := range rings {
		if len(ring) < 4 {
			return fmt.Errorf("%w: ring needs at least 4 positions, got %d", ErrInvalidGeometry, len(ring))
		}
		for _, point := range ring {
			if len(point) < 2 {
				return fmt.Errorf("%w: position needs at least 2 values", ErrInvalidGeometry)
			}
			if err := validateCoord(point[0], point[1]); err != nil {
				return err
			}
		}
	}
	return nil
}
