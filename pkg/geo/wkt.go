package geo

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ToWKT converts a GeoJSON geometry to WKT format.
// Supports Point, Polygon, and MultiPolygon.
func ToWKT(g *Geometry) (string, error) {
	if g == nil {
		return "", fmt.Errorf("%w: geometry is nil", ErrInvalidGeometry)
	}

	switch g.Type {
	case "Point":
		coords, err := g.Point()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("POINT(%s %s)", formatFloat(coords[0]), formatFloat(coords[1])), nil
	case "Polygon":
		coords, err := g.Polygon()
		if err != nil {
			return "", err
		}
		return "POLYGON" + ringsToWKT(coords), nil
	case "MultiPolygon":
		coords, err := g.MultiPolygon()
		if err != nil {
			return "", err
		}
		parts := make([]string, len(coords))
		for i, polygon := range coords {
			parts[i] = ringsToWKT(polygon)
		}
		return "MULTIPOLYGON(" + strings.Join(parts, ",") + ")", nil
	default:
		return "", fmt.Errorf("%w: unsupported geometry type for WKT: %s", ErrInvalidGeometry, g.Type)
	}
}

func ringsToWKT(rings [][][]float64) string {
	parts := make([]string, len(rings))
	for i, ring := range rings {
		points := make([]string, len(ring))
		for j, point := range ring {
			points[j] = formatFloat(point[0]) + " " + formatFloat(point[1])
		}
		parts[i] = "(" + strings.Join(points, ",") + ")"
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// FromWKT parses a WKT string into a GeoJSON geometry.
// Supports POINT, POLYGON, and MULTIPOLYGON.
func FromWKT(wkt string) (*Geometry, error) {
	wkt = strings.TrimSpace(wkt)
	if wkt == "" {
		return nil, fmt.Errorf("%w: empty WKT string", ErrInvalidGeometry)
	}

	upper := strings.ToUpper(wkt)
	switch {
	case strings.HasPrefix(upper, "POINT"):
		return parseWKTPoint(wkt)
	case strings.HasPrefix(upper, "MULTIPOLYGON"):
		return parseWKTMultiPolygon(wkt)
	case strings.HasPrefix(upper, "POLYGON"):
		return parseWKTPolygon(wkt)
	default:
		return nil, fmt.Errorf("%w: unsupported WKT geometry type", ErrInvalidGeometry)
	}
}

func wktBody(wkt string) (string, error) {
	start := strings.Index(wkt, "(")
	end := strings.LastIndex(wkt, ")")
	if start == -1 || end == -1 || start >= end {
		return "", fmt.Errorf("%w: malformed WKT: %s", ErrInvalidGeometry, wkt)
	}
	return wkt[start+1 : end], nil
}

func parseWKTPoint(wkt string) (*Geometry, error) {
	body, err := wktBody(wkt)
	if err != nil {
		return nil, err
	}
	coords, err := parseCoordPair(body)
	if err != nil {
		return nil, err
	}
	return marshalGeometry("Point", coords)
}

func parseWKTPolygon(wkt string) (*Geometry, error) {
	body, err := wktBody(wkt)
	if err != nil {
		return nil, err
	}
	rings, err := parseWKTRings(body)
	if err != nil {
		return nil, err
	}
	return marshalGeometry("Polygon", rings)
}

func parseWKTMultiPolygon(wkt string) (*Geometry, error) {
	body, err := wktBody(wkt)
	if err != nil {
		return nil, err
	}
	groups, err := splitParenGroups(body)
	if err != nil {
		return nil, err
	}
	polygons := make([][][][]float64, 0, len(groups))
	for _, group := range groups {
		inner := strings.TrimSpace(group)
		inner = strings.TrimPrefix(inner, "(")
		inner = strings.TrimSuffix(inner, ")")
		rings, err := parseWKTRings(inner)
		if err != nil {
			return nil, err
		}
		polygons = append(polygons, rings)
	}
	return marshalGeometry("MultiPolygon", polygons)
}

func parseWKTRings(s string) ([][][]float64, error) {
	groups, err := splitParenGroups(s)
	if err != nil {
		return nil, err
	}
	rings := make([][][]float64, 0, len(groups))
	for _, group := range groups {
		inner := strings.TrimSpace(group)
		inner = strings.TrimPrefix(inner, "(")
		inner = strings.TrimSuffix(inner, ")")
		pairs := strings.Split(inner, ",")
		ring := make([][]float64, 0, len(pairs))
		for _, pair := range pairs {
			coords, err := parseCoordPair(pair)
			if err != nil {
				return nil, err
			}
			ring = append(ring, coords)
		}
		rings = append(rings, ring)
	}
	return rings, nil
}

// splitParenGroups splits a string into its top-level parenthesized groups,
// ignoring commas between them.
func splitParenGroups(s string) ([]string, error) {
	var result []string
	var current strings.Builder
	depth := 0

	for i, ch := range s {
		switch ch {
		case '(':
			depth++
			current.WriteRune(ch)
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unmatched closing parenthesis at %d", ErrInvalidGeometry, i)
			}
			current.WriteRune(ch)
			if depth == 0 {
				result = append(result, current.String())
				current.Reset()
			}
		default:
			if depth > 0 {
				current.WriteRune(ch)
			}
		}
	}

	if depth != 0 {
		return nil, fmt.Errorf("%w: unmatched parentheses", ErrInvalidGeometry)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: empty coordinate list", ErrInvalidGeometry)
	}
	return result, nil
}

func parseCoordPair(s string) ([]float64, error) {
	parts := strings.Fields(strings.TrimSpace(s))
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: invalid coordinate pair: %q", ErrInvalidGeometry, s)
	}
	lon, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid longitude: %q", ErrInvalidGeometry, parts[0])
	}
	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid latitude: %q", ErrInvalidGeometry, parts[1])
	}
	return []float64{lon, lat}, nil
}

func marshalGeometry(typ string, coords any) (*Geometry, error) {
	data, err := json.Marshal(coords)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s coordinates: %w", typ, err)
	}
	return &Geometry{Type: typ, Coordinates: data}, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
