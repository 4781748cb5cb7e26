package geo

import "fmt"

// BBoxIntersects reports whether two bounding boxes overlap.
// Boxes are [west, south, east, north] (a 6-value 3D bbox is accepted, the
// elevation values are ignored). A box whose west longitude is greater than
// its east longitude is interpreted as crossing the antimeridian and is
// split into two boxes before comparison.
func BBoxIntersects(a, b []float64) (bool, error) {
	na, err := normalizeBBox(a)
	if err != nil {
		return false, err
	}
	nb, err := normalizeBBox(b)
	if err != nil {
		return false, err
	}
	for _, pa := range splitAntimeridian(na) {
		for _, pb := range splitAntimeridian(nb) {
			if boxOverlap(pa, pb) {
				return true, nil
			}
		}
	}
	return false, nil
}

// BBoxContains reports whether box a fully contains box b.
// Antimeridian-crossing boxes are split; every part of b must be covered by
// some part of a.
func BBoxContains(a, b []float64) (bool, error) {
	na, err := normalizeBBox(a)
	if err != nil {
		return false, err
	}
	nb, err := normalizeBBox(b)
	if err != nil {
		return false, err
	}
	partsA := splitAntimeridian(na)
	for _, pb := range splitAntimeridian(nb) {
		covered := false
		for _, pa := range partsA {
			if pa[0] <= pb[0] && pa[1] <= pb[1] && pa[2] >= pb[2] && pa[3] >= pb[3] {
				covered = true
				break
			}
		}
		if !covered {
			return false, nil
		}
	}
	return true, nil
}

// Intersects reports whether two geometries intersect using a planar test:
// segment intersection across ring edges, plus containment of either
// geometry's vertices in the other.
func Intersects(a, b *Geometry) (bool, error) {
	pa, err := a.polygons()
	if err != nil {
		return false, err
	}
	pb, err := b.polygons()
	if err != nil {
		return false, err
	}
	for _, polyA := range pa {
		for _, polyB := range pb {
			if polygonsIntersect(polyA, polyB) {
				return true, nil
			}
		}
	}
	return false, nil
}

// Contains reports whether geometry a fully contains geometry b: every vertex
// of b lies inside (or on) a and no ring edges cross.
func Contains(a, b *Geometry) (bool, error) {
	pa, err := a.polygons()
	if err != nil {
		return false, err
	}
	pb, err := b.polygons()
	if err != nil {
		return false, err
	}
	for _, polyB := range pb {
		contained := false
		for _, polyA := range pa {
			if polygonContains(polyA, polyB) {
				contained = true
				break
			}
		}
		if !contained {
			return false, nil
		}
	}
	return true, nil
}

// Within reports whether geometry a lies fully within geometry b.
func Within(a, b *Geometry) (bool, error) {
	return Contains(b, a)
}

// SplitBBox validates a bbox, reduces it to 2D, and splits an
// antimeridian-crossing box into its two planar parts.
func SplitBBox(bbox []float64) ([][]float64, error) {
	nb, err := normalizeBBox(bbox)
	if err != nil {
		return nil, err
	}
	return splitAntimeridian(nb), nil
}

// normalizeBBox validates a 4- or 6-value bbox and reduces it to 2D.
// Unlike a strict validator it permits west > east (antimeridian wrap).
func normalizeBBox(bbox []float64) ([]float64, error) {
	var west, south, east, north float64
	switch len(bbox) {
	case 4:
		west, south, east, north = bbox[0], bbox[1], bbox[2], bbox[3]
	case 6:
		west, south, east, north = bbox[0], bbox[1], bbox[3], bbox[4]
	default:
		return nil, fmt.Errorf("%w: bbox must have 4 or 6 values, got %d", ErrInvalidGeometry, len(bbox))
	}
	if err := validateCoord(west, south); err != nil {
		return nil, err
	}
	if err := validateCoord(east, north); err != nil {
		return nil, err
	}
	if south > north {
		return nil, fmt.Errorf("%w: south latitude %f greater than north latitude %f", ErrInvalidGeometry, south, north)
	}
	return []float64{west, south, east, north}, nil
}

// splitAntimeridian splits a wrapping bbox (west > east) into two boxes, one
// on each side of the ±180 meridian.
func splitAntimeridian(b []float64) [][]float64 {
	if b[0] <= b[2] {
		return [][]float64{b}
	}
	return [][]float64{
		{b[0], b[1], 180, b[3]},
		{-180, b[1], b[2], b[3]},
	}
}

func boxOverlap(a, b []float64) bool {
	return a[0] <= b[2] && b[0] <= a[2] && a[1] <= b[3] && b[1] <= a[3]
}

// polygonsIntersect tests two ring lists (outer ring plus holes).
// A single-vertex ring is treated as a point.
func polygonsIntersect(a, b [][][]float64) bool {
	if isPointPolygon(a) {
		return pointInPolygon(a[0][0], b)
	}
	if isPointPolygon(b) {
		return pointInPolygon(b[0][0], a)
	}

	// Any edge crossing means intersection.
	for _, ringA := range a {
		for _, ringB := range b {
			if ringsEdgesIntersect(ringA, ringB) {
				return true
			}
		}
	}

	// No crossing edges: one may be nested inside the other.
	if len(a[0]) > 0 && pointInPolygon(a[0][0], b) {
		return true
	}
	if len(b[0]) > 0 && pointInPolygon(b[0][0], a) {
		return true
	}
	return false
}

// polygonContains reports whether polygon a contains polygon b.
func polygonContains(a, b [][][]float64) bool {
	if isPointPolygon(b) {
		return pointInPolygon(b[0][0], a)
	}
	for _, ring := range b {
		for _, pt := range ring {
			if !pointInPolygon(pt, a) {
				return false
			}
		}
	}
	// Vertices inside is not sufficient when edges cross a concavity.
	for _, ringA := range a {
		for _, ringB := range b {
			if ringsEdgesProperlyIntersect(ringA, ringB) {
				return false
			}
		}
	}
	return true
}

func isPointPolygon(p [][][]float64) bool {
	return len(p) == 1 && len(p[0]) == 1
}

// pointInPolygon applies the even-odd rule across all rings, so holes are
// honored. Points on an edge count as inside.
func pointInPolygon(pt []float64, polygon [][][]float64) bool {
	if len(pt) < 2 {
		return false
	}
	inside := false
	for _, ring := range polygon {
		n := len(ring)
		if n < 3 {
			continue
		}
		j := n - 1
		for i := 0; i < n; i++ {
			xi, yi := ring[i][0], ring[i][1]
			xj, yj := ring[j][0], ring[j][1]
			if onSegment(pt, ring[j], ring[i]) {
				return true
			}
			if (yi > pt[1]) != (yj > pt[1]) {
				x := (xj-xi)*(pt[1]-yi)/(yj-yi) + xi
				if pt[0] < x {
					inside = !inside
				}
			}
			j = i
		}
	}
	return inside
}

func ringsEdgesIntersect(a, b [][]float64) bool {
	return ringsIntersect(a, b, false)
}

// ringsEdgesProperlyIntersect ignores touching endpoints, which containment
// of adjacent geometries legitimately produces.
func ringsEdgesProperlyIntersect(a, b [][]float64) bool {
	return ringsIntersect(a, b, true)
}

func ringsIntersect(a, b [][]float64, properOnly bool) bool {
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if segmentsIntersect(a[i], a[i+1], b[j], b[j+1], properOnly) {
				return true
			}
		}
	}
	return false
}

// segmentsIntersect uses the standard orientation test. When properOnly is
// set, collinear touches and shared endpoints are not counted.
func segmentsIntersect(p1, p2, q1, q2 []float64, properOnly bool) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	if properOnly {
		return false
	}
	if d1 == 0 && onSegment(p1, q1, q2) {
		return true
	}
	if d2 == 0 && onSegment(p2, q1, q2) {
		return true
	}
	if d3 == 0 && onSegment(q1, p1, p2) {
		return true
	}
	if d4 == 0 && onSegment(q2, p1, p2) {
		return true
	}
	return false
}

func cross(a, b, c []float64) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(p, a, b []float64) bool {
	if cross(a, b, p) != 0 {
		return false
	}
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}
