package domain

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// AOI is the area of interest: one or more polygons in geographic
// coordinates on the archive datum, carrying the longitude convention
// detected from its coordinates.
type AOI struct {
	Path       string
	Polygons   []geom.Polygonal
	Convention LonConvention
}

// Bounds returns the bounding box enclosing every polygon.
func (a *AOI) Bounds() *geom.Bounds {
	b := &geom.Bounds{
		Min: geom.Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: geom.Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, p := range a.Polygons {
		pb := p.Bounds()
		b.Min.X = math.Min(b.Min.X, pb.Min.X)
		b.Min.Y = math.Min(b.Min.Y, pb.Min.Y)
		b.Max.X = math.Max(b.Max.X, pb.Max.X)
		b.Max.Y = math.Max(b.Max.Y, pb.Max.Y)
	}
	return b
}

// Validate checks the AOI against the grid of v. It rejects an empty or
// self-intersecting geometry, a longitude convention that contradicts the
// archive's, and a bounding box disjoint from the grid extent.
func (a *AOI) Validate(v Variable) error {
	if len(a.Polygons) == 0 {
		return &GeometryError{Path: a.Path, Detail: "no polygons"}
	}
	b := a.Bounds()
	if b.Min.X > b.Max.X || b.Min.Y > b.Max.Y {
		return &GeometryError{Path: a.Path, Detail: "degenerate bounding box"}
	}
	for pi, p := range a.Polygons {
		for ri, ring := range polygonalRings(p) {
			if ringSelfIntersects(ring) {
				return &GeometryError{
					Path:   a.Path,
					Detail: fmt.Sprintf("self-intersecting ring %d in polygon %d", ri, pi),
				}
			}
		}
	}
	if !a.Convention.Compatible(v.Convention) {
		return &CRSError{
			Path: a.Path,
			Detail: fmt.Sprintf("longitude convention %s contradicts archive convention %s",
				a.Convention, v.Convention),
		}
	}
	half := v.Step / 2
	extent := &geom.Bounds{
		Min: geom.Point{X: v.Lon0 - half, Y: v.Lat0 - half},
		Max: geom.Point{X: v.LonMax() + half, Y: v.LatMax() + half},
	}
	if !b.Overlaps(extent) {
		return &GeometryError{
			Path: a.Path,
			Detail: fmt.Sprintf("bounds [%g, %g, %g, %g] lie outside the %s grid extent [%g, %g, %g, %g]",
				b.Min.X, b.Min.Y, b.Max.X, b.Max.Y, v.Name,
				extent.Min.X, extent.Min.Y, extent.Max.X, extent.Max.Y),
		}
	}
	return nil
}

func polygonalRings(p geom.Polygonal) [][]geom.Point {
	switch t := p.(type) {
	case geom.Polygon:
		rings := make([][]geom.Point, 0, len(t))
		for _, r := range t {
			rings = append(rings, r)
		}
		return rings
	case geom.MultiPolygon:
		var rings [][]geom.Point
		for _, poly := range t {
			for _, r := range poly {
				rings = append(rings, r)
			}
		}
		return rings
	}
	return nil
}

// ringSelfIntersects reports whether two non-adjacent edges of the ring
// cross. Edges meeting at a shared vertex do not count. The ring may be
// stored open or closed.
func ringSelfIntersects(ring []geom.Point) bool {
	n := len(ring)
	if n > 1 && ring[0] == ring[n-1] {
		n--
	}
	if n < 4 {
		return false
	}
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if segmentsCross(ring[i], ring[(i+1)%n], ring[j], ring[(j+1)%n]) {
				return true
			}
		}
	}
	return false
}

// segmentsCross reports a proper crossing of open segments p1p2 and q1q2.
func segmentsCross(p1, p2, q1, q2 geom.Point) bool {
	d1 := crossProduct(q1, q2, p1)
	d2 := crossProduct(q1, q2, p2)
	d3 := crossProduct(p1, p2, q1)
	d4 := crossProduct(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func crossProduct(o, a, b geom.Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
