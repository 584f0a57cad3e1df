package aoi

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ctessum/geom"

	"github.com/monsoonlab/imd-grid-etl/internal/domain"
)

// geoJSONDocument covers the three document shapes RFC 7946 allows: a
// FeatureCollection, a single Feature, or a bare geometry.
type geoJSONDocument struct {
	Type        string            `json:"type"`
	Features    []geoJSONFeature  `json:"features"`
	Geometry    *geoJSONGeometry  `json:"geometry"`
	Coordinates json.RawMessage   `json:"coordinates"`
	Geometries  []geoJSONGeometry `json:"geometries"`
	CRS         *geoJSONCRS       `json:"crs"`
}

type geoJSONFeature struct {
	Geometry *geoJSONGeometry `json:"geometry"`
}

type geoJSONGeometry struct {
	Type        string            `json:"type"`
	Coordinates json.RawMessage   `json:"coordinates"`
	Geometries  []geoJSONGeometry `json:"geometries"`
}

// geoJSONCRS is the legacy (pre-RFC 7946) crs member. Its presence is
// tolerated only when it names WGS84.
type geoJSONCRS struct {
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

func (l *Loader) loadGeoJSON(path string, v domain.Variable) (*domain.AOI, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aoi file: %w", err)
	}
	var doc geoJSONDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.CRS != nil && !isWGS84Name(doc.CRS.Properties.Name) {
		return nil, &domain.CRSError{
			Path:   path,
			Detail: fmt.Sprintf("declares CRS %q, GeoJSON must carry WGS84 lon/lat", doc.CRS.Properties.Name),
		}
	}

	polys, err := collectPolygons(doc)
	if err != nil {
		return nil, &domain.GeometryError{Path: path, Detail: err.Error()}
	}
	if len(polys) == 0 {
		return nil, &domain.GeometryError{Path: path, Detail: "no polygonal features"}
	}
	return l.finalize(path, polys, v)
}

func collectPolygons(doc geoJSONDocument) ([]geom.Polygonal, error) {
	var polys []geom.Polygonal
	var err error
	switch doc.Type {
	case "FeatureCollection":
		for _, f := range doc.Features {
			if f.Geometry == nil {
				continue
			}
			if polys, err = appendGeometry(polys, *f.Geometry); err != nil {
				return nil, err
			}
		}
	case "Feature":
		if doc.Geometry != nil {
			polys, err = appendGeometry(polys, *doc.Geometry)
		}
	default:
		polys, err = appendGeometry(polys, geoJSONGeometry{
			Type:        doc.Type,
			Coordinates: doc.Coordinates,
			Geometries:  doc.Geometries,
		})
	}
	return polys, err
}

// appendGeometry accumulates the polygonal content of g. Non-areal
// geometry types are skipped, not rejected: an AOI file may carry point
// annotations next to its polygons.
func appendGeometry(polys []geom.Polygonal, g geoJSONGeometry) ([]geom.Polygonal, error) {
	switch g.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("polygon coordinates: %w", err)
		}
		p, err := polygonFromRings(rings)
		if err != nil {
			return nil, err
		}
		return append(polys, p), nil
	case "MultiPolygon":
		var parts [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &parts); err != nil {
			return nil, fmt.Errorf("multipolygon coordinates: %w", err)
		}
		mp := make(geom.MultiPolygon, 0, len(parts))
		for _, rings := range parts {
			p, err := polygonFromRings(rings)
			if err != nil {
				return nil, err
			}
			mp = append(mp, p)
		}
		return append(polys, mp), nil
	case "GeometryCollection":
		var err error
		for _, sub := range g.Geometries {
			if polys, err = appendGeometry(polys, sub); err != nil {
				return nil, err
			}
		}
		return polys, nil
	}
	return polys, nil
}

// polygonFromRings converts GeoJSON rings, dropping the closing duplicate
// point GeoJSON mandates.
func polygonFromRings(rings [][][]float64) (geom.Polygon, error) {
	if len(rings) == 0 {
		return nil, errors.New("polygon with no rings")
	}
	p := make(geom.Polygon, 0, len(rings))
	for _, ring := range rings {
		pts := make([]geom.Point, 0, len(ring))
		for _, c := range ring {
			if len(c) < 2 {
				return nil, fmt.Errorf("coordinate with %d ordinates", len(c))
			}
			pts = append(pts, geom.Point{X: c[0], Y: c[1]})
		}
		if n := len(pts); n > 1 && pts[0] == pts[n-1] {
			pts = pts[:n-1]
		}
		if len(pts) < 3 {
			return nil, fmt.Errorf("ring with %d distinct points", len(pts))
		}
		p = append(p, pts)
	}
	return p, nil
}

func isWGS84Name(name string) bool {
	up := strings.ToUpper(name)
	return strings.Contains(up, "4326") || strings.Contains(up, "CRS84")
}
