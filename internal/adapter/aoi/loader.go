// Package aoi loads the area of interest from vector files.
//
// GeoJSON input is taken as WGS84 lon/lat per RFC 7946; shapefile input
// is reprojected onto the archive datum through its .prj sidecar. Loading
// ends with the same validation the clipper runs, so a bad AOI fails the
// run before any archive fetch: geometry present and well-formed,
// longitude convention compatible with the archive, bounds overlapping
// the grid extent.
package aoi

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"

	"github.com/monsoonlab/imd-grid-etl/internal/domain"
)

// Loader reads AOI vector files.
type Loader struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load reads the AOI at path and validates it against the grid of v. The
// format is chosen by file extension.
func (l *Loader) Load(path string, v domain.Variable) (*domain.AOI, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".geojson", ".json":
		return l.loadGeoJSON(path, v)
	case ".shp":
		return l.loadShapefile(path, v)
	default:
		return nil, fmt.Errorf("unsupported aoi format %q: want .geojson, .json or .shp", ext)
	}
}

func (l *Loader) finalize(path string, polys []geom.Polygonal, v domain.Variable) (*domain.AOI, error) {
	a := &domain.AOI{Path: path, Polygons: polys}
	b := a.Bounds()
	a.Convention = domain.DetectLonConvention(b.Min.X, b.Max.X)
	if err := a.Validate(v); err != nil {
		return nil, err
	}
	l.logger.Debug("aoi loaded",
		"path", path,
		"polygons", len(polys),
		"convention", a.Convention.String(),
		"bounds", fmt.Sprintf("[%g, %g, %g, %g]", b.Min.X, b.Min.Y, b.Max.X, b.Max.Y))
	return a, nil
}
