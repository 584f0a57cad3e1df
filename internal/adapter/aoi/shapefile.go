package aoi

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"

	"github.com/monsoonlab/imd-grid-etl/internal/domain"
)

// archiveProj is the spatial reference of the archive grids.
const archiveProj = "+proj=longlat"

func (l *Loader) loadShapefile(path string, v domain.Variable) (*domain.AOI, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer dec.Close()

	srcSR, err := dec.SR()
	if err != nil {
		return nil, &domain.CRSError{
			Path:   path,
			Detail: fmt.Sprintf("no usable spatial reference (.prj sidecar): %v", err),
		}
	}
	dstSR, err := proj.Parse(archiveProj)
	if err != nil {
		return nil, fmt.Errorf("parse archive spatial reference: %w", err)
	}
	trans, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, &domain.CRSError{
			Path:   path,
			Detail: fmt.Sprintf("cannot reproject to %s: %v", domain.CRS, err),
		}
	}

	var polys []geom.Polygonal
	for {
		g, _, more := dec.DecodeRowFields()
		if !more {
			break
		}
		if g == nil {
			continue
		}
		gg, err := g.Transform(trans)
		if err != nil {
			return nil, &domain.CRSError{
				Path:   path,
				Detail: fmt.Sprintf("reproject geometry: %v", err),
			}
		}
		if p, ok := gg.(geom.Polygonal); ok {
			polys = append(polys, p)
		}
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("decode shapefile: %w", err)
	}
	if len(polys) == 0 {
		return nil, &domain.GeometryError{Path: path, Detail: "no polygonal features"}
	}
	return l.finalize(path, polys, v)
}
