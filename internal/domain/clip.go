package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/sparse"
)

// aoiShape wraps one AOI polygon for spatial indexing.
type aoiShape struct {
	geom.Polygonal
}

// Clip crops the series to the minimal rectangle of grid cells whose
// footprints intersect the AOI bounding box and masks every cell whose
// center is not inside an AOI polygon with NaN. Centers exactly on a
// polygon boundary count as inside. An AOI that covers no cell centers
// yields an [EmptyResultError].
func (s *GriddedSeries) Clip(aoi *AOI) (*GriddedSeries, error) {
	if err := aoi.Validate(s.Variable); err != nil {
		return nil, err
	}
	b := aoi.Bounds()
	half := s.Variable.Step / 2

	latLo, latHi := axisRange(s.Lats, b.Min.Y-half, b.Max.Y+half)
	lonLo, lonHi := axisRange(s.Lons, b.Min.X-half, b.Max.X+half)
	if latLo >= latHi || lonLo >= lonHi {
		return nil, &EmptyResultError{
			Stage:  "clip",
			Detail: fmt.Sprintf("aoi bounds overlap no grid cells of %s", s.Variable.Name),
		}
	}

	tree := rtree.NewTree(25, 50)
	for _, p := range aoi.Polygons {
		tree.Insert(aoiShape{Polygonal: p})
	}

	nlat, nlon := latHi-latLo, lonHi-lonLo
	mask := make([]bool, nlat*nlon)
	inside := 0
	for i := 0; i < nlat; i++ {
		for j := 0; j < nlon; j++ {
			pt := geom.Point{X: s.Lons[lonLo+j], Y: s.Lats[latLo+i]}
			for _, item := range tree.SearchIntersect(pt.Bounds()) {
				if pt.Within(item.(aoiShape).Polygonal) != geom.Outside {
					mask[i*nlon+j] = true
					inside++
					break
				}
			}
		}
	}
	if inside == 0 {
		return nil, &EmptyResultError{
			Stage:  "clip",
			Detail: "no grid cell centers fall inside the aoi polygons",
		}
	}

	out := &GriddedSeries{
		Variable: s.Variable,
		Times:    make([]time.Time, len(s.Times)),
		Lats:     make([]float64, nlat),
		Lons:     make([]float64, nlon),
		Data:     sparse.ZerosDense(len(s.Times), nlat, nlon),
	}
	copy(out.Times, s.Times)
	copy(out.Lats, s.Lats[latLo:latHi])
	copy(out.Lons, s.Lons[lonLo:lonHi])
	for t := range s.Times {
		for i := 0; i < nlat; i++ {
			for j := 0; j < nlon; j++ {
				if mask[i*nlon+j] {
					out.set(s.At(t, latLo+i, lonLo+j), t, i, j)
				} else {
					out.set(math.NaN(), t, i, j)
				}
			}
		}
	}
	return out, nil
}

// axisRange returns the half-open index range of axis values within
// [min, max].
func axisRange(ax []float64, min, max float64) (lo, hi int) {
	lo = len(ax)
	for k, v := range ax {
		if v >= min && v <= max {
			if k < lo {
				lo = k
			}
			hi = k + 1
		}
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}
