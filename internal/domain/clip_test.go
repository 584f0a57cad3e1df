package domain

import (
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rectAOI builds a single-rectangle AOI in grid coordinates.
func rectAOI(minX, minY, maxX, maxY float64) *AOI {
	poly := geom.Polygon{{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
	}}
	return &AOI{
		Path:       "test.geojson",
		Polygons:   []geom.Polygonal{poly},
		Convention: DetectLonConvention(minX, maxX),
	}
}

func TestClip(t *testing.T) {
	// 6×5 grid: lon centers 77.00..78.25, lat centers 12.00..13.00.
	v := tinyRain()
	v.NLon = 6
	v.NLat = 5

	t.Run("masks cells outside the polygon", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 2, 4.0)
		// Contains the centers at lons {77.25, 77.50} × lats {12.25, 12.50,
		// 12.75}. The crop additionally carries the lat 13.00 row because its
		// footprint touches the aoi bounds; those cells must be masked.
		aoi := rectAOI(77.2, 12.2, 77.6, 12.9)

		out, err := s.Clip(aoi)
		require.NoError(t, err)

		assert.InDelta(t, 77.25, out.Lons[0], 1e-9)
		assert.InDelta(t, 12.25, out.Lats[0], 1e-9)
		require.Len(t, out.Lons, 2)
		require.Len(t, out.Lats, 4)

		inside, masked := 0, 0
		for i := range out.Lats {
			for j := range out.Lons {
				if math.IsNaN(out.At(0, i, j)) {
					masked++
				} else {
					assert.Equal(t, 4.0, out.At(0, i, j))
					inside++
				}
			}
		}
		assert.Equal(t, 6, inside)
		assert.Equal(t, 2, masked)
	})

	t.Run("center on the boundary counts as inside", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 1, 4.0)
		// West edge passes exactly through the centers at lon 77.25.
		aoi := rectAOI(77.25, 12.2, 77.6, 12.6)

		out, err := s.Clip(aoi)
		require.NoError(t, err)

		found := false
		for j, lon := range out.Lons {
			if math.Abs(lon-77.25) < 1e-9 {
				for i, lat := range out.Lats {
					if lat > 12.2 && lat < 12.6 {
						assert.False(t, math.IsNaN(out.At(0, i, j)),
							"center on boundary at lat %g must be kept", lat)
						found = true
					}
				}
			}
		}
		assert.True(t, found)
	})

	t.Run("multiple polygons", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 1, 4.0)
		west := geom.Polygon{{
			{X: 76.9, Y: 11.9}, {X: 77.1, Y: 11.9}, {X: 77.1, Y: 12.1}, {X: 76.9, Y: 12.1},
		}}
		east := geom.Polygon{{
			{X: 78.15, Y: 12.9}, {X: 78.35, Y: 12.9}, {X: 78.35, Y: 13.1}, {X: 78.15, Y: 13.1},
		}}
		aoi := &AOI{
			Path:       "test.geojson",
			Polygons:   []geom.Polygonal{west, east},
			Convention: LonAny,
		}

		out, err := s.Clip(aoi)
		require.NoError(t, err)

		// Only the two corners hold data; the crop spans both polygons.
		valid := 0
		for i := range out.Lats {
			for j := range out.Lons {
				if !math.IsNaN(out.At(0, i, j)) {
					valid++
				}
			}
		}
		assert.Equal(t, 2, valid)
		assert.InDelta(t, 77.0, out.Lons[0], 1e-9)
		assert.InDelta(t, 78.25, out.Lons[len(out.Lons)-1], 1e-9)
	})

	t.Run("aoi outside the grid extent", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 1, 4.0)
		aoi := rectAOI(120.0, 40.0, 121.0, 41.0)

		_, err := s.Clip(aoi)
		var ge *GeometryError
		require.ErrorAs(t, err, &ge)
		assert.Contains(t, ge.Detail, "extent")
	})

	t.Run("sliver covering no centers", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 1, 4.0)
		// Overlaps cell footprints but contains no center.
		aoi := rectAOI(77.05, 12.05, 77.10, 12.10)

		_, err := s.Clip(aoi)
		var empty *EmptyResultError
		require.ErrorAs(t, err, &empty)
		assert.Equal(t, "clip", empty.Stage)
	})

	t.Run("signed aoi against a 0-360 archive", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 1, 4.0)
		aoi := rectAOI(-98.4, 12.2, -95.5, 12.6)

		_, err := s.Clip(aoi)
		var crs *CRSError
		require.ErrorAs(t, err, &crs)
		assert.Contains(t, crs.Detail, "convention")
	})

	t.Run("sentinels pass through untouched", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 1, 4.0)
		// (12.25, 77.25) is center index (1, 1).
		s.set(v.Sentinel, 0, 1, 1)
		aoi := rectAOI(77.2, 12.2, 77.6, 12.6)

		out, err := s.Clip(aoi)
		require.NoError(t, err)
		assert.Equal(t, v.Sentinel, out.At(0, 0, 0),
			"clip must not normalize sentinels")
	})
}
