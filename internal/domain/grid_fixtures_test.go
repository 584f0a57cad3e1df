package domain

import (
	"time"

	"github.com/ctessum/sparse"
)

// tinyRain is a shrunken rainfall grid so fixtures stay small. Geometry
// checks only ever compare grids against the variable they were built from,
// so tests are free to use a 4×3 grid in place of the full 135×129 one.
func tinyRain() Variable {
	return Variable{
		Name:       "rain",
		Unit:       "mm",
		Step:       0.25,
		Lon0:       77.0,
		Lat0:       12.0,
		NLon:       4,
		NLat:       3,
		Sentinel:   -999.0,
		Convention: Lon360,
		Reducer:    ReducerSum,
	}
}

// singleCell is a one-cell grid for aggregation arithmetic tests.
func singleCell() Variable {
	v := tinyRain()
	v.NLon = 1
	v.NLat = 1
	return v
}

// newTestSeries builds a series starting at startDate with days daily steps,
// every cell holding fill.
func newTestSeries(v Variable, startDate string, days int, fill float64) *GriddedSeries {
	start, err := time.ParseInLocation(DateLayout, startDate, time.UTC)
	if err != nil {
		panic(err)
	}
	s := &GriddedSeries{
		Variable: v,
		Times:    make([]time.Time, days),
		Lats:     v.Lats(),
		Lons:     v.Lons(),
		Data:     sparse.ZerosDense(days, v.NLat, v.NLon),
	}
	for d := 0; d < days; d++ {
		s.Times[d] = start.AddDate(0, 0, d)
	}
	for k := range s.Data.Elements {
		s.Data.Elements[k] = fill
	}
	return s
}

// newYearGrid builds a full yearwise grid for v with every cell holding fill.
func newYearGrid(v Variable, year int, fill float64) *YearGrid {
	g := &YearGrid{
		Variable: v,
		Year:     year,
		Data:     sparse.ZerosDense(DaysInYear(year), v.NLat, v.NLon),
	}
	for k := range g.Data.Elements {
		g.Data.Elements[k] = fill
	}
	return g
}
