package domain

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/ctessum/sparse"
)

// axisEpsilon bounds how far cell spacing may drift from the declared step
// before an axis is considered non-uniform.
const axisEpsilon = 1e-9

// YearGrid is the decoded contents of one yearwise archive file: every daily
// field of one variable for one calendar year, on the variable's full grid.
type YearGrid struct {
	Variable Variable
	Year     int
	Data     *sparse.DenseArray // day × lat × lon
}

// Days returns the number of daily fields in the grid.
func (g *YearGrid) Days() int { return g.Data.Shape[0] }

// YearFile is a validated yearwise file in the local cache together with its
// decoded contents.
type YearFile struct {
	Variable Variable
	Year     int
	Path     string
	Grid     *YearGrid
}

// GriddedSeries is a daily time series on a regular geographic grid: the
// assembled, possibly clipped and normalized, view of the archive that all
// pipeline arithmetic operates on. Axes hold cell centers in ascending
// order; Data is indexed time × lat × lon.
type GriddedSeries struct {
	Variable Variable
	Times    []time.Time
	Lats     []float64
	Lons     []float64
	Data     *sparse.DenseArray
}

// At returns the value at time index t, latitude index i, longitude index j.
func (s *GriddedSeries) At(t, i, j int) float64 {
	return s.Data.Elements[(t*len(s.Lats)+i)*len(s.Lons)+j]
}

// set stores val at time index t, latitude index i, longitude index j.
func (s *GriddedSeries) set(val float64, t, i, j int) {
	s.Data.Elements[(t*len(s.Lats)+i)*len(s.Lons)+j] = val
}

// Step returns the grid cell size in degrees.
func (s *GriddedSeries) Step() float64 { return s.Variable.Step }

// Validate checks the structural invariants every series must hold: a
// non-empty strictly increasing daily time axis of UTC midnights, strictly
// ascending uniform coordinate axes, and a data block matching the axes.
func (s *GriddedSeries) Validate() error {
	if len(s.Times) == 0 {
		return fmt.Errorf("series has no time steps")
	}
	if len(s.Lats) == 0 || len(s.Lons) == 0 {
		return fmt.Errorf("series has an empty coordinate axis")
	}
	for k, t := range s.Times {
		if !t.Equal(midnightUTC(t)) {
			return fmt.Errorf("time %s is not a UTC midnight", t)
		}
		if k > 0 && !s.Times[k-1].Before(t) {
			return fmt.Errorf("time axis not strictly increasing at %s", t.Format(DateLayout))
		}
	}
	if err := validateAxis("latitude", s.Lats, s.Variable.Step); err != nil {
		return err
	}
	if err := validateAxis("longitude", s.Lons, s.Variable.Step); err != nil {
		return err
	}
	want := []int{len(s.Times), len(s.Lats), len(s.Lons)}
	if s.Data == nil || !slices.Equal(s.Data.Shape, want) {
		return fmt.Errorf("data shape %v does not match axes %v", shapeOf(s.Data), want)
	}
	return nil
}

func shapeOf(d *sparse.DenseArray) []int {
	if d == nil {
		return nil
	}
	return d.Shape
}

func validateAxis(name string, ax []float64, step float64) error {
	for k := 1; k < len(ax); k++ {
		if math.Abs(ax[k]-ax[k-1]-step) > axisEpsilon {
			return fmt.Errorf("%s axis not uniform at index %d: spacing %g, want %g",
				name, k, ax[k]-ax[k-1], step)
		}
	}
	return nil
}

// Normalize returns a copy of the series with every archive sentinel
// replaced by NaN. It must run before any arithmetic; applying it to an
// already normalized series is a no-op because NaN never compares equal to
// the sentinel.
func (s *GriddedSeries) Normalize() *GriddedSeries {
	out := s.clone()
	for k, v := range out.Data.Elements {
		if s.Variable.IsSentinel(v) {
			out.Data.Elements[k] = math.NaN()
		}
	}
	return out
}

// Slice restricts the series to the days inside w. The selection is
// inclusive on both ends; a window that overlaps no days yields an
// [EmptyResultError].
func (s *GriddedSeries) Slice(w TimeWindow) (*GriddedSeries, error) {
	lo := sort.Search(len(s.Times), func(i int) bool { return !s.Times[i].Before(w.Start) })
	hi := sort.Search(len(s.Times), func(i int) bool { return s.Times[i].After(w.End) })
	if lo >= hi {
		return nil, &EmptyResultError{
			Stage:  "slice",
			Detail: fmt.Sprintf("window %s selects no days from series %s", w, s.timeSpan()),
		}
	}
	nlat, nlon := len(s.Lats), len(s.Lons)
	out := &GriddedSeries{
		Variable: s.Variable,
		Times:    slices.Clone(s.Times[lo:hi]),
		Lats:     slices.Clone(s.Lats),
		Lons:     slices.Clone(s.Lons),
		Data:     sparse.ZerosDense(hi-lo, nlat, nlon),
	}
	copy(out.Data.Elements, s.Data.Elements[lo*nlat*nlon:hi*nlat*nlon])
	return out, nil
}

// CountNoData returns the number of NaN cells across the whole series.
func (s *GriddedSeries) CountNoData() int {
	n := 0
	for _, v := range s.Data.Elements {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// AllNoData reports whether the series holds not a single valid value.
func (s *GriddedSeries) AllNoData() bool {
	for _, v := range s.Data.Elements {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// SliceAt extracts the spatial field at time index t as a standalone 2-D
// slice that owns its data.
func (s *GriddedSeries) SliceAt(t int) *Slice2D {
	nlat, nlon := len(s.Lats), len(s.Lons)
	vals := make([]float64, nlat*nlon)
	copy(vals, s.Data.Elements[t*nlat*nlon:(t+1)*nlat*nlon])
	return &Slice2D{
		Variable: s.Variable,
		Stamp:    s.Times[t],
		Lats:     slices.Clone(s.Lats),
		Lons:     slices.Clone(s.Lons),
		Values:   vals,
	}
}

func (s *GriddedSeries) timeSpan() string {
	if len(s.Times) == 0 {
		return "(empty)"
	}
	return s.Times[0].Format(DateLayout) + ".." + s.Times[len(s.Times)-1].Format(DateLayout)
}

func (s *GriddedSeries) clone() *GriddedSeries {
	d := sparse.ZerosDense(s.Data.Shape...)
	copy(d.Elements, s.Data.Elements)
	return &GriddedSeries{
		Variable: s.Variable,
		Times:    slices.Clone(s.Times),
		Lats:     slices.Clone(s.Lats),
		Lons:     slices.Clone(s.Lons),
		Data:     d,
	}
}

// Slice2D is one georeferenced spatial field: a single day or a single
// month, ready for raster export. Values are lat-major with latitude
// ascending, matching the series layout.
type Slice2D struct {
	Variable Variable
	Stamp    time.Time
	Lats     []float64
	Lons     []float64
	Values   []float64
}
