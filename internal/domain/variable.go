package domain

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
)

// CRS is the coordinate reference system of every IMD grid.
const CRS = "EPSG:4326"

// EPSGCode is the numeric identifier behind [CRS].
const EPSGCode = 4326

// LonConvention describes how longitudes in a dataset are expressed.
type LonConvention int

const (
	// LonAny means every longitude fits both conventions (0°–180°), so the
	// dataset is compatible with either.
	LonAny LonConvention = iota
	// LonSigned means longitudes span -180°…180° and at least one is negative.
	LonSigned
	// Lon360 means longitudes span 0°…360° and at least one exceeds 180°.
	Lon360
)

func (c LonConvention) String() string {
	switch c {
	case LonSigned:
		return "signed (-180..180)"
	case Lon360:
		return "0..360"
	default:
		return "either (0..180)"
	}
}

// Compatible reports whether coordinates in convention c can be compared
// directly with coordinates in convention o without translation.
func (c LonConvention) Compatible(o LonConvention) bool {
	return c == LonAny || o == LonAny || c == o
}

// DetectLonConvention classifies a longitude range.
func DetectLonConvention(minLon, maxLon float64) LonConvention {
	switch {
	case minLon < 0:
		return LonSigned
	case maxLon > 180:
		return Lon360
	default:
		return LonAny
	}
}

// Variable is one product of the IMD yearwise archive together with the
// fixed grid geometry its files are published on. The archive carries no
// metadata, so everything a reader needs lives here.
type Variable struct {
	Name       string        // archive identifier: rain, tmax, tmin
	Unit       string        // physical unit of the cell values
	Step       float64       // cell size in degrees, identical for both axes
	Lon0       float64       // westernmost cell center, degrees east
	Lat0       float64       // southernmost cell center, degrees north
	NLon       int           // number of columns
	NLat       int           // number of rows
	Sentinel   float64       // archive no-data marker, as stored (float32 precision)
	Convention LonConvention // longitude convention the archive declares
	Reducer    Reducer       // default monthly reducer for this quantity
}

// Variables supported by the archive. Grid geometry follows the IMD Pune
// yearwise file documentation; the temperature sentinel is stored through
// float32 so equality checks against file contents are exact.
var variables = map[string]Variable{
	"rain": {
		Name:       "rain",
		Unit:       "mm",
		Step:       0.25,
		Lon0:       66.5,
		Lat0:       6.5,
		NLon:       135,
		NLat:       129,
		Sentinel:   -999.0,
		Convention: Lon360,
		Reducer:    ReducerSum,
	},
	"tmax": {
		Name:       "tmax",
		Unit:       "degC",
		Step:       1.0,
		Lon0:       67.5,
		Lat0:       7.5,
		NLon:       31,
		NLat:       31,
		Sentinel:   float64(float32(99.9)),
		Convention: Lon360,
		Reducer:    ReducerMean,
	},
	"tmin": {
		Name:       "tmin",
		Unit:       "degC",
		Step:       1.0,
		Lon0:       67.5,
		Lat0:       7.5,
		NLon:       31,
		NLat:       31,
		Sentinel:   float64(float32(99.9)),
		Convention: Lon360,
		Reducer:    ReducerMean,
	},
}

// LookupVariable resolves an archive variable by name.
func LookupVariable(name string) (Variable, error) {
	v, ok := variables[name]
	if !ok {
		return Variable{}, fmt.Errorf("unknown variable %q (want rain, tmax or tmin)", name)
	}
	return v, nil
}

// VariableNames lists the supported archive variables in a stable order.
func VariableNames() []string {
	return []string{"rain", "tmax", "tmin"}
}

// Lons returns the ascending longitude axis of the grid (cell centers).
func (v Variable) Lons() []float64 {
	return floats.Span(make([]float64, v.NLon), v.Lon0, v.LonMax())
}

// Lats returns the ascending latitude axis of the grid (cell centers).
func (v Variable) Lats() []float64 {
	return floats.Span(make([]float64, v.NLat), v.Lat0, v.LatMax())
}

// LonMax returns the easternmost cell center.
func (v Variable) LonMax() float64 { return v.Lon0 + float64(v.NLon-1)*v.Step }

// LatMax returns the northernmost cell center.
func (v Variable) LatMax() float64 { return v.Lat0 + float64(v.NLat-1)*v.Step }

// CellsPerDay returns the number of grid cells in one daily field.
func (v Variable) CellsPerDay() int { return v.NLat * v.NLon }

// IsSentinel reports whether val is the archive no-data marker. The archive
// stores float32, so the comparison happens at float32 precision.
func (v Variable) IsSentinel(val float64) bool {
	return float32(val) == float32(v.Sentinel)
}

// DaysInYear returns the number of daily fields a yearwise file for year
// must contain.
func DaysInYear(year int) int {
	return time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC).YearDay()
}
