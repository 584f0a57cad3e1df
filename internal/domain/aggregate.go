package domain

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/ctessum/sparse"
)

// Reducer names the statistic applied to the valid days of each
// (month, cell) group during monthly aggregation.
type Reducer string

const (
	ReducerSum  Reducer = "sum"
	ReducerMean Reducer = "mean"
	ReducerMin  Reducer = "min"
	ReducerMax  Reducer = "max"
)

// ParseReducer resolves a reducer name; the empty string selects the
// default reducer of v.
func ParseReducer(name string, v Variable) (Reducer, error) {
	if name == "" {
		return v.Reducer, nil
	}
	switch r := Reducer(name); r {
	case ReducerSum, ReducerMean, ReducerMin, ReducerMax:
		return r, nil
	default:
		return "", fmt.Errorf("unknown reducer %q (want sum, mean, min or max)", name)
	}
}

// MonthlyAggregate is a monthly statistic on the same spatial grid as the
// daily series it was reduced from. Months holds the first calendar day of
// each month present in the source window; Counts holds the number of valid
// daily observations behind each value. A (month, cell) with zero valid
// days is NaN.
type MonthlyAggregate struct {
	Variable Variable
	Reducer  Reducer
	Months   []time.Time
	Lats     []float64
	Lons     []float64
	Values   *sparse.DenseArray
	Counts   *sparse.DenseArray
}

// At returns the aggregate value at month index m, latitude index i,
// longitude index j.
func (a *MonthlyAggregate) At(m, i, j int) float64 {
	return a.Values.Elements[(m*len(a.Lats)+i)*len(a.Lons)+j]
}

// CountAt returns the number of valid days behind the value at (m, i, j).
func (a *MonthlyAggregate) CountAt(m, i, j int) int {
	return int(a.Counts.Elements[(m*len(a.Lats)+i)*len(a.Lons)+j])
}

// SliceAt extracts the spatial field of month index m as a standalone 2-D
// slice that owns its data.
func (a *MonthlyAggregate) SliceAt(m int) *Slice2D {
	nlat, nlon := len(a.Lats), len(a.Lons)
	vals := make([]float64, nlat*nlon)
	copy(vals, a.Values.Elements[m*nlat*nlon:(m+1)*nlat*nlon])
	return &Slice2D{
		Variable: a.Variable,
		Stamp:    a.Months[m],
		Lats:     slices.Clone(a.Lats),
		Lons:     slices.Clone(a.Lons),
		Values:   vals,
	}
}

// AggregateMonthly groups the days of the series by calendar month and
// reduces each (month, cell) group over its valid observations, skipping
// NaN. Cells with no valid day in a month stay NaN rather than collapsing
// to zero; months only partially covered by the series aggregate the days
// present. The series must be normalized first.
func (s *GriddedSeries) AggregateMonthly(r Reducer) (*MonthlyAggregate, error) {
	switch r {
	case ReducerSum, ReducerMean, ReducerMin, ReducerMax:
	default:
		return nil, fmt.Errorf("unknown reducer %q", r)
	}
	if len(s.Times) == 0 {
		return nil, &EmptyResultError{Stage: "aggregate", Detail: "series has no time steps"}
	}

	var months []time.Time
	monthIdx := make([]int, len(s.Times))
	for k, t := range s.Times {
		m := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		if len(months) == 0 || !months[len(months)-1].Equal(m) {
			months = append(months, m)
		}
		monthIdx[k] = len(months) - 1
	}

	nlat, nlon := len(s.Lats), len(s.Lons)
	agg := &MonthlyAggregate{
		Variable: s.Variable,
		Reducer:  r,
		Months:   months,
		Lats:     slices.Clone(s.Lats),
		Lons:     slices.Clone(s.Lons),
		Values:   sparse.ZerosDense(len(months), nlat, nlon),
		Counts:   sparse.ZerosDense(len(months), nlat, nlon),
	}
	cells := nlat * nlon
	for t := range s.Times {
		m := monthIdx[t]
		src := s.Data.Elements[t*cells : (t+1)*cells]
		acc := agg.Values.Elements[m*cells : (m+1)*cells]
		cnt := agg.Counts.Elements[m*cells : (m+1)*cells]
		for c, v := range src {
			if math.IsNaN(v) {
				continue
			}
			if cnt[c] == 0 {
				acc[c] = v
			} else {
				switch r {
				case ReducerSum, ReducerMean:
					acc[c] += v
				case ReducerMin:
					acc[c] = math.Min(acc[c], v)
				case ReducerMax:
					acc[c] = math.Max(acc[c], v)
				}
			}
			cnt[c]++
		}
	}
	for m := 0; m < len(months); m++ {
		acc := agg.Values.Elements[m*cells : (m+1)*cells]
		cnt := agg.Counts.Elements[m*cells : (m+1)*cells]
		for c := range acc {
			switch {
			case cnt[c] == 0:
				acc[c] = math.NaN()
			case r == ReducerMean:
				acc[c] /= cnt[c]
			}
		}
	}
	return agg, nil
}
