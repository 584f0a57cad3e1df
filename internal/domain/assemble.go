package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/ctessum/sparse"
)

// Assemble concatenates per-year grids into one continuous daily series,
// ordered by year ascending. Every grid must carry the same variable on the
// same geometry; duplicate years or a grid whose day count disagrees with
// its calendar year yield a [SchemaMismatchError].
func Assemble(v Variable, grids []*YearGrid) (*GriddedSeries, error) {
	if len(grids) == 0 {
		return nil, &SchemaMismatchError{Variable: v.Name, Detail: "no year grids to assemble"}
	}
	sorted := make([]*YearGrid, len(grids))
	copy(sorted, grids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Year < sorted[j].Year })

	days := 0
	for k, g := range sorted {
		if g.Variable.Name != v.Name {
			return nil, &SchemaMismatchError{
				Variable: v.Name,
				Detail:   fmt.Sprintf("year %d carries variable %q", g.Year, g.Variable.Name),
			}
		}
		if g.Variable.Step != v.Step || g.Variable.NLat != v.NLat || g.Variable.NLon != v.NLon ||
			g.Variable.Lat0 != v.Lat0 || g.Variable.Lon0 != v.Lon0 {
			return nil, &SchemaMismatchError{
				Variable: v.Name,
				Detail:   fmt.Sprintf("year %d grid geometry differs from %s", g.Year, v.Name),
			}
		}
		if k > 0 && sorted[k-1].Year == g.Year {
			return nil, &SchemaMismatchError{
				Variable: v.Name,
				Detail:   fmt.Sprintf("year %d appears more than once", g.Year),
			}
		}
		want := []int{DaysInYear(g.Year), v.NLat, v.NLon}
		got := g.Data.Shape
		if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
			return nil, &SchemaMismatchError{
				Variable: v.Name,
				Detail:   fmt.Sprintf("year %d has shape %v, want %v", g.Year, got, want),
			}
		}
		days += got[0]
	}

	s := &GriddedSeries{
		Variable: v,
		Times:    make([]time.Time, 0, days),
		Lats:     v.Lats(),
		Lons:     v.Lons(),
		Data:     sparse.ZerosDense(days, v.NLat, v.NLon),
	}
	off := 0
	for _, g := range sorted {
		day := time.Date(g.Year, 1, 1, 0, 0, 0, 0, time.UTC)
		for d := 0; d < g.Days(); d++ {
			s.Times = append(s.Times, day)
			day = day.AddDate(0, 0, 1)
		}
		copy(s.Data.Elements[off:], g.Data.Elements)
		off += len(g.Data.Elements)
	}
	if err := s.Validate(); err != nil {
		return nil, &SchemaMismatchError{Variable: v.Name, Detail: err.Error()}
	}
	return s, nil
}
