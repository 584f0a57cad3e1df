package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReducer(t *testing.T) {
	rain, err := LookupVariable("rain")
	require.NoError(t, err)
	tmax, err := LookupVariable("tmax")
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   string
		v       Variable
		want    Reducer
		wantErr bool
	}{
		{"empty defaults to sum for rain", "", rain, ReducerSum, false},
		{"empty defaults to mean for tmax", "", tmax, ReducerMean, false},
		{"explicit mean", "mean", rain, ReducerMean, false},
		{"explicit min", "min", tmax, ReducerMin, false},
		{"explicit max", "max", tmax, ReducerMax, false},
		{"unknown", "median", rain, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseReducer(tt.input, tt.v)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r)
		})
	}
}

func TestAggregateMonthlySum(t *testing.T) {
	v := singleCell()

	t.Run("three valid days sum to seven", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 30, math.NaN())
		s.set(2.0, 4, 0, 0)
		s.set(0.0, 11, 0, 0)
		s.set(5.0, 19, 0, 0)

		agg, err := s.AggregateMonthly(ReducerSum)
		require.NoError(t, err)

		require.Len(t, agg.Months, 1)
		assert.Equal(t, time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC), agg.Months[0])
		assert.Equal(t, 7.0, agg.At(0, 0, 0))
		assert.Equal(t, 3, agg.CountAt(0, 0, 0))
	})

	t.Run("sentinel day is excluded, not summed", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 30, math.NaN())
		s.set(2.0, 4, 0, 0)
		s.set(v.Sentinel, 11, 0, 0)
		s.set(5.0, 19, 0, 0)

		agg, err := s.Normalize().AggregateMonthly(ReducerSum)
		require.NoError(t, err)

		assert.Equal(t, 7.0, agg.At(0, 0, 0))
		assert.Equal(t, 2, agg.CountAt(0, 0, 0))
	})

	t.Run("single valid day", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 30, math.NaN())
		s.set(3.25, 14, 0, 0)

		agg, err := s.AggregateMonthly(ReducerSum)
		require.NoError(t, err)

		assert.Equal(t, 3.25, agg.At(0, 0, 0))
		assert.Equal(t, 1, agg.CountAt(0, 0, 0))
	})

	t.Run("month of no data stays no data", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 30, math.NaN())

		agg, err := s.AggregateMonthly(ReducerSum)
		require.NoError(t, err)

		assert.True(t, math.IsNaN(agg.At(0, 0, 0)), "empty month must not collapse to zero")
		assert.Equal(t, 0, agg.CountAt(0, 0, 0))
	})

	t.Run("all-zero month sums to zero, not no data", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 30, 0.0)

		agg, err := s.AggregateMonthly(ReducerSum)
		require.NoError(t, err)

		assert.Equal(t, 0.0, agg.At(0, 0, 0))
		assert.Equal(t, 30, agg.CountAt(0, 0, 0))
	})
}

func TestAggregateMonthlyGrouping(t *testing.T) {
	v := singleCell()

	t.Run("days group by calendar month", func(t *testing.T) {
		// 2015-06-15 .. 2015-08-10: three partial-or-full months.
		s := newTestSeries(v, "2015-06-15", 16+31+10, 1.0)

		agg, err := s.AggregateMonthly(ReducerSum)
		require.NoError(t, err)

		require.Len(t, agg.Months, 3)
		assert.Equal(t, time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC), agg.Months[0])
		assert.Equal(t, time.Date(2015, 7, 1, 0, 0, 0, 0, time.UTC), agg.Months[1])
		assert.Equal(t, time.Date(2015, 8, 1, 0, 0, 0, 0, time.UTC), agg.Months[2])

		// Partial months aggregate only the days present.
		assert.Equal(t, 16.0, agg.At(0, 0, 0))
		assert.Equal(t, 31.0, agg.At(1, 0, 0))
		assert.Equal(t, 10.0, agg.At(2, 0, 0))
		assert.Equal(t, 16, agg.CountAt(0, 0, 0))
		assert.Equal(t, 10, agg.CountAt(2, 0, 0))
	})

	t.Run("year boundary", func(t *testing.T) {
		s := newTestSeries(v, "2015-12-30", 4, 1.0)

		agg, err := s.AggregateMonthly(ReducerSum)
		require.NoError(t, err)

		require.Len(t, agg.Months, 2)
		assert.Equal(t, time.Date(2015, 12, 1, 0, 0, 0, 0, time.UTC), agg.Months[0])
		assert.Equal(t, time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC), agg.Months[1])
		assert.Equal(t, 2.0, agg.At(0, 0, 0))
		assert.Equal(t, 2.0, agg.At(1, 0, 0))
	})
}

func TestAggregateMonthlyReducers(t *testing.T) {
	v := singleCell()
	v.Name = "tmax"
	v.Unit = "degC"
	v.Sentinel = float64(float32(99.9))
	v.Reducer = ReducerMean

	s := newTestSeries(v, "2015-06-01", 30, math.NaN())
	s.set(30.0, 0, 0, 0)
	s.set(34.0, 1, 0, 0)
	s.set(38.0, 2, 0, 0)

	t.Run("mean over valid days only", func(t *testing.T) {
		agg, err := s.AggregateMonthly(ReducerMean)
		require.NoError(t, err)
		assert.InDelta(t, 34.0, agg.At(0, 0, 0), 1e-12)
		assert.Equal(t, 3, agg.CountAt(0, 0, 0))
	})

	t.Run("min", func(t *testing.T) {
		agg, err := s.AggregateMonthly(ReducerMin)
		require.NoError(t, err)
		assert.Equal(t, 30.0, agg.At(0, 0, 0))
	})

	t.Run("max", func(t *testing.T) {
		agg, err := s.AggregateMonthly(ReducerMax)
		require.NoError(t, err)
		assert.Equal(t, 38.0, agg.At(0, 0, 0))
	})

	t.Run("unknown reducer", func(t *testing.T) {
		_, err := s.AggregateMonthly(Reducer("median"))
		require.Error(t, err)
	})
}

func TestAggregateMonthlyPerCell(t *testing.T) {
	v := tinyRain()
	s := newTestSeries(v, "2015-06-01", 30, math.NaN())
	// Cell (0,0) gets data every day; cell (1,1) never does.
	for d := 0; d < 30; d++ {
		s.set(1.0, d, 0, 0)
	}

	agg, err := s.AggregateMonthly(ReducerSum)
	require.NoError(t, err)

	assert.Equal(t, 30.0, agg.At(0, 0, 0))
	assert.True(t, math.IsNaN(agg.At(0, 1, 1)))
	assert.Equal(t, 0, agg.CountAt(0, 1, 1))
}

func TestAggregateSliceAt(t *testing.T) {
	v := tinyRain()
	s := newTestSeries(v, "2015-06-01", 30, 1.0)

	agg, err := s.AggregateMonthly(ReducerSum)
	require.NoError(t, err)

	sl := agg.SliceAt(0)
	assert.Equal(t, time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC), sl.Stamp)
	require.Len(t, sl.Values, v.NLat*v.NLon)
	assert.Equal(t, 30.0, sl.Values[0])
}
