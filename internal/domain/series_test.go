package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	v := tinyRain()

	t.Run("sentinels become NaN, data survives", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 2, 1.5)
		s.set(v.Sentinel, 0, 1, 2)
		s.set(0.0, 1, 0, 0)

		n := s.Normalize()

		assert.True(t, math.IsNaN(n.At(0, 1, 2)))
		assert.Equal(t, 0.0, n.At(1, 0, 0), "zero is a dry day, not missing data")
		assert.Equal(t, 1.5, n.At(0, 0, 0))
		assert.Equal(t, 1, n.CountNoData())
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 1, 1.5)
		s.set(v.Sentinel, 0, 0, 0)

		_ = s.Normalize()

		assert.Equal(t, v.Sentinel, s.At(0, 0, 0))
	})

	t.Run("idempotent", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 3, 2.25)
		s.set(v.Sentinel, 0, 0, 0)
		s.set(v.Sentinel, 2, 2, 3)

		once := s.Normalize()
		twice := once.Normalize()

		diff := cmp.Diff(once.Data.Elements, twice.Data.Elements, cmpopts.EquateNaNs())
		assert.Empty(t, diff)
	})

	t.Run("temperature sentinel at float32 precision", func(t *testing.T) {
		tv := tinyRain()
		tv.Name = "tmax"
		tv.Sentinel = float64(float32(99.9))
		s := newTestSeries(tv, "2015-06-01", 1, 30.0)
		// Values decoded from the archive pass through float32.
		s.set(float64(float32(99.9)), 0, 0, 1)

		n := s.Normalize()

		assert.True(t, math.IsNaN(n.At(0, 0, 1)))
		assert.Equal(t, 30.0, n.At(0, 0, 0))
	})
}

func TestSlice(t *testing.T) {
	v := tinyRain()
	s := newTestSeries(v, "2015-06-01", 30, 0)
	for d := 0; d < 30; d++ {
		s.set(float64(d+1), d, 0, 0)
	}

	t.Run("interior window", func(t *testing.T) {
		w, err := ParseTimeWindow("2015-06-10", "2015-06-12")
		require.NoError(t, err)

		out, err := s.Slice(w)
		require.NoError(t, err)
		require.Len(t, out.Times, 3)
		assert.Equal(t, time.Date(2015, 6, 10, 0, 0, 0, 0, time.UTC), out.Times[0])
		assert.Equal(t, 10.0, out.At(0, 0, 0))
		assert.Equal(t, 12.0, out.At(2, 0, 0))
	})

	t.Run("window wider than series", func(t *testing.T) {
		w, err := ParseTimeWindow("2015-01-01", "2015-12-31")
		require.NoError(t, err)

		out, err := s.Slice(w)
		require.NoError(t, err)
		assert.Len(t, out.Times, 30)
	})

	t.Run("window before series", func(t *testing.T) {
		w, err := ParseTimeWindow("2014-01-01", "2014-12-31")
		require.NoError(t, err)

		_, err = s.Slice(w)
		var empty *EmptyResultError
		require.ErrorAs(t, err, &empty)
		assert.Equal(t, "slice", empty.Stage)
	})

	t.Run("returned series owns its data", func(t *testing.T) {
		w, err := ParseTimeWindow("2015-06-10", "2015-06-12")
		require.NoError(t, err)

		out, err := s.Slice(w)
		require.NoError(t, err)
		out.set(-1.0, 0, 0, 0)

		assert.Equal(t, 10.0, s.At(9, 0, 0))
	})
}

func TestValidate(t *testing.T) {
	v := tinyRain()

	t.Run("well formed", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 5, 0)
		require.NoError(t, s.Validate())
	})

	t.Run("time not at midnight", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 2, 0)
		s.Times[1] = s.Times[1].Add(6 * time.Hour)
		err := s.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "UTC midnight")
	})

	t.Run("duplicate day", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 2, 0)
		s.Times[1] = s.Times[0]
		err := s.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "strictly increasing")
	})

	t.Run("non uniform axis", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 2, 0)
		s.Lons[2] += 0.1
		err := s.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "longitude axis not uniform")
	})

	t.Run("shape mismatch", func(t *testing.T) {
		s := newTestSeries(v, "2015-06-01", 2, 0)
		s.Lats = s.Lats[:2]
		err := s.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "shape")
	})
}

func TestSliceAt(t *testing.T) {
	v := tinyRain()
	s := newTestSeries(v, "2015-06-01", 2, 0)
	s.set(3.5, 1, 2, 1)

	sl := s.SliceAt(1)

	assert.Equal(t, time.Date(2015, 6, 2, 0, 0, 0, 0, time.UTC), sl.Stamp)
	require.Len(t, sl.Values, v.NLat*v.NLon)
	assert.Equal(t, 3.5, sl.Values[2*v.NLon+1])

	// Mutating the slice must not touch the series.
	sl.Values[0] = 99.0
	assert.Equal(t, 0.0, s.At(1, 0, 0))
}

func TestAllNoData(t *testing.T) {
	v := tinyRain()
	s := newTestSeries(v, "2015-06-01", 1, math.NaN())
	assert.True(t, s.AllNoData())

	s.set(0.0, 0, 0, 0)
	assert.False(t, s.AllNoData())
}

func TestEmptyResultErrorUnwrapsByType(t *testing.T) {
	err := error(&EmptyResultError{Stage: "clip", Detail: "x"})
	wrapped := errors.Join(errors.New("outer"), err)

	var empty *EmptyResultError
	assert.True(t, errors.As(wrapped, &empty))
}
