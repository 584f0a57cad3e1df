package raster

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monsoonlab/imd-grid-etl/internal/domain"
)

// testSeries is three June days on the 3x4 test grid with values
// k * 0.25 (exact in float32) and one NaN hole at flat index 7.
func testSeries(t *testing.T) *domain.GriddedSeries {
	t.Helper()
	s := &domain.GriddedSeries{
		Variable: rainVar(t),
		Times: []time.Time{
			time.Date(2015, time.June, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2015, time.June, 2, 0, 0, 0, 0, time.UTC),
			time.Date(2015, time.June, 3, 0, 0, 0, 0, time.UTC),
		},
		Lats: []float64{12.25, 12.5, 12.75},
		Lons: []float64{77.0, 77.25, 77.5, 77.75},
		Data: sparse.ZerosDense(3, 3, 4),
	}
	for k := range s.Data.Elements {
		s.Data.Elements[k] = float64(k) * 0.25
	}
	s.Data.Elements[7] = math.NaN()
	require.NoError(t, s.Validate())
	return s
}

func TestWriteNetCDF_RoundTrip(t *testing.T) {
	s := testSeries(t)
	path := filepath.Join(t.TempDir(), "imd_rain.nc")
	require.NoError(t, WriteNetCDF(path, s))

	d, err := ReadNetCDF(path)
	require.NoError(t, err)
	assert.Equal(t, "rain", d.Variable)
	assert.Equal(t, "mm", d.Unit)

	require.Len(t, d.Times, 3)
	for i, want := range s.Times {
		assert.True(t, want.Equal(d.Times[i]), "time %d: want %s, got %s", i, want, d.Times[i])
	}
	require.Len(t, d.Lats, 3)
	require.Len(t, d.Lons, 4)
	for i, want := range s.Lats {
		assert.InDelta(t, want, d.Lats[i], 1e-6)
	}
	for j, want := range s.Lons {
		assert.InDelta(t, want, d.Lons[j], 1e-6)
	}

	for ti := 0; ti < 3; ti++ {
		for i := 0; i < 3; i++ {
			for j := 0; j < 4; j++ {
				want := s.At(ti, i, j)
				got := d.At(ti, i, j)
				if math.IsNaN(want) {
					assert.True(t, math.IsNaN(got), "cell (%d,%d,%d)", ti, i, j)
				} else {
					assert.Equal(t, want, got, "cell (%d,%d,%d)", ti, i, j)
				}
			}
		}
	}
}

func TestWriteNetCDF_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "out.nc")
	var we *domain.WriteError
	err := WriteNetCDF(path, testSeries(t))
	require.ErrorAs(t, err, &we)
	assert.NoFileExists(t, path)
}

func TestReadNetCDF_NotNetCDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.nc")
	require.NoError(t, os.WriteFile(path, []byte("this is not netcdf"), 0o644))
	_, err := ReadNetCDF(path)
	require.Error(t, err)
}

func TestReadNetCDF_NoSeriesVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flat.nc")
	f, err := os.Create(path)
	require.NoError(t, err)

	h := cdf.NewHeader([]string{"x"}, []int{3})
	h.AddVariable("x", []string{"x"}, []float64{0})
	h.Define()
	nc, err := cdf.Create(f, h)
	require.NoError(t, err)
	_, err = nc.Writer("x", []int{0}, []int{3}).Write([]float64{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, cdf.UpdateNumRecs(f))
	require.NoError(t, f.Close())

	_, err = ReadNetCDF(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "time/lat/lon")
}
