package imd

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monsoonlab/imd-grid-etl/internal/domain"
)

// smallRain shrinks the rainfall grid so fixtures stay a few kilobytes.
func smallRain() domain.Variable {
	return domain.Variable{
		Name:       "rain",
		Unit:       "mm",
		Step:       0.25,
		Lon0:       77.0,
		Lat0:       12.0,
		NLon:       4,
		NLat:       3,
		Sentinel:   -999.0,
		Convention: domain.Lon360,
		Reducer:    domain.ReducerSum,
	}
}

func makeGrid(v domain.Variable, year int) *domain.YearGrid {
	g := &domain.YearGrid{
		Variable: v,
		Year:     year,
		Data:     sparse.ZerosDense(domain.DaysInYear(year), v.NLat, v.NLon),
	}
	for k := range g.Data.Elements {
		g.Data.Elements[k] = float64(k%100) / 4.0
	}
	return g
}

func TestCodec_RoundTrip(t *testing.T) {
	v := smallRain()
	g := makeGrid(v, 2015)
	g.Data.Elements[0] = v.Sentinel
	g.Data.Elements[42] = 0.0

	var buf bytes.Buffer
	require.NoError(t, EncodeYearGrid(&buf, g))
	assert.Equal(t, domain.DaysInYear(2015)*v.CellsPerDay()*4, buf.Len())

	path := filepath.Join(t.TempDir(), "2015.grd")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	got, err := Codec{}.DecodeYearFile(path, v, 2015)
	require.NoError(t, err)
	assert.Equal(t, 2015, got.Year)
	assert.Equal(t, []int{365, 3, 4}, got.Data.Shape)
	assert.True(t, v.IsSentinel(got.Data.Elements[0]))
	assert.Equal(t, 0.0, got.Data.Elements[42])
	assert.Equal(t, 10.75, got.Data.Elements[43])
}

func TestCodec_LeapYear(t *testing.T) {
	v := smallRain()
	var buf bytes.Buffer
	require.NoError(t, EncodeYearGrid(&buf, makeGrid(v, 2016)))

	got, err := DecodeYear(buf.Bytes(), v, 2016)
	require.NoError(t, err)
	assert.Equal(t, 366, got.Days())
}

func TestCodec_TemperatureSentinelSurvivesFloat32(t *testing.T) {
	v := smallRain()
	v.Name = "tmax"
	v.Unit = "degC"
	v.Sentinel = float64(float32(99.9))

	g := makeGrid(v, 2015)
	g.Data.Elements[7] = 99.9

	var buf bytes.Buffer
	require.NoError(t, EncodeYearGrid(&buf, g))
	got, err := DecodeYear(buf.Bytes(), v, 2015)
	require.NoError(t, err)

	assert.True(t, v.IsSentinel(got.Data.Elements[7]))
}

func TestCodec_TruncatedFile(t *testing.T) {
	v := smallRain()
	var buf bytes.Buffer
	require.NoError(t, EncodeYearGrid(&buf, makeGrid(v, 2015)))

	path := filepath.Join(t.TempDir(), "2015.grd")
	require.NoError(t, os.WriteFile(path, buf.Bytes()[:buf.Len()-4], 0o644))

	_, err := Codec{}.DecodeYearFile(path, v, 2015)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "rain", ve.Variable)
	assert.Equal(t, 2015, ve.Year)
	assert.Contains(t, ve.Reason, "bytes")
}

func TestCodec_WrongYearLength(t *testing.T) {
	// A 365-day buffer presented as a leap year must not decode.
	v := smallRain()
	var buf bytes.Buffer
	require.NoError(t, EncodeYearGrid(&buf, makeGrid(v, 2015)))

	_, err := DecodeYear(buf.Bytes(), v, 2016)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestCodec_MissingFile(t *testing.T) {
	_, err := Codec{}.DecodeYearFile(filepath.Join(t.TempDir(), "absent.grd"), smallRain(), 2015)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist, "missing file must keep its fs error identity")
}
