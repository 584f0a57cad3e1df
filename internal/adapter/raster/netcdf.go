package raster

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"

	"github.com/monsoonlab/imd-grid-etl/internal/domain"
)

const timeUnits = "days since 1900-01-01"

var timeEpoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// WriteNetCDF writes the series as a COARDS-style time/lat/lon dataset,
// staged through a temp file like the GeoTIFF writer.
func WriteNetCDF(path string, s *domain.GriddedSeries) error {
	return writeAtomic(path, func(f *os.File) error {
		return encodeNetCDF(f, s)
	})
}

func encodeNetCDF(f *os.File, s *domain.GriddedSeries) error {
	if err := s.Validate(); err != nil {
		return err
	}
	nt, nlat, nlon := len(s.Times), len(s.Lats), len(s.Lons)

	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{nt, nlat, nlon})
	h.AddAttribute("", "Conventions", "COARDS")
	h.AddAttribute("", "title", "IMD gridded archive extract")
	h.AddAttribute("", "crs", domain.CRS)
	h.AddAttribute("", "history", time.Now().UTC().Format(time.RFC3339)+" imd-grid-etl export")

	h.AddVariable("time", []string{"time"}, []int32{0})
	h.AddAttribute("time", "units", timeUnits)
	h.AddAttribute("time", "calendar", "standard")

	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")

	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")

	h.AddVariable(s.Variable.Name, []string{"time", "lat", "lon"}, []float32{0})
	h.AddAttribute(s.Variable.Name, "units", s.Variable.Unit)
	h.AddAttribute(s.Variable.Name, "_FillValue", []float32{float32(math.NaN())})
	h.Define()

	nc, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("create netcdf: %w", err)
	}

	times := make([]int32, nt)
	for i, t := range s.Times {
		times[i] = int32(t.Sub(timeEpoch).Hours() / 24)
	}
	if err := writeVar(nc, "time", times); err != nil {
		return err
	}
	if err := writeVar(nc, "lat", s.Lats); err != nil {
		return err
	}
	if err := writeVar(nc, "lon", s.Lons); err != nil {
		return err
	}
	data := make([]float32, len(s.Data.Elements))
	for i, v := range s.Data.Elements {
		data[i] = float32(v)
	}
	if err := writeVar(nc, s.Variable.Name, data); err != nil {
		return err
	}
	return cdf.UpdateNumRecs(f)
}

func writeVar(nc *cdf.File, name string, data interface{}) error {
	end := nc.Header.Lengths(name)
	start := make([]int, len(end))
	if _, err := nc.Writer(name, start, end).Write(data); err != nil {
		return fmt.Errorf("write netcdf variable %s: %w", name, err)
	}
	return nil
}

// Dataset is a decoded NetCDF export.
type Dataset struct {
	Variable   string
	Unit       string
	Times      []time.Time
	Lats, Lons []float64
	Values     []float64 // [time][lat][lon]
}

func (d *Dataset) At(t, i, j int) float64 {
	return d.Values[(t*len(d.Lats)+i)*len(d.Lons)+j]
}

// ReadNetCDF reads a dataset written by WriteNetCDF: one data variable on
// time/lat/lon dims with coordinate variables alongside.
func ReadNetCDF(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open netcdf: %w", err)
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("parse netcdf: %w", err)
	}

	d := &Dataset{}
	for _, v := range nc.Header.Variables() {
		dims := nc.Header.Dimensions(v)
		if len(dims) == 3 && dims[0] == "time" && dims[1] == "lat" && dims[2] == "lon" {
			d.Variable = v
			break
		}
	}
	if d.Variable == "" {
		return nil, errors.New("read netcdf: no variable with time/lat/lon dimensions")
	}
	if u, ok := nc.Header.GetAttribute(d.Variable, "units").(string); ok {
		d.Unit = u
	}

	if d.Lats, err = readFloats(nc, "lat"); err != nil {
		return nil, err
	}
	if d.Lons, err = readFloats(nc, "lon"); err != nil {
		return nil, err
	}
	if d.Times, err = readTimes(nc); err != nil {
		return nil, err
	}
	if d.Values, err = readFloats(nc, d.Variable); err != nil {
		return nil, err
	}
	if want := len(d.Times) * len(d.Lats) * len(d.Lons); len(d.Values) != want {
		return nil, fmt.Errorf("read netcdf: %d values for %d time steps on a %dx%d grid",
			len(d.Values), len(d.Times), len(d.Lats), len(d.Lons))
	}

	if fv := nc.Header.GetAttribute(d.Variable, "_FillValue"); fv != nil {
		var fill float64
		switch v := fv.(type) {
		case []float32:
			fill = float64(v[0])
		case []float64:
			fill = v[0]
		default:
			return nil, fmt.Errorf("read netcdf: invalid _FillValue type %T", fv)
		}
		if !math.IsNaN(fill) {
			for i, v := range d.Values {
				if v == fill {
					d.Values[i] = math.NaN()
				}
			}
		}
	}
	return d, nil
}

func readFloats(nc *cdf.File, name string) ([]float64, error) {
	r := nc.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("read netcdf variable %s: %w", name, err)
	}
	switch v := buf.(type) {
	case []float64:
		return v, nil
	case []float32:
		out := make([]float64, len(v))
		for i, e := range v {
			out[i] = float64(e)
		}
		return out, nil
	}
	return nil, fmt.Errorf("read netcdf variable %s: unexpected type %T", name, buf)
}

func readTimes(nc *cdf.File) ([]time.Time, error) {
	r := nc.Reader("time", nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("read netcdf time axis: %w", err)
	}
	var days []int
	switch v := buf.(type) {
	case []int32:
		days = make([]int, len(v))
		for i, e := range v {
			days[i] = int(e)
		}
	case []float64:
		days = make([]int, len(v))
		for i, e := range v {
			days[i] = int(e)
		}
	default:
		return nil, fmt.Errorf("read netcdf time axis: unexpected type %T", buf)
	}

	epoch := timeEpoch
	if u, ok := nc.Header.GetAttribute("time", "units").(string); ok {
		rest, found := strings.CutPrefix(u, "days since ")
		if !found {
			return nil, fmt.Errorf("read netcdf time axis: unsupported units %q", u)
		}
		if len(rest) > 10 {
			rest = rest[:10]
		}
		parsed, err := time.Parse("2006-01-02", rest)
		if err != nil {
			return nil, fmt.Errorf("read netcdf time axis: unsupported units %q", u)
		}
		epoch = parsed
	}

	out := make([]time.Time, len(days))
	for i, d := range days {
		out[i] = epoch.AddDate(0, 0, d)
	}
	return out, nil
}
