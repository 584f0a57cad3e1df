// Command inspect prints the shape, axes, date range and value statistics
// of pipeline artifacts: cached yearwise .grd files, exported GeoTIFFs and
// exported NetCDF datasets. It exits non-zero when a file does not decode.
//
// Usage:
//
//	go run ./cmd/inspect data/raw/imd/rain/2015.grd
//	go run ./cmd/inspect outputs/monthly_sum_geotiff/*.tif
//	go run ./cmd/inspect -variable rain -year 2015 some/copy.grd
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/monsoonlab/imd-grid-etl/internal/adapter/imd"
	"github.com/monsoonlab/imd-grid-etl/internal/adapter/raster"
	"github.com/monsoonlab/imd-grid-etl/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	variable := flag.String("variable", "", "archive variable for .grd files; inferred from the path when empty")
	year := flag.Int("year", 0, "calendar year for .grd files; inferred from the filename when 0")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return fmt.Errorf("no files to inspect")
	}
	for _, path := range flag.Args() {
		if err := inspect(path, *variable, *year); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func inspect(path, variable string, year int) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".grd":
		return inspectGrid(path, variable, year)
	case ".tif", ".tiff":
		return inspectGeoTIFF(path)
	case ".nc":
		return inspectNetCDF(path)
	default:
		return fmt.Errorf("unsupported extension %q: want .grd, .tif or .nc", filepath.Ext(path))
	}
}

func inspectGrid(path, variable string, year int) error {
	v, yr, err := gridIdentity(path, variable, year)
	if err != nil {
		return err
	}
	g, err := imd.Codec{}.DecodeYearFile(path, v, yr)
	if err != nil {
		return err
	}
	fmt.Printf("%s %d: %d days on %dx%d grid\n", v.Name, yr, g.Days(), v.NLat, v.NLon)
	fmt.Printf("  extent: lon %.2f..%.2f, lat %.2f..%.2f, step %g\n",
		v.Lon0, v.LonMax(), v.Lat0, v.LatMax(), v.Step)
	valid, missing := partition(g.Data.Elements, v.IsSentinel)
	printStats(valid, missing, v.Unit)
	return nil
}

// gridIdentity resolves which (variable, year) a raw file holds. The
// archive format is headerless, so this comes from flags or from the
// cache layout <dir>/<variable>/<year>.grd.
func gridIdentity(path, variable string, year int) (domain.Variable, int, error) {
	if variable == "" {
		variable = filepath.Base(filepath.Dir(path))
	}
	v, err := domain.LookupVariable(variable)
	if err != nil {
		return domain.Variable{}, 0, fmt.Errorf("cannot infer variable from path, pass -variable: %w", err)
	}
	if year == 0 {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		year, err = strconv.Atoi(base)
		if err != nil {
			return domain.Variable{}, 0, fmt.Errorf("cannot infer year from %q, pass -year", filepath.Base(path))
		}
	}
	return v, year, nil
}

func inspectGeoTIFF(path string) error {
	r, err := raster.ReadGeoTIFF(path)
	if err != nil {
		return err
	}
	fmt.Printf("geotiff: %dx%d cells, EPSG:%d\n", r.Height, r.Width, r.EPSG)
	fmt.Printf("  lon %.2f..%.2f, lat %.2f..%.2f\n",
		r.Lons[0], r.Lons[len(r.Lons)-1], r.Lats[0], r.Lats[len(r.Lats)-1])
	if r.NoData != "" {
		fmt.Printf("  nodata: %s\n", r.NoData)
	}
	valid, missing := partition(r.Values, math.IsNaN)
	printStats(valid, missing, "")
	return nil
}

func inspectNetCDF(path string) error {
	d, err := raster.ReadNetCDF(path)
	if err != nil {
		return err
	}
	if len(d.Times) == 0 {
		return fmt.Errorf("dataset has no time steps")
	}
	fmt.Printf("netcdf %s: %d days on %dx%d grid\n",
		d.Variable, len(d.Times), len(d.Lats), len(d.Lons))
	fmt.Printf("  range: %s..%s\n",
		d.Times[0].Format(domain.DateLayout), d.Times[len(d.Times)-1].Format(domain.DateLayout))
	fmt.Printf("  lon %.2f..%.2f, lat %.2f..%.2f\n",
		d.Lons[0], d.Lons[len(d.Lons)-1], d.Lats[0], d.Lats[len(d.Lats)-1])
	valid, missing := partition(d.Values, math.IsNaN)
	printStats(valid, missing, d.Unit)
	return nil
}

// partition splits cell values into the valid ones and a no-data count.
func partition(els []float64, noData func(float64) bool) ([]float64, int) {
	valid := make([]float64, 0, len(els))
	missing := 0
	for _, x := range els {
		if noData(x) {
			missing++
			continue
		}
		valid = append(valid, x)
	}
	return valid, missing
}

func printStats(valid []float64, missing int, unit string) {
	if len(valid) == 0 {
		fmt.Printf("  values: none valid\n")
	} else {
		suffix := ""
		if unit != "" {
			suffix = " " + unit
		}
		fmt.Printf("  values: min %.2f, max %.2f, mean %.2f, stddev %.2f%s\n",
			floats.Min(valid), floats.Max(valid),
			stat.Mean(valid, nil), stat.StdDev(valid, nil), suffix)
	}
	total := len(valid) + missing
	fmt.Printf("  no-data: %d of %d cells (%.1f%%)\n",
		missing, total, 100*float64(missing)/float64(total))
}
