// Command gengrid writes deterministic synthetic yearwise archive files
// plus a rectangle AOI, laid out exactly like the download cache, so the
// pipeline can run end to end without portal access.
//
// Usage:
//
//	go run ./cmd/gengrid \
//	  -variable rain -start-year 2014 -end-year 2016 \
//	  -out-dir data/raw/imd -aoi data/aoi.geojson
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/ctessum/sparse"

	"github.com/monsoonlab/imd-grid-etl/internal/adapter/imd"
	"github.com/monsoonlab/imd-grid-etl/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	variable := flag.String("variable", "rain", "archive variable: rain, tmax or tmin")
	outDir := flag.String("out-dir", "data/raw/imd", "cache directory to write year files into")
	aoiOut := flag.String("aoi", "data/aoi.geojson", "path for the rectangle AOI; empty skips it")
	startYear := flag.Int("start-year", 0, "first year to generate")
	endYear := flag.Int("end-year", 0, "last year to generate")
	speckle := flag.Float64("speckle", 0.02, "fraction of cells set to the no-data sentinel")
	seed := flag.Int64("seed", 42, "seed for the sentinel speckle")
	corruptYear := flag.Int("corrupt-year", 0, "write a truncated file for this year instead of a valid one")
	flag.Parse()

	if *startYear == 0 || *endYear == 0 {
		flag.Usage()
		return fmt.Errorf("missing required flags: -start-year, -end-year")
	}
	if *endYear < *startYear {
		return fmt.Errorf("year range %d..%d is inverted", *startYear, *endYear)
	}
	v, err := domain.LookupVariable(*variable)
	if err != nil {
		return err
	}

	dir := filepath.Join(*outDir, v.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	rng := rand.New(rand.NewSource(*seed))
	for year := *startYear; year <= *endYear; year++ {
		path := filepath.Join(dir, fmt.Sprintf("%d.grd", year))
		if err := writeYear(path, v, year, *speckle, rng, year == *corruptYear); err != nil {
			return err
		}
		if year == *corruptYear {
			log.Printf("%s: truncated on purpose", path)
			continue
		}
		log.Printf("%s: %d days", path, domain.DaysInYear(year))
	}

	if *aoiOut != "" {
		if err := writeAOI(*aoiOut, v); err != nil {
			return err
		}
		log.Printf("%s: rectangle aoi", *aoiOut)
	}
	return nil
}

// writeYear encodes one synthetic year file. A corrupt file keeps only
// the first half of the encoded bytes, which the pipeline must reject
// and refetch.
func writeYear(path string, v domain.Variable, year int, speckle float64, rng *rand.Rand, corrupt bool) error {
	days := domain.DaysInYear(year)
	g := &domain.YearGrid{
		Variable: v,
		Year:     year,
		Data:     sparse.ZerosDense(days, v.NLat, v.NLon),
	}
	k := 0
	for day := 0; day < days; day++ {
		for i := 0; i < v.NLat; i++ {
			for j := 0; j < v.NLon; j++ {
				if rng.Float64() < speckle {
					g.Data.Elements[k] = v.Sentinel
				} else {
					g.Data.Elements[k] = syntheticValue(v, year, day, i, j)
				}
				k++
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := imd.EncodeYearGrid(f, g); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if corrupt {
		info, err := f.Stat()
		if err != nil {
			return err
		}
		if err := f.Truncate(info.Size() / 2); err != nil {
			return fmt.Errorf("truncate %s: %w", path, err)
		}
	}
	return f.Close()
}

// syntheticValue builds a smooth field with a monsoon-shaped seasonal
// cycle and a spatial ripple, so daily and monthly rasters look plausible
// at a glance.
func syntheticValue(v domain.Variable, year, day, i, j int) float64 {
	doy := float64(day) / float64(domain.DaysInYear(year))
	seasonal := math.Sin(2 * math.Pi * (doy - 0.4))
	spatial := math.Sin(float64(i)*0.35) * math.Cos(float64(j)*0.21)
	if v.Name == "rain" {
		return max(0, 6*(seasonal+1)+4*spatial)
	}
	return 24 + 8*seasonal + 3*spatial
}

type geoJSONFeatureCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties"`
	Geometry   geoJSONGeometry `json:"geometry"`
}

type geoJSONGeometry struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// writeAOI covers the middle portion of the grid with one rectangle.
func writeAOI(path string, v domain.Variable) error {
	lonSpan := v.LonMax() - v.Lon0
	latSpan := v.LatMax() - v.Lat0
	minX, maxX := v.Lon0+0.3*lonSpan, v.Lon0+0.7*lonSpan
	minY, maxY := v.Lat0+0.3*latSpan, v.Lat0+0.7*latSpan

	fc := geoJSONFeatureCollection{
		Type: "FeatureCollection",
		Features: []geoJSONFeature{{
			Type:       "Feature",
			Properties: map[string]any{"name": "synthetic rectangle"},
			Geometry: geoJSONGeometry{
				Type: "Polygon",
				Coordinates: [][][]float64{{
					{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
				}},
			},
		}},
	}
	b, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
