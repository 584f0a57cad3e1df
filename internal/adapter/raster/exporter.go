// Package raster writes the pipeline's outputs: daily and monthly
// GeoTIFF rasters and an optional NetCDF series export. Every writer
// stages into a temp file in the target directory and renames it into
// place, so a failed or interrupted write never leaves a partial file at
// a final path.
package raster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/monsoonlab/imd-grid-etl/internal/domain"
	"github.com/monsoonlab/imd-grid-etl/internal/observability"
)

// exportWorkers bounds concurrent raster writes.
const exportWorkers = 4

// Exporter writes rasters under one output directory.
type Exporter struct {
	outDir   string
	logger   *slog.Logger
	metrics  *observability.Metrics
	progress func(done, total int)
}

func NewExporter(outDir string, logger *slog.Logger, metrics *observability.Metrics) *Exporter {
	return &Exporter{outDir: outDir, logger: logger, metrics: metrics}
}

// SetProgress registers fn to run after each raster is written.
func (e *Exporter) SetProgress(fn func(done, total int)) {
	e.progress = fn
}

// DailyPath returns where the daily raster for (v, day) is written.
func (e *Exporter) DailyPath(v domain.Variable, day time.Time) string {
	return filepath.Join(e.outDir, "daily_geotiff",
		fmt.Sprintf("imd_%s_%s.tif", v.Name, day.Format(domain.DateLayout)))
}

// MonthlyPath returns where the monthly raster for (v, r, month) is
// written, e.g. monthly_sum_geotiff/imd_rain_monthsum_2015_06.tif.
func (e *Exporter) MonthlyPath(v domain.Variable, r domain.Reducer, month time.Time) string {
	return filepath.Join(e.outDir, fmt.Sprintf("monthly_%s_geotiff", r),
		fmt.Sprintf("imd_%s_month%s_%s.tif", v.Name, r, month.Format("2006_01")))
}

// NetCDFPath returns where the series export for s is written.
func (e *Exporter) NetCDFPath(s *domain.GriddedSeries) string {
	start, end := s.Times[0], s.Times[len(s.Times)-1]
	return filepath.Join(e.outDir, fmt.Sprintf("imd_%s_%s_%s.nc",
		s.Variable.Name, start.Format(domain.DateLayout), end.Format(domain.DateLayout)))
}

// ExportDaily writes one GeoTIFF per day of the series and returns the
// paths written.
func (e *Exporter) ExportDaily(ctx context.Context, s *domain.GriddedSeries) ([]string, error) {
	slices := make([]*domain.Slice2D, len(s.Times))
	paths := make([]string, len(s.Times))
	for t := range s.Times {
		slices[t] = s.SliceAt(t)
		paths[t] = e.DailyPath(s.Variable, s.Times[t])
	}
	return e.writeSlices(ctx, "daily", slices, paths)
}

// ExportMonthly writes one GeoTIFF per aggregated month.
func (e *Exporter) ExportMonthly(ctx context.Context, m *domain.MonthlyAggregate) ([]string, error) {
	slices := make([]*domain.Slice2D, len(m.Months))
	paths := make([]string, len(m.Months))
	for i := range m.Months {
		slices[i] = m.SliceAt(i)
		paths[i] = e.MonthlyPath(m.Variable, m.Reducer, m.Months[i])
	}
	return e.writeSlices(ctx, "monthly", slices, paths)
}

// ExportNetCDF writes the whole series as one NetCDF dataset.
func (e *Exporter) ExportNetCDF(ctx context.Context, s *domain.GriddedSeries) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.Times) == 0 {
		return "", errors.New("export netcdf: empty series")
	}
	if err := os.MkdirAll(e.outDir, 0o755); err != nil {
		return "", &domain.WriteError{Path: e.outDir, Err: err}
	}
	path := e.NetCDFPath(s)
	start := time.Now()
	if err := WriteNetCDF(path, s); err != nil {
		return "", err
	}
	e.metrics.ExportDuration.Observe(time.Since(start).Seconds())
	e.metrics.RastersWritten.WithLabelValues("netcdf").Inc()
	e.logger.Info("netcdf written", "path", path, "days", len(s.Times))
	return path, nil
}

// writeSlices writes each raster with bounded concurrency. One failed
// write does not stop the others; every failure comes back joined, and
// the successfully written paths are returned even alongside an error.
// Cancelling the context stops new writes but lets in-flight ones finish.
func (e *Exporter) writeSlices(ctx context.Context, kind string, slices []*domain.Slice2D, paths []string) ([]string, error) {
	if len(slices) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(paths[0]), 0o755); err != nil {
		return nil, &domain.WriteError{Path: filepath.Dir(paths[0]), Err: err}
	}

	var (
		wg   sync.WaitGroup
		done atomic.Int64
		sem  = make(chan struct{}, exportWorkers)
	)
	errs := make([]error, len(slices))
	written := make([]bool, len(slices))
	for i := range slices {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			start := time.Now()
			if err := WriteGeoTIFF(paths[i], slices[i], math.NaN()); err != nil {
				errs[i] = err
				e.logger.Error("raster write failed", "kind", kind, "path", paths[i], "error", err)
				return
			}
			e.metrics.ExportDuration.Observe(time.Since(start).Seconds())
			e.metrics.RastersWritten.WithLabelValues(kind).Inc()
			written[i] = true
			e.logger.Debug("raster written", "kind", kind, "path", paths[i])
			if e.progress != nil {
				e.progress(int(done.Add(1)), len(slices))
			}
		}()
	}
	wg.Wait()

	out := make([]string, 0, len(paths))
	for i, p := range paths {
		if written[i] {
			out = append(out, p)
		}
	}
	return out, errors.Join(errs...)
}

// writeAtomic stages a write in a temp file next to path and renames it
// into place, reporting any failure as a [domain.WriteError].
func writeAtomic(path string, fn func(*os.File) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return &domain.WriteError{Path: path, Err: err}
	}
	tmp := f.Name()
	if err := fn(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return &domain.WriteError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &domain.WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &domain.WriteError{Path: path, Err: err}
	}
	return nil
}
