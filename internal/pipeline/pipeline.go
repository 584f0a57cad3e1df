// Package pipeline orchestrates one extraction run: acquire the yearwise
// archive files, assemble and crop the daily series, and export the
// requested rasters.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/monsoonlab/imd-grid-etl/internal/domain"
	"github.com/monsoonlab/imd-grid-etl/internal/observability"
)

// Archive yields validated year files for an inclusive year range.
type Archive interface {
	EnsureRange(ctx context.Context, v domain.Variable, startYear, endYear int) ([]domain.YearFile, error)
}

// AOILoader reads an area-of-interest file and validates it against the
// grid of v.
type AOILoader interface {
	Load(path string, v domain.Variable) (*domain.AOI, error)
}

// Exporter writes the run's output artifacts.
type Exporter interface {
	ExportDaily(ctx context.Context, s *domain.GriddedSeries) ([]string, error)
	ExportMonthly(ctx context.Context, m *domain.MonthlyAggregate) ([]string, error)
	ExportNetCDF(ctx context.Context, s *domain.GriddedSeries) (string, error)
}

// Params are the resolved settings of one extraction run.
type Params struct {
	Variable      domain.Variable
	StartYear     int
	EndYear       int
	Window        domain.TimeWindow
	AOIPath       string
	Reducer       domain.Reducer // monthly reducer, used when ExportMonthly
	ExportDaily   bool
	ExportMonthly bool
	ExportNetCDF  bool
}

// Result reports what one run produced. When an export fails the Result
// still comes back alongside the error, listing the rasters that made it
// to disk; partial outputs are never rolled back.
type Result struct {
	Series       *domain.GriddedSeries
	Monthly      *domain.MonthlyAggregate
	DailyPaths   []string
	MonthlyPaths []string
	NetCDFPath   string
	NoDataCells  int
	AllNoData    bool
}

// Pipeline wires the extraction stages together.
type Pipeline struct {
	archive  Archive
	aoi      AOILoader
	exporter Exporter
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Pipeline with the given stages and observability.
func New(archive Archive, aoi AOILoader, exporter Exporter, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		archive:  archive,
		aoi:      aoi,
		exporter: exporter,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run executes one extraction. The first unrecoverable error aborts the
// run; a series where every selected cell is no-data is not an error, it
// is exported as-is under a warning.
func (p *Pipeline) Run(ctx context.Context, prm Params) (*Result, error) {
	start := time.Now()
	p.metrics.PipelineRunning.Set(1)
	defer func() {
		p.metrics.PipelineRunning.Set(0)
		p.metrics.RunDuration.Set(time.Since(start).Seconds())
	}()

	p.logger.Info("run started",
		"variable", prm.Variable.Name,
		"years", fmt.Sprintf("%d..%d", prm.StartYear, prm.EndYear),
		"window", prm.Window.String(),
		"aoi", prm.AOIPath,
	)

	files, err := p.archive.EnsureRange(ctx, prm.Variable, prm.StartYear, prm.EndYear)
	if err != nil {
		return nil, fmt.Errorf("ensure %s years %d..%d: %w",
			prm.Variable.Name, prm.StartYear, prm.EndYear, err)
	}
	grids := make([]*domain.YearGrid, len(files))
	for i, f := range files {
		grids[i] = f.Grid
	}
	series, err := domain.Assemble(prm.Variable, grids)
	if err != nil {
		return nil, err
	}

	aoi, err := p.aoi.Load(prm.AOIPath, prm.Variable)
	if err != nil {
		return nil, fmt.Errorf("load aoi %s: %w", prm.AOIPath, err)
	}

	clipped, err := series.Clip(aoi)
	if err != nil {
		return nil, err
	}
	p.metrics.CellsSelected.Set(float64(len(clipped.Lats) * len(clipped.Lons)))

	sliced, err := clipped.Slice(prm.Window)
	if err != nil {
		return nil, err
	}
	p.metrics.DaysProcessed.Set(float64(len(sliced.Times)))

	norm := sliced.Normalize()
	res := &Result{
		Series:      norm,
		NoDataCells: norm.CountNoData(),
		AllNoData:   norm.AllNoData(),
	}
	p.logger.Info("series extracted",
		"days", len(norm.Times),
		"grid", fmt.Sprintf("%dx%d", len(norm.Lats), len(norm.Lons)),
		"nodata_cells", res.NoDataCells,
	)
	if res.AllNoData {
		p.logger.Warn("every selected cell is no-data, exports will carry only fill values",
			"variable", prm.Variable.Name,
			"window", prm.Window.String(),
		)
	}

	if err := p.export(ctx, prm, norm, res); err != nil {
		return res, err
	}

	p.logger.Info("run finished",
		"duration", time.Since(start).Round(time.Millisecond).String(),
		"daily", len(res.DailyPaths),
		"monthly", len(res.MonthlyPaths),
		"netcdf", res.NetCDFPath != "",
	)
	return res, nil
}

func (p *Pipeline) export(ctx context.Context, prm Params, s *domain.GriddedSeries, res *Result) error {
	if prm.ExportMonthly {
		agg, err := s.AggregateMonthly(prm.Reducer)
		if err != nil {
			return err
		}
		res.Monthly = agg
		paths, err := p.exporter.ExportMonthly(ctx, agg)
		res.MonthlyPaths = paths
		if err != nil {
			return fmt.Errorf("export monthly rasters: %w", err)
		}
		p.logger.Info("monthly rasters written", "count", len(paths), "reducer", string(prm.Reducer))
	}
	if prm.ExportDaily {
		paths, err := p.exporter.ExportDaily(ctx, s)
		res.DailyPaths = paths
		if err != nil {
			return fmt.Errorf("export daily rasters: %w", err)
		}
		p.logger.Info("daily rasters written", "count", len(paths))
	}
	if prm.ExportNetCDF {
		path, err := p.exporter.ExportNetCDF(ctx, s)
		if err != nil {
			return fmt.Errorf("export netcdf: %w", err)
		}
		res.NetCDFPath = path
	}
	return nil
}
