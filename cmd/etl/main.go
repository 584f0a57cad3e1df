// Command etl runs one extraction of the IMD yearwise gridded archive:
// it ensures the requested years are cached locally, crops the daily
// series to an area of interest and time window, and exports GeoTIFF and
// NetCDF rasters.
//
// Configuration comes from the environment; flags override single
// settings for one run:
//
//	etl -variable rain -start-year 2014 -end-year 2015 \
//	  -time-start 2014-06-01 -time-end 2015-09-30 \
//	  -aoi aoi/karnataka.geojson -daily -netcdf
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gosuri/uiprogress"
	"github.com/mattn/go-isatty"

	"github.com/monsoonlab/imd-grid-etl/internal/adapter/aoi"
	"github.com/monsoonlab/imd-grid-etl/internal/adapter/cache"
	"github.com/monsoonlab/imd-grid-etl/internal/adapter/imd"
	"github.com/monsoonlab/imd-grid-etl/internal/adapter/raster"
	"github.com/monsoonlab/imd-grid-etl/internal/adapter/s3"
	"github.com/monsoonlab/imd-grid-etl/internal/config"
	"github.com/monsoonlab/imd-grid-etl/internal/domain"
	"github.com/monsoonlab/imd-grid-etl/internal/observability"
	"github.com/monsoonlab/imd-grid-etl/internal/pipeline"
)

var (
	flagVariable  = flag.String("variable", "rain", "archive variable: rain, tmax or tmin")
	flagStartYear = flag.Int("start-year", 0, "first year to extract")
	flagEndYear   = flag.Int("end-year", 0, "last year to extract")
	flagTimeStart = flag.String("time-start", "", "window start (YYYY-MM-DD); defaults to Jan 1 of start-year")
	flagTimeEnd   = flag.String("time-end", "", "window end (YYYY-MM-DD); defaults to Dec 31 of end-year")
	flagAOI       = flag.String("aoi", "", "area of interest file (.geojson, .json or .shp)")
	flagCacheDir  = flag.String("cache-dir", "data/raw/imd", "local archive cache directory")
	flagOutDir    = flag.String("out-dir", "outputs", "raster output directory")
	flagDaily     = flag.Bool("daily", false, "export one GeoTIFF per day")
	flagMonthly   = flag.Bool("monthly", true, "export one GeoTIFF per month")
	flagNetCDF    = flag.Bool("netcdf", false, "export the series as one NetCDF file")
	flagReducer   = flag.String("reducer", "", "monthly reducer: sum, mean, min or max; defaults per variable")
	flagSource    = flag.String("source", config.SourceHTTP, "archive source: http or s3")
	flagBaseURL   = flag.String("base-url", "", "archive portal URL; empty selects the public IMD portal")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	variable, err := domain.LookupVariable(cfg.Variable)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}
	window, err := cfg.Window()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}
	reducer, err := domain.ParseReducer(cfg.MonthlyReducer, variable)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, err := buildSource(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build archive source", "error", err)
		return 1
	}

	store := cache.New(cache.Config{
		Dir:         cfg.CacheDir,
		Retries:     cfg.FetchRetries,
		Backoff:     cfg.FetchBackoff,
		Concurrency: cfg.FetchConcurrency,
	}, source, imd.Codec{}, logger, metrics)
	exporter := raster.NewExporter(cfg.OutDir, logger, metrics)

	if isatty.IsTerminal(os.Stdout.Fd()) {
		bars := newProgressBars()
		bars.ui.Start()
		defer bars.ui.Stop()
		store.SetProgress(bars.stage("fetch years"))
		exporter.SetProgress(bars.stage("write rasters"))
	}

	p := pipeline.New(store, aoi.New(logger), exporter, logger, metrics)
	res, err := p.Run(ctx, pipeline.Params{
		Variable:      variable,
		StartYear:     cfg.StartYear,
		EndYear:       cfg.EndYear,
		Window:        window,
		AOIPath:       cfg.AOIPath,
		Reducer:       reducer,
		ExportDaily:   cfg.ExportDaily,
		ExportMonthly: cfg.ExportMonthly,
		ExportNetCDF:  cfg.ExportNetCDF,
	})

	if cfg.PushgatewayURL != "" {
		if perr := metrics.Push(cfg.PushgatewayURL, "imd-grid-etl"); perr != nil {
			logger.Warn("metrics push failed", "url", cfg.PushgatewayURL, "error", perr)
		}
	}

	if err != nil {
		var empty *domain.EmptyResultError
		if errors.As(err, &empty) {
			logger.Error("selection is empty", "stage", empty.Stage, "detail", empty.Detail)
			return 3
		}
		logger.Error("run failed", "error", err)
		return 1
	}

	logger.Info("outputs written",
		"out_dir", cfg.OutDir,
		"daily", len(res.DailyPaths),
		"monthly", len(res.MonthlyPaths),
		"netcdf", res.NetCDFPath,
	)
	return 0
}

// applyFlags copies every flag the user set on the command line over the
// environment configuration. Unset flags leave the environment values
// alone.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "variable":
			cfg.Variable = *flagVariable
		case "start-year":
			cfg.StartYear = *flagStartYear
		case "end-year":
			cfg.EndYear = *flagEndYear
		case "time-start":
			cfg.TimeStart = *flagTimeStart
		case "time-end":
			cfg.TimeEnd = *flagTimeEnd
		case "aoi":
			cfg.AOIPath = *flagAOI
		case "cache-dir":
			cfg.CacheDir = *flagCacheDir
		case "out-dir":
			cfg.OutDir = *flagOutDir
		case "daily":
			cfg.ExportDaily = *flagDaily
		case "monthly":
			cfg.ExportMonthly = *flagMonthly
		case "netcdf":
			cfg.ExportNetCDF = *flagNetCDF
		case "reducer":
			cfg.MonthlyReducer = *flagReducer
		case "source":
			cfg.Source = *flagSource
		case "base-url":
			cfg.BaseURL = *flagBaseURL
		}
	})
}

// buildSource selects the archive backend for the run.
func buildSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Source, error) {
	if cfg.Source == config.SourceS3 {
		return s3.NewFromConfig(ctx, s3.Config{
			Endpoint:        cfg.S3Endpoint,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, logger)
	}
	return imd.NewClient(cfg.BaseURL, cfg.FetchTimeout, logger), nil
}

// progressBars mirrors pipeline progress callbacks onto terminal bars.
// Bars appear lazily because the totals are only known once a stage
// starts.
type progressBars struct {
	ui   *uiprogress.Progress
	mu   sync.Mutex
	bars map[string]*uiprogress.Bar
}

func newProgressBars() *progressBars {
	return &progressBars{ui: uiprogress.New(), bars: make(map[string]*uiprogress.Bar)}
}

func (p *progressBars) stage(name string) func(done, total int) {
	return func(done, total int) {
		if total <= 0 {
			return
		}
		p.mu.Lock()
		bar, ok := p.bars[name]
		if !ok {
			bar = p.ui.AddBar(total).AppendCompleted()
			bar.PrependFunc(func(*uiprogress.Bar) string { return name })
			p.bars[name] = bar
		}
		p.mu.Unlock()
		_ = bar.Set(done)
	}
}
