// Package cache maintains the local mirror of the yearwise archive. Files
// live at <dir>/<variable>/<year>.grd and are only ever replaced whole: a
// download lands in a temp file, is validated, and is renamed into place,
// so readers never observe a partial file.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/monsoonlab/imd-grid-etl/internal/domain"
	"github.com/monsoonlab/imd-grid-etl/internal/observability"
)

// Source downloads one yearwise file. Implementations stream the raw
// archive bytes; the store owns validation and placement.
type Source interface {
	Fetch(ctx context.Context, v domain.Variable, year int) (io.ReadCloser, error)
}

// Codec decodes and validates a yearwise file on disk.
type Codec interface {
	DecodeYearFile(path string, v domain.Variable, year int) (*domain.YearGrid, error)
}

// Config tunes the store. Zero values pick sane defaults.
type Config struct {
	Dir         string
	Retries     int           // fetch attempts after the first failure
	Backoff     time.Duration // first retry delay, doubled per attempt
	MaxBackoff  time.Duration // backoff growth cap
	Concurrency int           // parallel year fetches in EnsureRange
}

func (c Config) withDefaults() Config {
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// Store is the cached view of the archive.
type Store struct {
	cfg      Config
	source   Source
	codec    Codec
	logger   *slog.Logger
	metrics  *observability.Metrics
	progress func(done, total int)
}

// New creates a store rooted at cfg.Dir.
func New(cfg Config, source Source, codec Codec, logger *slog.Logger, metrics *observability.Metrics) *Store {
	return &Store{
		cfg:     cfg.withDefaults(),
		source:  source,
		codec:   codec,
		logger:  logger,
		metrics: metrics,
	}
}

// SetProgress registers fn to run after each year file of an EnsureRange
// call becomes ready.
func (s *Store) SetProgress(fn func(done, total int)) {
	s.progress = fn
}

// Ensure returns the validated year file for (v, year). A cache hit is
// served without touching the source; a miss or a corrupt cached file
// triggers a download. A freshly downloaded file that fails validation is
// discarded and re-fetched once before the error surfaces.
func (s *Store) Ensure(ctx context.Context, v domain.Variable, year int) (domain.YearFile, error) {
	path := s.Path(v, year)

	grid, err := s.codec.DecodeYearFile(path, v, year)
	switch {
	case err == nil:
		s.metrics.CacheHits.Inc()
		s.logger.Debug("cache hit", "variable", v.Name, "year", year, "path", path)
		return domain.YearFile{Variable: v, Year: year, Path: path, Grid: grid}, nil
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Debug("cache miss", "variable", v.Name, "year", year)
	default:
		s.logger.Warn("cached year file unusable, refetching",
			"variable", v.Name, "year", year, "path", path, "error", err)
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return domain.YearFile{}, fmt.Errorf("discard corrupt year file: %w", rmErr)
		}
	}

	grid, err = s.refresh(ctx, v, year, path)
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		s.logger.Warn("downloaded year file failed validation, refetching once",
			"variable", v.Name, "year", year, "reason", ve.Reason)
		grid, err = s.refresh(ctx, v, year, path)
	}
	if err != nil {
		return domain.YearFile{}, err
	}
	return domain.YearFile{Variable: v, Year: year, Path: path, Grid: grid}, nil
}

// EnsureRange materializes every year of the inclusive range, fetching
// missing years concurrently. The first unrecoverable failure cancels the
// remaining fetches. Results come back ordered by year ascending.
func (s *Store) EnsureRange(ctx context.Context, v domain.Variable, startYear, endYear int) ([]domain.YearFile, error) {
	if endYear < startYear {
		return nil, fmt.Errorf("year range %d..%d is inverted", startYear, endYear)
	}
	total := endYear - startYear + 1
	files := make([]domain.YearFile, total)

	var done atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i := 0; i < total; i++ {
		g.Go(func() error {
			yf, err := s.Ensure(ctx, v, startYear+i)
			if err != nil {
				return err
			}
			files[i] = yf
			if s.progress != nil {
				s.progress(int(done.Add(1)), total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// Path returns where the year file for (v, year) lives in the cache.
func (s *Store) Path(v domain.Variable, year int) string {
	return filepath.Join(s.cfg.Dir, v.Name, fmt.Sprintf("%d.grd", year))
}

// refresh downloads, validates and atomically installs one year file,
// returning its decoded contents.
func (s *Store) refresh(ctx context.Context, v domain.Variable, year int, path string) (*domain.YearGrid, error) {
	tmp, err := s.download(ctx, v, year)
	if err != nil {
		return nil, err
	}
	grid, err := s.codec.DecodeYearFile(tmp, v, year)
	if err != nil {
		os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("commit year file: %w", err)
	}
	s.metrics.YearsFetched.Inc()
	s.logger.Info("year file cached", "variable", v.Name, "year", year, "path", path)
	return grid, nil
}

// download streams one yearwise file into a temp file next to its final
// location, retrying transport failures with exponential backoff. The
// retry budget exhausted, it reports a [domain.FetchError].
func (s *Store) download(ctx context.Context, v domain.Variable, year int) (string, error) {
	dir := filepath.Join(s.cfg.Dir, v.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	delay := s.cfg.Backoff
	var lastErr error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			s.metrics.FetchRetries.Inc()
			s.logger.Warn("retrying fetch",
				"variable", v.Name, "year", year, "attempt", attempt, "backoff", delay)
			if !sleepWithContext(ctx, delay) {
				return "", &domain.FetchError{
					Variable: v.Name,
					Year:     year,
					Attempts: attempt,
					Err:      errors.Join(ctx.Err(), lastErr),
				}
			}
			delay = nextBackoff(delay, s.cfg.MaxBackoff)
		}

		start := clock.Now()
		tmp, err := s.tryDownload(ctx, dir, v, year)
		if err == nil {
			s.metrics.FetchDuration.Observe(clock.Since(start).Seconds())
			return tmp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", &domain.FetchError{
				Variable: v.Name,
				Year:     year,
				Attempts: attempt + 1,
				Err:      lastErr,
			}
		}
	}
	return "", &domain.FetchError{
		Variable: v.Name,
		Year:     year,
		Attempts: s.cfg.Retries + 1,
		Err:      lastErr,
	}
}

func (s *Store) tryDownload(ctx context.Context, dir string, v domain.Variable, year int) (string, error) {
	body, err := s.source.Fetch(ctx, v, year)
	if err != nil {
		return "", err
	}
	defer body.Close()

	f, err := os.CreateTemp(dir, fmt.Sprintf("%d.grd.tmp-*", year))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("download %s %d: %w", v.Name, year, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("flush temp file: %w", err)
	}
	return f.Name(), nil
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
