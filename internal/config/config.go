package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/monsoonlab/imd-grid-etl/internal/domain"
)

// Archive source kinds.
const (
	SourceHTTP = "http"
	SourceS3   = "s3"
)

// Config holds all pipeline settings, populated from environment
// variables. cmd/etl applies flag overrides on top before calling
// Validate, so Load only rejects values that cannot be parsed at all.
type Config struct {
	Variable  string // archive variable: rain, tmax or tmin
	StartYear int
	EndYear   int
	TimeStart string // ISO date; empty selects Jan 1 of StartYear
	TimeEnd   string // ISO date; empty selects Dec 31 of EndYear
	AOIPath   string

	CacheDir string
	OutDir   string

	ExportDaily    bool
	ExportMonthly  bool
	ExportNetCDF   bool
	MonthlyReducer string // empty selects the variable's default

	Source  string // http or s3
	BaseURL string // empty selects the public IMD portal

	// Mirror bucket settings, used when Source is s3.
	S3Endpoint        string
	S3Bucket          string
	S3Prefix          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	FetchConcurrency int
	FetchRetries     int
	FetchBackoff     time.Duration
	FetchTimeout     time.Duration

	LogLevel       string
	LogFormat      string
	PushgatewayURL string // empty disables the metrics push
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	cfg := &Config{
		Variable:       envOrDefault("IMD_VARIABLE", "rain"),
		TimeStart:      os.Getenv("IMD_TIME_START"),
		TimeEnd:        os.Getenv("IMD_TIME_END"),
		AOIPath:        os.Getenv("IMD_AOI_PATH"),
		CacheDir:       envOrDefault("IMD_CACHE_DIR", "data/raw/imd"),
		OutDir:         envOrDefault("IMD_OUT_DIR", "outputs"),
		MonthlyReducer: os.Getenv("MONTHLY_REDUCER"),
		Source:         envOrDefault("SOURCE", SourceHTTP),
		BaseURL:        os.Getenv("IMD_BASE_URL"),

		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Prefix:          os.Getenv("S3_PREFIX"),
		S3Region:          os.Getenv("S3_REGION"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),

		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		LogFormat:      envOrDefault("LOG_FORMAT", "json"),
		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
	}

	var err error
	if cfg.StartYear, err = intEnv("IMD_START_YEAR", 0); err != nil {
		return nil, err
	}
	if cfg.EndYear, err = intEnv("IMD_END_YEAR", 0); err != nil {
		return nil, err
	}
	if cfg.ExportDaily, err = boolEnv("EXPORT_DAILY", false); err != nil {
		return nil, err
	}
	if cfg.ExportMonthly, err = boolEnv("EXPORT_MONTHLY", true); err != nil {
		return nil, err
	}
	if cfg.ExportNetCDF, err = boolEnv("EXPORT_NETCDF", false); err != nil {
		return nil, err
	}
	if cfg.FetchConcurrency, err = intEnv("FETCH_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.FetchConcurrency < 1 {
		return nil, errors.New("FETCH_CONCURRENCY must be at least 1")
	}
	if cfg.FetchRetries, err = intEnv("FETCH_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.FetchRetries < 0 {
		return nil, errors.New("FETCH_RETRIES must not be negative")
	}
	if cfg.FetchBackoff, err = durationEnv("FETCH_BACKOFF", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings against each other once all overrides are
// in. It resolves the variable, the year range and the time window, so a
// run fails here rather than after years of archive downloads.
func (c *Config) Validate() error {
	v, err := domain.LookupVariable(c.Variable)
	if err != nil {
		return err
	}
	if c.StartYear == 0 {
		return errors.New("IMD_START_YEAR is required")
	}
	if c.EndYear == 0 {
		return errors.New("IMD_END_YEAR is required")
	}
	if c.EndYear < c.StartYear {
		return fmt.Errorf("year range %d..%d is inverted", c.StartYear, c.EndYear)
	}
	w, err := c.Window()
	if err != nil {
		return err
	}
	span, err := domain.YearWindow(c.StartYear, c.EndYear)
	if err != nil {
		return err
	}
	if w.Start.Before(span.Start) || w.End.After(span.End) {
		return fmt.Errorf("time window %s falls outside years %d..%d", w, c.StartYear, c.EndYear)
	}
	if c.AOIPath == "" {
		return errors.New("IMD_AOI_PATH is required")
	}
	if _, err := domain.ParseReducer(c.MonthlyReducer, v); err != nil {
		return err
	}
	switch c.Source {
	case SourceHTTP:
	case SourceS3:
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required when SOURCE is s3")
		}
	default:
		return fmt.Errorf("unknown SOURCE %q (want http or s3)", c.Source)
	}
	return nil
}

// Window resolves the time window, defaulting each open end to the
// matching bound of the year range.
func (c *Config) Window() (domain.TimeWindow, error) {
	if c.TimeStart == "" && c.TimeEnd == "" {
		return domain.YearWindow(c.StartYear, c.EndYear)
	}
	start := c.TimeStart
	if start == "" {
		start = fmt.Sprintf("%04d-01-01", c.StartYear)
	}
	end := c.TimeEnd
	if end == "" {
		end = fmt.Sprintf("%04d-12-31", c.EndYear)
	}
	return domain.ParseTimeWindow(start, end)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, s)
	}
	return b, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}
