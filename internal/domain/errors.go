package domain

import "fmt"

// FetchError reports that a yearwise file could not be downloaded after the
// configured retry budget was exhausted.
type FetchError struct {
	Variable string
	Year     int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %d failed after %d attempts: %v", e.Variable, e.Year, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError reports a yearwise file whose contents do not match the
// declared grid geometry: wrong byte length, short read, or undecodable data.
type ValidationError struct {
	Variable string
	Year     int
	Path     string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid year file %s (%s %d): %s", e.Path, e.Variable, e.Year, e.Reason)
}

// SchemaMismatchError reports yearwise files within one run that disagree on
// grid geometry or overlap in time and therefore cannot be concatenated.
type SchemaMismatchError struct {
	Variable string
	Detail   string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch for %s: %s", e.Variable, e.Detail)
}

// CRSError reports an AOI whose coordinate reference system or longitude
// convention cannot be reconciled with the archive grid.
type CRSError struct {
	Path   string
	Detail string
}

func (e *CRSError) Error() string {
	return fmt.Sprintf("aoi %s: %s", e.Path, e.Detail)
}

// GeometryError reports an AOI geometry that is unusable: empty, invalid, or
// entirely outside the archive grid extent.
type GeometryError struct {
	Path   string
	Detail string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("aoi geometry %s: %s", e.Path, e.Detail)
}

// EmptyResultError reports a selection that produced no data: a time window
// with zero days or an AOI covering zero grid cells.
type EmptyResultError struct {
	Stage  string // "slice" or "clip"
	Detail string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("empty result at %s: %s", e.Stage, e.Detail)
}

// WriteError reports a failure to persist an output artifact. The partial
// file is removed before the error surfaces.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
