// Package domain models the India Meteorological Department (IMD) gridded
// daily archive and the transformations the pipeline applies to it.
//
// # Data Source
//
// IMD Pune publishes long-period gridded daily observations as one binary
// file per calendar year per variable ("yearwise" files). Each file is a
// headerless sequence of little-endian IEEE 754 float32 values laid out as
//
//	day × latitude × longitude
//
// with 365 or 366 days depending on the year, latitude ascending from the
// southern edge and longitude ascending from the western edge. There is no
// embedded metadata: the grid geometry is fixed per variable and must be
// known by the reader.
//
// # Grid Conventions
//
// Rainfall (variable "rain", millimetres):
//
//	0.25° × 0.25° cells, 135 columns × 129 rows
//	longitude 66.5°E … 100.0°E, latitude 6.5°N … 38.5°N (cell centers)
//	no-data sentinel -999.0
//
// Temperature (variables "tmax" and "tmin", degrees Celsius):
//
//	1.0° × 1.0° cells, 31 columns × 31 rows
//	longitude 67.5°E … 97.5°E, latitude 7.5°N … 37.5°N (cell centers)
//	no-data sentinel 99.9
//
// All grids are geographic coordinates on WGS 84 (EPSG:4326) and declare the
// 0–360 longitude convention. Coordinates name cell centers; a cell spans
// half a step in every direction around its center.
//
// # Sentinels vs. zero
//
// The sentinel means "no observation", which is categorically different from
// a measured zero (a dry day). [GriddedSeries.Normalize] replaces sentinel
// cells with NaN before any arithmetic so that reducers can skip them;
// summing a sentinel as if it were rainfall would corrupt every monthly
// total downstream. Sentinel comparison happens at float32 precision because
// the archive stores float32 and 99.9 is not exactly representable there.
//
// # Calendar rules
//
// Monthly aggregation groups days by calendar month. A (month, cell) value
// is produced only from valid daily observations; a month with zero valid
// days for a cell yields NaN for that cell, never zero. Windows that begin
// or end mid-month aggregate only the days actually present.
package domain
