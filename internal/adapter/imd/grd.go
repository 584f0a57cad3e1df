// Package imd reads the IMD Pune yearwise gridded archive: the raw binary
// file format and the download portal that serves it.
package imd

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ctessum/sparse"

	"github.com/monsoonlab/imd-grid-etl/internal/domain"
)

// Codec decodes and validates yearwise files. It satisfies the cache's
// codec interface.
type Codec struct{}

// DecodeYearFile opens and decodes one yearwise file. A missing file
// surfaces as the underlying fs error; a file whose size or contents do not
// match the grid geometry of v yields a [domain.ValidationError].
func (Codec) DecodeYearFile(path string, v domain.Variable, year int) (*domain.YearGrid, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read year file: %w", err)
	}
	g, err := decodeYear(b, v, year)
	if err != nil {
		return nil, &domain.ValidationError{
			Variable: v.Name,
			Year:     year,
			Path:     path,
			Reason:   err.Error(),
		}
	}
	return g, nil
}

// DecodeYear decodes a yearwise file from an in-memory buffer.
func DecodeYear(b []byte, v domain.Variable, year int) (*domain.YearGrid, error) {
	g, err := decodeYear(b, v, year)
	if err != nil {
		return nil, &domain.ValidationError{Variable: v.Name, Year: year, Reason: err.Error()}
	}
	return g, nil
}

func decodeYear(b []byte, v domain.Variable, year int) (*domain.YearGrid, error) {
	days := domain.DaysInYear(year)
	want := days * v.CellsPerDay() * 4
	if len(b) != want {
		return nil, fmt.Errorf("%d bytes, want %d (%d days of %d cells as float32)",
			len(b), want, days, v.CellsPerDay())
	}
	g := &domain.YearGrid{
		Variable: v,
		Year:     year,
		Data:     sparse.ZerosDense(days, v.NLat, v.NLon),
	}
	for k := range g.Data.Elements {
		bits := binary.LittleEndian.Uint32(b[k*4:])
		g.Data.Elements[k] = float64(math.Float32frombits(bits))
	}
	return g, nil
}

// EncodeYearGrid writes g in the archive's wire format: little-endian
// float32, day-major then latitude then longitude. Values are narrowed to
// float32 exactly as IMD publishes them.
func EncodeYearGrid(w io.Writer, g *domain.YearGrid) error {
	buf := make([]byte, len(g.Data.Elements)*4)
	for k, val := range g.Data.Elements {
		binary.LittleEndian.PutUint32(buf[k*4:], math.Float32bits(float32(val)))
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write year grid: %w", err)
	}
	return nil
}
