package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/monsoonlab/imd-grid-etl/internal/domain"
)

// Tag and GeoKey ids for the one profile this codec speaks: classic
// little-endian TIFF, one sample per pixel, 32-bit IEEE floats,
// uncompressed, georeferenced by pixel scale + tiepoint in EPSG:4326.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGDALNoData      = 42113

	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12

	geoKeyModelType      = 1024
	geoKeyRasterType     = 1025
	geoKeyGeographicType = 2048

	modelTypeGeographic = 2
	rasterPixelIsArea   = 1
)

// Raster is a decoded single-band GeoTIFF. Values are row-major with
// latitude ascending, matching the domain grid layout; the file itself
// stores rows north-up.
type Raster struct {
	Width, Height int
	Lats, Lons    []float64 // cell centers, ascending
	Values        []float64
	NoData        string
	EPSG          int
}

// At returns the value at (lat index i, lon index j).
func (r *Raster) At(i, j int) float64 {
	return r.Values[i*r.Width+j]
}

// WriteGeoTIFF writes s as a single-band float32 GeoTIFF, staging in a
// temp file and renaming into place so the final path never holds a
// partial file.
func WriteGeoTIFF(path string, s *domain.Slice2D, nodata float64) error {
	return writeAtomic(path, func(f *os.File) error {
		return EncodeGeoTIFF(f, s, nodata)
	})
}

// ReadGeoTIFF decodes a GeoTIFF written by this package.
func ReadGeoTIFF(path string) (*Raster, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geotiff: %w", err)
	}
	return DecodeGeoTIFF(b)
}

type tiffTag struct {
	id    uint16
	typ   uint16
	count uint32
	value []byte // raw little-endian value bytes, unpadded
}

// EncodeGeoTIFF writes the GeoTIFF encoding of s to w.
func EncodeGeoTIFF(w io.Writer, s *domain.Slice2D, nodata float64) error {
	nlon, nlat := len(s.Lons), len(s.Lats)
	if nlon == 0 || nlat == 0 {
		return errors.New("encode geotiff: empty raster")
	}
	if len(s.Values) != nlon*nlat {
		return fmt.Errorf("encode geotiff: %d values for a %dx%d grid", len(s.Values), nlat, nlon)
	}
	step := gridStep(s)
	if step <= 0 {
		return fmt.Errorf("encode geotiff: non-positive grid step %g", step)
	}

	le := binary.LittleEndian
	shortTag := func(id uint16, v uint16) tiffTag {
		b := make([]byte, 2)
		le.PutUint16(b, v)
		return tiffTag{id: id, typ: typeShort, count: 1, value: b}
	}
	longTag := func(id uint16, v uint32) tiffTag {
		b := make([]byte, 4)
		le.PutUint32(b, v)
		return tiffTag{id: id, typ: typeLong, count: 1, value: b}
	}
	doubleTag := func(id uint16, vs ...float64) tiffTag {
		b := make([]byte, 8*len(vs))
		for i, v := range vs {
			le.PutUint64(b[8*i:], math.Float64bits(v))
		}
		return tiffTag{id: id, typ: typeDouble, count: uint32(len(vs)), value: b}
	}
	shortsTag := func(id uint16, vs ...uint16) tiffTag {
		b := make([]byte, 2*len(vs))
		for i, v := range vs {
			le.PutUint16(b[2*i:], v)
		}
		return tiffTag{id: id, typ: typeShort, count: uint32(len(vs)), value: b}
	}
	asciiTag := func(id uint16, s string) tiffTag {
		b := append([]byte(s), 0)
		return tiffTag{id: id, typ: typeASCII, count: uint32(len(b)), value: b}
	}

	// Upper-left corner of the top-left pixel; rows are stored north-up.
	originX := s.Lons[0] - step/2
	originY := s.Lats[nlat-1] + step/2
	stripLen := uint32(nlon * nlat * 4)

	tags := []tiffTag{
		longTag(tagImageWidth, uint32(nlon)),
		longTag(tagImageLength, uint32(nlat)),
		shortTag(tagBitsPerSample, 32),
		shortTag(tagCompression, 1),
		shortTag(tagPhotometric, 1),
		longTag(tagStripOffsets, 0), // patched once the layout is known
		shortTag(tagSamplesPerPixel, 1),
		longTag(tagRowsPerStrip, uint32(nlat)),
		longTag(tagStripByteCounts, stripLen),
		shortTag(tagPlanarConfig, 1),
		shortTag(tagSampleFormat, 3),
		doubleTag(tagModelPixelScale, step, step, 0),
		doubleTag(tagModelTiepoint, 0, 0, 0, originX, originY, 0),
		shortsTag(tagGeoKeyDirectory,
			1, 1, 0, 3,
			geoKeyModelType, 0, 1, modelTypeGeographic,
			geoKeyRasterType, 0, 1, rasterPixelIsArea,
			geoKeyGeographicType, 0, 1, uint16(domain.EPSGCode)),
		asciiTag(tagGDALNoData, formatNoData(nodata)),
	}

	// Layout: header, IFD, out-of-line tag values, pixel strip.
	ifdEnd := uint32(8 + 2 + 12*len(tags) + 4)
	offset := ifdEnd + ifdEnd%2
	overflow := make([]uint32, len(tags))
	for i, tg := range tags {
		if len(tg.value) > 4 {
			overflow[i] = offset
			offset += uint32(len(tg.value))
			offset += offset % 2
		}
	}
	stripOffset := offset
	le.PutUint32(tags[5].value, stripOffset)

	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, le, uint16(42))
	binary.Write(&buf, le, uint32(8))

	binary.Write(&buf, le, uint16(len(tags)))
	for i, tg := range tags {
		binary.Write(&buf, le, tg.id)
		binary.Write(&buf, le, tg.typ)
		binary.Write(&buf, le, tg.count)
		var field [4]byte
		if len(tg.value) > 4 {
			le.PutUint32(field[:], overflow[i])
		} else {
			copy(field[:], tg.value)
		}
		buf.Write(field[:])
	}
	binary.Write(&buf, le, uint32(0)) // no next IFD

	for i, tg := range tags {
		if overflow[i] == 0 {
			continue
		}
		for uint32(buf.Len()) < overflow[i] {
			buf.WriteByte(0)
		}
		buf.Write(tg.value)
	}
	for uint32(buf.Len()) < stripOffset {
		buf.WriteByte(0)
	}

	strip := make([]byte, stripLen)
	for row := 0; row < nlat; row++ {
		src := nlat - 1 - row
		for col := 0; col < nlon; col++ {
			bits := math.Float32bits(float32(s.Values[src*nlon+col]))
			le.PutUint32(strip[(row*nlon+col)*4:], bits)
		}
	}
	buf.Write(strip)

	_, err := w.Write(buf.Bytes())
	return err
}

func gridStep(s *domain.Slice2D) float64 {
	switch {
	case len(s.Lons) > 1:
		return s.Lons[1] - s.Lons[0]
	case len(s.Lats) > 1:
		return s.Lats[1] - s.Lats[0]
	default:
		return s.Variable.Step
	}
}

func formatNoData(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

type tiffEntry struct {
	typ   uint16
	count uint32
	raw   []byte
}

// DecodeGeoTIFF parses the profile written by EncodeGeoTIFF.
func DecodeGeoTIFF(data []byte) (*Raster, error) {
	le := binary.LittleEndian
	if len(data) < 8 || data[0] != 'I' || data[1] != 'I' {
		return nil, errors.New("decode geotiff: not a little-endian TIFF")
	}
	if le.Uint16(data[2:]) != 42 {
		return nil, errors.New("decode geotiff: not a classic TIFF")
	}

	entries, err := parseIFD(data, le.Uint32(data[4:]))
	if err != nil {
		return nil, err
	}
	need := func(id uint16) (tiffEntry, error) {
		e, ok := entries[id]
		if !ok {
			return tiffEntry{}, fmt.Errorf("decode geotiff: missing tag %d", id)
		}
		return e, nil
	}

	width, err := entryUint(entries, tagImageWidth)
	if err != nil {
		return nil, err
	}
	height, err := entryUint(entries, tagImageLength)
	if err != nil {
		return nil, err
	}
	for id, want := range map[uint16]uint32{
		tagBitsPerSample:   32,
		tagCompression:     1,
		tagSamplesPerPixel: 1,
		tagSampleFormat:    3,
	} {
		got, err := entryUint(entries, id)
		if err != nil {
			return nil, err
		}
		if got != want {
			return nil, fmt.Errorf("decode geotiff: tag %d is %d, this codec only reads single-band uncompressed float32 (want %d)", id, got, want)
		}
	}

	offsetsEntry, err := need(tagStripOffsets)
	if err != nil {
		return nil, err
	}
	countsEntry, err := need(tagStripByteCounts)
	if err != nil {
		return nil, err
	}
	offsets := entryUints(offsetsEntry, le)
	counts := entryUints(countsEntry, le)
	if len(offsets) != len(counts) {
		return nil, fmt.Errorf("decode geotiff: %d strip offsets but %d byte counts", len(offsets), len(counts))
	}

	raw := make([]byte, 0, width*height*4)
	for i, off := range offsets {
		end := off + counts[i]
		if uint64(end) > uint64(len(data)) {
			return nil, errors.New("decode geotiff: strip reaches past end of file")
		}
		raw = append(raw, data[off:end]...)
	}
	if uint32(len(raw)) != width*height*4 {
		return nil, fmt.Errorf("decode geotiff: %d strip bytes for a %dx%d float32 image", len(raw), height, width)
	}

	scaleEntry, err := need(tagModelPixelScale)
	if err != nil {
		return nil, err
	}
	tieEntry, err := need(tagModelTiepoint)
	if err != nil {
		return nil, err
	}
	scale := entryDoubles(scaleEntry, le)
	tie := entryDoubles(tieEntry, le)
	if len(scale) < 2 || len(tie) < 6 {
		return nil, errors.New("decode geotiff: malformed georeferencing tags")
	}
	sx, sy := scale[0], scale[1]
	originX, originY := tie[3], tie[4]

	r := &Raster{
		Width:  int(width),
		Height: int(height),
		Lats:   make([]float64, height),
		Lons:   make([]float64, width),
		Values: make([]float64, width*height),
	}
	for j := 0; j < r.Width; j++ {
		r.Lons[j] = originX + (float64(j)+0.5)*sx
	}
	for i := 0; i < r.Height; i++ {
		r.Lats[i] = originY - (float64(r.Height-i)-0.5)*sy
	}
	for row := 0; row < r.Height; row++ {
		dst := r.Height - 1 - row
		for col := 0; col < r.Width; col++ {
			bits := le.Uint32(raw[(row*r.Width+col)*4:])
			r.Values[dst*r.Width+col] = float64(math.Float32frombits(bits))
		}
	}

	if e, ok := entries[tagGeoKeyDirectory]; ok {
		keys := entryUints(e, le)
		for i := 4; i+3 < len(keys); i += 4 {
			if keys[i] == geoKeyGeographicType && keys[i+1] == 0 {
				r.EPSG = int(keys[i+3])
			}
		}
	}
	if e, ok := entries[tagGDALNoData]; ok {
		r.NoData = strings.TrimRight(string(e.raw), "\x00 ")
	}
	return r, nil
}

func parseIFD(data []byte, off uint32) (map[uint16]tiffEntry, error) {
	le := binary.LittleEndian
	if uint64(off)+2 > uint64(len(data)) {
		return nil, errors.New("decode geotiff: IFD offset past end of file")
	}
	n := int(le.Uint16(data[off:]))
	if uint64(off)+2+uint64(n)*12+4 > uint64(len(data)) {
		return nil, errors.New("decode geotiff: truncated IFD")
	}
	sizes := map[uint16]uint32{1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8}

	entries := make(map[uint16]tiffEntry, n)
	for i := 0; i < n; i++ {
		e := data[off+2+uint32(i)*12:]
		id := le.Uint16(e)
		typ := le.Uint16(e[2:])
		count := le.Uint32(e[4:])
		size, ok := sizes[typ]
		if !ok {
			continue
		}
		total := uint64(size) * uint64(count)
		var raw []byte
		if total <= 4 {
			raw = e[8 : 8+total]
		} else {
			valOff := le.Uint32(e[8:])
			if uint64(valOff)+total > uint64(len(data)) {
				return nil, fmt.Errorf("decode geotiff: tag %d value past end of file", id)
			}
			raw = data[valOff : uint64(valOff)+total]
		}
		entries[id] = tiffEntry{typ: typ, count: count, raw: raw}
	}
	return entries, nil
}

func entryUint(entries map[uint16]tiffEntry, id uint16) (uint32, error) {
	e, ok := entries[id]
	if !ok {
		return 0, fmt.Errorf("decode geotiff: missing tag %d", id)
	}
	vs := entryUints(e, binary.LittleEndian)
	if len(vs) == 0 {
		return 0, fmt.Errorf("decode geotiff: empty tag %d", id)
	}
	return vs[0], nil
}

func entryUints(e tiffEntry, le binary.ByteOrder) []uint32 {
	vs := make([]uint32, 0, e.count)
	switch e.typ {
	case typeShort:
		for i := 0; i+2 <= len(e.raw); i += 2 {
			vs = append(vs, uint32(le.Uint16(e.raw[i:])))
		}
	case typeLong:
		for i := 0; i+4 <= len(e.raw); i += 4 {
			vs = append(vs, le.Uint32(e.raw[i:]))
		}
	}
	return vs
}

func entryDoubles(e tiffEntry, le binary.ByteOrder) []float64 {
	if e.typ != typeDouble {
		return nil
	}
	vs := make([]float64, 0, e.count)
	for i := 0; i+8 <= len(e.raw); i += 8 {
		vs = append(vs, math.Float64frombits(le.Uint64(e.raw[i:])))
	}
	return vs
}
