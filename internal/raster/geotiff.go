package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DataType selects the on-disk sample encoding of a GeoTIFF artifact. Raw
// coverage slices arrive and are stored as int32, derived index rasters as
// float64.
type DataType int

const (
	Int32 DataType = iota
	Float64
)

// TIFF tag ids used by the codec. Only the baseline subset the coverage
// service emits plus the three GeoTIFF tags and GDAL's nodata tag.
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
)

const (
	typeShort  = 3
	typeLong   = 4
	typeASCII  = 2
	typeDouble = 12
)

// GeoKey ids inside the GeoKeyDirectory.
const (
	keyModelType    = 1024
	keyRasterType   = 1025
	keyProjectedCRS = 3072
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte // raw value bytes, inlined or relocated by the writer
}

// EncodeGeoTIFF serialises the tile as an uncompressed little-endian GeoTIFF
// with one strip per band (planar layout), carrying pixel scale, tiepoint,
// the projected CRS geokey and the nodata sentinel.
func EncodeGeoTIFF(t *Tile, dt DataType) ([]byte, error) {
	if len(t.Bands) == 0 || t.Width <= 0 || t.Height <= 0 {
		return nil, fmt.Errorf("encode geotiff: empty tile")
	}
	le := binary.LittleEndian
	nb := len(t.Bands)

	bytesPerSample := 8
	sampleFmt := uint16(3) // IEEE float
	if dt == Int32 {
		bytesPerSample = 4
		sampleFmt = 2 // signed int
	}
	stripLen := t.Width * t.Height * bytesPerSample

	// Strips immediately follow the 8-byte header, one plane per band.
	strips := make([]byte, 0, nb*stripLen)
	for _, b := range t.Bands {
		for _, v := range b.Data {
			switch dt {
			case Int32:
				strips = le.AppendUint32(strips, uint32(int32(math.Round(v))))
			default:
				strips = le.AppendUint64(strips, math.Float64bits(v))
			}
		}
	}

	offsets := make([]byte, 0, nb*4)
	counts := make([]byte, 0, nb*4)
	for i := 0; i < nb; i++ {
		offsets = le.AppendUint32(offsets, uint32(8+i*stripLen))
		counts = le.AppendUint32(counts, uint32(stripLen))
	}

	bits := make([]byte, 0, nb*2)
	formats := make([]byte, 0, nb*2)
	for i := 0; i < nb; i++ {
		bits = le.AppendUint16(bits, uint16(bytesPerSample*8))
		formats = le.AppendUint16(formats, sampleFmt)
	}

	pixelScale := make([]byte, 0, 24)
	for _, v := range []float64{t.CellSize, t.CellSize, 0} {
		pixelScale = le.AppendUint64(pixelScale, math.Float64bits(v))
	}
	tiepoint := make([]byte, 0, 48)
	for _, v := range []float64{0, 0, 0, t.OriginE, t.OriginN, 0} {
		tiepoint = le.AppendUint64(tiepoint, math.Float64bits(v))
	}

	geokeys := make([]byte, 0, 32)
	for _, v := range []uint16{
		1, 1, 0, 3,
		keyModelType, 0, 1, 1, // projected
		keyRasterType, 0, 1, 1, // pixel-is-area
		keyProjectedCRS, 0, 1, uint16(t.EPSG),
	} {
		geokeys = le.AppendUint16(geokeys, v)
	}

	nodata := append([]byte(strconv.FormatFloat(t.NoData, 'g', -1, 64)), 0)

	entries := []ifdEntry{
		{tagImageWidth, typeLong, 1, le.AppendUint32(nil, uint32(t.Width))},
		{tagImageLength, typeLong, 1, le.AppendUint32(nil, uint32(t.Height))},
		{tagBitsPerSample, typeShort, uint32(nb), bits},
		{tagCompression, typeShort, 1, le.AppendUint16(nil, 1)},
		{tagPhotometric, typeShort, 1, le.AppendUint16(nil, 1)},
		{tagStripOffsets, typeLong, uint32(nb), offsets},
		{tagSamplesPerPixel, typeShort, 1, le.AppendUint16(nil, uint16(nb))},
		{tagRowsPerStrip, typeLong, 1, le.AppendUint32(nil, uint32(t.Height))},
		{tagStripByteCounts, typeLong, uint32(nb), counts},
		{tagPlanarConfig, typeShort, 1, le.AppendUint16(nil, 2)},
		{tagSampleFormat, typeShort, uint32(nb), formats},
		{tagModelPixelScale, typeDouble, 3, pixelScale},
		{tagModelTiepoint, typeDouble, 6, tiepoint},
		{tagGeoKeyDirectory, typeShort, 16, geokeys},
		{tagGDALNoData, typeASCII, uint32(len(nodata)), nodata},
	}

	ifdOffset := 8 + len(strips)
	// Values longer than 4 bytes live after the IFD terminator.
	extraOffset := ifdOffset + 2 + len(entries)*12 + 4

	var ifd bytes.Buffer
	var extra bytes.Buffer
	binary.Write(&ifd, le, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&ifd, le, e.tag)
		binary.Write(&ifd, le, e.typ)
		binary.Write(&ifd, le, e.count)
		if len(e.value) <= 4 {
			v := make([]byte, 4)
			copy(v, e.value)
			ifd.Write(v)
		} else {
			binary.Write(&ifd, le, uint32(extraOffset+extra.Len()))
			extra.Write(e.value)
		}
	}
	binary.Write(&ifd, le, uint32(0)) // no next IFD

	out := make([]byte, 0, 8+len(strips)+ifd.Len()+extra.Len())
	out = append(out, 'I', 'I', 42, 0)
	out = le.AppendUint32(out, uint32(ifdOffset))
	out = append(out, strips...)
	out = append(out, ifd.Bytes()...)
	out = append(out, extra.Bytes()...)
	return out, nil
}

// DecodeGeoTIFF parses an uncompressed striped GeoTIFF into a tile. Bands
// are named b1..bN; callers attach layer schema names afterwards. Both byte
// orders and both planar layouts are handled, with int32, float32 and
// float64 samples.
func DecodeGeoTIFF(data []byte) (*Tile, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("decode geotiff: truncated header")
	}
	var bo binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		bo = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("decode geotiff: bad byte-order mark")
	}
	if bo.Uint16(data[2:4]) != 42 {
		return nil, fmt.Errorf("decode geotiff: bad magic")
	}

	ifdOffset := int(bo.Uint32(data[4:8]))
	if ifdOffset+2 > len(data) {
		return nil, fmt.Errorf("decode geotiff: IFD offset out of range")
	}
	numEntries := int(bo.Uint16(data[ifdOffset : ifdOffset+2]))
	if ifdOffset+2+numEntries*12 > len(data) {
		return nil, fmt.Errorf("decode geotiff: truncated IFD")
	}

	tags := map[uint16][]uint64{}
	ascii := map[uint16]string{}
	for i := 0; i < numEntries; i++ {
		off := ifdOffset + 2 + i*12
		tag := bo.Uint16(data[off : off+2])
		typ := bo.Uint16(data[off+2 : off+4])
		count := int(bo.Uint32(data[off+4 : off+8]))

		size := tiffTypeSize(typ)
		if size == 0 {
			continue
		}
		valOff := off + 8
		if size*count > 4 {
			valOff = int(bo.Uint32(data[off+8 : off+12]))
		}
		if valOff+size*count > len(data) {
			return nil, fmt.Errorf("decode geotiff: tag %d value out of range", tag)
		}

		if typ == typeASCII {
			ascii[tag] = strings.TrimRight(string(data[valOff:valOff+count]), "\x00")
			continue
		}
		vals := make([]uint64, count)
		for j := 0; j < count; j++ {
			switch typ {
			case typeShort:
				vals[j] = uint64(bo.Uint16(data[valOff+j*2:]))
			case typeLong:
				vals[j] = uint64(bo.Uint32(data[valOff+j*4:]))
			case typeDouble:
				vals[j] = bo.Uint64(data[valOff+j*8:])
			}
		}
		tags[tag] = vals
	}

	first := func(tag uint16, def uint64) uint64 {
		if v, ok := tags[tag]; ok && len(v) > 0 {
			return v[0]
		}
		return def
	}

	width := int(first(tagImageWidth, 0))
	height := int(first(tagImageLength, 0))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("decode geotiff: missing dimensions")
	}
	if c := first(tagCompression, 1); c != 1 {
		return nil, fmt.Errorf("decode geotiff: unsupported compression %d", c)
	}
	nb := int(first(tagSamplesPerPixel, 1))
	bits := int(first(tagBitsPerSample, 32))
	sampleFmt := int(first(tagSampleFormat, 1))
	planar := int(first(tagPlanarConfig, 1))
	rowsPerStrip := int(first(tagRowsPerStrip, uint64(height)))
	if rowsPerStrip <= 0 || rowsPerStrip > height {
		rowsPerStrip = height
	}

	offsets := tags[tagStripOffsets]
	if len(offsets) == 0 {
		return nil, fmt.Errorf("decode geotiff: no strip offsets")
	}

	cellSize := 0.0
	if ps, ok := tags[tagModelPixelScale]; ok && len(ps) > 0 {
		cellSize = math.Float64frombits(ps[0])
	}
	originE, originN := 0.0, 0.0
	if tp, ok := tags[tagModelTiepoint]; ok && len(tp) >= 6 {
		originE = math.Float64frombits(tp[3])
		originN = math.Float64frombits(tp[4])
	}
	epsg := 0
	if gk, ok := tags[tagGeoKeyDirectory]; ok {
		for i := 4; i+3 < len(gk); i += 4 {
			if gk[i] == keyProjectedCRS {
				epsg = int(gk[i+3])
			}
		}
	}
	nodata := 0.0
	if s, ok := ascii[tagGDALNoData]; ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			nodata = v
		}
	}

	names := make([]string, nb)
	for i := range names {
		names[i] = fmt.Sprintf("b%d", i+1)
	}
	tile := NewTile(names, width, height, originE, originN, cellSize, epsg, nodata)

	bytesPerSample := bits / 8
	readSample := func(buf []byte) (float64, error) {
		switch {
		case bits == 64 && sampleFmt == 3:
			return math.Float64frombits(bo.Uint64(buf)), nil
		case bits == 32 && sampleFmt == 3:
			return float64(math.Float32frombits(bo.Uint32(buf))), nil
		case bits == 32 && sampleFmt == 2:
			return float64(int32(bo.Uint32(buf))), nil
		case bits == 32 && sampleFmt == 1:
			return float64(bo.Uint32(buf)), nil
		case bits == 16 && sampleFmt == 1:
			return float64(bo.Uint16(buf)), nil
		default:
			return 0, fmt.Errorf("decode geotiff: unsupported sample type %d/%d", bits, sampleFmt)
		}
	}

	stripsPerPlane := (height + rowsPerStrip - 1) / rowsPerStrip
	wantStrips := stripsPerPlane
	if planar == 2 {
		wantStrips = nb * stripsPerPlane
	}
	if len(offsets) > wantStrips {
		return nil, fmt.Errorf("decode geotiff: %d strip offsets, expected at most %d", len(offsets), wantStrips)
	}
	for s, offv := range offsets {
		off := int(offv)
		var band, firstRow int
		if planar == 2 {
			band = s / stripsPerPlane
			firstRow = (s % stripsPerPlane) * rowsPerStrip
		} else {
			band = -1 // interleaved, all bands in strip
			firstRow = s * rowsPerStrip
		}
		rows := rowsPerStrip
		if firstRow+rows > height {
			rows = height - firstRow
		}

		pos := off
		for r := 0; r < rows; r++ {
			for c := 0; c < width; c++ {
				if planar == 2 {
					if pos+bytesPerSample > len(data) {
						return nil, fmt.Errorf("decode geotiff: strip %d out of range", s)
					}
					v, err := readSample(data[pos:])
					if err != nil {
						return nil, err
					}
					tile.Set(band, c, firstRow+r, v)
					pos += bytesPerSample
					continue
				}
				for b := 0; b < nb; b++ {
					if pos+bytesPerSample > len(data) {
						return nil, fmt.Errorf("decode geotiff: strip %d out of range", s)
					}
					v, err := readSample(data[pos:])
					if err != nil {
						return nil, err
					}
					tile.Set(b, c, firstRow+r, v)
					pos += bytesPerSample
				}
			}
		}
	}

	return tile, nil
}

func tiffTypeSize(typ uint16) int {
	switch typ {
	case 1, typeASCII: // byte, ascii
		return 1
	case typeShort:
		return 2
	case typeLong:
		return 4
	case typeDouble:
		return 8
	default:
		return 0
	}
}
