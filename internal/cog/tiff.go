package cog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

// TIFF tag IDs. Grounded on internal/cog/ifd.go, extended with the
// strip/sample-format/predictor/nodata/metadata tags spec.md §4.3
// requires that the teacher's copy never defined.
const (
	tagImageWidth         = 256
	tagImageLength        = 257
	tagBitsPerSample      = 258
	tagCompression        = 259
	tagPhotometric        = 262
	tagStripOffsets       = 273
	tagSamplesPerPixel    = 277
	tagRowsPerStrip       = 278
	tagStripByteCounts    = 279
	tagPlanarConfig       = 284
	tagPredictorTag       = 317
	tagTileWidth          = 322
	tagTileLength         = 323
	tagTileOffsets        = 324
	tagTileByteCounts     = 325
	tagSampleFormat       = 339
	tagJPEGTables         = 347
	tagModelPixelScaleTag = 33550
	tagModelTiepointTag   = 33922
	tagModelTransformTag  = 34264
	tagGeoKeyDirectoryTag = 34735
	tagGeoDoubleParamsTag = 34736
	tagGeoAsciiParamsTag  = 34737
	tagGDALMetadata       = 42112
	tagGDALNoData         = 42113
)

// TIFF data types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndef     = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
	dtLong8     = 16
	dtSLong8    = 17
	dtIFD8      = 18
)

// Compression kinds (TIFF compression tag values), spec.md §4.3/§4.5's
// closed enumeration {none, LZW, Deflate, Zstd, LERC, PackBits, Webp}.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionLZW
	CompressionDeflate
	CompressionZstd
	CompressionLERC
	CompressionPackBits
	CompressionWebp
	CompressionJPEG // kept for legacy-adapter ingestion; outside spec.md's closed set
	CompressionUnsupported
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZW:
		return "lzw"
	case CompressionDeflate:
		return "deflate"
	case CompressionZstd:
		return "zstd"
	case CompressionLERC:
		return "lerc"
	case CompressionPackBits:
		return "packbits"
	case CompressionWebp:
		return "webp"
	case CompressionJPEG:
		return "jpeg"
	default:
		return "unsupported"
	}
}

func compressionFromTag(v uint16) Compression {
	switch v {
	case 1:
		return CompressionNone
	case 5:
		return CompressionLZW
	case 6, 7:
		return CompressionJPEG
	case 8, 32946:
		return CompressionDeflate
	case 32773:
		return CompressionPackBits
	case 34887, 50000:
		return CompressionLERC
	case 50001:
		return CompressionWebp
	case 34925, 50013:
		return CompressionZstd
	default:
		return CompressionUnsupported
	}
}

// Predictor kinds, spec.md §4.5's {none, horizontal, floating-point}.
type Predictor int

const (
	PredictorNone Predictor = iota
	PredictorHorizontal
	PredictorFloatingPoint
)

func predictorFromTag(v uint16) Predictor {
	switch v {
	case 2:
		return PredictorHorizontal
	case 3:
		return PredictorFloatingPoint
	default:
		return PredictorNone
	}
}

// IFD is a parsed TIFF Image File Directory: one pyramid level's worth of
// tag values. Grounded on internal/cog/ifd.go, extended with the fields
// spec.md §4.3/§4.4 need but the teacher's copy omitted.
type IFD struct {
	Width, Height           uint32
	TileWidth, TileHeight   uint32
	RowsPerStrip            uint32
	BitsPerSample           []uint16
	SampleFormat            []uint16
	SamplesPerPixel         uint16
	Compression             uint16
	Predictor               uint16
	Photometric             uint16
	PlanarConfig            uint16
	TileOffsets             []uint64
	TileByteCounts          []uint64
	StripOffsets            []uint64
	StripByteCounts         []uint64
	JPEGTables              []byte
	ModelTiepoint           []float64
	ModelPixelScale         []float64
	ModelTransform          []float64
	GeoKeys                 []uint16
	GeoDoubleParams         []float64
	GeoAsciiParams          string
	GDALNoData              string
	GDALMetadata            string
}

// TilesAcross returns the number of tiles in the horizontal direction.
func (ifd *IFD) TilesAcross() int {
	if ifd.TileWidth == 0 {
		return 1
	}
	return int((ifd.Width + ifd.TileWidth - 1) / ifd.TileWidth)
}

// TilesDown returns the number of tiles in the vertical direction.
func (ifd *IFD) TilesDown() int {
	if ifd.TileHeight == 0 {
		return 1
	}
	return int((ifd.Height + ifd.TileHeight - 1) / ifd.TileHeight)
}

// IsTiled reports whether this IFD uses a tiled layout (vs. strips).
func (ifd *IFD) IsTiled() bool { return ifd.TileWidth != 0 && ifd.TileHeight != 0 }

// maxIFDEntries bounds the per-IFD entry count so a malformed BigTIFF
// count field cannot drive an unbounded allocation before the byte
// source's own bounds check runs.
const maxIFDEntries = 1 << 16

// tiffEntry is a raw TIFF directory entry.
type tiffEntry struct {
	Tag      uint16
	DataType uint16
	Count    uint64
	Value    []byte
}

// tiffHeader is the result of parsing the 8/16-byte TIFF preamble.
type tiffHeader struct {
	ByteOrder      binary.ByteOrder
	BigTIFF        bool
	FirstIFDOffset uint64
}

// parseTIFFHeader parses the endian marker, magic, and first-IFD offset
// from the leading bytes of a TIFF/BigTIFF file (spec.md §6.1).
func parseTIFFHeader(buf []byte) (tiffHeader, error) {
	if len(buf) < 8 {
		return tiffHeader{}, errUnexpectedEOF("TIFF header needs 8 bytes, got %d", len(buf))
	}
	var bo binary.ByteOrder
	switch string(buf[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return tiffHeader{}, errInvalidHeader("invalid TIFF byte order marker %x", buf[0:2])
	}
	magic := bo.Uint16(buf[2:4])
	bigTIFF := magic == 0x2B
	if magic != 0x2A && magic != 0x2B {
		return tiffHeader{}, errInvalidHeader("invalid TIFF magic %d", magic)
	}
	if bigTIFF {
		if len(buf) < 16 {
			return tiffHeader{}, errUnexpectedEOF("BigTIFF header needs 16 bytes, got %d", len(buf))
		}
		offsetSize := bo.Uint16(buf[4:6])
		if offsetSize != 8 {
			return tiffHeader{}, errInvalidHeader("BigTIFF offset size must be 8, got %d", offsetSize)
		}
		return tiffHeader{ByteOrder: bo, BigTIFF: true, FirstIFDOffset: bo.Uint64(buf[8:16])}, nil
	}
	return tiffHeader{ByteOrder: bo, BigTIFF: false, FirstIFDOffset: uint64(bo.Uint32(buf[4:8]))}, nil
}

// parseAllIFDs walks the linked list of IFDs starting at header's first
// offset, resolving every entry's value against src as needed.
func parseAllIFDs(src ByteSource, header tiffHeader) ([]IFD, error) {
	var ifds []IFD
	offset := header.FirstIFDOffset
	for offset != 0 {
		ifd, next, err := parseOneIFD(src, header.ByteOrder, offset, header.BigTIFF)
		if err != nil {
			// Short reads keep their UnexpectedEof identity; everything
			// else is a structural TIFF failure.
			var ce *Error
			if errors.As(err, &ce) && ce.Kind == KindUnexpectedEOF {
				return nil, err
			}
			return nil, errTiff(err, "parsing IFD at offset %d", offset)
		}
		ifds = append(ifds, ifd)
		offset = next
	}
	if len(ifds) == 0 {
		return nil, errInvalidHeader("no IFDs found")
	}
	return ifds, nil
}

func parseOneIFD(src ByteSource, bo binary.ByteOrder, offset uint64, bigTIFF bool) (IFD, uint64, error) {
	entryHeaderLen := uint64(2)
	if bigTIFF {
		entryHeaderLen = 8
	}
	hdr, err := src.ReadExact(offset, entryHeaderLen)
	if err != nil {
		return IFD{}, 0, err
	}
	var numEntries uint64
	if bigTIFF {
		numEntries = bo.Uint64(hdr)
	} else {
		numEntries = uint64(bo.Uint16(hdr))
	}
	if numEntries > maxIFDEntries {
		return IFD{}, 0, errInvalidHeader("IFD declares %d entries, limit is %d", numEntries, maxIFDEntries)
	}

	entrySize := uint64(12)
	if bigTIFF {
		entrySize = 20
	}
	entriesBuf, err := src.ReadExact(offset+entryHeaderLen, numEntries*entrySize)
	if err != nil {
		return IFD{}, 0, err
	}

	entries := make([]tiffEntry, numEntries)
	for i := uint64(0); i < numEntries; i++ {
		entries[i] = parseTiffEntry(entriesBuf[i*entrySize:(i+1)*entrySize], bo, bigTIFF)
	}

	nextOffsetPos := offset + entryHeaderLen + numEntries*entrySize
	nextLen := uint64(4)
	if bigTIFF {
		nextLen = 8
	}
	nextBuf, err := src.ReadExact(nextOffsetPos, nextLen)
	if err != nil {
		return IFD{}, 0, err
	}
	var nextOffset uint64
	if bigTIFF {
		nextOffset = bo.Uint64(nextBuf)
	} else {
		nextOffset = uint64(bo.Uint32(nextBuf))
	}

	for i := range entries {
		if err := resolveEntry(src, bo, &entries[i], bigTIFF); err != nil {
			var ce *Error
			if errors.As(err, &ce) && ce.Kind == KindUnexpectedEOF {
				return IFD{}, 0, err
			}
			return IFD{}, 0, errTiff(err, "resolving entry tag %d", entries[i].Tag)
		}
	}

	return buildIFD(entries, bo), nextOffset, nil
}

func parseTiffEntry(buf []byte, bo binary.ByteOrder, bigTIFF bool) tiffEntry {
	tag := bo.Uint16(buf[0:2])
	dt := bo.Uint16(buf[2:4])
	var count uint64
	var valueBytes []byte
	if bigTIFF {
		count = bo.Uint64(buf[4:12])
		valueBytes = append([]byte(nil), buf[12:20]...)
	} else {
		count = uint64(bo.Uint32(buf[4:8]))
		valueBytes = append([]byte(nil), buf[8:12]...)
	}
	return tiffEntry{Tag: tag, DataType: dt, Count: count, Value: valueBytes}
}

func dataTypeSize(dt uint16) int {
	switch dt {
	case dtByte, dtASCII, dtSByte, dtUndef:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat:
		return 4
	case dtRational, dtSRational, dtDouble, dtLong8, dtSLong8, dtIFD8:
		return 8
	default:
		return 1
	}
}

func resolveEntry(src ByteSource, bo binary.ByteOrder, e *tiffEntry, bigTIFF bool) error {
	totalSize := uint64(e.Count) * uint64(dataTypeSize(e.DataType))
	inlineSize := uint64(4)
	if bigTIFF {
		inlineSize = 8
	}
	if totalSize <= inlineSize {
		return nil
	}
	var dataOffset uint64
	if bigTIFF {
		dataOffset = bo.Uint64(e.Value)
	} else {
		dataOffset = uint64(bo.Uint32(e.Value))
	}
	data, err := src.ReadExact(dataOffset, totalSize)
	if err != nil {
		return err
	}
	e.Value = data
	return nil
}

func buildIFD(entries []tiffEntry, bo binary.ByteOrder) IFD {
	var ifd IFD
	ifd.SamplesPerPixel = 1
	ifd.PlanarConfig = 1

	for _, e := range entries {
		switch e.Tag {
		case tagImageWidth:
			ifd.Width = getUint32(e, bo)
		case tagImageLength:
			ifd.Height = getUint32(e, bo)
		case tagTileWidth:
			ifd.TileWidth = getUint32(e, bo)
		case tagTileLength:
			ifd.TileHeight = getUint32(e, bo)
		case tagRowsPerStrip:
			ifd.RowsPerStrip = getUint32(e, bo)
		case tagBitsPerSample:
			ifd.BitsPerSample = getUint16Slice(e, bo)
		case tagSampleFormat:
			ifd.SampleFormat = getUint16Slice(e, bo)
		case tagSamplesPerPixel:
			ifd.SamplesPerPixel = getUint16Val(e, bo)
		case tagCompression:
			ifd.Compression = getUint16Val(e, bo)
		case tagPredictorTag:
			ifd.Predictor = getUint16Val(e, bo)
		case tagPhotometric:
			ifd.Photometric = getUint16Val(e, bo)
		case tagPlanarConfig:
			ifd.PlanarConfig = getUint16Val(e, bo)
		case tagTileOffsets:
			ifd.TileOffsets = getUint64Slice(e, bo)
		case tagTileByteCounts:
			ifd.TileByteCounts = getUint64Slice(e, bo)
		case tagStripOffsets:
			ifd.StripOffsets = getUint64Slice(e, bo)
		case tagStripByteCounts:
			ifd.StripByteCounts = getUint64Slice(e, bo)
		case tagJPEGTables:
			ifd.JPEGTables = append([]byte(nil), e.Value...)
		case tagModelTiepointTag:
			ifd.ModelTiepoint = getFloat64Slice(e, bo)
		case tagModelPixelScaleTag:
			ifd.ModelPixelScale = getFloat64Slice(e, bo)
		case tagModelTransformTag:
			ifd.ModelTransform = getFloat64Slice(e, bo)
		case tagGeoKeyDirectoryTag:
			ifd.GeoKeys = getUint16Slice(e, bo)
		case tagGeoDoubleParamsTag:
			ifd.GeoDoubleParams = getFloat64Slice(e, bo)
		case tagGeoAsciiParamsTag:
			ifd.GeoAsciiParams = trimASCIIZ(e.Value)
		case tagGDALNoData:
			ifd.GDALNoData = trimASCIIZ(e.Value)
		case tagGDALMetadata:
			ifd.GDALMetadata = trimASCIIZ(e.Value)
		}
	}
	return ifd
}

func trimASCIIZ(b []byte) string {
	s := string(b)
	return string(bytes.TrimRight([]byte(s), "\x00"))
}

func getUint16Val(e tiffEntry, bo binary.ByteOrder) uint16 {
	switch e.DataType {
	case dtShort:
		return bo.Uint16(e.Value)
	case dtLong:
		return uint16(bo.Uint32(e.Value))
	default:
		if len(e.Value) == 0 {
			return 0
		}
		return uint16(e.Value[0])
	}
}

func getUint32(e tiffEntry, bo binary.ByteOrder) uint32 {
	switch e.DataType {
	case dtShort:
		return uint32(bo.Uint16(e.Value))
	case dtLong:
		return bo.Uint32(e.Value)
	case dtLong8:
		return uint32(bo.Uint64(e.Value))
	default:
		if len(e.Value) == 0 {
			return 0
		}
		return uint32(e.Value[0])
	}
}

func getUint16Slice(e tiffEntry, bo binary.ByteOrder) []uint16 {
	n := int(e.Count)
	result := make([]uint16, n)
	for i := 0; i < n && (i+1)*2 <= len(e.Value); i++ {
		result[i] = bo.Uint16(e.Value[i*2 : i*2+2])
	}
	return result
}

func getUint64Slice(e tiffEntry, bo binary.ByteOrder) []uint64 {
	n := int(e.Count)
	result := make([]uint64, n)
	switch e.DataType {
	case dtLong:
		for i := 0; i < n && (i+1)*4 <= len(e.Value); i++ {
			result[i] = uint64(bo.Uint32(e.Value[i*4 : i*4+4]))
		}
	case dtLong8, dtIFD8:
		for i := 0; i < n && (i+1)*8 <= len(e.Value); i++ {
			result[i] = bo.Uint64(e.Value[i*8 : i*8+8])
		}
	case dtShort:
		for i := 0; i < n && (i+1)*2 <= len(e.Value); i++ {
			result[i] = uint64(bo.Uint16(e.Value[i*2 : i*2+2]))
		}
	}
	return result
}

func getFloat64Slice(e tiffEntry, bo binary.ByteOrder) []float64 {
	n := int(e.Count)
	result := make([]float64, n)
	size := dataTypeSize(e.DataType)
	for i := 0; i < n; i++ {
		off := i * size
		if off+size > len(e.Value) {
			break
		}
		switch e.DataType {
		case dtDouble:
			result[i] = math.Float64frombits(bo.Uint64(e.Value[off : off+8]))
		case dtFloat:
			result[i] = float64(math.Float32frombits(bo.Uint32(e.Value[off : off+4])))
		}
	}
	return result
}
