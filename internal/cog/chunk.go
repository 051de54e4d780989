package cog

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/cogengine/raster/internal/array"
	"github.com/cogengine/raster/internal/cog/lerc"
)

func decodeFloat32(b []byte, bo binary.ByteOrder) float32 {
	return math.Float32frombits(bo.Uint32(b))
}

func decodeFloat64(b []byte, bo binary.ByteOrder) float64 {
	return math.Float64frombits(bo.Uint64(b))
}

// chunkContext carries everything ReadChunk needs beyond the raw location:
// the owning IFD (tile/strip geometry, compression, predictor, sample
// layout), the metadata's declared nodata, and whether this file's block
// leader/trailer framing (§4.2's BLOCK_LEADER/BLOCK_TRAILER) applies.
type chunkContext struct {
	IFD              *IFD
	ByteOrder        binary.ByteOrder
	ElementType      array.NumericType
	Nodata           *float64
	HasBlockFraming  bool
	Band             int // 0-based band to extract when SamplesPerPixel > 1
	Metrics          *Metrics
}

// stripBlockFraming removes the 4-byte little-endian size leader and the
// 4-byte trailer (a copy of the payload's last 4 bytes) that GDAL's COG
// writer wraps around every chunk when BLOCK_LEADER=SIZE_AS_UINT4 and
// BLOCK_TRAILER=LAST_4_BYTES_REPEATED (spec.md §4.6 steps 3-4).
func stripBlockFraming(raw []byte) ([]byte, error) {
	if len(raw) < 8 {
		return nil, errInvalidArgument("chunk too short (%d bytes) to carry block leader+trailer", len(raw))
	}
	leaderLen := binary.LittleEndian.Uint32(raw[0:4])
	payload := raw[4 : len(raw)-4]
	if uint32(len(payload)) != leaderLen {
		return nil, errInvalidArgument("block leader declares %d bytes, payload is %d", leaderLen, len(payload))
	}
	trailer := raw[len(raw)-4:]
	if len(payload) >= 4 {
		last4 := payload[len(payload)-4:]
		if string(last4) != string(trailer) {
			return nil, errInvalidArgument("block trailer does not repeat the payload's last 4 bytes")
		}
	}
	return payload, nil
}

// decodeChunkPayload runs the full codec pipeline (decompression +
// predictor reversal, or the LERC sub-core) over one chunk's on-disk
// payload, returning raw element bytes in ctx.ByteOrder, tileW*tileH*spp
// samples long.
func decodeChunkPayload(payload []byte, ctx *chunkContext) ([]byte, error) {
	ifd := ctx.IFD
	kind := compressionFromTag(ifd.Compression)
	w := int(ifd.TileWidth)
	h := int(ifd.TileHeight)
	if w == 0 {
		w = int(ifd.Width)
	}
	if h == 0 {
		h = int(ifd.RowsPerStrip)
	}
	spp := int(ifd.SamplesPerPixel)

	start := time.Now()
	decoded, err := decodeChunkPayloadByKind(payload, ctx, kind, w, h, spp)
	if err != nil {
		ctx.Metrics.observeError(kind)
		return nil, err
	}
	ctx.Metrics.observeDecode(kind, time.Since(start).Seconds(), len(decoded))
	return decoded, nil
}

func decodeChunkPayloadByKind(payload []byte, ctx *chunkContext, kind Compression, w, h, spp int) ([]byte, error) {
	if kind == CompressionLERC {
		out, err := lerc.Decode(payload, w, h, ctx.ElementType, ctx.ByteOrder)
		if err != nil {
			return nil, wrapLercError(err)
		}
		return out, nil
	}
	if kind == CompressionWebp {
		return decodeWebpChunk(payload, spp)
	}

	decoded, err := decompress(kind, payload)
	if err != nil {
		return nil, err
	}
	if err := applyPredictorReversal(decoded, ctx.IFD, ctx.ByteOrder); err != nil {
		return nil, err
	}
	return decoded, nil
}

// ReadChunk implements the §6.2 read_chunk<T> contract: given a chunk
// location, decode it (or synthesize an all-nodata fill for a sparse
// chunk) into a DenseArray[T] of shape (tile_h, tile_w), nodata-normalized
// per spec.md §4.6 step 6.
func ReadChunk[T array.Numeric](src ByteSource, loc TiffChunkLocation, ctx *chunkContext) (*array.DenseArray[T], error) {
	wantType := array.TypeOf[T]()
	if wantType != ctx.ElementType {
		return nil, errInvalidArgument("requested element type %v does not match raster's native type %v", wantType, ctx.ElementType)
	}

	w := int(ctx.IFD.TileWidth)
	h := int(ctx.IFD.TileHeight)
	if w == 0 {
		w = int(ctx.IFD.Width)
	}
	if h == 0 {
		h = int(ctx.IFD.RowsPerStrip)
	}
	size := array.RasterSize{Rows: int32(h), Cols: int32(w)}
	meta := array.PlainMetadata(size)

	if loc.IsSparse() {
		ctx.Metrics.observeSparse()
		return array.FilledWith[T](meta, nil), nil
	}
	if loc.Size == 0 {
		return nil, errInvalidArgument("chunk has non-zero offset %d but zero size", loc.Offset)
	}

	raw, err := src.ReadExact(loc.Offset, loc.Size)
	if err != nil {
		return nil, err
	}
	return ParseChunk[T](raw, ctx)
}

// ParseChunk implements the §6.2 parse_chunk<T> contract: decode one
// chunk's already-fetched on-disk bytes (block framing still intact when
// the file is a COG) without touching the byte source.
func ParseChunk[T array.Numeric](raw []byte, ctx *chunkContext) (*array.DenseArray[T], error) {
	wantType := array.TypeOf[T]()
	if wantType != ctx.ElementType {
		return nil, errInvalidArgument("requested element type %v does not match raster's native type %v", wantType, ctx.ElementType)
	}

	w := int(ctx.IFD.TileWidth)
	h := int(ctx.IFD.TileHeight)
	if w == 0 {
		w = int(ctx.IFD.Width)
	}
	if h == 0 {
		h = int(ctx.IFD.RowsPerStrip)
	}

	payload := raw
	if ctx.HasBlockFraming {
		var err error
		payload, err = stripBlockFraming(raw)
		if err != nil {
			return nil, err
		}
	}

	decoded, err := decodeChunkPayload(payload, ctx)
	if err != nil {
		return nil, err
	}

	return parseChunkBytes[T](decoded, w, h, ctx)
}

// ReadChunkInto is the destination-buffer form of ReadChunk (§6.2's
// read_chunk_into): buf must hold exactly one chunk's worth of elements;
// sparse chunks fill it with T's nodata sentinel.
func ReadChunkInto[T array.Numeric](src ByteSource, loc TiffChunkLocation, ctx *chunkContext, buf []T) error {
	a, err := ReadChunk[T](src, loc, ctx)
	if err != nil {
		return err
	}
	data := a.AsSlice()
	if len(buf) != len(data) {
		return errInvalidArgument("destination buffer has %d elements, chunk has %d", len(buf), len(data))
	}
	copy(buf, data)
	return nil
}

// parseChunkBytes interprets decoded+predictor-reversed bytes as a
// DenseArray[T], extracting ctx.Band out of an interleaved
// samples-per-pixel layout and normalizing the declared nodata value
// (spec.md §4.6 step 6: values equal to the f64 nodata become T's
// sentinel; NaNs already are nodata for floats).
func parseChunkBytes[T array.Numeric](decoded []byte, w, h int, ctx *chunkContext) (*array.DenseArray[T], error) {
	spp := int(ctx.IFD.SamplesPerPixel)
	if spp == 0 {
		spp = 1
	}
	elemWidth := array.TypeOf[T]().ByteWidth()
	want := w * h * spp * elemWidth
	if len(decoded) < want {
		return nil, errInvalidArgument("decoded chunk is %d bytes, need at least %d for %dx%d x%d samples", len(decoded), want, w, h, spp)
	}

	out := make([]T, w*h)
	nodata := array.Nodata[T]()
	for i := 0; i < w*h; i++ {
		off := (i*spp + ctx.Band) * elemWidth
		v := decodeElement[T](decoded[off:off+elemWidth], ctx.ByteOrder)
		if ctx.Nodata != nil && float64(v) == *ctx.Nodata {
			v = nodata
		}
		out[i] = v
	}

	meta := array.PlainMetadata(array.RasterSize{Rows: int32(h), Cols: int32(w)})
	return array.New[T](meta, out)
}

// wrapLercError lifts a lerc sub-decoder failure into the boundary error
// taxonomy, preserving the category the sub-decoder reported.
func wrapLercError(err error) *Error {
	switch {
	case lerc.IsChecksumMismatch(err):
		return wrapError(KindChecksumMismatch, "lerc chunk", err)
	case lerc.IsUnsupportedVersion(err):
		return wrapError(KindUnsupportedVersion, "lerc chunk", err)
	case lerc.IsHuffmanError(err):
		return wrapError(KindHuffmanError, "lerc chunk", err)
	case lerc.IsFplError(err):
		return wrapError(KindFplError, "lerc chunk", err)
	default:
		return wrapError(KindRuntime, "lerc chunk", err)
	}
}

func decodeElement[T array.Numeric](b []byte, bo binary.ByteOrder) T {
	var zero T
	switch any(zero).(type) {
	case int8:
		return T(int8(b[0]))
	case uint8:
		return T(b[0])
	case int16:
		return T(int16(bo.Uint16(b)))
	case uint16:
		return T(bo.Uint16(b))
	case int32:
		return T(int32(bo.Uint32(b)))
	case uint32:
		return T(bo.Uint32(b))
	case int64:
		return T(int64(bo.Uint64(b)))
	case uint64:
		return T(bo.Uint64(b))
	case float32:
		return T(decodeFloat32(b, bo))
	case float64:
		return T(decodeFloat64(b, bo))
	default:
		return zero
	}
}
