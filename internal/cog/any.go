package cog

import "github.com/cogengine/raster/internal/array"

// ReadChunkAny implements spec.md §6.2's AnyDenseArray-typed read_chunk:
// the same contract as ReadChunk[T], but dispatching on ctx.ElementType
// at runtime instead of requiring the caller to already know T. Used by
// the web-tile reader, which resolves a tile to a chunk before it knows
// (or cares) what the COG's native element type is.
func ReadChunkAny(src ByteSource, loc TiffChunkLocation, ctx *chunkContext) (array.AnyDenseArray, error) {
	switch ctx.ElementType {
	case array.Int8:
		a, err := ReadChunk[int8](src, loc, ctx)
		return wrapOrZero(array.WrapInt8, a, err)
	case array.Uint8:
		a, err := ReadChunk[uint8](src, loc, ctx)
		return wrapOrZero(array.WrapUint8, a, err)
	case array.Int16:
		a, err := ReadChunk[int16](src, loc, ctx)
		return wrapOrZero(array.WrapInt16, a, err)
	case array.Uint16:
		a, err := ReadChunk[uint16](src, loc, ctx)
		return wrapOrZero(array.WrapUint16, a, err)
	case array.Int32:
		a, err := ReadChunk[int32](src, loc, ctx)
		return wrapOrZero(array.WrapInt32, a, err)
	case array.Uint32:
		a, err := ReadChunk[uint32](src, loc, ctx)
		return wrapOrZero(array.WrapUint32, a, err)
	case array.Int64:
		a, err := ReadChunk[int64](src, loc, ctx)
		return wrapOrZero(array.WrapInt64, a, err)
	case array.Uint64:
		a, err := ReadChunk[uint64](src, loc, ctx)
		return wrapOrZero(array.WrapUint64, a, err)
	case array.Float32:
		a, err := ReadChunk[float32](src, loc, ctx)
		return wrapOrZero(array.WrapFloat32, a, err)
	case array.Float64:
		a, err := ReadChunk[float64](src, loc, ctx)
		return wrapOrZero(array.WrapFloat64, a, err)
	default:
		return array.AnyDenseArray{}, errInvalidArgument("unknown element type %v", ctx.ElementType)
	}
}

// ReadRasterAny is ReadRaster's AnyDenseArray-typed counterpart (spec.md
// §6.2's read_raster, runtime-typed form).
func ReadRasterAny(src ByteSource, level *PyramidInfo, ctx *chunkContext) (array.AnyDenseArray, error) {
	switch ctx.ElementType {
	case array.Int8:
		a, err := ReadRaster[int8](src, level, ctx)
		return wrapOrZero(array.WrapInt8, a, err)
	case array.Uint8:
		a, err := ReadRaster[uint8](src, level, ctx)
		return wrapOrZero(array.WrapUint8, a, err)
	case array.Int16:
		a, err := ReadRaster[int16](src, level, ctx)
		return wrapOrZero(array.WrapInt16, a, err)
	case array.Uint16:
		a, err := ReadRaster[uint16](src, level, ctx)
		return wrapOrZero(array.WrapUint16, a, err)
	case array.Int32:
		a, err := ReadRaster[int32](src, level, ctx)
		return wrapOrZero(array.WrapInt32, a, err)
	case array.Uint32:
		a, err := ReadRaster[uint32](src, level, ctx)
		return wrapOrZero(array.WrapUint32, a, err)
	case array.Int64:
		a, err := ReadRaster[int64](src, level, ctx)
		return wrapOrZero(array.WrapInt64, a, err)
	case array.Uint64:
		a, err := ReadRaster[uint64](src, level, ctx)
		return wrapOrZero(array.WrapUint64, a, err)
	case array.Float32:
		a, err := ReadRaster[float32](src, level, ctx)
		return wrapOrZero(array.WrapFloat32, a, err)
	case array.Float64:
		a, err := ReadRaster[float64](src, level, ctx)
		return wrapOrZero(array.WrapFloat64, a, err)
	default:
		return array.AnyDenseArray{}, errInvalidArgument("unknown element type %v", ctx.ElementType)
	}
}

// ParseChunkAny implements spec.md §6.2's parse_chunk: decode an
// already-fetched chunk payload (block leader/trailer already stripped
// by the caller if HasBlockFraming applied) into a runtime-typed array.
func ParseChunkAny(decoded []byte, w, h int, ctx *chunkContext) (array.AnyDenseArray, error) {
	switch ctx.ElementType {
	case array.Int8:
		a, err := parseChunkBytes[int8](decoded, w, h, ctx)
		return wrapOrZero(array.WrapInt8, a, err)
	case array.Uint8:
		a, err := parseChunkBytes[uint8](decoded, w, h, ctx)
		return wrapOrZero(array.WrapUint8, a, err)
	case array.Int16:
		a, err := parseChunkBytes[int16](decoded, w, h, ctx)
		return wrapOrZero(array.WrapInt16, a, err)
	case array.Uint16:
		a, err := parseChunkBytes[uint16](decoded, w, h, ctx)
		return wrapOrZero(array.WrapUint16, a, err)
	case array.Int32:
		a, err := parseChunkBytes[int32](decoded, w, h, ctx)
		return wrapOrZero(array.WrapInt32, a, err)
	case array.Uint32:
		a, err := parseChunkBytes[uint32](decoded, w, h, ctx)
		return wrapOrZero(array.WrapUint32, a, err)
	case array.Int64:
		a, err := parseChunkBytes[int64](decoded, w, h, ctx)
		return wrapOrZero(array.WrapInt64, a, err)
	case array.Uint64:
		a, err := parseChunkBytes[uint64](decoded, w, h, ctx)
		return wrapOrZero(array.WrapUint64, a, err)
	case array.Float32:
		a, err := parseChunkBytes[float32](decoded, w, h, ctx)
		return wrapOrZero(array.WrapFloat32, a, err)
	case array.Float64:
		a, err := parseChunkBytes[float64](decoded, w, h, ctx)
		return wrapOrZero(array.WrapFloat64, a, err)
	default:
		return array.AnyDenseArray{}, errInvalidArgument("unknown element type %v", ctx.ElementType)
	}
}

// ParseChunkRawAny is ParseChunk's runtime-typed counterpart: decode one
// chunk's already-fetched on-disk bytes (framing intact for a COG) into
// whatever element type the metadata declares.
func ParseChunkRawAny(raw []byte, ctx *chunkContext) (array.AnyDenseArray, error) {
	switch ctx.ElementType {
	case array.Int8:
		a, err := ParseChunk[int8](raw, ctx)
		return wrapOrZero(array.WrapInt8, a, err)
	case array.Uint8:
		a, err := ParseChunk[uint8](raw, ctx)
		return wrapOrZero(array.WrapUint8, a, err)
	case array.Int16:
		a, err := ParseChunk[int16](raw, ctx)
		return wrapOrZero(array.WrapInt16, a, err)
	case array.Uint16:
		a, err := ParseChunk[uint16](raw, ctx)
		return wrapOrZero(array.WrapUint16, a, err)
	case array.Int32:
		a, err := ParseChunk[int32](raw, ctx)
		return wrapOrZero(array.WrapInt32, a, err)
	case array.Uint32:
		a, err := ParseChunk[uint32](raw, ctx)
		return wrapOrZero(array.WrapUint32, a, err)
	case array.Int64:
		a, err := ParseChunk[int64](raw, ctx)
		return wrapOrZero(array.WrapInt64, a, err)
	case array.Uint64:
		a, err := ParseChunk[uint64](raw, ctx)
		return wrapOrZero(array.WrapUint64, a, err)
	case array.Float32:
		a, err := ParseChunk[float32](raw, ctx)
		return wrapOrZero(array.WrapFloat32, a, err)
	case array.Float64:
		a, err := ParseChunk[float64](raw, ctx)
		return wrapOrZero(array.WrapFloat64, a, err)
	default:
		return array.AnyDenseArray{}, errInvalidArgument("unknown element type %v", ctx.ElementType)
	}
}

// wrapOrZero threads a (*DenseArray[T], error) pair through wrap without
// the caller having to guard every branch above against a nil array.
func wrapOrZero[T array.Numeric](wrap func(*array.DenseArray[T]) array.AnyDenseArray, a *array.DenseArray[T], err error) (array.AnyDenseArray, error) {
	if err != nil {
		return array.AnyDenseArray{}, err
	}
	return wrap(a), nil
}
