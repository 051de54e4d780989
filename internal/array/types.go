// Package array implements the typed dense-array model: a closed
// enumeration of ten numeric element types, each with its own in-band
// nodata sentinel, and the generic/type-erased array values built on top.
package array

import (
	"fmt"
	"math"
)

// NumericType is the closed set of element kinds a DenseArray can hold.
// The numeric values match the discriminants used throughout the
// retrieved reference sources (0-9, signed/unsigned ints ascending by
// width, then float32, float64).
type NumericType uint8

const (
	Int8 NumericType = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

func (t NumericType) String() string {
	switch t {
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("NumericType(%d)", uint8(t))
	}
}

// ByteWidth returns the fixed on-disk/in-memory width of one element.
func (t NumericType) ByteWidth() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

func (t NumericType) IsFloat() bool {
	return t == Float32 || t == Float64
}

func (t NumericType) IsSigned() bool {
	switch t {
	case Int8, Int16, Int32, Int64, Float32, Float64:
		return true
	default:
		return false
	}
}

// NodataF64 reports the sentinel for t expressed as a float64, the form
// used at the metadata boundary (e.g. GDAL_NODATA). For floats this is
// NaN; for signed ints the type's MIN; for unsigned ints the type's MAX.
func (t NumericType) NodataF64() float64 {
	switch t {
	case Int8:
		return float64(math.MinInt8)
	case Uint8:
		return float64(math.MaxUint8)
	case Int16:
		return float64(math.MinInt16)
	case Uint16:
		return float64(math.MaxUint16)
	case Int32:
		return float64(math.MinInt32)
	case Uint32:
		return float64(math.MaxUint32)
	case Int64:
		return float64(math.MinInt64)
	case Uint64:
		return float64(math.MaxUint64)
	case Float32, Float64:
		return math.NaN()
	default:
		return math.NaN()
	}
}

// Numeric is the set of Go types a DenseArray may be instantiated over.
type Numeric interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// Nodata returns T's sentinel value; IsNodata tests a value against it.
func Nodata[T Numeric]() T {
	var zero T
	switch any(zero).(type) {
	case int8:
		return any(int8(math.MinInt8)).(T)
	case uint8:
		return any(uint8(math.MaxUint8)).(T)
	case int16:
		return any(int16(math.MinInt16)).(T)
	case uint16:
		return any(uint16(math.MaxUint16)).(T)
	case int32:
		return any(int32(math.MinInt32)).(T)
	case uint32:
		return any(uint32(math.MaxUint32)).(T)
	case int64:
		return any(int64(math.MinInt64)).(T)
	case uint64:
		return any(uint64(math.MaxUint64)).(T)
	case float32:
		return any(float32(math.NaN())).(T)
	case float64:
		return any(math.NaN()).(T)
	default:
		return zero
	}
}

// IsNodata reports whether v equals T's sentinel. For floats this is any
// NaN payload, matching spec's "any NaN payload" invariant.
func IsNodata[T Numeric](v T) bool {
	switch x := any(v).(type) {
	case float32:
		return math.IsNaN(float64(x))
	case float64:
		return math.IsNaN(x)
	default:
		return v == Nodata[T]()
	}
}

// TypeOf returns the NumericType tag matching Go type T.
func TypeOf[T Numeric]() NumericType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case uint8:
		return Uint8
	case int16:
		return Int16
	case uint16:
		return Uint16
	case int32:
		return Int32
	case uint32:
		return Uint32
	case int64:
		return Int64
	case uint64:
		return Uint64
	case float32:
		return Float32
	case float64:
		return Float64
	default:
		panic(fmt.Sprintf("array: unsupported element type %T", zero))
	}
}

// Cell locates one pixel by (row, col). Both are non-negative in any
// valid raster; negative values only ever appear as sentinels for "no
// such cell" in intermediate computations.
type Cell struct {
	Row int32
	Col int32
}

// RasterSize is the (rows, cols) shape of a raster or array.
type RasterSize struct {
	Rows int32
	Cols int32
}

// CellCount returns Rows*Cols as an int, safe for slice-length use on any
// raster this module can address (cols/rows are bounded by TIFF's own u32
// dimensions, well under int64 on any supported platform).
func (s RasterSize) CellCount() int {
	return int(s.Rows) * int(s.Cols)
}

func (s RasterSize) Contains(c Cell) bool {
	return c.Row >= 0 && c.Row < s.Rows && c.Col >= 0 && c.Col < s.Cols
}

func (s RasterSize) Less(other RasterSize) bool {
	return s.Rows < other.Rows && s.Cols < other.Cols
}
