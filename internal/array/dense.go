package array

import "fmt"

// Metadata is whatever descriptor accompanies a DenseArray's pixels. The
// core only needs the raster shape; callers (internal/geo) attach a full
// GeoReference by embedding RasterSize in it.
type Metadata interface {
	Size() RasterSize
}

// plainMeta is the metadata used when a caller has no georeference to
// attach — e.g. scratch tile buffers inside the chunk reader.
type plainMeta struct{ size RasterSize }

func (m plainMeta) Size() RasterSize { return m.size }

// PlainMetadata wraps a bare RasterSize as Metadata.
func PlainMetadata(size RasterSize) Metadata { return plainMeta{size} }

// DenseArray is a rectangular, exclusively-owned buffer of T plus
// metadata. Nodata cells are represented in-band using T's sentinel.
type DenseArray[T Numeric] struct {
	meta Metadata
	data []T
}

// New validates that len(data) == meta.Size().CellCount() and wraps it.
func New[T Numeric](meta Metadata, data []T) (*DenseArray[T], error) {
	want := meta.Size().CellCount()
	if len(data) != want {
		return nil, fmt.Errorf("array: data length %d does not match raster cell count %d", len(data), want)
	}
	return &DenseArray[T]{meta: meta, data: data}, nil
}

// FilledWith returns a new array of meta's shape, every cell set to value
// (or to T's nodata sentinel when value is nil).
func FilledWith[T Numeric](meta Metadata, value *T) *DenseArray[T] {
	n := meta.Size().CellCount()
	data := make([]T, n)
	fill := Nodata[T]()
	if value != nil {
		fill = *value
	}
	for i := range data {
		data[i] = fill
	}
	return &DenseArray[T]{meta: meta, data: data}
}

func (a *DenseArray[T]) Meta() Metadata    { return a.meta }
func (a *DenseArray[T]) Size() RasterSize  { return a.meta.Size() }
func (a *DenseArray[T]) Type() NumericType { return TypeOf[T]() }
func (a *DenseArray[T]) AsSlice() []T      { return a.data }
func (a *DenseArray[T]) AsSliceMut() []T   { return a.data }

func (a *DenseArray[T]) index(c Cell) (int, bool) {
	size := a.meta.Size()
	if !size.Contains(c) {
		return 0, false
	}
	return int(c.Row)*int(size.Cols) + int(c.Col), true
}

// CellValue returns the value at c, or (_, false) if c is out of bounds
// or the stored value is the nodata sentinel.
func (a *DenseArray[T]) CellValue(c Cell) (T, bool) {
	idx, ok := a.index(c)
	if !ok {
		return Nodata[T](), false
	}
	v := a.data[idx]
	if IsNodata(v) {
		return v, false
	}
	return v, true
}

// SetCellValue writes v at c; it is a no-op if c is out of bounds.
func (a *DenseArray[T]) SetCellValue(c Cell, v T) {
	if idx, ok := a.index(c); ok {
		a.data[idx] = v
	}
}

// Unary applies f to every cell, nodata cells included; the caller decides
// whether f is nodata-aware.
func (a *DenseArray[T]) Unary(f func(T) T) *DenseArray[T] {
	out := make([]T, len(a.data))
	for i, v := range a.data {
		out[i] = f(v)
	}
	return &DenseArray[T]{meta: a.meta, data: out}
}

// UnaryMut applies f in place and returns a for chaining.
func (a *DenseArray[T]) UnaryMut(f func(T) T) *DenseArray[T] {
	for i, v := range a.data {
		a.data[i] = f(v)
	}
	return a
}

// Binary applies f elementwise to a and other; both must share RasterSize.
func (a *DenseArray[T]) Binary(other *DenseArray[T], f func(a, b T) T) (*DenseArray[T], error) {
	if a.Size() != other.Size() {
		return nil, fmt.Errorf("array: binary op operands have mismatched shapes %v vs %v", a.Size(), other.Size())
	}
	out := make([]T, len(a.data))
	for i := range a.data {
		out[i] = f(a.data[i], other.data[i])
	}
	return &DenseArray[T]{meta: a.meta, data: out}, nil
}

// BinaryNodataAware is like Binary but yields NODATA whenever either
// operand is nodata at that cell, regardless of what f would compute.
func (a *DenseArray[T]) BinaryNodataAware(other *DenseArray[T], f func(a, b T) T) (*DenseArray[T], error) {
	nodata := Nodata[T]()
	return a.Binary(other, func(x, y T) T {
		if IsNodata(x) || IsNodata(y) {
			return nodata
		}
		return f(x, y)
	})
}

// assign is the shared in-place kernel behind the compound operators:
// nodata-aware, mutating a's buffer.
func (a *DenseArray[T]) assign(other *DenseArray[T], f func(a, b T) T) error {
	if a.Size() != other.Size() {
		return fmt.Errorf("array: in-place op operands have mismatched shapes %v vs %v", a.Size(), other.Size())
	}
	nodata := Nodata[T]()
	for i := range a.data {
		x, y := a.data[i], other.data[i]
		if IsNodata(x) || IsNodata(y) {
			a.data[i] = nodata
			continue
		}
		a.data[i] = f(x, y)
	}
	return nil
}

// AddAssign, SubAssign, MulAssign, DivAssign are the in-place forms of the
// arithmetic operators, with the same nodata and division-by-zero rules.
func (a *DenseArray[T]) AddAssign(other *DenseArray[T]) error {
	return a.assign(other, func(x, y T) T { return x + y })
}

func (a *DenseArray[T]) SubAssign(other *DenseArray[T]) error {
	return a.assign(other, func(x, y T) T { return x - y })
}

func (a *DenseArray[T]) MulAssign(other *DenseArray[T]) error {
	return a.assign(other, func(x, y T) T { return x * y })
}

func (a *DenseArray[T]) DivAssign(other *DenseArray[T]) error {
	if a.Size() != other.Size() {
		return fmt.Errorf("array: in-place op operands have mismatched shapes %v vs %v", a.Size(), other.Size())
	}
	nodata := Nodata[T]()
	isInt := !TypeOf[T]().IsFloat()
	for i := range a.data {
		x, y := a.data[i], other.data[i]
		switch {
		case IsNodata(x) || IsNodata(y):
			a.data[i] = nodata
		case isInt && isIntegerZero(y):
			a.data[i] = nodata
		default:
			a.data[i] = x / y
		}
	}
	return nil
}

func isIntegerZero[T Numeric](v T) bool {
	switch x := any(v).(type) {
	case int8:
		return x == 0
	case uint8:
		return x == 0
	case int16:
		return x == 0
	case uint16:
		return x == 0
	case int32:
		return x == 0
	case uint32:
		return x == 0
	case int64:
		return x == 0
	case uint64:
		return x == 0
	default:
		return false
	}
}

// Add, Sub, Mul, Div implement the nodata-aware arithmetic operators from
// spec.md §4.9: wrapping arithmetic for integers, IEEE-754 for floats,
// integer division by zero yields NODATA.
func (a *DenseArray[T]) Add(other *DenseArray[T]) (*DenseArray[T], error) {
	return a.BinaryNodataAware(other, func(x, y T) T { return x + y })
}

func (a *DenseArray[T]) Sub(other *DenseArray[T]) (*DenseArray[T], error) {
	return a.BinaryNodataAware(other, func(x, y T) T { return x - y })
}

func (a *DenseArray[T]) Mul(other *DenseArray[T]) (*DenseArray[T], error) {
	return a.BinaryNodataAware(other, func(x, y T) T { return x * y })
}

func (a *DenseArray[T]) Div(other *DenseArray[T]) (*DenseArray[T], error) {
	nodata := Nodata[T]()
	return a.Binary(other, func(x, y T) T {
		if IsNodata(x) || IsNodata(y) {
			return nodata
		}
		if !TypeOf[T]().IsFloat() && isIntegerZero(y) {
			return nodata
		}
		return x / y
	})
}
