package array

import (
	"fmt"
	"math"
)

// AnyDenseArray is the type-erased tagged union over the ten DenseArray[T]
// variants, used wherever the element type is decided only at runtime
// (e.g. "read whatever the COG contains").
type AnyDenseArray struct {
	typ NumericType
	a8  *DenseArray[int8]
	u8  *DenseArray[uint8]
	a16 *DenseArray[int16]
	u16 *DenseArray[uint16]
	a32 *DenseArray[int32]
	u32 *DenseArray[uint32]
	a64 *DenseArray[int64]
	u64 *DenseArray[uint64]
	f32 *DenseArray[float32]
	f64 *DenseArray[float64]
}

func WrapInt8(a *DenseArray[int8]) AnyDenseArray       { return AnyDenseArray{typ: Int8, a8: a} }
func WrapUint8(a *DenseArray[uint8]) AnyDenseArray     { return AnyDenseArray{typ: Uint8, u8: a} }
func WrapInt16(a *DenseArray[int16]) AnyDenseArray     { return AnyDenseArray{typ: Int16, a16: a} }
func WrapUint16(a *DenseArray[uint16]) AnyDenseArray   { return AnyDenseArray{typ: Uint16, u16: a} }
func WrapInt32(a *DenseArray[int32]) AnyDenseArray     { return AnyDenseArray{typ: Int32, a32: a} }
func WrapUint32(a *DenseArray[uint32]) AnyDenseArray   { return AnyDenseArray{typ: Uint32, u32: a} }
func WrapInt64(a *DenseArray[int64]) AnyDenseArray     { return AnyDenseArray{typ: Int64, a64: a} }
func WrapUint64(a *DenseArray[uint64]) AnyDenseArray   { return AnyDenseArray{typ: Uint64, u64: a} }
func WrapFloat32(a *DenseArray[float32]) AnyDenseArray { return AnyDenseArray{typ: Float32, f32: a} }
func WrapFloat64(a *DenseArray[float64]) AnyDenseArray { return AnyDenseArray{typ: Float64, f64: a} }

func (a AnyDenseArray) Type() NumericType { return a.typ }

// any returns the concrete *DenseArray[T] held by a as an interface{},
// so callers that already know the runtime type can type-assert it back.
func (a AnyDenseArray) any() interface{} {
	switch a.typ {
	case Int8:
		return a.a8
	case Uint8:
		return a.u8
	case Int16:
		return a.a16
	case Uint16:
		return a.u16
	case Int32:
		return a.a32
	case Uint32:
		return a.u32
	case Int64:
		return a.a64
	case Uint64:
		return a.u64
	case Float32:
		return a.f32
	case Float64:
		return a.f64
	default:
		panic(fmt.Sprintf("array: AnyDenseArray dispatch table missing variant %v", a.typ))
	}
}

// As type-asserts a back to its concrete DenseArray[T], returning ok=false
// if a's runtime tag does not match T.
func As[T Numeric](a AnyDenseArray) (*DenseArray[T], bool) {
	v, ok := a.any().(*DenseArray[T])
	return v, ok
}

func (a AnyDenseArray) Size() RasterSize {
	switch a.typ {
	case Int8:
		return a.a8.Size()
	case Uint8:
		return a.u8.Size()
	case Int16:
		return a.a16.Size()
	case Uint16:
		return a.u16.Size()
	case Int32:
		return a.a32.Size()
	case Uint32:
		return a.u32.Size()
	case Int64:
		return a.a64.Size()
	case Uint64:
		return a.u64.Size()
	case Float32:
		return a.f32.Size()
	case Float64:
		return a.f64.Size()
	default:
		panic(fmt.Sprintf("array: AnyDenseArray dispatch table missing variant %v", a.typ))
	}
}

// asF64 materializes every cell as float64, nodata preserved as NaN. Used
// internally for cast() and for cross-type promoted arithmetic.
func (a AnyDenseArray) asF64() []float64 {
	n := a.Size().CellCount()
	out := make([]float64, n)
	switch a.typ {
	case Int8:
		for i, v := range a.a8.AsSlice() {
			out[i] = nodataAwareF64(v)
		}
	case Uint8:
		for i, v := range a.u8.AsSlice() {
			out[i] = nodataAwareF64(v)
		}
	case Int16:
		for i, v := range a.a16.AsSlice() {
			out[i] = nodataAwareF64(v)
		}
	case Uint16:
		for i, v := range a.u16.AsSlice() {
			out[i] = nodataAwareF64(v)
		}
	case Int32:
		for i, v := range a.a32.AsSlice() {
			out[i] = nodataAwareF64(v)
		}
	case Uint32:
		for i, v := range a.u32.AsSlice() {
			out[i] = nodataAwareF64(v)
		}
	case Int64:
		for i, v := range a.a64.AsSlice() {
			out[i] = nodataAwareF64(v)
		}
	case Uint64:
		for i, v := range a.u64.AsSlice() {
			out[i] = nodataAwareF64(v)
		}
	case Float32:
		for i, v := range a.f32.AsSlice() {
			out[i] = nodataAwareF64(v)
		}
	case Float64:
		for i, v := range a.f64.AsSlice() {
			out[i] = nodataAwareF64(v)
		}
	}
	return out
}

func nodataAwareF64[T Numeric](v T) float64 {
	if IsNodata(v) {
		return nodataF64Marker
	}
	return float64(v)
}

// nodataF64Marker is a distinguishable NaN used only inside asF64/Cast to
// signal "was nodata"; every NaN is treated identically by IsNodata so the
// exact payload does not matter.
var nodataF64Marker = math.NaN()

// Cast produces a new array of target's element type, converting each
// value via a numeric cast and propagating nodata.
func (a AnyDenseArray) Cast(target NumericType) (AnyDenseArray, error) {
	size := a.Size()
	meta := PlainMetadata(size)
	vals := a.asF64()
	switch target {
	case Int8:
		return WrapInt8(fromF64[int8](meta, vals)), nil
	case Uint8:
		return WrapUint8(fromF64[uint8](meta, vals)), nil
	case Int16:
		return WrapInt16(fromF64[int16](meta, vals)), nil
	case Uint16:
		return WrapUint16(fromF64[uint16](meta, vals)), nil
	case Int32:
		return WrapInt32(fromF64[int32](meta, vals)), nil
	case Uint32:
		return WrapUint32(fromF64[uint32](meta, vals)), nil
	case Int64:
		return WrapInt64(fromF64[int64](meta, vals)), nil
	case Uint64:
		return WrapUint64(fromF64[uint64](meta, vals)), nil
	case Float32:
		return WrapFloat32(fromF64[float32](meta, vals)), nil
	case Float64:
		return WrapFloat64(fromF64[float64](meta, vals)), nil
	default:
		return AnyDenseArray{}, fmt.Errorf("array: unknown target type %v", target)
	}
}

func fromF64[T Numeric](meta Metadata, vals []float64) *DenseArray[T] {
	out := make([]T, len(vals))
	nodata := Nodata[T]()
	lo, hi := castRange(TypeOf[T]())
	for i, v := range vals {
		if v != v { // NaN: any nodata marker, float or sentinel-derived
			out[i] = nodata
			continue
		}
		if v < lo {
			v = lo
		} else if v > hi {
			v = hi
		}
		out[i] = T(v)
	}
	return &DenseArray[T]{meta: meta, data: out}
}

// castRange reports the float64 interval whose values convert to t without
// overflow. Saturating at the edges keeps narrowing casts defined; Go
// leaves out-of-range float-to-int conversion unspecified. The 64-bit
// integer maxima are nudged down to the nearest exactly-representable
// float64 below the type's max.
func castRange(t NumericType) (lo, hi float64) {
	switch t {
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Uint8:
		return 0, math.MaxUint8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Uint16:
		return 0, math.MaxUint16
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Uint32:
		return 0, math.MaxUint32
	case Int64:
		return math.MinInt64, math.Nextafter(float64(math.MaxInt64), 0)
	case Uint64:
		return 0, math.Nextafter(float64(math.MaxUint64), 0)
	default:
		return math.Inf(-1), math.Inf(1)
	}
}

// CellValue dispatches on the stored type then numerically casts to T,
// returning false if the cell is nodata or the value cannot be represented
// in T.
func CellValue[T Numeric](a AnyDenseArray, c Cell) (T, bool) {
	v, ok := a.cellF64(c)
	if !ok {
		return Nodata[T](), false
	}
	typ := TypeOf[T]()
	if !typ.IsFloat() {
		lo, hi := castRange(typ)
		if v < lo || v > hi {
			return Nodata[T](), false
		}
	}
	return T(v), true
}

func (a AnyDenseArray) cellF64(c Cell) (float64, bool) {
	switch a.typ {
	case Int8:
		return cellAsF64(a.a8, c)
	case Uint8:
		return cellAsF64(a.u8, c)
	case Int16:
		return cellAsF64(a.a16, c)
	case Uint16:
		return cellAsF64(a.u16, c)
	case Int32:
		return cellAsF64(a.a32, c)
	case Uint32:
		return cellAsF64(a.u32, c)
	case Int64:
		return cellAsF64(a.a64, c)
	case Uint64:
		return cellAsF64(a.u64, c)
	case Float32:
		return cellAsF64(a.f32, c)
	case Float64:
		return cellAsF64(a.f64, c)
	default:
		return 0, false
	}
}

func cellAsF64[T Numeric](d *DenseArray[T], c Cell) (float64, bool) {
	v, ok := d.CellValue(c)
	if !ok {
		return 0, false
	}
	return float64(v), true
}

// promote implements the output-type promotion rules from spec.md §4.9.
func promote(a, b NumericType, forDivision bool) NumericType {
	if forDivision {
		if a == Float32 && b == Float32 {
			return Float32
		}
		return Float64
	}
	if a == Float64 || b == Float64 {
		return Float64
	}
	if a == Float32 || b == Float32 {
		if is64Bit(a) || is64Bit(b) {
			return Float64
		}
		return Float32
	}
	if a.IsSigned() || b.IsSigned() {
		return widestSigned(a, b)
	}
	return widestUnsigned(a, b)
}

func is64Bit(t NumericType) bool { return t == Int64 || t == Uint64 || t == Float64 }

func widestSigned(a, b NumericType) NumericType {
	w := maxWidth(a, b)
	switch w {
	case 1:
		return Int8
	case 2:
		return Int16
	case 4:
		return Int32
	default:
		return Int64
	}
}

func widestUnsigned(a, b NumericType) NumericType {
	w := maxWidth(a, b)
	switch w {
	case 1:
		return Uint8
	case 2:
		return Uint16
	case 4:
		return Uint32
	default:
		return Uint64
	}
}

func maxWidth(a, b NumericType) int {
	wa, wb := a.ByteWidth(), b.ByteWidth()
	if wa > wb {
		return wa
	}
	return wb
}

// ArithmeticOp is one of the four promoted binary operators.
type ArithmeticOp int

const (
	OpAdd ArithmeticOp = iota
	OpSub
	OpMul
	OpDiv
)

// FilledAny returns a nodata-filled array of the given runtime element
// type and shape.
func FilledAny(t NumericType, meta Metadata) AnyDenseArray {
	switch t {
	case Int8:
		return WrapInt8(FilledWith[int8](meta, nil))
	case Uint8:
		return WrapUint8(FilledWith[uint8](meta, nil))
	case Int16:
		return WrapInt16(FilledWith[int16](meta, nil))
	case Uint16:
		return WrapUint16(FilledWith[uint16](meta, nil))
	case Int32:
		return WrapInt32(FilledWith[int32](meta, nil))
	case Uint32:
		return WrapUint32(FilledWith[uint32](meta, nil))
	case Int64:
		return WrapInt64(FilledWith[int64](meta, nil))
	case Uint64:
		return WrapUint64(FilledWith[uint64](meta, nil))
	case Float32:
		return WrapFloat32(FilledWith[float32](meta, nil))
	default:
		return WrapFloat64(FilledWith[float64](meta, nil))
	}
}

// Wrap boxes a concrete array into the matching AnyDenseArray variant.
func Wrap[T Numeric](d *DenseArray[T]) AnyDenseArray {
	switch v := any(d).(type) {
	case *DenseArray[int8]:
		return WrapInt8(v)
	case *DenseArray[uint8]:
		return WrapUint8(v)
	case *DenseArray[int16]:
		return WrapInt16(v)
	case *DenseArray[uint16]:
		return WrapUint16(v)
	case *DenseArray[int32]:
		return WrapInt32(v)
	case *DenseArray[uint32]:
		return WrapUint32(v)
	case *DenseArray[int64]:
		return WrapInt64(v)
	case *DenseArray[uint64]:
		return WrapUint64(v)
	case *DenseArray[float32]:
		return WrapFloat32(v)
	case *DenseArray[float64]:
		return WrapFloat64(v)
	default:
		panic(fmt.Sprintf("array: Wrap dispatch table missing variant %T", d))
	}
}

// Arithmetic applies op to a and b, promoting to a common output type per
// the mixing rules, nodata-aware. Both operands are cast to the promoted
// type first, then the typed elementwise operator runs, so integer results
// wrap in the output type rather than saturating.
func Arithmetic(a, b AnyDenseArray, op ArithmeticOp) (AnyDenseArray, error) {
	if a.Size() != b.Size() {
		return AnyDenseArray{}, fmt.Errorf("array: operands have mismatched shapes %v vs %v", a.Size(), b.Size())
	}
	out := promote(a.typ, b.typ, op == OpDiv)
	ac, bc := a, b
	var err error
	if ac.typ != out {
		if ac, err = a.Cast(out); err != nil {
			return AnyDenseArray{}, err
		}
	}
	if bc.typ != out {
		if bc, err = b.Cast(out); err != nil {
			return AnyDenseArray{}, err
		}
	}
	switch out {
	case Int8:
		return typedArithmetic[int8](ac, bc, op)
	case Uint8:
		return typedArithmetic[uint8](ac, bc, op)
	case Int16:
		return typedArithmetic[int16](ac, bc, op)
	case Uint16:
		return typedArithmetic[uint16](ac, bc, op)
	case Int32:
		return typedArithmetic[int32](ac, bc, op)
	case Uint32:
		return typedArithmetic[uint32](ac, bc, op)
	case Int64:
		return typedArithmetic[int64](ac, bc, op)
	case Uint64:
		return typedArithmetic[uint64](ac, bc, op)
	case Float32:
		return typedArithmetic[float32](ac, bc, op)
	case Float64:
		return typedArithmetic[float64](ac, bc, op)
	default:
		return AnyDenseArray{}, fmt.Errorf("array: unknown promoted type %v", out)
	}
}

func typedArithmetic[T Numeric](a, b AnyDenseArray, op ArithmeticOp) (AnyDenseArray, error) {
	x, ok := As[T](a)
	if !ok {
		return AnyDenseArray{}, fmt.Errorf("array: promoted operand tag %v does not match dispatch type", a.typ)
	}
	y, ok := As[T](b)
	if !ok {
		return AnyDenseArray{}, fmt.Errorf("array: promoted operand tag %v does not match dispatch type", b.typ)
	}
	var r *DenseArray[T]
	var err error
	switch op {
	case OpAdd:
		r, err = x.Add(y)
	case OpSub:
		r, err = x.Sub(y)
	case OpMul:
		r, err = x.Mul(y)
	case OpDiv:
		r, err = x.Div(y)
	default:
		return AnyDenseArray{}, fmt.Errorf("array: unknown arithmetic op %d", op)
	}
	if err != nil {
		return AnyDenseArray{}, err
	}
	return Wrap(r), nil
}

// ArithmeticInPlace requires a and b to already share an element type;
// mismatches are fatal per spec.md §4.9.
func ArithmeticInPlace(a, b AnyDenseArray, op ArithmeticOp) (AnyDenseArray, error) {
	if a.typ != b.typ {
		return AnyDenseArray{}, fmt.Errorf("array: in-place arithmetic requires matching element types, got %v and %v", a.typ, b.typ)
	}
	return Arithmetic(a, b, op)
}
