package lerc

import (
	"encoding/binary"
	"math"

	"github.com/cogengine/raster/internal/array"
)

// Decode decompresses a LERC2-compressed chunk into w*h raw element bytes
// of elemType, encoded with bo (spec.md §4.5.1). w and h are the caller's
// expected tile dimensions; the blob's own header must agree with them.
func Decode(data []byte, w, h int, elemType array.NumericType, bo binary.ByteOrder) ([]byte, error) {
	if lercDataTypeFor(elemType) == DTUndefined {
		return nil, errf("lerc: element type %v has no LERC2 data type", elemType)
	}
	hd, pos, err := readHeader(data)
	if err != nil {
		return nil, err
	}
	if w > 0 && h > 0 && (int(hd.NCols) != w || int(hd.NRows) != h) {
		return nil, errf("lerc: blob is %dx%d, caller expected %dx%d", hd.NCols, hd.NRows, w, h)
	}
	if int(hd.BlobSize) > len(data) {
		return nil, errf("lerc: blob size %d exceeds buffer of %d bytes", hd.BlobSize, len(data))
	}

	if hd.Version >= 3 {
		nBytes := len(fileKey) + 4 + 4
		if int(hd.BlobSize) < nBytes {
			return nil, errf("lerc: blob too small for checksum region")
		}
		sum := fletcher32(data[nBytes:hd.BlobSize])
		if sum != hd.Checksum {
			return nil, errChecksumf("lerc: checksum mismatch")
		}
	}

	mask := &bitMask{}
	pos, err = readMask(data, pos, hd, mask)
	if err != nil {
		return nil, err
	}

	total := int(hd.NCols) * int(hd.NRows) * int(hd.NDepth)
	dec := &decoder{header: hd, mask: mask}

	if hd.NumValidPixel == 0 {
		out := make([]float64, total)
		fillNodata(out, elemType)
		return valuesToBytes(out, elemType, bo), nil
	}
	if hd.ZMin == hd.ZMax {
		return fillConstant(dec, total, elemType, bo)
	}

	var zMinVec, zMaxVec []float64
	if hd.Version >= 4 {
		zMinVec, zMaxVec, pos, err = readMinMaxRanges(data, pos, hd, elemType)
		if err != nil {
			return nil, err
		}
		dec.zMinVec, dec.zMaxVec = zMinVec, zMaxVec
		if allEqual(zMinVec, zMaxVec) {
			return fillConstant(dec, total, elemType, bo)
		}
	}

	if pos >= len(data) {
		return nil, errf("lerc: truncated data-encoding flag")
	}
	readOneSweep := data[pos] != 0
	pos++

	out := make([]float64, total)

	if !readOneSweep {
		if hd.tryHuffmanInt() || hd.tryHuffmanFloat() {
			if pos >= len(data) {
				return nil, errf("lerc: truncated image-encode-mode flag")
			}
			flag := data[pos]
			pos++
			if flag > 3 || (flag > 2 && hd.Version < 6) || (flag > 1 && hd.Version < 4) {
				return nil, errf("lerc: invalid image-encode-mode flag %d", flag)
			}
			mode, ok := imageEncodeModeFromByte(flag)
			if !ok {
				return nil, errf("lerc: invalid image-encode mode")
			}
			if mode != modeTiling {
				switch {
				case hd.tryHuffmanInt() && (mode == modeDeltaHuffman || (hd.Version >= 4 && mode == modeHuffman)):
					if err := decodeHuffmanImage(data, pos, dec, mode, out); err != nil {
						return nil, err
					}
					applyMaskNodata(out, dec, elemType)
					return valuesToBytes(out, elemType, bo), nil
				case hd.tryHuffmanFloat() && mode == modeDeltaDeltaHuffman:
					if err := decodeFPLImage(data, pos, dec, elemType, out); err != nil {
						return nil, err
					}
					applyMaskNodata(out, dec, elemType)
					return valuesToBytes(out, elemType, bo), nil
				default:
					return nil, errf("lerc: invalid huffman/fpl mode combination")
				}
			}
		}
		if err := readTiles(data, pos, dec, out); err != nil {
			return nil, err
		}
	} else {
		if err := readDataOneSweep(data, pos, dec, elemType, out); err != nil {
			return nil, err
		}
	}

	applyMaskNodata(out, dec, elemType)
	return valuesToBytes(out, elemType, bo), nil
}

type decoder struct {
	header  header
	mask    *bitMask
	zMinVec []float64
	zMaxVec []float64
}

func readHeader(data []byte) (header, int, error) {
	pos := 0
	if len(data) < len(fileKey) || string(data[:len(fileKey)]) != fileKey {
		return header{}, 0, errf("lerc: missing Lerc2 file key")
	}
	pos += len(fileKey)

	if pos+4 > len(data) {
		return header{}, 0, errf("lerc: truncated version field")
	}
	version := int32(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	if version < 0 || version > currentVersion {
		return header{}, 0, errVersionf("lerc: unsupported version %d", version)
	}

	var hd header
	hd.Version = version
	hd.NDepth = 1

	if version >= 3 {
		if pos+4 > len(data) {
			return header{}, 0, errf("lerc: truncated checksum field")
		}
		hd.Checksum = binary.LittleEndian.Uint32(data[pos:])
		pos += 4
	}

	nInts := 6
	if version >= 4 {
		nInts++
	}
	if version >= 6 {
		nInts++
	}
	nBytesExtra := 0
	if version >= 6 {
		nBytesExtra = 4
	}
	nDbls := 3
	if version >= 6 {
		nDbls += 2
	}

	if pos+nInts*4 > len(data) {
		return header{}, 0, errf("lerc: truncated integer header fields")
	}
	ints := make([]int32, nInts)
	for i := range ints {
		ints[i] = int32(binary.LittleEndian.Uint32(data[pos+i*4:]))
	}
	pos += nInts * 4

	extraBytes := make([]byte, nBytesExtra)
	if version >= 6 {
		if pos+nBytesExtra > len(data) {
			return header{}, 0, errf("lerc: truncated extra-byte fields")
		}
		copy(extraBytes, data[pos:pos+nBytesExtra])
		pos += nBytesExtra
	}

	if pos+nDbls*8 > len(data) {
		return header{}, 0, errf("lerc: truncated double header fields")
	}
	dbls := make([]float64, nDbls)
	for i := range dbls {
		dbls[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[pos+i*8:]))
	}
	pos += nDbls * 8

	i := 0
	hd.NRows = ints[i]
	i++
	hd.NCols = ints[i]
	i++
	if version >= 4 {
		hd.NDepth = ints[i]
		i++
	}
	hd.NumValidPixel = ints[i]
	i++
	hd.MicroBlockSize = ints[i]
	i++
	hd.BlobSize = ints[i]
	i++
	dt := ints[i]
	i++
	parsedDT, ok := dataTypeFromInt(dt)
	if !ok {
		return header{}, 0, errf("lerc: invalid data type %d", dt)
	}
	hd.DT = parsedDT
	if version >= 6 {
		hd.NBlobsMore = ints[i]
	}

	if version >= 6 {
		hd.PassNoDataValues = extraBytes[0] != 0
		hd.IsInt = extraBytes[1] != 0
	}

	j := 0
	hd.MaxZError = dbls[j]
	j++
	hd.ZMin = dbls[j]
	j++
	hd.ZMax = dbls[j]
	j++
	if version >= 6 {
		hd.NoDataVal = dbls[j]
		j++
		hd.NoDataValOrig = dbls[j]
	}

	if hd.NRows <= 0 || hd.NCols <= 0 || hd.NDepth <= 0 || hd.NumValidPixel < 0 || hd.MicroBlockSize <= 0 || hd.BlobSize <= 0 {
		return header{}, 0, errf("lerc: invalid header values")
	}
	if hd.NRows > math.MaxInt32/hd.NCols {
		return header{}, 0, errf("lerc: row/col dimensions overflow")
	}
	if hd.NumValidPixel > hd.NRows*hd.NCols {
		return header{}, 0, errf("lerc: invalid valid-pixel count")
	}

	return hd, pos, nil
}

func fletcher32(data []byte) uint32 {
	sum1, sum2 := uint32(0xffff), uint32(0xffff)
	words := len(data) / 2
	i := 0
	for words > 0 {
		tlen := words
		if tlen > 359 {
			tlen = 359
		}
		words -= tlen
		for k := 0; k < tlen; k++ {
			sum1 += uint32(data[i]) << 8
			i++
			sum1 += uint32(data[i])
			sum2 += sum1
			i++
		}
		sum1 = (sum1 & 0xffff) + (sum1 >> 16)
		sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	}
	if len(data)&1 != 0 {
		sum1 += uint32(data[i]) << 8
		sum2 += sum1
	}
	sum1 = (sum1 & 0xffff) + (sum1 >> 16)
	sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	return (sum2 << 16) | sum1
}

func readMask(data []byte, pos int, hd header, mask *bitMask) (int, error) {
	w, h := hd.NCols, hd.NRows
	numValid := hd.NumValidPixel

	if pos+4 > len(data) {
		return 0, errf("lerc: truncated mask-size field")
	}
	numBytesMask := int32(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4

	if (numValid == 0 || numValid == w*h) && numBytesMask != 0 {
		return 0, errf("lerc: unexpected mask payload for fully valid/invalid image")
	}

	mask.setSize(w, h)
	switch {
	case numValid == 0:
		mask.setAllInvalid()
	case numValid == w*h:
		mask.setAllValid()
	case numBytesMask > 0:
		if pos+int(numBytesMask) > len(data) {
			return 0, errf("lerc: truncated mask payload")
		}
		if err := decompressMaskRLE(data[pos:pos+int(numBytesMask)], mask.bits); err != nil {
			return 0, err
		}
		pos += int(numBytesMask)
	}
	return pos, nil
}

func readValueAsF64(data []byte, pos int, dt DataType) float64 {
	switch dt {
	case DTChar:
		return float64(int8(data[pos]))
	case DTByte:
		return float64(data[pos])
	case DTShort:
		return float64(int16(binary.LittleEndian.Uint16(data[pos:])))
	case DTUShort:
		return float64(binary.LittleEndian.Uint16(data[pos:]))
	case DTInt:
		return float64(int32(binary.LittleEndian.Uint32(data[pos:])))
	case DTUInt:
		return float64(binary.LittleEndian.Uint32(data[pos:]))
	case DTFloat:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data[pos:])))
	case DTDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(data[pos:]))
	default:
		return 0
	}
}

func readMinMaxRanges(data []byte, pos int, hd header, elemType array.NumericType) ([]float64, []float64, int, error) {
	n := int(hd.NDepth)
	typeSize := elemType.ByteWidth()
	length := n * typeSize
	if pos+length*2 > len(data) {
		return nil, nil, 0, errf("lerc: truncated min/max ranges")
	}
	lercDT := lercDataTypeFor(elemType)
	minVec := make([]float64, n)
	for i := 0; i < n; i++ {
		minVec[i] = readValueAsF64(data, pos+i*typeSize, lercDT)
	}
	pos += length
	maxVec := make([]float64, n)
	for i := 0; i < n; i++ {
		maxVec[i] = readValueAsF64(data, pos+i*typeSize, lercDT)
	}
	pos += length
	return minVec, maxVec, pos, nil
}

func allEqual(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lercDataTypeFor(t array.NumericType) DataType {
	switch t {
	case array.Int8:
		return DTChar
	case array.Uint8:
		return DTByte
	case array.Int16:
		return DTShort
	case array.Uint16:
		return DTUShort
	case array.Int32:
		return DTInt
	case array.Uint32:
		return DTUInt
	case array.Float32:
		return DTFloat
	case array.Float64:
		return DTDouble
	default:
		return DTUndefined
	}
}

func fillConstant(dec *decoder, total int, elemType array.NumericType, bo binary.ByteOrder) ([]byte, error) {
	out := make([]float64, total)
	hd := dec.header
	n := int(hd.NCols) * int(hd.NRows)
	depth := int(hd.NDepth)
	if depth == 1 {
		for k := 0; k < n; k++ {
			if dec.mask.isValid(int32(k)) {
				out[k] = hd.ZMin
			}
		}
	} else {
		zBuf := make([]float64, depth)
		if hd.ZMin != hd.ZMax {
			if len(dec.zMinVec) != depth {
				return nil, errf("lerc: min-vector size mismatch")
			}
			copy(zBuf, dec.zMinVec)
		} else {
			for i := range zBuf {
				zBuf[i] = hd.ZMin
			}
		}
		for k := 0; k < n; k++ {
			if dec.mask.isValid(int32(k)) {
				copy(out[k*depth:(k+1)*depth], zBuf)
			}
		}
	}
	applyMaskNodata(out, dec, elemType)
	return valuesToBytes(out, elemType, bo), nil
}

// fillNodata sets every element to elemType's nodata sentinel (expressed
// as float64; valuesToBytes narrows it back down losslessly for every
// type LERC2 can carry).
func fillNodata(out []float64, elemType array.NumericType) {
	nodata := elemType.NodataF64()
	for i := range out {
		out[i] = nodata
	}
}

// applyMaskNodata overwrites pixels the validity mask marks invalid with
// the element type's nodata sentinel, so the decoded chunk carries the
// module's in-band nodata convention instead of the zero-fill the decode
// loops leave behind for skipped pixels.
func applyMaskNodata(out []float64, dec *decoder, elemType array.NumericType) {
	depth := int(dec.header.NDepth)
	if depth <= 0 {
		return
	}
	nodata := elemType.NodataF64()
	n := len(out) / depth
	for k := 0; k < n; k++ {
		if !dec.mask.isValid(int32(k)) {
			for d := 0; d < depth; d++ {
				out[k*depth+d] = nodata
			}
		}
	}
}

func readDataOneSweep(data []byte, pos int, dec *decoder, elemType array.NumericType, out []float64) error {
	hd := dec.header
	depth := int(hd.NDepth)
	typeSize := elemType.ByteWidth()
	length := depth * typeSize
	nValid := dec.mask.countValid()
	if pos+nValid*length > len(data) {
		return errf("lerc: truncated one-sweep payload")
	}
	lercDT := lercDataTypeFor(elemType)
	cols, rows := int(hd.NCols), int(hd.NRows)
	src := pos
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			k := i*cols + j
			m0 := k * depth
			if dec.mask.isValid(int32(k)) {
				for d := 0; d < depth; d++ {
					out[m0+d] = readValueAsF64(data, src+d*typeSize, lercDT)
				}
				src += length
			}
		}
	}
	return nil
}

func valuesToBytes(values []float64, elemType array.NumericType, bo binary.ByteOrder) []byte {
	width := elemType.ByteWidth()
	out := make([]byte, len(values)*width)
	for i, v := range values {
		off := i * width
		switch elemType {
		case array.Int8:
			out[off] = byte(int8(v))
		case array.Uint8:
			out[off] = byte(uint8(v))
		case array.Int16:
			bo.PutUint16(out[off:], uint16(int16(v)))
		case array.Uint16:
			bo.PutUint16(out[off:], uint16(v))
		case array.Int32:
			bo.PutUint32(out[off:], uint32(int32(v)))
		case array.Uint32:
			bo.PutUint32(out[off:], uint32(v))
		case array.Int64:
			bo.PutUint64(out[off:], uint64(int64(v)))
		case array.Uint64:
			bo.PutUint64(out[off:], uint64(v))
		case array.Float32:
			bo.PutUint32(out[off:], math.Float32bits(float32(v)))
		case array.Float64:
			bo.PutUint64(out[off:], math.Float64bits(v))
		}
	}
	return out
}
