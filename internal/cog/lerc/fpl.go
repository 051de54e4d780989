package lerc

import "encoding/binary"

const fplMaxDelta = 5

type fplPredictor int

const (
	fplPredictorNone fplPredictor = iota
	fplPredictorDelta1
	fplPredictorRowsCols
)

func fplPredictorFromCode(code byte) (fplPredictor, bool) {
	switch code {
	case 0:
		return fplPredictorNone, true
	case 1:
		return fplPredictorDelta1, true
	case 2:
		return fplPredictorRowsCols, true
	default:
		return 0, false
	}
}

func (p fplPredictor) intDelta() int {
	switch p {
	case fplPredictorDelta1:
		return 1
	case fplPredictorRowsCols:
		return 2
	default:
		return 0
	}
}

// decodeFPL implements LERC2 v6's float-point lossless mode (spec.md
// §4.5.1): per-byte-plane Huffman/RLE/PackBits decompression, delta
// restoration, a row/column predictor, and the float bit-transform
// reversal. Ported from fpl.rs's decode_fpl family.
func decodeFPL(data []byte, pos *int, isDouble bool, width, height, depth int32) ([]byte, error) {
	if depth == 1 {
		return decodeFPLSlice(data, pos, isDouble, int(width), int(height))
	}
	return decodeFPLSlice(data, pos, isDouble, int(depth), int(width*height))
}

func decodeFPLSlice(data []byte, pos *int, isDouble bool, width, height int) ([]byte, error) {
	unitSize := 4
	if isDouble {
		unitSize = 8
	}
	expectedSize := width * height

	if *pos >= len(data) {
		return nil, errFplf("fpl: truncated predictor code")
	}
	predCode := data[*pos]
	*pos++
	if predCode > 2 {
		return nil, errFplf("fpl: invalid predictor code %d", predCode)
	}
	predictor, _ := fplPredictorFromCode(predCode)

	type plane struct {
		byteIndex int
		data      []byte
	}
	planes := make([]plane, 0, unitSize)

	for i := 0; i < unitSize; i++ {
		if *pos+6 > len(data) {
			return nil, errFplf("fpl: truncated byte-plane header")
		}
		byteIndex := int(data[*pos])
		*pos++
		if byteIndex >= unitSize {
			return nil, errFplf("fpl: invalid byte index %d", byteIndex)
		}
		bestLevel := data[*pos]
		*pos++
		if bestLevel > fplMaxDelta {
			return nil, errFplf("fpl: invalid delta level %d", bestLevel)
		}
		compressedSize := int(binary.LittleEndian.Uint32(data[*pos:]))
		*pos += 4
		if *pos+compressedSize > len(data) {
			return nil, errFplf("fpl: truncated byte-plane payload")
		}
		compressed := data[*pos : *pos+compressedSize]
		*pos += compressedSize

		decoded, err := decodeFPLHuffman(compressed, expectedSize)
		if err != nil {
			return nil, err
		}
		restoreByteSequence(decoded, int(bestLevel))
		planes = append(planes, plane{byteIndex: byteIndex, data: decoded})
	}

	output := make([]byte, expectedSize*unitSize)
	for i := 0; i < expectedSize; i++ {
		for _, p := range planes {
			output[i*unitSize+p.byteIndex] = p.data[i]
		}
	}

	if isDouble {
		values := make([]uint64, expectedSize)
		for i := range values {
			values[i] = binary.LittleEndian.Uint64(output[i*8:])
		}
		switch predictor {
		case fplPredictorRowsCols:
			restoreCrossDouble(values, width, height)
		default:
			restoreBlockSequenceDouble(predictor.intDelta(), values, width, height)
		}
		for i, v := range values {
			binary.LittleEndian.PutUint64(output[i*8:], v)
		}
	} else {
		values := make([]uint32, expectedSize)
		for i := range values {
			values[i] = binary.LittleEndian.Uint32(output[i*4:])
		}
		switch predictor {
		case fplPredictorRowsCols:
			restoreCrossFloat(values, width, height)
		default:
			restoreBlockSequenceFloat(predictor.intDelta(), values, width, height)
		}
		undoFloatTransform(values)
		for i, v := range values {
			binary.LittleEndian.PutUint32(output[i*4:], v)
		}
	}

	return output, nil
}

func decodeFPLHuffman(data []byte, expectedSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errFplf("fpl: empty huffman payload")
	}
	switch data[0] {
	case 0: // normal Huffman
		pos := 1
		h := &huffman{}
		if err := h.readCodeTable(data, &pos, 5); err != nil {
			return nil, err
		}
		if err := h.buildTreeFromCodes(); err != nil {
			return nil, err
		}
		out := make([]byte, expectedSize)
		bitPos := int32(0)
		for i := 0; i < expectedSize; i++ {
			v, err := h.decodeOneValue(data, &pos, &bitPos)
			if err != nil {
				return nil, err
			}
			out[i] = byte(v)
		}
		return out, nil
	case 1: // RLE, single repeated value
		if len(data) < 6 {
			return nil, errFplf("fpl: truncated RLE block")
		}
		value := data[1]
		count := int(binary.LittleEndian.Uint32(data[2:6]))
		if count != expectedSize {
			return nil, errFplf("fpl: RLE count mismatch %d vs %d", count, expectedSize)
		}
		out := make([]byte, expectedSize)
		for i := range out {
			out[i] = value
		}
		return out, nil
	case 2: // uncompressed
		if len(data) < 1+expectedSize {
			return nil, errFplf("fpl: truncated raw block")
		}
		return append([]byte(nil), data[1:1+expectedSize]...), nil
	case 3: // PackBits variant
		return decodeFPLPackBits(data[1:], expectedSize)
	default:
		return nil, errFplf("fpl: unknown huffman encoding flag %d", data[0])
	}
}

func decodeFPLPackBits(data []byte, expectedSize int) ([]byte, error) {
	out := make([]byte, 0, expectedSize)
	i := 0
	for i < len(data) && len(out) < expectedSize {
		b := int(data[i])
		if b <= 127 {
			for b >= 0 {
				i++
				if i >= len(data) {
					return nil, errFplf("fpl: truncated packbits literal run")
				}
				out = append(out, data[i])
				b--
			}
			i++
		} else {
			i++
			if i >= len(data) {
				return nil, errFplf("fpl: truncated packbits repeat run")
			}
			value := data[i]
			for b >= 127 {
				out = append(out, value)
				b--
			}
			i++
		}
	}
	if len(out) != expectedSize {
		return nil, errFplf("fpl: packbits size mismatch %d vs %d", len(out), expectedSize)
	}
	return out, nil
}

func restoreByteSequence(data []byte, level int) {
	if level <= 0 || len(data) == 0 {
		return
	}
	for l := level; l >= 1; l-- {
		for i := l; i < len(data); i++ {
			data[i] += data[i-1]
		}
	}
}

const fltMantMask uint32 = 0x007FFFFF
const flt9BitMask uint32 = 0xFF800000
const dblMantMask uint64 = 0x000FFFFFFFFFFFFF
const dbl12BitMask uint64 = 0xFFF0000000000000

func undoFloatTransform(data []uint32) {
	for i, v := range data {
		ret := v & fltMantMask
		ae := (v & flt9BitMask) >> 24 & 0xFF
		sign := (v >> 23) & 0x01
		ret |= ae << 23
		ret |= sign << 31
		data[i] = ret
	}
}

func addFloat(a, b uint32) uint32 {
	ret := (a + b) & fltMantMask
	ae := (a & flt9BitMask) >> 23 & 0x1FF
	be := (b & flt9BitMask) >> 23 & 0x1FF
	ret |= ((ae + be) & 0x1FF) << 23
	return ret
}

func addDouble(a, b uint64) uint64 {
	am := a & dblMantMask
	bm := b & dblMantMask
	ret := (am + bm) & dblMantMask
	ae := (a & dbl12BitMask) >> 52 & 0xFFF
	be := (b & dbl12BitMask) >> 52 & 0xFFF
	ret |= ((ae + be) & 0xFFF) << 52
	return ret
}

func restoreBlockSequenceFloat(delta int, data []uint32, cols, rows int) {
	if delta == 2 {
		for row := 0; row < rows; row++ {
			rs := row * cols
			for i := 2; i < cols; i++ {
				data[rs+i] = addFloat(data[rs+i], data[rs+i-1])
			}
		}
	}
	if delta >= 1 {
		for row := 0; row < rows; row++ {
			rs := row * cols
			for i := 1; i < cols; i++ {
				data[rs+i] = addFloat(data[rs+i], data[rs+i-1])
			}
		}
	}
}

func restoreBlockSequenceDouble(delta int, data []uint64, cols, rows int) {
	if delta == 2 {
		for row := 0; row < rows; row++ {
			rs := row * cols
			for i := 2; i < cols; i++ {
				data[rs+i] = addDouble(data[rs+i], data[rs+i-1])
			}
		}
	}
	if delta >= 1 {
		for row := 0; row < rows; row++ {
			rs := row * cols
			for i := 1; i < cols; i++ {
				data[rs+i] = addDouble(data[rs+i], data[rs+i-1])
			}
		}
	}
}

func restoreCrossFloat(data []uint32, cols, rows int) {
	for col := 0; col < cols; col++ {
		for row := 1; row < rows; row++ {
			idx := row*cols + col
			prev := (row-1)*cols + col
			data[idx] = addFloat(data[idx], data[prev])
		}
	}
	for row := 0; row < rows; row++ {
		rs := row * cols
		for i := 1; i < cols; i++ {
			data[rs+i] = addFloat(data[rs+i], data[rs+i-1])
		}
	}
}

func restoreCrossDouble(data []uint64, cols, rows int) {
	for col := 0; col < cols; col++ {
		for row := 1; row < rows; row++ {
			idx := row*cols + col
			prev := (row-1)*cols + col
			data[idx] = addDouble(data[idx], data[prev])
		}
	}
	for row := 0; row < rows; row++ {
		rs := row * cols
		for i := 1; i < cols; i++ {
			data[rs+i] = addDouble(data[rs+i], data[rs+i-1])
		}
	}
}
