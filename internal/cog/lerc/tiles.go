package lerc

import (
	"encoding/binary"
	"math"

	"github.com/cogengine/raster/internal/array"
)

// decodeHuffmanImage decodes LERC2's whole-image byte/char Huffman mode,
// ported from lerc2.rs's decode_huffman: modeHuffman stores each symbol
// directly (minus the char offset of 128); modeDeltaHuffman stores deltas
// against the previous valid pixel (or the pixel above at a row start),
// added back with 8-bit wrapping.
func decodeHuffmanImage(data []byte, pos int, dec *decoder, mode imageEncodeMode, out []float64) error {
	h := &huffman{}
	if err := h.readCodeTable(data, &pos, dec.header.Version); err != nil {
		return err
	}
	if err := h.buildTreeFromCodes(); err != nil {
		return err
	}

	hd := dec.header
	offset := int32(0)
	if hd.DT == DTChar {
		offset = 128
	}
	width, height := int(hd.NCols), int(hd.NRows)
	depth := int(hd.NDepth)
	bitPos := int32(0)
	allValid := int(hd.NumValidPixel) == width*height

	// wrap8 reproduces the encoder's unsigned 8-bit overflow, then
	// reinterprets the low byte in the image's own char/byte domain.
	wrap8 := func(v int32) int32 {
		if hd.DT == DTChar {
			return int32(int8(uint8(v)))
		}
		return int32(uint8(v))
	}

	switch mode {
	case modeDeltaHuffman:
		for d := 0; d < depth; d++ {
			var prev int32
			for i := 0; i < height; i++ {
				for j := 0; j < width; j++ {
					k := i*width + j
					m := k*depth + d
					if !allValid && !dec.mask.isValid(int32(k)) {
						continue
					}
					sym, err := h.decodeOneValue(data, &pos, &bitPos)
					if err != nil {
						return err
					}
					delta := sym - offset
					var v int32
					switch {
					case j > 0 && (allValid || dec.mask.isValid(int32(k-1))):
						v = wrap8(delta + prev)
					case i > 0 && (allValid || dec.mask.isValid(int32(k-width))):
						v = wrap8(delta + int32(out[m-width*depth]))
					default:
						v = wrap8(delta + prev)
					}
					out[m] = float64(v)
					prev = v
				}
			}
		}
	case modeHuffman:
		for i := 0; i < height; i++ {
			for j := 0; j < width; j++ {
				k := i*width + j
				if !allValid && !dec.mask.isValid(int32(k)) {
					continue
				}
				m0 := k * depth
				for d := 0; d < depth; d++ {
					sym, err := h.decodeOneValue(data, &pos, &bitPos)
					if err != nil {
						return err
					}
					out[m0+d] = float64(sym - offset)
				}
			}
		}
	default:
		return errHuffmanf("huffman: invalid image encode mode %d", mode)
	}
	return nil
}

// decodeFPLImage decodes LERC2 v6's float-point lossless whole-image mode
// via the byte-plane decoder in fpl.go, writing the result into out.
func decodeFPLImage(data []byte, pos int, dec *decoder, elemType array.NumericType, out []float64) error {
	isDouble := dec.header.DT == DTDouble
	depth := dec.header.NDepth
	decoded, err := decodeFPL(data, &pos, isDouble, dec.header.NCols, dec.header.NRows, depth)
	if err != nil {
		return err
	}
	unit := 4
	if isDouble {
		unit = 8
	}
	if len(decoded) != len(out)*unit {
		return errFplf("fpl: decoded size %d does not match %d values of %d bytes", len(decoded), len(out), unit)
	}
	n := len(out)
	for i := 0; i < n; i++ {
		if isDouble {
			bits := binary.LittleEndian.Uint64(decoded[i*unit:])
			out[i] = math.Float64frombits(bits)
		} else {
			bits := binary.LittleEndian.Uint32(decoded[i*unit:])
			out[i] = float64(math.Float32frombits(bits))
		}
	}
	return nil
}

// readTiles decodes the micro-block tiled residual layout (lerc2.rs's
// read_tiles), the fallback whole-image encoding used when neither
// Huffman nor FPL applies. Tiles are visited row-major, and each tile
// carries one sub-block per depth slice.
func readTiles(data []byte, pos int, dec *decoder, out []float64) error {
	hd := dec.header
	cols, rows := int(hd.NCols), int(hd.NRows)
	depth := int(hd.NDepth)
	mb := int(hd.MicroBlockSize)
	if mb <= 0 {
		return errf("lerc: invalid micro-block size")
	}

	for i0 := 0; i0 < rows; i0 += mb {
		i1 := i0 + mb
		if i1 > rows {
			i1 = rows
		}
		for j0 := 0; j0 < cols; j0 += mb {
			j1 := j0 + mb
			if j1 > cols {
				j1 = cols
			}
			for d := 0; d < depth; d++ {
				var err error
				pos, err = readTile(data, pos, dec, i0, i1, j0, j1, d, out)
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// dataTypeUsed reverses the per-tile offset-type reduction the encoder
// applies: bits 6-7 of the tile's flag byte shrink the offset field to a
// narrower type when the base value fits (lerc2.rs's get_data_type_used).
func dataTypeUsed(dt DataType, tc byte) DataType {
	t := int32(tc)
	switch dt {
	case DTShort, DTInt:
		if d, ok := dataTypeFromInt(int32(dt) - t); ok {
			return d
		}
		return dt
	case DTUShort, DTUInt:
		if d, ok := dataTypeFromInt(int32(dt) - 2*t); ok {
			return d
		}
		return dt
	case DTFloat:
		switch t {
		case 0:
			return dt
		case 1:
			return DTShort
		default:
			return DTByte
		}
	case DTDouble:
		if t == 0 {
			return dt
		}
		if d, ok := dataTypeFromInt(int32(dt) - 2*t + 1); ok {
			return d
		}
		return dt
	default:
		return dt
	}
}

// readTile decodes one micro-block for one depth slice (lerc2.rs's
// read_tile): flag bits 0-1 select constant-zero / uncompressed binary /
// bit-stuffed / constant-offset, bit 2 (v5+) flags delta encoding against
// the previous depth sample, bits 2-5 double as an integrity check against
// the tile's column origin, bits 6-7 shrink the offset field's type.
func readTile(data []byte, pos int, dec *decoder, i0, i1, j0, j1, iDepth int, out []float64) (int, error) {
	hd := dec.header
	nCols := int(hd.NCols)
	nDepth := int(hd.NDepth)

	if pos >= len(data) {
		return 0, errf("lerc: truncated tile flag byte")
	}
	flagByte := data[pos]
	pos++

	diffEnc := hd.Version >= 5 && flagByte&4 != 0
	pattern := byte(15)
	if hd.Version >= 5 {
		pattern = 14
	}
	if (flagByte>>2)&pattern != byte(j0>>3)&pattern {
		return 0, errf("lerc: tile integrity check failed at column %d", j0)
	}
	if diffEnc && iDepth == 0 {
		return 0, errf("lerc: delta encoding on the first depth slice")
	}

	bits67 := flagByte >> 6
	comprFlag := flagByte & 3

	switch comprFlag {
	case 2:
		// Entire tile is constant 0 (or repeats the previous depth sample).
		for i := i0; i < i1; i++ {
			k := i*nCols + j0
			m := k*nDepth + iDepth
			for j := j0; j < j1; j++ {
				if dec.mask.isValid(int32(k)) {
					if diffEnc {
						out[m] = out[m-1]
					} else {
						out[m] = 0
					}
				}
				k++
				m += nDepth
			}
		}
		return pos, nil

	case 0:
		// Uncompressed binary: one native-width value per valid pixel.
		if diffEnc {
			return 0, errf("lerc: uncompressed tile cannot be delta encoded")
		}
		typeSize := hd.DT.size()
		for i := i0; i < i1; i++ {
			k := i*nCols + j0
			m := k*nDepth + iDepth
			for j := j0; j < j1; j++ {
				if dec.mask.isValid(int32(k)) {
					if pos+typeSize > len(data) {
						return 0, errf("lerc: truncated uncompressed tile payload")
					}
					out[m] = readValueAsF64(data, pos, hd.DT)
					pos += typeSize
				}
				k++
				m += nDepth
			}
		}
		return pos, nil
	}

	// comprFlag 1 or 3: a base offset in a possibly-reduced type, then for
	// flag 1 a bit-stuffed residual per pixel scaled by 2*maxZError.
	baseDT := hd.DT
	if diffEnc && hd.DT < DTFloat {
		baseDT = DTInt
	}
	dtUsed := dataTypeUsed(baseDT, bits67)
	typeSize := dtUsed.size()
	if typeSize == 0 || pos+typeSize > len(data) {
		return 0, errf("lerc: truncated tile offset field")
	}
	offset := readValueAsF64(data, pos, dtUsed)
	pos += typeSize

	zMax := hd.ZMax
	if hd.Version >= 4 && hd.NDepth > 1 {
		if iDepth >= len(dec.zMaxVec) {
			return 0, errf("lerc: missing per-depth max value")
		}
		zMax = dec.zMaxVec[iDepth]
	}

	if comprFlag == 3 {
		// Entire tile is the constant offset value.
		for i := i0; i < i1; i++ {
			k := i*nCols + j0
			m := k*nDepth + iDepth
			for j := j0; j < j1; j++ {
				if dec.mask.isValid(int32(k)) {
					if diffEnc {
						z := offset + out[m-1]
						if z > zMax {
							z = zMax
						}
						out[m] = z
					} else {
						out[m] = offset
					}
				}
				k++
				m += nDepth
			}
		}
		return pos, nil
	}

	maxElementCount := (i1 - i0) * (j1 - j0)
	vals, err := bitStuffDecode(data, &pos, maxElementCount, hd.Version)
	if err != nil {
		return 0, err
	}
	invScale := 2 * hd.MaxZError

	if len(vals) == maxElementCount {
		// All pixels present, mask consulted only by the encoder.
		srcIdx := 0
		for i := i0; i < i1; i++ {
			k := i*nCols + j0
			m := k*nDepth + iDepth
			for j := j0; j < j1; j++ {
				z := offset + float64(vals[srcIdx])*invScale
				if diffEnc {
					z += out[m-1]
				}
				if z > zMax {
					z = zMax
				}
				out[m] = z
				srcIdx++
				k++
				m += nDepth
			}
		}
		return pos, nil
	}

	srcIdx := 0
	for i := i0; i < i1; i++ {
		k := i*nCols + j0
		m := k*nDepth + iDepth
		for j := j0; j < j1; j++ {
			if dec.mask.isValid(int32(k)) {
				if srcIdx >= len(vals) {
					return 0, errf("lerc: tile residual buffer underrun")
				}
				z := offset + float64(vals[srcIdx])*invScale
				if diffEnc {
					z += out[m-1]
				}
				if z > zMax {
					z = zMax
				}
				out[m] = z
				srcIdx++
			}
			k++
			m += nDepth
		}
	}
	return pos, nil
}
