package lerc

import "encoding/binary"

// bitUnstuff unpacks count values of numBits width each, packed MSB-first
// across successive little-endian uint32 words. The encoder stores the
// final word in only as many bytes as its used bits need, so the tail is
// assembled byte-by-byte rather than read as a full word. Grounded on
// BitStuffer2's BitUnStuff as exercised by lerc2.rs.
func bitUnstuff(data []byte, pos *int, numBits, count int) ([]uint32, error) {
	out := make([]uint32, count)
	if numBits <= 0 || count == 0 {
		return out, nil
	}
	if numBits > 32 {
		return nil, errf("bit-stuffer: invalid bit width %d", numBits)
	}

	totalBits := count * numBits
	numWords := (totalBits + 31) / 32
	tailBytes := 4
	if tb := totalBits & 31; tb > 0 {
		tailBytes = (tb + 7) / 8
	}
	numBytes := (numWords-1)*4 + tailBytes
	if *pos+numBytes > len(data) {
		return nil, errf("bit-stuffer: truncated stream, need %d bytes", numBytes)
	}

	words := make([]uint32, numWords)
	for i := 0; i < numWords-1; i++ {
		words[i] = binary.LittleEndian.Uint32(data[*pos+i*4:])
	}
	tailBase := *pos + (numWords-1)*4
	var tail uint32
	for b := 0; b < tailBytes; b++ {
		tail |= uint32(data[tailBase+b]) << (8 * uint(b))
	}
	// The encoder right-shifts the final word so its used (most
	// significant) bits survive little-endian truncation; restore them.
	words[numWords-1] = tail << (8 * uint(4-tailBytes))
	*pos += numBytes

	bitPos := 0
	w := 0
	for i := 0; i < count; i++ {
		if 32-bitPos >= numBits {
			out[i] = (words[w] << uint(bitPos)) >> uint(32-numBits)
			bitPos += numBits
			if bitPos == 32 {
				bitPos = 0
				w++
			}
		} else {
			n := (words[w] << uint(bitPos)) >> uint(32-numBits)
			w++
			bitPos -= 32 - numBits
			n |= words[w] >> uint(32-bitPos)
			out[i] = n
		}
	}
	return out, nil
}

// bitStuffDecode implements BitStuffer2::Decode as lerc2.rs calls it for
// bit-stuffed tile residuals and Huffman code-length tables. Header byte:
// bits 6-7 select the width of the element-count field (0 -> 4 bytes,
// 1 -> 2, 2 -> 1), bit 5 flags an index LUT, bits 0-4 carry the stuffed
// bit width. Streams older than LERC2 v3 use a different packing and are
// rejected.
func bitStuffDecode(data []byte, pos *int, maxElementCount int, version int32) ([]uint32, error) {
	if version < 3 {
		return nil, errf("bit-stuffer: pre-v3 bit packing is not supported")
	}
	if *pos >= len(data) {
		return nil, errf("bit-stuffer: missing header byte")
	}
	numBitsByte := data[*pos]
	*pos++

	bits67 := int(numBitsByte >> 6)
	nb := 4
	if bits67 != 0 {
		nb = 3 - bits67
	}
	if nb <= 0 {
		return nil, errf("bit-stuffer: invalid element-count field width")
	}
	doLut := numBitsByte&(1<<5) != 0
	numBits := int(numBitsByte & 31)

	if *pos+nb > len(data) {
		return nil, errf("bit-stuffer: truncated element-count field")
	}
	numElements := 0
	for i := 0; i < nb; i++ {
		numElements |= int(data[*pos+i]) << (8 * uint(i))
	}
	*pos += nb
	if numElements < 0 || numElements > maxElementCount {
		return nil, errf("bit-stuffer: element count %d exceeds maximum %d", numElements, maxElementCount)
	}

	if !doLut {
		return bitUnstuff(data, pos, numBits, numElements)
	}

	// Index LUT: a small table of distinct values, then per-element
	// indexes into it (index 0 is the implicit value 0 the encoder left
	// out of the table).
	if *pos >= len(data) {
		return nil, errf("bit-stuffer: truncated LUT size byte")
	}
	nLut := int(data[*pos])
	*pos++
	lut, err := bitUnstuff(data, pos, numBits, nLut)
	if err != nil {
		return nil, err
	}
	nBitsLut := 0
	for nLut>>uint(nBitsLut) > 0 {
		nBitsLut++
	}
	indexes, err := bitUnstuff(data, pos, nBitsLut, numElements)
	if err != nil {
		return nil, err
	}
	lutFull := make([]uint32, nLut+1)
	copy(lutFull[1:], lut)
	out := make([]uint32, numElements)
	for i, idx := range indexes {
		if int(idx) >= len(lutFull) {
			return nil, errf("bit-stuffer: LUT index %d out of range %d", idx, len(lutFull))
		}
		out[i] = lutFull[idx]
	}
	return out, nil
}
