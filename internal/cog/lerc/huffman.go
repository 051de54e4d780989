package lerc

import "encoding/binary"

const maxNumBitsLUT = 12
const maxHistoSize = 1 << 15
const invalidNode = ^uint32(0)

type flatNode struct {
	value          int16
	child0, child1 uint32
}

func newInternalNode() flatNode {
	return flatNode{value: -1, child0: invalidNode, child1: invalidNode}
}

func (n flatNode) isLeaf() bool { return n.value >= 0 }

// huffman is a canonical Huffman decoder for LERC2's byte/char Huffman
// mode, ported from huffman.rs (code table + flat-array tree + small LUT
// for short codes) with the unsafe fast paths dropped.
type huffman struct {
	codeLen  []uint16
	codeVal  []uint32
	decodeLUT []struct {
		length int16
		value  int16
	}
	numBitsLUT           int32
	numBitsToSkipInTree  int32
	flatTree             []flatNode
	needTree             bool
}

func indexWrapAround(i, size int32) int32 {
	if i < size {
		return i
	}
	return i - size
}

func (h *huffman) readCodeTable(data []byte, pos *int, lerc2Version int32) error {
	if *pos+16 > len(data) {
		return errHuffmanf("huffman: truncated code table header")
	}
	version := int32(binary.LittleEndian.Uint32(data[*pos:]))
	*pos += 4
	if version < 2 {
		return errHuffmanf("huffman: unsupported code table version %d", version)
	}
	size := int32(binary.LittleEndian.Uint32(data[*pos:]))
	*pos += 4
	i0 := int32(binary.LittleEndian.Uint32(data[*pos:]))
	*pos += 4
	i1 := int32(binary.LittleEndian.Uint32(data[*pos:]))
	*pos += 4

	if i0 >= i1 || i0 < 0 || size < 0 || size > maxHistoSize {
		return errHuffmanf("huffman: invalid code table parameters")
	}
	if indexWrapAround(i0, size) >= size || indexWrapAround(i1-1, size) >= size {
		return errHuffmanf("huffman: invalid code range")
	}

	numLengths := int(i1 - i0)
	codeLengths, err := bitStuffDecode(data, pos, numLengths, lerc2Version)
	if err != nil {
		return err
	}

	h.codeLen = make([]uint16, size)
	h.codeVal = make([]uint32, size)
	for i := i0; i < i1; i++ {
		k := indexWrapAround(i, size)
		h.codeLen[k] = uint16(codeLengths[i-i0])
	}

	return h.bitUnstuffCodes(data, pos, i0, i1)
}

func (h *huffman) bitUnstuffCodes(data []byte, pos *int, i0, i1 int32) error {
	size := int32(len(h.codeLen))
	bitPos := int32(0)
	ptr0 := *pos

	for i := i0; i < i1; i++ {
		k := indexWrapAround(i, size)
		length := int32(h.codeLen[k])
		if length <= 0 {
			continue
		}
		if *pos+4 > len(data) {
			return errHuffmanf("huffman: truncated code stream")
		}
		temp := binary.LittleEndian.Uint32(data[*pos:])
		code := (temp << uint(bitPos)) >> uint(32-length)

		if 32-bitPos >= length {
			bitPos += length
			if bitPos == 32 {
				bitPos = 0
				*pos += 4
			}
			h.codeVal[k] = code
		} else {
			bitPos += length - 32
			*pos += 4
			if *pos+4 > len(data) {
				return errHuffmanf("huffman: truncated code stream crossing word boundary")
			}
			temp2 := binary.LittleEndian.Uint32(data[*pos:])
			h.codeVal[k] = code | (temp2 >> uint(32-bitPos))
		}
	}

	consumed := (*pos - ptr0)
	if bitPos > 0 {
		consumed += 4
	}
	*pos = ptr0 + consumed
	return nil
}

func (h *huffman) getRange() (i0, i1, maxLen int32, err error) {
	size := int32(len(h.codeLen))
	if size == 0 || size >= maxHistoSize {
		return 0, 0, 0, errHuffmanf("huffman: invalid code table")
	}

	var i int32
	for i = 0; i < size && h.codeLen[i] == 0; i++ {
	}
	i0Simple := i
	for i = size - 1; i >= 0 && h.codeLen[i] == 0; i-- {
	}
	i1Simple := i + 1
	if i1Simple <= i0Simple {
		return 0, 0, 0, errHuffmanf("huffman: empty code table")
	}

	var segStart, segLen int32
	j := int32(0)
	for j < size {
		for j < size && h.codeLen[j] > 0 {
			j++
		}
		k0 := j
		for j < size && h.codeLen[j] == 0 {
			j++
		}
		k1 := j
		if k1-k0 > segLen {
			segStart, segLen = k0, k1-k0
		}
	}

	if size-segLen < i1Simple-i0Simple {
		i0, i1 = segStart+segLen, segStart+size
	} else {
		i0, i1 = i0Simple, i1Simple
	}
	if i1 <= i0 {
		return 0, 0, 0, errHuffmanf("huffman: invalid code range")
	}

	for i := i0; i < i1; i++ {
		k := indexWrapAround(i, size)
		if l := int32(h.codeLen[k]); l > maxLen {
			maxLen = l
		}
	}
	if maxLen <= 0 || maxLen > 32 {
		return 0, 0, 0, errHuffmanf("huffman: invalid max code length %d", maxLen)
	}
	return i0, i1, maxLen, nil
}

func (h *huffman) buildTreeFromCodes() error {
	i0, i1, maxLen, err := h.getRange()
	if err != nil {
		return err
	}
	size := int32(len(h.codeLen))
	minNumZeroBits := int32(32)

	h.needTree = maxLen > maxNumBitsLUT
	h.numBitsLUT = maxLen
	if h.numBitsLUT > maxNumBitsLUT {
		h.numBitsLUT = maxNumBitsLUT
	}
	sizeLUT := 1 << uint(h.numBitsLUT)

	h.decodeLUT = make([]struct {
		length int16
		value  int16
	}, sizeLUT)
	for i := range h.decodeLUT {
		h.decodeLUT[i].length = -1
		h.decodeLUT[i].value = -1
	}

	for i := i0; i < i1; i++ {
		k := indexWrapAround(i, size)
		length := int32(h.codeLen[k])
		if length == 0 {
			continue
		}
		code := h.codeVal[k]

		if length <= h.numBitsLUT {
			shiftedCode := code << uint(h.numBitsLUT-length)
			numEntries := uint32(1) << uint(h.numBitsLUT-length)
			for j := uint32(0); j < numEntries; j++ {
				idx := shiftedCode | j
				h.decodeLUT[idx].length = int16(length)
				h.decodeLUT[idx].value = int16(k)
			}
		} else {
			shift := int32(1)
			tmp := code
			for tmp > 1 {
				tmp >>= 1
				shift++
			}
			if l := length - shift; l < minNumZeroBits {
				minNumZeroBits = l
			}
		}
	}

	if h.needTree {
		h.numBitsToSkipInTree = minNumZeroBits
	} else {
		h.numBitsToSkipInTree = 0
		h.flatTree = nil
		return nil
	}

	h.flatTree = []flatNode{newInternalNode()}
	for i := i0; i < i1; i++ {
		k := indexWrapAround(i, size)
		length := int32(h.codeLen[k])
		if length == 0 || length <= h.numBitsLUT {
			continue
		}
		code := h.codeVal[k]
		nodeIdx := uint32(0)
		j := length - h.numBitsToSkipInTree
		for j > 0 {
			j--
			bit := (code >> uint(j)) & 1
			var childIdx *uint32
			if bit == 1 {
				childIdx = &h.flatTree[nodeIdx].child1
			} else {
				childIdx = &h.flatTree[nodeIdx].child0
			}
			if *childIdx == invalidNode {
				newIdx := uint32(len(h.flatTree))
				h.flatTree = append(h.flatTree, newInternalNode())
				*childIdx = newIdx
			}
			nodeIdx = *childIdx
			if j == 0 {
				h.flatTree[nodeIdx].value = int16(k)
			}
		}
	}
	return nil
}

// decodeOneValue decodes one Huffman symbol starting at the given bit
// position (bitPos counted within the 32-bit word at data[*pos:]).
func (h *huffman) decodeOneValue(data []byte, pos *int, bitPos *int32) (int32, error) {
	if *pos+4 > len(data) {
		return 0, errHuffmanf("huffman: truncated symbol stream")
	}
	temp := binary.LittleEndian.Uint32(data[*pos:])
	valTmp := (temp << uint(*bitPos)) >> uint(32-h.numBitsLUT)
	if 32-*bitPos < h.numBitsLUT {
		if *pos+8 > len(data) {
			return 0, errHuffmanf("huffman: truncated symbol stream crossing word boundary")
		}
		temp2 := binary.LittleEndian.Uint32(data[*pos+4:])
		valTmp |= temp2 >> uint(64-*bitPos-h.numBitsLUT)
	}

	entry := h.decodeLUT[valTmp]
	if entry.length >= 0 {
		*bitPos += int32(entry.length)
		if *bitPos >= 32 {
			*bitPos -= 32
			*pos += 4
		}
		return int32(entry.value), nil
	}

	if !h.needTree || len(h.flatTree) == 0 {
		return 0, errHuffmanf("huffman: no decode tree for long code")
	}

	*bitPos += h.numBitsToSkipInTree
	if *bitPos >= 32 {
		*bitPos -= 32
		*pos += 4
	}

	nodeIdx := uint32(0)
	for {
		if *pos+4 > len(data) {
			return 0, errHuffmanf("huffman: truncated tree traversal")
		}
		temp := binary.LittleEndian.Uint32(data[*pos:])
		bit := (temp << uint(*bitPos)) >> 31
		*bitPos++
		if *bitPos == 32 {
			*bitPos = 0
			*pos += 4
		}
		node := h.flatTree[nodeIdx]
		if bit != 0 {
			nodeIdx = node.child1
		} else {
			nodeIdx = node.child0
		}
		if nodeIdx == invalidNode {
			return 0, errHuffmanf("huffman: invalid tree path")
		}
		node = h.flatTree[nodeIdx]
		if node.isLeaf() {
			return int32(node.value), nil
		}
	}
}
