package lerc

import (
	"encoding/binary"
	"testing"
)

// packMSB mirrors the encoder: values stuffed MSB-first into 32-bit words,
// words stored little-endian, the final word right-shifted so only its
// used high bits survive byte truncation.
func packMSB(values []uint32, numBits int) []byte {
	totalBits := len(values) * numBits
	numWords := (totalBits + 31) / 32
	words := make([]uint32, numWords)
	bitPos := 0
	w := 0
	for _, v := range values {
		if 32-bitPos >= numBits {
			words[w] |= v << uint(32-bitPos-numBits)
			bitPos += numBits
			if bitPos == 32 {
				bitPos = 0
				w++
			}
		} else {
			words[w] |= v >> uint(numBits-(32-bitPos))
			w++
			bitPos = numBits - (32 - bitPos)
			words[w] |= v << uint(32-bitPos)
		}
	}
	tailBytes := 4
	if tb := totalBits & 31; tb > 0 {
		tailBytes = (tb + 7) / 8
	}
	out := make([]byte, 0, (numWords-1)*4+tailBytes)
	var scratch [4]byte
	for i := 0; i < numWords-1; i++ {
		binary.LittleEndian.PutUint32(scratch[:], words[i])
		out = append(out, scratch[:]...)
	}
	binary.LittleEndian.PutUint32(scratch[:], words[numWords-1]>>uint(8*(4-tailBytes)))
	out = append(out, scratch[:tailBytes]...)
	return out
}

func TestBitUnstuffRoundTrip(t *testing.T) {
	cases := []struct {
		values  []uint32
		numBits int
	}{
		{[]uint32{1, 2, 3, 4, 5}, 3},
		{[]uint32{0, 7, 0, 7}, 3},
		{[]uint32{1023, 0, 512, 511}, 10},
		{[]uint32{1}, 1},
		{[]uint32{0xFFFFFF, 0, 0x123456, 0xABCDEF, 42}, 24},
	}
	for _, c := range cases {
		data := packMSB(c.values, c.numBits)
		pos := 0
		got, err := bitUnstuff(data, &pos, c.numBits, len(c.values))
		if err != nil {
			t.Fatalf("bitUnstuff(%d bits): %v", c.numBits, err)
		}
		if pos != len(data) {
			t.Errorf("bitUnstuff consumed %d of %d bytes", pos, len(data))
		}
		for i, v := range c.values {
			if got[i] != v {
				t.Errorf("value %d = %d, want %d (numBits=%d)", i, got[i], v, c.numBits)
			}
		}
	}
}

func TestBitStuffDecodePlain(t *testing.T) {
	values := []uint32{1, 2, 3, 4, 5}
	packed := packMSB(values, 3)

	// Header: count-field width 1 byte (bits67=2), no LUT, 3 stuffed bits.
	data := []byte{2<<6 | 3, 5}
	data = append(data, packed...)

	pos := 0
	got, err := bitStuffDecode(data, &pos, len(values), 3)
	if err != nil {
		t.Fatalf("bitStuffDecode: %v", err)
	}
	for i, v := range values {
		if got[i] != v {
			t.Errorf("value %d = %d, want %d", i, got[i], v)
		}
	}
}

func TestBitStuffDecodeLUT(t *testing.T) {
	// Raw values 0/5/9: the LUT stores the nonzero distinct values, the
	// stream stores per-element indexes, and index 0 is the implicit 0.
	lut := []uint32{5, 9}
	indexes := []uint32{0, 1, 2, 1, 0, 2}
	want := []uint32{0, 5, 9, 5, 0, 9}

	data := []byte{2<<6 | 1<<5 | 4, byte(len(indexes)), byte(len(lut))}
	data = append(data, packMSB(lut, 4)...)
	data = append(data, packMSB(indexes, 2)...) // 2 bits address lut size 2 (+1 implicit zero)

	pos := 0
	got, err := bitStuffDecode(data, &pos, len(indexes), 3)
	if err != nil {
		t.Fatalf("bitStuffDecode LUT: %v", err)
	}
	for i, v := range want {
		if got[i] != v {
			t.Errorf("value %d = %d, want %d", i, got[i], v)
		}
	}
}

func TestBitStuffDecodeRejectsPreV3(t *testing.T) {
	if _, err := bitStuffDecode([]byte{3, 1}, new(int), 1, 2); err == nil {
		t.Fatal("expected pre-v3 streams to be rejected")
	}
}

func TestBitStuffDecodeCountOverflow(t *testing.T) {
	data := []byte{2<<6 | 3, 200}
	pos := 0
	if _, err := bitStuffDecode(data, &pos, 5, 3); err == nil {
		t.Fatal("expected element count exceeding the maximum to be rejected")
	}
}
