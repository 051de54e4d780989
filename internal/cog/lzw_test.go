package cog

import (
	"bytes"
	"testing"
)

// encodeLZWLiterals emits a TIFF-LZW stream of 9-bit codes: a clear code,
// each payload byte as a literal code, then EOI. Valid as long as the
// payload is short enough that the decoder's code width never grows past
// 9 bits (fewer than 253 literals).
func encodeLZWLiterals(payload []byte) []byte {
	var out []byte
	var acc uint32
	bits := 0
	emit := func(code int) {
		acc = acc<<9 | uint32(code)
		bits += 9
		for bits >= 8 {
			out = append(out, byte(acc>>uint(bits-8)))
			bits -= 8
		}
	}
	emit(lzwClearCode)
	for _, b := range payload {
		emit(int(b))
	}
	emit(lzwEOICode)
	if bits > 0 {
		out = append(out, byte(acc<<uint(8-bits)))
	}
	return out
}

func TestLZWDecodesLiteralStream(t *testing.T) {
	payloads := [][]byte{
		[]byte("a"),
		[]byte("hello, tiff lzw"),
		bytes.Repeat([]byte{0x00, 0xff, 0x7f}, 60),
	}
	for _, p := range payloads {
		got, err := decompressTIFFLZW(encodeLZWLiterals(p))
		if err != nil {
			t.Fatalf("decompressTIFFLZW: %v", err)
		}
		if !bytes.Equal(got, p) {
			t.Errorf("decoded %d bytes, want %d: %q vs %q", len(got), len(p), got, p)
		}
	}
}

func TestLZWRejectsStreamWithoutClearCode(t *testing.T) {
	// A stream whose first 9-bit code is a literal, not the clear code.
	if _, err := decompressTIFFLZW([]byte{0x00, 0x80}); err == nil {
		t.Fatal("expected error for stream not opening with a clear code")
	}
}

func TestLZWEmptyInput(t *testing.T) {
	out, err := decompressTIFFLZW(nil)
	if err != nil {
		t.Fatalf("empty input: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("empty input should decode to no bytes, got %d", len(out))
	}
}
