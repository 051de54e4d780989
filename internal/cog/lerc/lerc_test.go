package lerc

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/cogengine/raster/internal/array"
)

// buildConstantByteBlob assembles a minimal v3 LERC2 blob for a fully
// valid constant byte image: header, checksum, and an empty mask section.
func buildConstantByteBlob(rows, cols int32, value byte) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	w32 := func(v uint32) {
		b := make([]byte, 4)
		le.PutUint32(b, v)
		buf.Write(b)
	}
	wf64 := func(v float64) {
		b := make([]byte, 8)
		le.PutUint64(b, math.Float64bits(v))
		buf.Write(b)
	}

	buf.WriteString(fileKey)
	w32(3)                    // version
	w32(0)                    // checksum, patched below
	w32(uint32(rows))         // nRows
	w32(uint32(cols))         // nCols
	w32(uint32(rows * cols))  // numValidPixel
	w32(8)                    // microBlockSize
	w32(0)                    // blobSize, patched below
	w32(uint32(int32(DTByte)))
	wf64(0)              // maxZError
	wf64(float64(value)) // zMin
	wf64(float64(value)) // zMax
	w32(0)               // mask byte count: fully valid image

	data := buf.Bytes()
	le.PutUint32(data[30:], uint32(len(data))) // blobSize is the 5th header int
	checksumStart := len(fileKey) + 4 + 4
	le.PutUint32(data[10:], fletcher32(data[checksumStart:]))
	return data
}

func TestDecodeConstantByteImage(t *testing.T) {
	data := buildConstantByteBlob(4, 5, 7)
	out, err := Decode(data, 5, 4, array.Uint8, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != 20 {
		t.Fatalf("decoded %d bytes, want 20", len(out))
	}
	for i, b := range out {
		if b != 7 {
			t.Fatalf("pixel %d = %d, want 7", i, b)
		}
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	data := buildConstantByteBlob(2, 2, 9)
	data[len(data)-1] ^= 0xFF // corrupt the mask-size field inside the checksummed region
	_, err := Decode(data, 2, 2, array.Uint8, binary.LittleEndian)
	if err == nil {
		t.Fatal("expected checksum failure")
	}
	if !IsChecksumMismatch(err) {
		t.Fatalf("expected a checksum-mismatch error, got %v", err)
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	data := buildConstantByteBlob(2, 2, 1)
	binary.LittleEndian.PutUint32(data[len(fileKey):], 9)
	_, err := Decode(data, 2, 2, array.Uint8, binary.LittleEndian)
	if err == nil {
		t.Fatal("expected version rejection")
	}
	if !IsUnsupportedVersion(err) {
		t.Fatalf("expected an unsupported-version error, got %v", err)
	}
}

func TestDecodeRejectsBadFileKey(t *testing.T) {
	data := buildConstantByteBlob(2, 2, 1)
	data[0] = 'X'
	if _, err := Decode(data, 2, 2, array.Uint8, binary.LittleEndian); err == nil {
		t.Fatal("expected file-key rejection")
	}
}

func TestDecodeRejectsShapeMismatch(t *testing.T) {
	data := buildConstantByteBlob(4, 4, 1)
	if _, err := Decode(data, 8, 8, array.Uint8, binary.LittleEndian); err == nil {
		t.Fatal("expected shape mismatch rejection")
	}
}

func TestFletcher32TailAndOrderSensitivity(t *testing.T) {
	// The odd trailing byte gets its own accumulation step, and the
	// position-weighted second sum must distinguish reordered input.
	if fletcher32([]byte{1, 2, 3}) == fletcher32([]byte{1, 2}) {
		t.Fatal("trailing odd byte must change the checksum")
	}
	if fletcher32([]byte{1, 2, 3, 4}) == fletcher32([]byte{3, 4, 1, 2}) {
		t.Fatal("word order must change the checksum")
	}
}
