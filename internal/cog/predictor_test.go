package cog

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/rand"
	"testing"
)

// forwardHorizontal applies the encoder-side horizontal differencing that
// reverseHorizontalPredictor undoes, so round trips can be checked without
// an external fixture.
func forwardHorizontal(data []byte, width, spp, bps int, bo binary.ByteOrder) {
	rowBytes := width * spp * bps
	for off := 0; off+rowBytes <= len(data); off += rowBytes {
		row := data[off : off+rowBytes]
		n := width * spp
		switch bps {
		case 1:
			for i := n - 1; i >= spp; i-- {
				row[i] -= row[i-spp]
			}
		case 2:
			for i := n - 1; i >= spp; i-- {
				cur := bo.Uint16(row[i*2:])
				prev := bo.Uint16(row[(i-spp)*2:])
				bo.PutUint16(row[i*2:], cur-prev)
			}
		case 4:
			for i := n - 1; i >= spp; i-- {
				cur := bo.Uint32(row[i*4:])
				prev := bo.Uint32(row[(i-spp)*4:])
				bo.PutUint32(row[i*4:], cur-prev)
			}
		case 8:
			for i := n - 1; i >= spp; i-- {
				cur := bo.Uint64(row[i*8:])
				prev := bo.Uint64(row[(i-spp)*8:])
				bo.PutUint64(row[i*8:], cur-prev)
			}
		}
	}
}

func TestHorizontalPredictorRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	bo := binary.ByteOrder(binary.LittleEndian)

	cases := []struct {
		width, height, spp, bps int
	}{
		{1, 1, 1, 1},
		{3, 2, 1, 1},
		{16, 4, 3, 1},
		{64, 3, 1, 2},
		{33, 5, 2, 2},
		{17, 2, 1, 4},
		{9, 3, 1, 8},
		{1024, 1024, 1, 1},
	}
	for _, c := range cases {
		orig := make([]byte, c.width*c.height*c.spp*c.bps)
		rng.Read(orig)
		data := append([]byte(nil), orig...)

		forwardHorizontal(data, c.width, c.spp, c.bps, bo)
		reverseHorizontalPredictor(data, c.width, c.spp, c.bps, bo)

		if !bytes.Equal(data, orig) {
			t.Errorf("horizontal predictor round trip failed for %dx%d spp=%d bps=%d", c.width, c.height, c.spp, c.bps)
		}
	}
}

// forwardFloatingPoint applies the encoder-side byte-plane shuffle and
// differencing of TIFF predictor 3 for a little-endian file.
func forwardFloatingPoint(data []byte, width, spp, bps int) {
	rowBytes := width * spp * bps
	count := width * spp
	tmp := make([]byte, rowBytes)
	for off := 0; off+rowBytes <= len(data); off += rowBytes {
		row := data[off : off+rowBytes]
		for i := 0; i < count; i++ {
			for b := 0; b < bps; b++ {
				tmp[(bps-1-b)*count+i] = row[i*bps+b]
			}
		}
		for i := rowBytes - 1; i >= 1; i-- {
			row[i] = tmp[i] - tmp[i-1]
		}
		row[0] = tmp[0]
	}
}

func TestFloatingPointPredictorRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	for _, c := range []struct {
		width, height, spp, bps int
	}{
		{4, 1, 1, 4},
		{32, 3, 1, 4},
		{7, 2, 2, 4},
		{16, 4, 1, 8},
	} {
		orig := make([]byte, c.width*c.height*c.spp*c.bps)
		for i := 0; i+4 <= len(orig); i += 4 {
			binary.LittleEndian.PutUint32(orig[i:], math.Float32bits(rng.Float32()*1000-500))
		}
		data := append([]byte(nil), orig...)

		forwardFloatingPoint(data, c.width, c.spp, c.bps)
		reverseFloatingPointPredictor(data, c.width, c.spp, c.bps, binary.LittleEndian)

		if !bytes.Equal(data, orig) {
			t.Errorf("floating-point predictor round trip failed for %dx%d spp=%d bps=%d", c.width, c.height, c.spp, c.bps)
		}
	}
}

func TestPredictorTypeMismatchIsFatal(t *testing.T) {
	ifd := &IFD{
		Width: 4, Height: 1,
		BitsPerSample:   []uint16{32},
		SampleFormat:    []uint16{3}, // float
		SamplesPerPixel: 1,
		Predictor:       2, // horizontal
	}
	data := make([]byte, 16)
	if err := applyPredictorReversal(data, ifd, binary.LittleEndian); err == nil {
		t.Fatal("horizontal predictor on float samples must be rejected")
	}

	ifd.SampleFormat = []uint16{1} // unsigned int
	ifd.Predictor = 3              // floating-point
	if err := applyPredictorReversal(data, ifd, binary.LittleEndian); err == nil {
		t.Fatal("floating-point predictor on integer samples must be rejected")
	}
}
