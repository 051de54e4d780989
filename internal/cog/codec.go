package cog

import (
	"bytes"
	"image"
	"io"

	"github.com/gen2brain/webp"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// decompress runs stage 1 of the codec pipeline (spec.md §4.5):
// dispatch by compression kind, producing the tile's decompressed byte
// stream. LERC is handled separately by the chunk reader since it decodes
// straight to typed pixel values rather than a predictor-ready byte
// stream; Webp likewise decodes to pixel samples directly here since
// compress/... has no raw-byte-stream notion of a webp payload.
func decompress(kind Compression, data []byte) ([]byte, error) {
	switch kind {
	case CompressionNone:
		return data, nil
	case CompressionLZW:
		out, err := decompressTIFFLZW(data)
		if err != nil {
			return nil, errRuntime("LZW decompress: %v", err)
		}
		return out, nil
	case CompressionDeflate:
		return decompressDeflate(data)
	case CompressionZstd:
		return decompressZstd(data)
	case CompressionPackBits:
		return decompressPackBits(data), nil
	case CompressionJPEG:
		return nil, errInvalidArgument("JPEG compression is outside the supported codec set")
	default:
		return nil, errInvalidArgument("unsupported compression kind %v", kind)
	}
}

// decompressDeflate decompresses deflate/zlib compressed data via
// klauspost/compress, the same dependency the Zstd stage uses. TIFF
// compression 8 uses zlib framing (deflate with a 2-byte zlib header);
// some writers emit raw deflate instead, so fall back to that. Grounded
// on internal/cog/reader.go's decompressDeflate.
func decompressDeflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err == nil {
		defer r.Close()
		if result, err := io.ReadAll(r); err == nil {
			return result, nil
		}
	}
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	out, err := io.ReadAll(fr)
	if err != nil {
		return nil, errRuntime("deflate decompress: %v", err)
	}
	return out, nil
}

// decompressZstd decompresses Zstd-compressed tile data via
// klauspost/compress/zstd, the dependency wired per SPEC_FULL.md §1.2.
func decompressZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errRuntime("zstd reader init: %v", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, errRuntime("zstd decompress: %v", err)
	}
	return out, nil
}

// decompressPackBits reverses the PackBits run-length scheme (TIFF
// compression 32773): a signed control byte n followed by either
// (n+1) literal bytes (n >= 0) or one byte repeated (1-n) times (n < 0,
// n != -128, which is a no-op padding byte).
func decompressPackBits(data []byte) []byte {
	var out []byte
	i := 0
	for i < len(data) {
		n := int8(data[i])
		i++
		switch {
		case n >= 0:
			count := int(n) + 1
			if i+count > len(data) {
				count = len(data) - i
			}
			out = append(out, data[i:i+count]...)
			i += count
		case n != -128:
			if i >= len(data) {
				return out
			}
			count := int(-n) + 1
			b := data[i]
			i++
			for k := 0; k < count; k++ {
				out = append(out, b)
			}
		}
	}
	return out
}

// decodeWebpChunk decodes a Webp-compressed chunk to raw 8-bit samples,
// matching whatever band count the IFD declares (grey, grey+alpha, or
// RGB/RGBA), using github.com/gen2brain/webp.
func decodeWebpChunk(data []byte, samplesPerPixel int) ([]byte, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errRuntime("webp decode: %v", err)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]byte, w*h*samplesPerPixel)
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			rr, gg, bb, aa := colorAt(img, x, y)
			switch samplesPerPixel {
			case 1:
				out[idx] = rr
			case 2:
				out[idx] = rr
				out[idx+1] = aa
			case 3:
				out[idx] = rr
				out[idx+1] = gg
				out[idx+2] = bb
			default:
				out[idx] = rr
				out[idx+1] = gg
				out[idx+2] = bb
				out[idx+3] = aa
			}
			idx += samplesPerPixel
		}
	}
	return out, nil
}

func colorAt(img image.Image, x, y int) (r, g, b, a uint8) {
	cr, cg, cb, ca := img.At(x, y).RGBA()
	return uint8(cr >> 8), uint8(cg >> 8), uint8(cb >> 8), uint8(ca >> 8)
}
