package cog

import "encoding/binary"

// reverseHorizontalPredictor undoes TIFF predictor=2: each sample is
// stored as the difference from the same sample plane in the previous
// pixel of the row; reconstruction is an in-place prefix sum per row,
// wrapping on overflow for integers. Grounded on internal/cog/reader.go's
// undoHorizontalDifferencing (byte-only), generalized here to all of
// spec.md §4.3's element widths (1/2/4/8 bytes per sample).
func reverseHorizontalPredictor(data []byte, width, samplesPerPixel, bytesPerSample int, bo binary.ByteOrder) {
	rowBytes := width * samplesPerPixel * bytesPerSample
	if rowBytes == 0 {
		return
	}
	for off := 0; off+rowBytes <= len(data); off += rowBytes {
		row := data[off : off+rowBytes]
		switch bytesPerSample {
		case 1:
			for x := samplesPerPixel; x < rowBytes; x++ {
				row[x] += row[x-samplesPerPixel]
			}
		case 2:
			n := width * samplesPerPixel
			for i := samplesPerPixel; i < n; i++ {
				prev := bo.Uint16(row[(i-samplesPerPixel)*2:])
				cur := bo.Uint16(row[i*2:])
				bo.PutUint16(row[i*2:], cur+prev)
			}
		case 4:
			n := width * samplesPerPixel
			for i := samplesPerPixel; i < n; i++ {
				prev := bo.Uint32(row[(i-samplesPerPixel)*4:])
				cur := bo.Uint32(row[i*4:])
				bo.PutUint32(row[i*4:], cur+prev)
			}
		case 8:
			n := width * samplesPerPixel
			for i := samplesPerPixel; i < n; i++ {
				prev := bo.Uint64(row[(i-samplesPerPixel)*8:])
				cur := bo.Uint64(row[i*8:])
				bo.PutUint64(row[i*8:], cur+prev)
			}
		}
	}
}

// reverseFloatingPointPredictor undoes TIFF predictor=3: the encoder
// differences the byte-plane-shuffled representation of each row (plane 0
// = every sample's most significant byte, plane 1 = next byte, ...), so
// reconstruction is: cumulative-sum the raw row bytes, then transpose the
// planes back into each sample's byte order as declared by the file, which
// is how the chunk parser will interpret them. Follows the libtiff
// floating-point predictor algorithm (absent from the teacher).
func reverseFloatingPointPredictor(data []byte, width, samplesPerPixel, bytesPerSample int, bo binary.ByteOrder) {
	rowBytes := width * samplesPerPixel * bytesPerSample
	if rowBytes == 0 {
		return
	}
	count := width * samplesPerPixel
	bigEndian := bo == binary.BigEndian
	tmp := make([]byte, rowBytes)
	for off := 0; off+rowBytes <= len(data); off += rowBytes {
		row := data[off : off+rowBytes]
		for i := 1; i < len(row); i++ {
			row[i] += row[i-1]
		}
		copy(tmp, row)
		for i := 0; i < count; i++ {
			for b := 0; b < bytesPerSample; b++ {
				if bigEndian {
					row[i*bytesPerSample+b] = tmp[b*count+i]
				} else {
					row[i*bytesPerSample+b] = tmp[(bytesPerSample-1-b)*count+i]
				}
			}
		}
	}
}

// applyPredictorReversal dispatches to the right kernel based on the IFD's
// declared predictor and element kind. Predictor mismatch with the
// element type (floating-point predictor on an integer sample format, or
// vice versa) is fatal per spec.md §4.5.
func applyPredictorReversal(data []byte, ifd *IFD, bo binary.ByteOrder) error {
	pred := predictorFromTag(ifd.Predictor)
	if pred == PredictorNone {
		return nil
	}
	bytesPerSample := 1
	if len(ifd.BitsPerSample) > 0 {
		bytesPerSample = int(ifd.BitsPerSample[0]) / 8
	}
	width := int(ifd.TileWidth)
	if width == 0 {
		width = int(ifd.Width)
	}
	spp := int(ifd.SamplesPerPixel)
	isFloat := len(ifd.SampleFormat) > 0 && ifd.SampleFormat[0] == 3

	switch pred {
	case PredictorHorizontal:
		if isFloat {
			return errInvalidArgument("horizontal predictor is not valid on floating-point samples")
		}
		reverseHorizontalPredictor(data, width, spp, bytesPerSample, bo)
	case PredictorFloatingPoint:
		if !isFloat {
			return errInvalidArgument("floating-point predictor is not valid on integer samples")
		}
		reverseFloatingPointPredictor(data, width, spp, bytesPerSample, bo)
	}
	return nil
}
