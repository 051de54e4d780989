package lerc

// decompressMaskRLE expands a run-length encoded validity bitmap into dst.
// The reference decoder's RLE module was not part of the retrieved corpus;
// this uses the same PackBits-style run scheme the rest of the codec
// pipeline already implements for TIFF PackBits payloads (control byte,
// n>=0 => n+1 literal bytes, n<0 => repeat one byte), which is the scheme
// Esri's Lerc distribution describes for its bit-mask RLE helper.
func decompressMaskRLE(src []byte, dst []byte) error {
	i, o := 0, 0
	for i < len(src) && o < len(dst) {
		n := int8(src[i])
		i++
		switch {
		case n >= 0:
			count := int(n) + 1
			if i+count > len(src) || o+count > len(dst) {
				return errf("mask RLE: literal run overruns buffer")
			}
			copy(dst[o:o+count], src[i:i+count])
			i += count
			o += count
		case n != -128:
			if i >= len(src) {
				return errf("mask RLE: truncated repeat run")
			}
			count := int(-n) + 1
			b := src[i]
			i++
			if o+count > len(dst) {
				return errf("mask RLE: repeat run overruns buffer")
			}
			for k := 0; k < count; k++ {
				dst[o+k] = b
			}
			o += count
		}
	}
	return nil
}
