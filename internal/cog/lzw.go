package cog

// decompressTIFFLZW reverses stage 1 of the codec pipeline (spec.md §4.5)
// for TIFF compression tag 5. TIFF's LZW variant differs from the GIF/PDF
// flavor Go's compress/lzw implements: TIFF bumps the code width one code
// early, as soon as the next free slot is one short of the current width's
// limit, where GIF waits until the width is full — so compress/lzw rejects a TIFF stream with "invalid
// code" rather than silently decoding it wrong. This decoder follows the
// TIFF 6.0 LZW section directly (MSB-first bit packing, explicit clear/
// EOI codes at 256/257).
func decompressTIFFLZW(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := newLZWBitReader(data)
	return dec.run()
}

const (
	lzwMaxCodeWidth = 12
	lzwClearCode    = 256
	lzwEOICode      = 257
	lzwFirstFree    = 258
	lzwTableCap     = 1 << lzwMaxCodeWidth
)

// lzwTableEntry is one string-table slot: a suffix byte appended to
// whatever string lives at prefix (-1 for the 256 single-byte roots).
type lzwTableEntry struct {
	prefix int
	suffix byte
	length int
}

// lzwBitReader walks an MSB-first bitstream, building the LZW string table
// and emitting decoded bytes as codes are consumed.
type lzwBitReader struct {
	src       []byte
	bitPos    int
	table     [lzwTableCap + 1]lzwTableEntry
	nextFree  int
	codeWidth int
	scratch   []byte // reused by stringFor to avoid reallocating per code
}

func newLZWBitReader(data []byte) *lzwBitReader {
	d := &lzwBitReader{src: data, scratch: make([]byte, 0, lzwTableCap)}
	d.resetTable()
	return d
}

func (d *lzwBitReader) resetTable() {
	for i := 0; i < 256; i++ {
		d.table[i] = lzwTableEntry{prefix: -1, suffix: byte(i), length: 1}
	}
	d.nextFree = lzwFirstFree
	d.codeWidth = 9
}

// readCode reads the current code width's worth of bits, MSB first.
func (d *lzwBitReader) readCode() (int, bool) {
	code := 0
	for i := 0; i < d.codeWidth; i++ {
		bytePos := d.bitPos / 8
		if bytePos >= len(d.src) {
			return 0, false
		}
		bitOff := 7 - d.bitPos%8
		bit := (int(d.src[bytePos]) >> bitOff) & 1
		code = code<<1 | bit
		d.bitPos++
	}
	return code, true
}

// stringFor reconstructs the byte string a table code represents by
// walking its prefix chain back to a root, writing into d.scratch in
// reverse then returning it the right way round.
func (d *lzwBitReader) stringFor(code int) []byte {
	entry := &d.table[code]
	d.scratch = d.scratch[:entry.length]
	for i := entry.length - 1; code >= 0; i-- {
		e := &d.table[code]
		d.scratch[i] = e.suffix
		code = e.prefix
	}
	return d.scratch
}

// addEntry appends a new table row (prior string + leading byte of the
// current one) unless the table has already reached its maximum size,
// growing the code width one bit early once the free slot would overflow
// the current width's addressable range.
func (d *lzwBitReader) addEntry(prevCode int, firstByte byte) {
	if d.nextFree >= lzwTableCap {
		return
	}
	d.table[d.nextFree] = lzwTableEntry{
		prefix: prevCode,
		suffix: firstByte,
		length: d.table[prevCode].length + 1,
	}
	d.nextFree++
	if d.nextFree+1 >= (1<<d.codeWidth) && d.codeWidth < lzwMaxCodeWidth {
		d.codeWidth++
	}
}

func (d *lzwBitReader) run() ([]byte, error) {
	first, ok := d.readCode()
	if !ok {
		return nil, errRuntime("lzw: truncated stream before first clear code")
	}
	if first != lzwClearCode {
		return nil, errRuntime("lzw: stream does not open with a clear code")
	}

	var out []byte
	prevCode := -1
	for {
		code, ok := d.readCode()
		if !ok {
			return out, nil // a bare EOF in place of an explicit EOI code is tolerated
		}
		switch {
		case code == lzwEOICode:
			return out, nil
		case code == lzwClearCode:
			d.resetTable()
			prevCode = -1
			continue
		case prevCode == -1:
			if code >= 256 {
				return nil, errRuntime("lzw: code after clear is not a literal byte")
			}
			out = append(out, byte(code))
			prevCode = code
			continue
		case code < d.nextFree:
			str := d.stringFor(code)
			out = append(out, str...)
			d.addEntry(prevCode, str[0])
		case code == d.nextFree:
			// KwKwK: the code being referenced isn't in the table yet
			// because it's the one this very step is about to add.
			prevStr := d.stringFor(prevCode)
			firstByte := prevStr[0]
			out = append(out, prevStr...)
			out = append(out, firstByte)
			d.addEntry(prevCode, firstByte)
		default:
			return nil, errRuntime("lzw: code %d exceeds table size %d", code, d.nextFree)
		}
		prevCode = code
	}
}
