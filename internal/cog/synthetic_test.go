package cog

import (
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	"github.com/cogengine/raster/internal/array"
)

// This file builds a minimal, byte-exact classic-TIFF COG entirely in
// memory, so the header/ghost/pyramid/chunk/raster pipeline can be
// exercised end-to-end without any on-disk fixture (spec.md §8's literal
// end-to-end scenarios).

type dirEntry struct {
	Tag   uint16
	Type  uint16
	Count uint32
	Data  []byte // exactly Count*dataTypeSize(Type) bytes, little-endian
}

func u16le(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func f64le(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

// buildDirectory lays out a classic-TIFF IFD (entry count + N*12-byte
// entries + next-IFD-offset) starting at ifdStart, placing any entry whose
// value exceeds 4 bytes into an "extra" area immediately following the
// directory. It returns the external byte offset (within extra) of any
// tag the caller needs to patch after tile-data placement is known.
func buildDirectory(entries []dirEntry, ifdStart int) (dir []byte, extra []byte, externalAt map[uint16]int) {
	n := len(entries)
	dirLen := 2 + n*12 + 4
	externalAt = make(map[uint16]int)

	type placement struct {
		inline bool
		at     int
	}
	placements := make([]placement, n)
	cursor := 0
	for i, e := range entries {
		if len(e.Data) <= 4 {
			placements[i] = placement{inline: true}
			continue
		}
		placements[i] = placement{at: cursor}
		cursor += len(e.Data)
	}
	extra = make([]byte, cursor)

	dir = make([]byte, 0, dirLen)
	dir = append(dir, u16le(uint16(n))...)
	for i, e := range entries {
		dir = append(dir, u16le(e.Tag)...)
		dir = append(dir, u16le(e.Type)...)
		dir = append(dir, u32le(e.Count)...)
		if placements[i].inline {
			val := make([]byte, 4)
			copy(val, e.Data)
			dir = append(dir, val...)
		} else {
			abs := ifdStart + dirLen + placements[i].at
			dir = append(dir, u32le(uint32(abs))...)
			copy(extra[placements[i].at:], e.Data)
			externalAt[e.Tag] = placements[i].at
		}
	}
	dir = append(dir, u32le(0)...) // next IFD offset: single-level pyramid
	return dir, extra, externalAt
}

const (
	synthTileW = 2
	synthTileH = 2
	synthRows  = 4
	synthCols  = 4
)

// syntheticCOG holds the assembled file bytes plus the ground truth used
// to check decoded results.
type syntheticCOG struct {
	data          []byte
	tileValues    [][]byte // per-tile uint8 values, row-major within tile; nil for the sparse tile
	sparseTileIdx int
}

// buildSyntheticCOG assembles a classic (non-BigTIFF), uncompressed,
// single-band uint8 COG: a 4x4 raster split into four 2x2 tiles, one of
// which is declared sparse. Ghost area declares full COG conformance.
func buildSyntheticCOG(t *testing.T) syntheticCOG {
	t.Helper()

	tileValues := [][]byte{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		nil, // sparse
		{13, 14, 15, 16},
	}
	sparseIdx := 2

	const ghostOffset = ghostOffsetClassic
	ghostHeader := fmt.Sprintf("GDAL_STRUCTURAL_METADATA_SIZE=%06d bytes\n", len(validGhostPayload))
	if len(ghostHeader) != ghostHeaderLen {
		t.Fatalf("test bug: ghost header is %d bytes, want %d", len(ghostHeader), ghostHeaderLen)
	}
	ghostBlock := append([]byte(ghostHeader), validGhostPayload...)

	ifdStart := ghostOffset + len(ghostBlock)

	entries := []dirEntry{
		{Tag: tagImageWidth, Type: dtLong, Count: 1, Data: u32le(synthCols)},
		{Tag: tagImageLength, Type: dtLong, Count: 1, Data: u32le(synthRows)},
		{Tag: tagBitsPerSample, Type: dtShort, Count: 1, Data: u16le(8)},
		{Tag: tagCompression, Type: dtShort, Count: 1, Data: u16le(1)}, // none
		{Tag: tagSamplesPerPixel, Type: dtShort, Count: 1, Data: u16le(1)},
		{Tag: tagTileWidth, Type: dtLong, Count: 1, Data: u32le(synthTileW)},
		{Tag: tagTileLength, Type: dtLong, Count: 1, Data: u32le(synthTileH)},
		{Tag: tagTileOffsets, Type: dtLong, Count: 4, Data: make([]byte, 16)}, // patched below
		{Tag: tagTileByteCounts, Type: dtLong, Count: 4, Data: encodeByteCounts(tileValues)},
		{Tag: tagSampleFormat, Type: dtShort, Count: 1, Data: u16le(1)}, // unsigned int
		{Tag: tagModelPixelScaleTag, Type: dtDouble, Count: 3, Data: concatF64(1, 1, 0)},
		{Tag: tagModelTiepointTag, Type: dtDouble, Count: 6, Data: concatF64(0, 0, 0, -100, 50, 0)},
		{Tag: tagGDALNoData, Type: dtASCII, Count: 4, Data: []byte("255\x00")},
	}

	dir, extra, externalAt := buildDirectory(entries, ifdStart)
	tileDataStart := ifdStart + len(dir) + len(extra)

	offsets := make([]uint32, 4)
	var tileBytes []byte
	cursor := tileDataStart
	for i, vals := range tileValues {
		if vals == nil {
			offsets[i] = 0
			continue
		}
		offsets[i] = uint32(cursor)
		chunk := wrapBlockFraming(vals)
		tileBytes = append(tileBytes, chunk...)
		cursor += len(chunk)
	}

	at := externalAt[tagTileOffsets]
	for i, off := range offsets {
		binary.LittleEndian.PutUint32(extra[at+i*4:], off)
	}

	header := make([]byte, 8)
	copy(header, "II")
	copy(header[2:], u16le(0x002A))
	copy(header[4:], u32le(uint32(ifdStart)))

	var out []byte
	out = append(out, header...)
	out = append(out, ghostBlock...)
	out = append(out, dir...)
	out = append(out, extra...)
	out = append(out, tileBytes...)

	return syntheticCOG{data: out, tileValues: tileValues, sparseTileIdx: sparseIdx}
}

// wrapBlockFraming applies the GDAL COG block leader/trailer framing
// (spec.md §6.1): a 4-byte LE size leader, the payload, then a 4-byte
// trailer repeating the payload's last 4 bytes.
func wrapBlockFraming(payload []byte) []byte {
	out := make([]byte, 0, 4+len(payload)+4)
	out = append(out, u32le(uint32(len(payload)))...)
	out = append(out, payload...)
	if len(payload) >= 4 {
		out = append(out, payload[len(payload)-4:]...)
	} else {
		out = append(out, make([]byte, 4)...)
	}
	return out
}

func encodeByteCounts(tileValues [][]byte) []byte {
	out := make([]byte, 0, len(tileValues)*4)
	for _, vals := range tileValues {
		if vals == nil {
			out = append(out, u32le(0)...)
			continue
		}
		out = append(out, u32le(uint32(len(wrapBlockFraming(vals))))...)
	}
	return out
}

func concatF64(vals ...float64) []byte {
	var out []byte
	for _, v := range vals {
		out = append(out, f64le(v)...)
	}
	return out
}

func TestSyntheticCOGOpensAndReportsIsCOG(t *testing.T) {
	c := buildSyntheticCOG(t)
	r, err := OpenSource(NewMemSource(c.data))
	if err != nil {
		t.Fatalf("OpenSource: %v", err)
	}
	defer r.Close()

	meta := r.Metadata()
	if !meta.IsCOG {
		t.Fatal("expected synthetic file to report IsCOG() == true")
	}
	if !meta.Layout.Tiled {
		t.Fatal("expected tiled layout")
	}
	if meta.ElementType != array.Uint8 {
		t.Fatalf("ElementType = %v, want Uint8", meta.ElementType)
	}
	if meta.GeoRef.RasterSize.Rows != synthRows || meta.GeoRef.RasterSize.Cols != synthCols {
		t.Fatalf("RasterSize = %+v", meta.GeoRef.RasterSize)
	}
	if meta.GeoRef.Nodata == nil || *meta.GeoRef.Nodata != 255 {
		t.Fatalf("Nodata = %v, want 255", meta.GeoRef.Nodata)
	}
	if len(meta.Pyramid) != 1 {
		t.Fatalf("expected single-level pyramid, got %d levels", len(meta.Pyramid))
	}
	if len(meta.Pyramid[0].ChunkLocations) != 4 {
		t.Fatalf("expected 4 chunk locations, got %d", len(meta.Pyramid[0].ChunkLocations))
	}
}

func TestSyntheticCOGReadChunkNonSparse(t *testing.T) {
	c := buildSyntheticCOG(t)
	r, err := OpenSource(NewMemSource(c.data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	tile, err := ReadChunkAt[uint8](r, 0, 0, 0)
	if err != nil {
		t.Fatalf("ReadChunkAt: %v", err)
	}
	want := []uint8{1, 2, 3, 4}
	for i, w := range want {
		if tile.AsSlice()[i] != w {
			t.Errorf("tile[%d] = %d, want %d", i, tile.AsSlice()[i], w)
		}
	}
}

func TestSyntheticCOGSparseChunkFillsNodata(t *testing.T) {
	// spec.md §8 end-to-end scenario 4: a sparse TiffChunkLocation yields a
	// fully-nodata DenseArray.
	c := buildSyntheticCOG(t)
	r, err := OpenSource(NewMemSource(c.data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	tile, err := ReadChunkAt[uint8](r, 0, c.sparseTileIdx, 0)
	if err != nil {
		t.Fatalf("ReadChunkAt sparse: %v", err)
	}
	for i := range tile.AsSlice() {
		if _, ok := tile.CellValue(array.Cell{Row: int32(i / synthTileW), Col: int32(i % synthTileW)}); ok {
			t.Fatalf("sparse tile cell %d expected nodata", i)
		}
	}
}

func TestSyntheticCOGReadRasterAssemblesAllTiles(t *testing.T) {
	c := buildSyntheticCOG(t)
	r, err := OpenSource(NewMemSource(c.data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	raster, err := ReadRasterAt[uint8](r, 0, 0)
	if err != nil {
		t.Fatalf("ReadRasterAt: %v", err)
	}
	if raster.Size().Rows != synthRows || raster.Size().Cols != synthCols {
		t.Fatalf("raster size = %+v", raster.Size())
	}

	// Row-major tile placement: tile(0,0)=[1,2;3,4], tile(0,1)=[5,6;7,8],
	// tile(1,0)=sparse, tile(1,1)=[13,14;15,16].
	want := []uint8{
		1, 2, 5, 6,
		3, 4, 7, 8,
		0, 0, 13, 14,
		0, 0, 15, 16,
	}
	for i := range want {
		row, col := i/synthCols, i%synthCols
		isSparseRegion := row >= synthTileH && col < synthTileW
		if isSparseRegion {
			if _, ok := raster.CellValue(array.Cell{Row: int32(row), Col: int32(col)}); ok {
				t.Errorf("cell (%d,%d) expected nodata (sparse tile region)", row, col)
			}
			continue
		}
		if raster.AsSlice()[i] != want[i] {
			t.Errorf("cell (%d,%d) = %d, want %d", row, col, raster.AsSlice()[i], want[i])
		}
	}
}

func TestSyntheticCOGReadChunkAnyDispatchesNativeType(t *testing.T) {
	// spec.md §6.2: "For AnyDenseArray-typed results, the same operations
	// exist with runtime-typed returns."
	c := buildSyntheticCOG(t)
	r, err := OpenSource(NewMemSource(c.data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := r.ReadChunkAnyAt(0, 0, 0)
	if err != nil {
		t.Fatalf("ReadChunkAnyAt: %v", err)
	}
	if got.Type() != array.Uint8 {
		t.Fatalf("ReadChunkAnyAt Type() = %v, want Uint8", got.Type())
	}
	typed, ok := array.As[uint8](got)
	if !ok {
		t.Fatal("expected As[uint8] to succeed for a Uint8-tagged AnyDenseArray")
	}
	want := []uint8{1, 2, 3, 4}
	for i, w := range want {
		if typed.AsSlice()[i] != w {
			t.Errorf("chunk[%d] = %d, want %d", i, typed.AsSlice()[i], w)
		}
	}
}

func TestSyntheticCOGReadRasterAnyDispatchesNativeType(t *testing.T) {
	c := buildSyntheticCOG(t)
	r, err := OpenSource(NewMemSource(c.data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := r.ReadRasterAnyAt(0, 0)
	if err != nil {
		t.Fatalf("ReadRasterAnyAt: %v", err)
	}
	if got.Size().Rows != synthRows || got.Size().Cols != synthCols {
		t.Fatalf("ReadRasterAnyAt size = %+v", got.Size())
	}
}

func TestSyntheticCOGRejectsWrongElementType(t *testing.T) {
	c := buildSyntheticCOG(t)
	r, err := OpenSource(NewMemSource(c.data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if _, err := ReadChunkAt[int32](r, 0, 0, 0); err == nil {
		t.Fatal("expected InvalidArgument for element-type mismatch")
	}
}

func TestTruncatedHeaderNeverPanics(t *testing.T) {
	c := buildSyntheticCOG(t)
	for n := 0; n < 64; n++ {
		func(n int) {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("OpenSource must not panic on a %d-byte prefix, got panic: %v", n, r)
				}
			}()
			_, _ = OpenSource(NewMemSource(c.data[:n]))
		}(n)
	}
}

func u64le(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// buildSyntheticBigTIFF assembles a BigTIFF (magic 0x2B, 8-byte offsets)
// COG with a single 2x2 uint8 tile and the ghost area at offset 16. No
// geo tags: the raster still parses and decodes, it just derives no zoom.
func buildSyntheticBigTIFF(t *testing.T) []byte {
	t.Helper()

	tileValues := []byte{1, 2, 3, 4}
	chunk := wrapBlockFraming(tileValues)

	ghostHeader := fmt.Sprintf("GDAL_STRUCTURAL_METADATA_SIZE=%06d bytes\n", len(validGhostPayload))
	ghostBlock := append([]byte(ghostHeader), validGhostPayload...)
	ifdStart := ghostOffsetBigTIFF + len(ghostBlock)

	type bigEntry struct {
		tag, typ uint16
		count    uint64
		value    []byte // padded to 8 bytes
	}
	inline8 := func(b []byte) []byte {
		v := make([]byte, 8)
		copy(v, b)
		return v
	}
	const numEntries = 10
	ifdLen := 8 + numEntries*20 + 8
	tileDataStart := ifdStart + ifdLen

	entries := []bigEntry{
		{tagImageWidth, dtLong, 1, inline8(u32le(2))},
		{tagImageLength, dtLong, 1, inline8(u32le(2))},
		{tagBitsPerSample, dtShort, 1, inline8(u16le(8))},
		{tagCompression, dtShort, 1, inline8(u16le(1))},
		{tagSamplesPerPixel, dtShort, 1, inline8(u16le(1))},
		{tagTileWidth, dtLong, 1, inline8(u32le(2))},
		{tagTileLength, dtLong, 1, inline8(u32le(2))},
		{tagTileOffsets, dtLong8, 1, u64le(uint64(tileDataStart))},
		{tagTileByteCounts, dtLong8, 1, u64le(uint64(len(chunk)))},
		{tagSampleFormat, dtShort, 1, inline8(u16le(1))},
	}

	var dir []byte
	dir = append(dir, u64le(numEntries)...)
	for _, e := range entries {
		dir = append(dir, u16le(e.tag)...)
		dir = append(dir, u16le(e.typ)...)
		dir = append(dir, u64le(e.count)...)
		dir = append(dir, e.value...)
	}
	dir = append(dir, u64le(0)...) // next IFD

	header := make([]byte, 16)
	copy(header, "II")
	copy(header[2:], u16le(0x002B))
	copy(header[4:], u16le(8)) // offset size
	copy(header[8:], u64le(uint64(ifdStart)))

	var out []byte
	out = append(out, header...)
	out = append(out, ghostBlock...)
	out = append(out, dir...)
	out = append(out, chunk...)
	return out
}

func TestSyntheticBigTIFFOpensAndDecodes(t *testing.T) {
	data := buildSyntheticBigTIFF(t)
	r, err := OpenSource(NewMemSource(data))
	if err != nil {
		t.Fatalf("OpenSource: %v", err)
	}
	defer r.Close()

	meta := r.Metadata()
	if !meta.IsCOG {
		t.Fatal("expected BigTIFF ghost area at offset 16 to report IsCOG() == true")
	}
	if meta.ElementType != array.Uint8 {
		t.Fatalf("ElementType = %v, want Uint8", meta.ElementType)
	}

	tile, err := ReadChunkAt[uint8](r, 0, 0, 0)
	if err != nil {
		t.Fatalf("ReadChunkAt: %v", err)
	}
	want := []uint8{1, 2, 3, 4}
	for i, w := range want {
		if tile.AsSlice()[i] != w {
			t.Errorf("tile[%d] = %d, want %d", i, tile.AsSlice()[i], w)
		}
	}
}

func TestPyramidAccessor(t *testing.T) {
	c := buildSyntheticCOG(t)
	r, err := OpenSource(NewMemSource(c.data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	level, ok := r.Pyramid(0)
	if !ok || len(level.ChunkLocations) != 4 {
		t.Fatalf("Pyramid(0) = %+v, ok=%v", level, ok)
	}
	if _, ok := r.Pyramid(1); ok {
		t.Fatal("Pyramid(1) must report ok=false for a single-level file")
	}
	if _, ok := r.Pyramid(-1); ok {
		t.Fatal("Pyramid(-1) must report ok=false")
	}
}

func TestReadChunkIntoAt(t *testing.T) {
	c := buildSyntheticCOG(t)
	r, err := OpenSource(NewMemSource(c.data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	loc := r.Metadata().Pyramid[0].ChunkLocations[0]
	buf := make([]uint8, synthTileW*synthTileH)
	if err := ReadChunkIntoAt[uint8](r, 0, 0, loc, buf); err != nil {
		t.Fatalf("ReadChunkIntoAt: %v", err)
	}
	want := []uint8{1, 2, 3, 4}
	for i, w := range want {
		if buf[i] != w {
			t.Errorf("buf[%d] = %d, want %d", i, buf[i], w)
		}
	}

	short := make([]uint8, 1)
	if err := ReadChunkIntoAt[uint8](r, 0, 0, loc, short); err == nil {
		t.Fatal("expected length-mismatch error for an undersized buffer")
	}
}

func TestParseChunkAtDecodesPrefetchedBytes(t *testing.T) {
	c := buildSyntheticCOG(t)
	r, err := OpenSource(NewMemSource(c.data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	loc := r.Metadata().Pyramid[0].ChunkLocations[0]
	raw := c.data[loc.Offset : loc.Offset+loc.Size]
	tile, err := ParseChunkAt[uint8](r, 0, 0, raw)
	if err != nil {
		t.Fatalf("ParseChunkAt: %v", err)
	}
	want := []uint8{1, 2, 3, 4}
	for i, w := range want {
		if tile.AsSlice()[i] != w {
			t.Errorf("tile[%d] = %d, want %d", i, tile.AsSlice()[i], w)
		}
	}
}
