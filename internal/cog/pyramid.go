package cog

import (
	"math"

	"github.com/cogengine/raster/internal/array"
	"github.com/cogengine/raster/internal/coord"
	"github.com/cogengine/raster/internal/geo"
)

// TiffChunkLocation is a single chunk's byte range on disk. Per spec.md
// §3: offset==0 && size==0 means sparse (no data on disk, logically
// nodata everywhere); size==0 with a non-zero offset is ill-formed.
type TiffChunkLocation struct {
	Offset uint64
	Size   uint64
}

// IsSparse reports whether the chunk is declared but absent from disk.
func (l TiffChunkLocation) IsSparse() bool { return l.Offset == 0 && l.Size == 0 }

// DataLayout is the tiled-vs-striped choice a GeoTiffMetadata carries.
type DataLayout struct {
	Tiled        bool
	TileSize     array.RasterSize // valid when Tiled
	RowsPerStrip int32            // valid when !Tiled
}

// Statistics is the optional per-band statistics block (SPEC_FULL.md
// §3.1), parsed from GDAL_METADATA's <Item name="STATISTICS_..."> XML
// when present.
type Statistics struct {
	Min, Max, Mean, StdDev, ValidPercent float64
}

// PyramidInfo describes one overview level: its raster size, the
// row-major sequence of chunk byte-ranges, the web-zoom level the level's
// pixel size maps to, and whether the level is tile-aligned (spec.md §3).
type PyramidInfo struct {
	RasterSize     array.RasterSize
	ChunkLocations []TiffChunkLocation
	WebZoom        int
	IsTileAligned  bool
}

// GeoTiffMetadata is the root descriptor emitted by the reader after
// header ingestion (spec.md §3).
type GeoTiffMetadata struct {
	Layout      DataLayout
	BandCount   int
	ElementType array.NumericType
	Compression Compression
	Predictor   Predictor
	GeoRef      geo.GeoReference
	Pyramid     []PyramidInfo
	Stats       *Statistics
	IsCOG       bool
}

// elementTypeFromIFD derives the NumericType from BitsPerSample +
// SampleFormat, spec.md §4.3's "Samples per pixel, bits per sample,
// sample format -> derive element type".
func elementTypeFromIFD(ifd *IFD) (array.NumericType, error) {
	bits := 8
	if len(ifd.BitsPerSample) > 0 {
		bits = int(ifd.BitsPerSample[0])
	}
	format := uint16(1) // 1 = unsigned integer (TIFF default)
	if len(ifd.SampleFormat) > 0 {
		format = ifd.SampleFormat[0]
	}
	switch format {
	case 1: // unsigned int
		switch bits {
		case 8:
			return array.Uint8, nil
		case 16:
			return array.Uint16, nil
		case 32:
			return array.Uint32, nil
		case 64:
			return array.Uint64, nil
		}
	case 2: // signed int
		switch bits {
		case 8:
			return array.Int8, nil
		case 16:
			return array.Int16, nil
		case 32:
			return array.Int32, nil
		case 64:
			return array.Int64, nil
		}
	case 3: // IEEE float
		switch bits {
		case 32:
			return array.Float32, nil
		case 64:
			return array.Float64, nil
		}
	}
	return 0, errInvalidArgument("unsupported element type: %d-bit sample format %d", bits, format)
}

// buildPyramidLevel produces the PyramidInfo for one IFD, deriving chunk
// locations in the order given by the TIFF offsets vectors (row-major,
// matching web-tile generation order) per spec.md §4.4 steps 1-3.
func buildPyramidLevel(ifd *IFD) (PyramidInfo, error) {
	size := array.RasterSize{Rows: int32(ifd.Height), Cols: int32(ifd.Width)}

	var locations []TiffChunkLocation
	if ifd.IsTiled() {
		if len(ifd.TileOffsets) == 0 {
			return PyramidInfo{}, errInvalidHeader("zero-sized tile offsets vector")
		}
		if len(ifd.TileOffsets) != len(ifd.TileByteCounts) {
			return PyramidInfo{}, errInvalidHeader("tile offsets/byte-counts length mismatch: %d vs %d", len(ifd.TileOffsets), len(ifd.TileByteCounts))
		}
		if ifd.PlanarConfig == 1 {
			want := ifd.TilesAcross() * ifd.TilesDown()
			if len(ifd.TileOffsets) != want {
				return PyramidInfo{}, errInvalidHeader("tile offsets vector has %d entries, raster needs %d", len(ifd.TileOffsets), want)
			}
		}
		locations = make([]TiffChunkLocation, len(ifd.TileOffsets))
		for i := range ifd.TileOffsets {
			locations[i] = TiffChunkLocation{Offset: ifd.TileOffsets[i], Size: ifd.TileByteCounts[i]}
		}
	} else {
		if len(ifd.StripOffsets) == 0 {
			return PyramidInfo{}, errInvalidHeader("zero-sized strip offsets vector")
		}
		if len(ifd.StripOffsets) != len(ifd.StripByteCounts) {
			return PyramidInfo{}, errInvalidHeader("strip offsets/byte-counts length mismatch: %d vs %d", len(ifd.StripOffsets), len(ifd.StripByteCounts))
		}
		locations = make([]TiffChunkLocation, len(ifd.StripOffsets))
		for i := range ifd.StripOffsets {
			locations[i] = TiffChunkLocation{Offset: ifd.StripOffsets[i], Size: ifd.StripByteCounts[i]}
		}
	}

	return PyramidInfo{RasterSize: size, ChunkLocations: locations}, nil
}

// buildPyramid walks every IFD producing one PyramidInfo per level (level
// 0 = full resolution, decreasing thereafter), then fills in the derived
// WebZoom/IsTileAligned fields that require the geo-reference.
func buildPyramid(ifds []IFD, ref geo.GeoReference, tileSize int, rounding geo.ZoomRounding) ([]PyramidInfo, error) {
	levels := make([]PyramidInfo, len(ifds))
	baseZoom := 0
	for i := range ifds {
		lvl, err := buildPyramidLevel(&ifds[i])
		if err != nil {
			return nil, err
		}
		// A raster with no geo-transform has a zero cell size; it still
		// parses and assembles, but carries no meaningful web zoom and can
		// never be tile-aligned.
		levelPixelSizeX := 0.0
		if ref.CellSizeX() != 0 && ifds[i].Width > 0 {
			levelPixelSizeX = ref.CellSizeX() * float64(ifds[0].Width) / float64(ifds[i].Width)
		}
		if i == 0 {
			if levelPixelSizeX != 0 {
				baseZoom = geo.PixelSizeToZoom(math.Abs(levelPixelSizeX), coord.EarthCircumference, tileSize, rounding)
			}
			lvl.WebZoom = baseZoom
		} else {
			lvl.WebZoom = baseZoom - i
		}
		lvl.IsTileAligned = levelPixelSizeX != 0 && isLevelTileAligned(&ifds[i], ref, levelPixelSizeX, lvl.WebZoom, tileSize)
		levels[i] = lvl
	}
	return levels, nil
}

// isLevelTileAligned implements spec.md §4.4 step 4: width/height are
// multiples of the tile size, and the affine-mapped top-left corner
// coincides with a Web-Mercator tile corner at the derived zoom.
func isLevelTileAligned(ifd *IFD, ref geo.GeoReference, levelPixelSizeX float64, zoom, tileSize int) bool {
	if !ifd.IsTiled() {
		return false
	}
	if int(ifd.Width)%tileSize != 0 || int(ifd.Height)%tileSize != 0 {
		return false
	}
	if int(ifd.TileWidth) != tileSize || int(ifd.TileHeight) != tileSize {
		return false
	}

	// Every level shares the base geo-transform's top-left corner in CRS
	// units; test that it lands on a Web-Mercator tile boundary at zoom.
	topX := ref.Transform.OriginX()
	topY := ref.Transform.OriginY()

	n := math.Pow(2, float64(zoom))
	worldPixels := n * float64(tileSize)
	pxX := (topX + coord.OriginShift) / (2 * coord.OriginShift) * worldPixels
	pxY := (coord.OriginShift - topY) / (2 * coord.OriginShift) * worldPixels

	const epsilon = 1e-6
	return math.Abs(pxX-math.Round(pxX/float64(tileSize))*float64(tileSize)) < epsilon &&
		math.Abs(pxY-math.Round(pxY/float64(tileSize))*float64(tileSize)) < epsilon
}
