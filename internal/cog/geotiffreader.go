package cog

import (
	"encoding/binary"
	"encoding/xml"
	"errors"
	"strconv"
	"strings"

	"github.com/cogengine/raster/internal/array"
	"github.com/cogengine/raster/internal/geo"
)

// headerPrefetchInitialLen is the initial header-prefetch size (spec.md
// §4.1): large enough to cover the TIFF preamble, the ghost area, and a
// typical single-level IFD in one round trip for most COGs.
// headerPrefetchMaxLen caps the doubling retry.
const (
	headerPrefetchInitialLen = 16 * 1024
	headerPrefetchMaxLen     = 16 * 1024 * 1024
)

// GeoTiffReader is the caller-facing entry point tying together header
// parsing (tiff.go), ghost-area validation (ghost.go), pyramid indexing
// (pyramid.go), and chunk/raster decoding (chunk.go/raster.go) into the
// single object spec.md §6.1-6.2 describes as "the reader".
type GeoTiffReader struct {
	src     ByteSource
	ownsSrc bool
	bo      binary.ByteOrder
	ifds    []IFD
	ghost   GhostData
	meta    GeoTiffMetadata
	metrics *Metrics
}

// Open memory-maps path and parses it into a GeoTiffReader.
func Open(path string) (*GeoTiffReader, error) {
	src, err := OpenFileSource(path)
	if err != nil {
		return nil, err
	}
	r, err := OpenSource(src)
	if err != nil {
		src.Close()
		return nil, err
	}
	r.ownsSrc = true
	return r, nil
}

// OpenSource parses an already-open ByteSource (an in-memory buffer in
// tests, or a caller-supplied HTTP range-request adapter in production).
// The caller retains ownership of src; Close on the returned reader is a
// no-op in that case.
func OpenSource(src ByteSource) (*GeoTiffReader, error) {
	var header tiffHeader
	var ghost GhostData

	err := DoublingPrefetch(src, headerPrefetchInitialLen, headerPrefetchMaxLen, func(buf []byte) (bool, error) {
		h, err := parseTIFFHeader(buf)
		if err != nil {
			var ce *Error
			if errors.As(err, &ce) && ce.Kind == KindUnexpectedEOF {
				return true, nil // buffer too short yet; try a bigger prefetch
			}
			return false, err
		}
		header = h
		ghost = ParseGhostArea(buf, header.BigTIFF)
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	ifds, err := parseAllIFDs(src, header)
	if err != nil {
		return nil, err
	}

	meta, err := buildMetadata(ifds, ghost)
	if err != nil {
		return nil, err
	}

	return &GeoTiffReader{
		src:   src,
		bo:    header.ByteOrder,
		ifds:  ifds,
		ghost: ghost,
		meta:  meta,
	}, nil
}

// SetMetrics attaches a Metrics sink; subsequent chunk reads record
// decode counters/histograms against it. Passing nil disables metrics.
func (r *GeoTiffReader) SetMetrics(m *Metrics) { r.metrics = m }

// Metadata returns the parsed root descriptor (spec.md §3).
func (r *GeoTiffReader) Metadata() *GeoTiffMetadata { return &r.meta }

// Pyramid returns the PyramidInfo at index, or ok=false when index is out
// of range (spec.md §6.2's pyramid(index)).
func (r *GeoTiffReader) Pyramid(index int) (*PyramidInfo, bool) {
	if index < 0 || index >= len(r.meta.Pyramid) {
		return nil, false
	}
	return &r.meta.Pyramid[index], true
}

// Close releases the underlying ByteSource if this reader opened it.
func (r *GeoTiffReader) Close() error {
	if r.ownsSrc {
		return r.src.Close()
	}
	return nil
}

func buildMetadata(ifds []IFD, ghost GhostData) (GeoTiffMetadata, error) {
	first := &ifds[0]

	elemType, err := elementTypeFromIFD(first)
	if err != nil {
		return GeoTiffMetadata{}, err
	}

	transform, ok := deriveGeoTransform(first)
	var ref geo.GeoReference
	if ok {
		epsg := parseEPSG(first.GeoKeys)
		ref = geo.GeoReference{
			Projection: projectionString(epsg),
			RasterSize: array.RasterSize{Rows: int32(first.Height), Cols: int32(first.Width)},
			Transform:  transform,
		}
	} else {
		ref = geo.GeoReference{RasterSize: array.RasterSize{Rows: int32(first.Height), Cols: int32(first.Width)}}
	}

	if nd, ok := parseGDALNoData(first.GDALNoData); ok {
		ref.Nodata = &nd
	}
	ref.Scale, ref.Offset = parseScaleOffset(first.GDALMetadata)

	tileSize := int(first.TileWidth)
	if tileSize == 0 {
		tileSize = 256
	}
	pyramid, err := buildPyramid(ifds, ref, tileSize, geo.ZoomNearest)
	if err != nil {
		return GeoTiffMetadata{}, err
	}

	layout := DataLayout{Tiled: first.IsTiled()}
	if layout.Tiled {
		layout.TileSize = array.RasterSize{Rows: int32(first.TileHeight), Cols: int32(first.TileWidth)}
	} else {
		layout.RowsPerStrip = int32(first.RowsPerStrip)
	}

	return GeoTiffMetadata{
		Layout:      layout,
		BandCount:   int(first.SamplesPerPixel),
		ElementType: elemType,
		Compression: compressionFromTag(first.Compression),
		Predictor:   predictorFromTag(first.Predictor),
		GeoRef:      ref,
		Pyramid:     pyramid,
		Stats:       parseStatistics(first.GDALMetadata),
		IsCOG:       ghost.IsCOG(),
	}, nil
}

func parseGDALNoData(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// gdalMetadataXML mirrors the small subset of GDAL_METADATA's XML shape
// this reader cares about: per-band <Item name="STATISTICS_..."> entries.
// encoding/xml is used rather than a third-party parser because no XML
// library appears anywhere in the retrieved corpus (the TMX-format files
// under other_examples/ use this same stdlib package for their own XML
// needs, which is the closest grounding available).
type gdalMetadataXML struct {
	Items []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:",chardata"`
	} `xml:"Item"`
}

func parseStatistics(raw string) *Statistics {
	if raw == "" {
		return nil
	}
	var doc gdalMetadataXML
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil
	}
	var stats Statistics
	found := false
	for _, item := range doc.Items {
		v, err := strconv.ParseFloat(strings.TrimSpace(item.Value), 64)
		if err != nil {
			continue
		}
		switch item.Name {
		case "STATISTICS_MINIMUM":
			stats.Min, found = v, true
		case "STATISTICS_MAXIMUM":
			stats.Max, found = v, true
		case "STATISTICS_MEAN":
			stats.Mean, found = v, true
		case "STATISTICS_STDDEV":
			stats.StdDev, found = v, true
		case "STATISTICS_VALID_PERCENT":
			stats.ValidPercent, found = v, true
		}
	}
	if !found {
		return nil
	}
	return &stats
}

// parseScaleOffset extracts the optional band rescaling parameters GDAL
// records alongside the statistics items.
func parseScaleOffset(raw string) (scale, offset *float64) {
	if raw == "" {
		return nil, nil
	}
	var doc gdalMetadataXML
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, nil
	}
	for _, item := range doc.Items {
		v, err := strconv.ParseFloat(strings.TrimSpace(item.Value), 64)
		if err != nil {
			continue
		}
		switch item.Name {
		case "SCALE":
			s := v
			scale = &s
		case "OFFSET":
			o := v
			offset = &o
		}
	}
	return scale, offset
}

// chunkContextForLevel builds the decode context for one pyramid level and
// band, wiring the reader's byte order, nodata, metrics, and COG framing
// flag into chunk.go's contract.
func (r *GeoTiffReader) chunkContextForLevel(level int, band int) (*chunkContext, error) {
	if level < 0 || level >= len(r.ifds) {
		return nil, errInvalidArgument("invalid pyramid level %d (have %d)", level, len(r.ifds))
	}
	return &chunkContext{
		IFD:             &r.ifds[level],
		ByteOrder:       r.bo,
		ElementType:     r.meta.ElementType,
		Nodata:          r.meta.GeoRef.Nodata,
		HasBlockFraming: r.meta.IsCOG,
		Band:            band,
		Metrics:         r.metrics,
	}, nil
}

// ReadChunkAt implements spec.md §6.2's read_chunk<T>: decode one chunk at
// (level, chunkIndex) for the given band.
func ReadChunkAt[T array.Numeric](r *GeoTiffReader, level, chunkIndex, band int) (*array.DenseArray[T], error) {
	ctx, err := r.chunkContextForLevel(level, band)
	if err != nil {
		return nil, err
	}
	pyr := &r.meta.Pyramid[level]
	if chunkIndex < 0 || chunkIndex >= len(pyr.ChunkLocations) {
		return nil, errInvalidArgument("chunk index %d out of range (have %d)", chunkIndex, len(pyr.ChunkLocations))
	}
	return ReadChunk[T](r.src, pyr.ChunkLocations[chunkIndex], ctx)
}

// ReadRasterAt implements spec.md §6.2's read_raster<T>: assemble the full
// pyramid level into one DenseArray[T] for the given band.
func ReadRasterAt[T array.Numeric](r *GeoTiffReader, level, band int) (*array.DenseArray[T], error) {
	ctx, err := r.chunkContextForLevel(level, band)
	if err != nil {
		return nil, err
	}
	return ReadRaster[T](r.src, &r.meta.Pyramid[level], ctx)
}

// ReadChunkAnyAt is ReadChunkAt's AnyDenseArray-typed counterpart (spec.md
// §6.2: "for AnyDenseArray-typed results, the same operations exist with
// runtime-typed returns").
func (r *GeoTiffReader) ReadChunkAnyAt(level, chunkIndex, band int) (array.AnyDenseArray, error) {
	ctx, err := r.chunkContextForLevel(level, band)
	if err != nil {
		return array.AnyDenseArray{}, err
	}
	pyr := &r.meta.Pyramid[level]
	if chunkIndex < 0 || chunkIndex >= len(pyr.ChunkLocations) {
		return array.AnyDenseArray{}, errInvalidArgument("chunk index %d out of range (have %d)", chunkIndex, len(pyr.ChunkLocations))
	}
	return ReadChunkAny(r.src, pyr.ChunkLocations[chunkIndex], ctx)
}

// ReadRasterAnyAt is ReadRasterAt's AnyDenseArray-typed counterpart.
func (r *GeoTiffReader) ReadRasterAnyAt(level, band int) (array.AnyDenseArray, error) {
	ctx, err := r.chunkContextForLevel(level, band)
	if err != nil {
		return array.AnyDenseArray{}, err
	}
	return ReadRasterAny(r.src, &r.meta.Pyramid[level], ctx)
}

// ReadChunkLocationAny decodes the chunk at an explicit location owned by
// the given pyramid level/band, rather than one already present in that
// level's own chunk-location list. The webtile package uses this: it
// resolves a web tile to a TiffChunkLocation up front (internal/webtile's
// WebTiles index) and only needs level/band to recover the level's tile
// geometry, compression, and predictor for decoding.
func (r *GeoTiffReader) ReadChunkLocationAny(level, band int, loc TiffChunkLocation) (array.AnyDenseArray, error) {
	ctx, err := r.chunkContextForLevel(level, band)
	if err != nil {
		return array.AnyDenseArray{}, err
	}
	return ReadChunkAny(r.src, loc, ctx)
}

// ReadChunkLocationAt is ReadChunkLocationAny's statically-typed
// counterpart (spec.md §6.2's read_chunk<T>).
func ReadChunkLocationAt[T array.Numeric](r *GeoTiffReader, level, band int, loc TiffChunkLocation) (*array.DenseArray[T], error) {
	ctx, err := r.chunkContextForLevel(level, band)
	if err != nil {
		return nil, err
	}
	return ReadChunk[T](r.src, loc, ctx)
}

// ReadChunkIntoAt decodes a chunk into a caller-supplied buffer of exactly
// one chunk's worth of elements (spec.md §6.2's read_chunk_into<T>).
func ReadChunkIntoAt[T array.Numeric](r *GeoTiffReader, level, band int, loc TiffChunkLocation, buf []T) error {
	ctx, err := r.chunkContextForLevel(level, band)
	if err != nil {
		return err
	}
	return ReadChunkInto[T](r.src, loc, ctx, buf)
}

// ParseChunkAt decodes already-fetched on-disk chunk bytes against the
// geometry of (level, band) without touching the byte source (spec.md
// §6.2's parse_chunk<T>).
func ParseChunkAt[T array.Numeric](r *GeoTiffReader, level, band int, raw []byte) (*array.DenseArray[T], error) {
	ctx, err := r.chunkContextForLevel(level, band)
	if err != nil {
		return nil, err
	}
	return ParseChunk[T](raw, ctx)
}

// ParseChunkAnyAt is ParseChunkAt's runtime-typed counterpart.
func (r *GeoTiffReader) ParseChunkAnyAt(level, band int, raw []byte) (array.AnyDenseArray, error) {
	ctx, err := r.chunkContextForLevel(level, band)
	if err != nil {
		return array.AnyDenseArray{}, err
	}
	return ParseChunkRawAny(raw, ctx)
}

// PyramidLevelForZoom returns the index of the tile-aligned pyramid level
// whose derived web-zoom equals z, if any (internal/webtile uses this to
// recover tile/strip geometry for a zoom it already resolved a chunk at).
func (r *GeoTiffReader) PyramidLevelForZoom(z int) (int, bool) {
	for i := range r.meta.Pyramid {
		if r.meta.Pyramid[i].IsTileAligned && r.meta.Pyramid[i].WebZoom == z {
			return i, true
		}
	}
	return 0, false
}
