// Package webtile maps Web-Mercator XYZ tiles onto the COG chunks that
// back them (spec.md §4.8), grounded on
// original_source/crates/geo/src/cog/webtiles.rs's WebTiles/WebTilesReader.
package webtile

import (
	"github.com/cogengine/raster/internal/array"
	"github.com/cogengine/raster/internal/cog"
	"github.com/cogengine/raster/internal/coord"
	"github.com/cogengine/raster/internal/geo"
)

// Tile identifies one Web-Mercator XYZ tile (Google/OSM convention: y=0 at
// the north edge).
type Tile struct {
	Z, X, Y int
}

// UpperLeft returns the WGS84 coordinate of the tile's northwest corner.
func (t Tile) UpperLeft() (lon, lat float64) {
	minLon, _, _, maxLat := coord.TileBounds(t.Z, t.X, t.Y)
	return minLon, maxLat
}

// LowerRight returns the WGS84 coordinate of the tile's southeast corner.
func (t Tile) LowerRight() (lon, lat float64) {
	_, minLat, maxLon, _ := coord.TileBounds(t.Z, t.X, t.Y)
	return maxLon, minLat
}

// WebTileOffset is the pixel offset of a web tile's origin within the COG
// chunk that backs it — nonzero only when the pyramid level isn't
// tile-aligned to the web grid (spec.md §4.8).
type WebTileOffset struct {
	X, Y int
}

// TileMetadata is what a web Tile resolves to: the COG chunk location plus
// the pixel offset of the tile's content within that chunk.
type TileMetadata struct {
	CogLocation cog.TiffChunkLocation
	Offset      WebTileOffset
}

// numZoomLevels matches spec.md §4.8's literal zoom range 0..=22 inclusive
// (23 levels); DESIGN.md Open Question 1 treats the original's off-by-one
// 22-slot array as a bug, not a behavior to replicate.
const numZoomLevels = 23

// WebTiles is the zoom-indexed tile->chunk map built from one COG's
// pyramid, trimmed to the zoom range that actually carries tile-aligned
// data (webtiles.rs's trim_empty_zoom_levels).
type WebTiles struct {
	zoomLevels []map[Tile]TileMetadata
}

// FromMetadata builds the tile index from a fully parsed COG's metadata.
// Only pyramid levels marked IsTileAligned contribute entries: spec.md
// §4.8 requires an exact pixel-grid match between the COG level and the
// web-tile grid before chunks can be handed out without resampling.
func FromMetadata(meta *cog.GeoTiffMetadata, tileSize int) *WebTiles {
	zoomLevels := make([]map[Tile]TileMetadata, numZoomLevels)
	for i := range zoomLevels {
		zoomLevels[i] = make(map[Tile]TileMetadata)
	}

	for i := range meta.Pyramid {
		level := &meta.Pyramid[i]
		if !level.IsTileAligned {
			continue
		}
		if level.WebZoom < 0 || level.WebZoom >= numZoomLevels {
			continue
		}

		tiles := generateTilesForExtent(meta.GeoRef.Transform, level.RasterSize, tileSize, level.WebZoom)
		for idx, entry := range tiles {
			if idx >= len(level.ChunkLocations) {
				break
			}
			zoomLevels[level.WebZoom][entry.tile] = TileMetadata{
				CogLocation: level.ChunkLocations[idx],
				Offset:      entry.offset,
			}
		}
	}

	trimEmptyZoomLevels(&zoomLevels)
	return &WebTiles{zoomLevels: zoomLevels}
}

// tileEntry pairs a Tile with its WebTileOffset, produced in the same
// row-major order generate_tiles_for_extent emits so it zips directly
// against the pyramid level's chunk-location list.
type tileEntry struct {
	tile   Tile
	offset WebTileOffset
}

// generateTilesForExtent computes which web tiles a tile-aligned pyramid
// level covers, in the same row-major order as the level's on-disk chunk
// list, so the two can be zipped index-for-index (webtiles.rs's
// generate_tiles_for_extent).
func generateTilesForExtent(transform geo.GeoTransform, size array.RasterSize, tileSize int, zoom int) []tileEntry {
	proj := &coord.WebMercatorProj{}
	topLeftLon, topLeftLat := proj.ToWGS84(transform.OriginX(), transform.OriginY())
	topLeftX, topLeftY := coord.LonLatToTile(topLeftLon, topLeftLat, zoom)

	tilesWide := (int(size.Cols) + tileSize - 1) / tileSize
	tilesHigh := (int(size.Rows) + tileSize - 1) / tileSize

	entries := make([]tileEntry, 0, tilesWide*tilesHigh)
	for ty := 0; ty < tilesHigh; ty++ {
		for tx := 0; tx < tilesWide; tx++ {
			entries = append(entries, tileEntry{
				tile: Tile{Z: zoom, X: topLeftX + tx, Y: topLeftY + ty},
				// Tile-aligned levels by construction have a zero pixel
				// offset; non-aligned levels never reach here.
				offset: WebTileOffset{},
			})
		}
	}
	return entries
}

func trimEmptyZoomLevels(zoomLevels *[]map[Tile]TileMetadata) {
	levels := *zoomLevels
	for len(levels) > 0 && len(levels[len(levels)-1]) == 0 {
		levels = levels[:len(levels)-1]
	}
	*zoomLevels = levels
}

// Get looks up the chunk backing tile, if any.
func (w *WebTiles) Get(tile Tile) (TileMetadata, bool) {
	if tile.Z < 0 || tile.Z >= len(w.zoomLevels) {
		return TileMetadata{}, false
	}
	meta, ok := w.zoomLevels[tile.Z][tile]
	return meta, ok
}

// MinZoom returns the lowest zoom level carrying at least one tile.
func (w *WebTiles) MinZoom() int {
	min := 0
	for _, level := range w.zoomLevels {
		if len(level) == 0 {
			min++
			continue
		}
		break
	}
	return min
}

// MaxZoom returns the index of the last (trimmed) zoom level.
func (w *WebTiles) MaxZoom() int {
	return len(w.zoomLevels) - 1
}

// DataBounds returns the WGS84 hull of every tile carrying data at the
// maximum zoom level, or the whole-world bounds if there is none
// (webtiles.rs's data_bounds).
func (w *WebTiles) DataBounds() geo.LatLonBounds {
	if len(w.zoomLevels) == 0 {
		return geo.World()
	}
	last := w.zoomLevels[len(w.zoomLevels)-1]

	minX, maxX := int(^uint(0)>>1), -int(^uint(0)>>1)-1
	minY, maxY := int(^uint(0)>>1), -int(^uint(0)>>1)-1
	found := false
	for tile, meta := range last {
		if meta.CogLocation.Size == 0 {
			continue
		}
		found = true
		if tile.X < minX {
			minX = tile.X
		}
		if tile.X > maxX {
			maxX = tile.X
		}
		if tile.Y < minY {
			minY = tile.Y
		}
		if tile.Y > maxY {
			maxY = tile.Y
		}
	}
	if !found {
		return geo.World()
	}

	zoom := w.MaxZoom()
	minTile := Tile{Z: zoom, X: minX, Y: minY}
	maxTile := Tile{Z: zoom, X: maxX, Y: maxY}

	nwLon, nwLat := minTile.UpperLeft()
	seLon, seLat := maxTile.LowerRight()

	return geo.LatLonBounds{MinLon: nwLon, MinLat: seLat, MaxLon: seLon, MaxLat: nwLat}
}
