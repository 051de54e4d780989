package webtile

import (
	"errors"
	"fmt"

	"github.com/cogengine/raster/internal/array"
	"github.com/cogengine/raster/internal/cog"
	"github.com/cogengine/raster/internal/geo"
)

// DefaultTileSize is the web-tile pixel size this package assumes when a
// caller doesn't care to override it (spec.md §3's TILE_SIZE constant).
const DefaultTileSize = 256

// TileInfo is the caller-facing summary spec.md §6.3 returns from
// tile_info(): the zoom range this COG can serve web tiles for, and the
// WGS84 hull of the data it actually carries at the finest surviving
// zoom.
type TileInfo struct {
	MinZoom int
	MaxZoom int
	Bounds  geo.LatLonBounds
}

// Reader is the caller-facing WebTilesReader of spec.md §6.3: it wraps a
// parsed cog.GeoTiffReader with the zoom-indexed tile index built by
// FromMetadata, and resolves XYZ tile requests to decoded arrays.
type Reader struct {
	cog      *cog.GeoTiffReader
	tiles    *WebTiles
	tileSize int
}

// Open builds a Reader from an already-parsed COG reader. Per spec.md §9
// ("the web-tile path refuses such inputs"), a reader whose metadata
// isn't COG-conformant (DESIGN.md Open Question 3) is rejected: only a
// file declaring the GDAL ghost area's five hard constraints carries the
// row-major, block-framed chunk layout the tile index depends on.
func Open(r *cog.GeoTiffReader) (*Reader, error) {
	return OpenWithTileSize(r, DefaultTileSize)
}

// OpenWithTileSize is Open with an explicit TILE_SIZE, for COGs built
// against a non-default web-tile grid (e.g. 512px).
func OpenWithTileSize(r *cog.GeoTiffReader, tileSize int) (*Reader, error) {
	if !r.Metadata().IsCOG {
		return nil, &cog.Error{Kind: cog.KindInvalidArgument, Msg: "webtile: reader is not a conformant COG (ghost area absent or invalid)"}
	}
	return &Reader{
		cog:      r,
		tiles:    FromMetadata(r.Metadata(), tileSize),
		tileSize: tileSize,
	}, nil
}

// TileInfo reports the zoom range and data bounds this Reader can serve.
func (r *Reader) TileInfo() TileInfo {
	return TileInfo{
		MinZoom: r.tiles.MinZoom(),
		MaxZoom: r.tiles.MaxZoom(),
		Bounds:  r.tiles.DataBounds(),
	}
}

// errOutsideZoomRange marks a structurally valid zoom the index simply
// doesn't serve; tile reads turn it into an empty nodata tile rather than
// an error, while unknown tiles at a served zoom stay InvalidArgument.
var errOutsideZoomRange = errors.New("webtile: zoom outside served range")

// resolve locates the pyramid level and chunk location backing tile,
// rejecting out-of-range zooms and unresolved tiles per spec.md §6.3
// ("Unknown tiles return an InvalidArgument error").
func (r *Reader) resolve(tile Tile) (level int, meta TileMetadata, err error) {
	if tile.Z < 0 || tile.Z > 22 {
		return 0, TileMetadata{}, &cog.Error{Kind: cog.KindInvalidArgument, Msg: "webtile: zoom out of range [0, 22]"}
	}
	if tile.Z < r.tiles.MinZoom() || tile.Z > r.tiles.MaxZoom() {
		return 0, TileMetadata{}, errOutsideZoomRange
	}
	meta, ok := r.tiles.Get(tile)
	if !ok {
		return 0, TileMetadata{}, &cog.Error{Kind: cog.KindInvalidArgument, Msg: "webtile: tile not found"}
	}
	level, ok = r.cog.PyramidLevelForZoom(tile.Z)
	if !ok {
		return 0, TileMetadata{}, &cog.Error{Kind: cog.KindInvalidArgument, Msg: "webtile: no tile-aligned pyramid level at this zoom"}
	}
	return level, meta, nil
}

func (r *Reader) emptyTileMeta() array.Metadata {
	return array.PlainMetadata(array.RasterSize{Rows: int32(r.tileSize), Cols: int32(r.tileSize)})
}

// ReadTile implements spec.md §6.3's read_tile: resolve tile to its COG
// chunk and decode it into a runtime-typed array. A sparse chunk decodes
// to an array pre-filled with the element type's nodata sentinel, per
// spec.md §4.6 step 1 and §6.3's "sparse tiles return an array pre-filled
// with nodata".
func (r *Reader) ReadTile(tile Tile) (array.AnyDenseArray, error) {
	level, meta, err := r.resolve(tile)
	if errors.Is(err, errOutsideZoomRange) {
		return array.FilledAny(r.cog.Metadata().ElementType, r.emptyTileMeta()), nil
	}
	if err != nil {
		return array.AnyDenseArray{}, err
	}
	return r.cog.ReadChunkLocationAny(level, 0, meta.CogLocation)
}

// ReadTileAs is ReadTile's statically-typed counterpart (spec.md §6.3's
// read_tile_as<T>): fatal InvalidArgument if T doesn't match the COG's
// native element type, per §4.6's type-mismatch contract.
func ReadTileAs[T array.Numeric](r *Reader, tile Tile) (*array.DenseArray[T], error) {
	if want := array.TypeOf[T](); want != r.cog.Metadata().ElementType {
		return nil, &cog.Error{Kind: cog.KindInvalidArgument, Msg: fmt.Sprintf("webtile: requested element type %v does not match raster's native type %v", want, r.cog.Metadata().ElementType)}
	}
	level, meta, err := r.resolve(tile)
	if errors.Is(err, errOutsideZoomRange) {
		return array.FilledWith[T](r.emptyTileMeta(), nil), nil
	}
	if err != nil {
		return nil, err
	}
	return cog.ReadChunkLocationAt[T](r.cog, level, 0, meta.CogLocation)
}

// IsSparse reports whether tile resolves to a chunk with no on-disk data
// (spec.md §6.3: "the caller distinguishes by inspecting is_sparse()").
func (r *Reader) IsSparse(tile Tile) (bool, error) {
	_, meta, err := r.resolve(tile)
	if errors.Is(err, errOutsideZoomRange) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return meta.CogLocation.IsSparse(), nil
}
