// Package geo implements the affine georeference model: six-parameter
// geo-transforms, cell/point conversion, and alignment/intersection tests.
package geo

import (
	"math"

	"github.com/cogengine/raster/internal/array"
)

// GeoTransform is the six-parameter affine mapping from (col, row) to
// (x, y), matching the classic GDAL geotransform layout:
//
//	x = geo[0] + geo[1]*col + geo[2]*row
//	y = geo[3] + geo[4]*col + geo[5]*row
type GeoTransform [6]float64

func (g GeoTransform) OriginX() float64     { return g[0] }
func (g GeoTransform) OriginY() float64     { return g[3] }
func (g GeoTransform) PixelWidth() float64  { return g[1] }
func (g GeoTransform) RowRotation() float64 { return g[2] }
func (g GeoTransform) ColRotation() float64 { return g[4] }
func (g GeoTransform) PixelHeight() float64 { return g[5] }

// Apply maps a (col, row) pair to a geographic point.
func (g GeoTransform) Apply(col, row float64) (x, y float64) {
	x = g[0] + g[1]*col + g[2]*row
	y = g[3] + g[4]*col + g[5]*row
	return
}

// GeoReference is the immutable descriptor of a raster's location and
// resolution. Scale/Offset are optional band-level rescaling parameters
// as carried by GDAL's ModelPixelScale-adjacent tags; nil means unset.
type GeoReference struct {
	Projection string
	RasterSize array.RasterSize
	Transform  GeoTransform
	Nodata     *float64
	Scale      *float64
	Offset     *float64
}

func (g GeoReference) Size() array.RasterSize { return g.RasterSize }

// CellSizeX / CellSizeY report the pixel width/height; both must be
// non-zero for a valid GeoReference.
func (g GeoReference) CellSizeX() float64 { return g.Transform.PixelWidth() }
func (g GeoReference) CellSizeY() float64 { return g.Transform.PixelHeight() }

// Valid reports the invariants from spec.md §3: non-zero cell sizes.
func (g GeoReference) Valid() bool {
	return g.CellSizeX() != 0 && g.CellSizeY() != 0
}

// CellToPoint maps a cell's top-left corner to a geographic point.
func (g GeoReference) CellToPoint(c array.Cell) (x, y float64) {
	return g.Transform.Apply(float64(c.Col), float64(c.Row))
}

// CellCenter maps a cell's center to a geographic point.
func (g GeoReference) CellCenter(c array.Cell) (x, y float64) {
	return g.Transform.Apply(float64(c.Col)+0.5, float64(c.Row)+0.5)
}

// PointToCell is the inverse of CellToPoint for north-up (no rotation)
// rasters: floor((p.y - topY) / cellSizeY), floor((p.x - topX) / cellSizeX).
func (g GeoReference) PointToCell(x, y float64) array.Cell {
	col := math.Floor((x - g.Transform.OriginX()) / g.CellSizeX())
	row := math.Floor((y - g.Transform.OriginY()) / g.CellSizeY())
	return array.Cell{Row: int32(row), Col: int32(col)}
}

// Rect is a planar axis-aligned rectangle.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

func (r Rect) Width() float64  { return r.MaxX - r.MinX }
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

func (r Rect) Hull(other Rect) Rect {
	return Rect{
		MinX: math.Min(r.MinX, other.MinX),
		MinY: math.Min(r.MinY, other.MinY),
		MaxX: math.Max(r.MaxX, other.MaxX),
		MaxY: math.Max(r.MaxY, other.MaxY),
	}
}

func (r Rect) Intersection(other Rect) (Rect, bool) {
	out := Rect{
		MinX: math.Max(r.MinX, other.MinX),
		MinY: math.Max(r.MinY, other.MinY),
		MaxX: math.Min(r.MaxX, other.MaxX),
		MaxY: math.Min(r.MaxY, other.MaxY),
	}
	if out.MinX >= out.MaxX || out.MinY >= out.MaxY {
		return Rect{}, false
	}
	return out, true
}

// LatLonBounds is the geographic analogue of Rect (degrees).
type LatLonBounds struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// World returns the full Web-Mercator extent in WGS84 lon/lat (latitude
// clipped to ±85.05112878°), the fallback
// data_bounds() result when no non-sparse tile exists (spec.md §4.8).
func World() LatLonBounds {
	return LatLonBounds{MinLon: -180, MinLat: -85.05112878, MaxLon: 180, MaxLat: 85.05112878}
}

func (b LatLonBounds) Hull(other LatLonBounds) LatLonBounds {
	return LatLonBounds{
		MinLon: math.Min(b.MinLon, other.MinLon),
		MinLat: math.Min(b.MinLat, other.MinLat),
		MaxLon: math.Max(b.MaxLon, other.MaxLon),
		MaxLat: math.Max(b.MaxLat, other.MaxLat),
	}
}

// Bounds returns the planar rectangle covered by the raster.
func (g GeoReference) Bounds() Rect {
	x0, y0 := g.Transform.Apply(0, 0)
	x1, y1 := g.Transform.Apply(float64(g.RasterSize.Cols), float64(g.RasterSize.Rows))
	return Rect{
		MinX: math.Min(x0, x1), MaxX: math.Max(x0, x1),
		MinY: math.Min(y0, y1), MaxY: math.Max(y0, y1),
	}
}

const alignEpsilon = 1e-9

// isIntegerMultiple reports whether a/b is within alignEpsilon of an
// integer, used by both cell-size compatibility and origin alignment.
func isIntegerMultiple(a, b float64) bool {
	if b == 0 {
		return false
	}
	ratio := a / b
	return math.Abs(ratio-math.Round(ratio)) < alignEpsilon
}

// AlignedWith reports whether g and other share an origin that differs by
// an integer multiple of their (common or compatible) cell size, and that
// their cell sizes are equal or one is an integer multiple of the other —
// spec.md §3's GeoReference alignment invariant.
func (g GeoReference) AlignedWith(other GeoReference) bool {
	sx, osx := math.Abs(g.CellSizeX()), math.Abs(other.CellSizeX())
	sy, osy := math.Abs(g.CellSizeY()), math.Abs(other.CellSizeY())
	if !isIntegerMultiple(sx, osx) && !isIntegerMultiple(osx, sx) {
		return false
	}
	if !isIntegerMultiple(sy, osy) && !isIntegerMultiple(osy, sy) {
		return false
	}
	dx := g.Transform.OriginX() - other.Transform.OriginX()
	dy := g.Transform.OriginY() - other.Transform.OriginY()
	cellX := math.Min(sx, osx)
	cellY := math.Min(sy, osy)
	return isIntegerMultiple(dx, cellX) && isIntegerMultiple(dy, cellY)
}

// Intersects reports whether g and other intersect per spec.md §4.10:
// equal projections, aligned cell sizes/origins, and overlapping bounds.
func (g GeoReference) Intersects(other GeoReference) bool {
	if g.Projection != other.Projection {
		return false
	}
	if !g.AlignedWith(other) {
		return false
	}
	_, ok := g.Bounds().Intersection(other.Bounds())
	return ok
}

// ZoomRounding selects the tie-break strategy for PixelSizeToZoom.
type ZoomRounding int

const (
	ZoomNearest ZoomRounding = iota
	ZoomUpper
	ZoomLower
)

// PixelSizeToZoom implements spec.md §4.10's z = log2(circumference /
// (tileSize * pixelSize)) formula with the given tie-break strategy.
func PixelSizeToZoom(pixelSize, earthCircumference float64, tileSize int, rounding ZoomRounding) int {
	z := math.Log2(earthCircumference / (float64(tileSize) * pixelSize))
	switch rounding {
	case ZoomUpper:
		return int(math.Ceil(z))
	case ZoomLower:
		return int(math.Floor(z))
	default:
		return int(math.Round(z))
	}
}
