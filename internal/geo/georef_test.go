package geo

import (
	"math"
	"testing"

	"github.com/cogengine/raster/internal/array"
)

func northUpRef(originX, originY, cellSize float64, rows, cols int32) GeoReference {
	return GeoReference{
		RasterSize: array.RasterSize{Rows: rows, Cols: cols},
		Transform:  GeoTransform{originX, cellSize, 0, originY, 0, -cellSize},
	}
}

func TestGeoTransformApply(t *testing.T) {
	g := GeoTransform{100, 2, 0, 50, 0, -2}
	x, y := g.Apply(0, 0)
	if x != 100 || y != 50 {
		t.Fatalf("Apply(0,0) = (%v,%v), want (100,50)", x, y)
	}
	x, y = g.Apply(1, 1)
	if x != 102 || y != 48 {
		t.Fatalf("Apply(1,1) = (%v,%v), want (102,48)", x, y)
	}
}

func TestPointToCellRoundTrip(t *testing.T) {
	// spec.md §8 round-trip law 1: point_to_cell(cell_center(c)) == c.
	ref := northUpRef(-100, 50, 1, 10, 10)
	for row := int32(0); row < 10; row++ {
		for col := int32(0); col < 10; col++ {
			c := array.Cell{Row: row, Col: col}
			x, y := ref.CellCenter(c)
			got := ref.PointToCell(x, y)
			if got != c {
				t.Fatalf("round trip cell %v -> (%v,%v) -> %v", c, x, y, got)
			}
		}
	}
}

func TestValidRequiresNonZeroCellSizes(t *testing.T) {
	ref := northUpRef(0, 0, 1, 1, 1)
	if !ref.Valid() {
		t.Fatal("expected valid georeference")
	}
	zero := ref
	zero.Transform[1] = 0
	if zero.Valid() {
		t.Fatal("expected zero cell-size-x to be invalid")
	}
}

func TestBoundsNorthUp(t *testing.T) {
	ref := northUpRef(-10, 10, 1, 20, 20)
	b := ref.Bounds()
	if b.MinX != -10 || b.MaxX != 10 {
		t.Errorf("X bounds = [%v,%v], want [-10,10]", b.MinX, b.MaxX)
	}
	if b.MinY != -10 || b.MaxY != 10 {
		t.Errorf("Y bounds = [%v,%v], want [-10,10]", b.MinY, b.MaxY)
	}
}

func TestAlignedWithSameGrid(t *testing.T) {
	a := northUpRef(0, 0, 1, 10, 10)
	b := northUpRef(5, 3, 1, 10, 10)
	if !a.AlignedWith(b) {
		t.Fatal("integer-offset same-resolution grids should be aligned")
	}
}

func TestAlignedWithFractionalOffsetFails(t *testing.T) {
	a := northUpRef(0, 0, 1, 10, 10)
	b := northUpRef(0.5, 0, 1, 10, 10)
	if a.AlignedWith(b) {
		t.Fatal("fractional-pixel offset must not be aligned")
	}
}

func TestAlignedWithIntegerMultipleCellSize(t *testing.T) {
	a := northUpRef(0, 0, 1, 10, 10)
	b := northUpRef(0, 0, 4, 10, 10)
	if !a.AlignedWith(b) {
		t.Fatal("one cell size an integer multiple of the other should align")
	}
}

func TestIntersectsRequiresSameProjection(t *testing.T) {
	a := northUpRef(0, 0, 1, 10, 10)
	a.Projection = "EPSG:4326"
	b := northUpRef(0, 0, 1, 10, 10)
	b.Projection = "EPSG:3857"
	if a.Intersects(b) {
		t.Fatal("different projections must never intersect")
	}
}

func TestIntersectsOverlappingBounds(t *testing.T) {
	a := northUpRef(0, 10, 1, 10, 10) // covers x:[0,10] y:[0,10]
	b := northUpRef(5, 10, 1, 10, 10) // covers x:[5,15] y:[0,10]
	if !a.Intersects(b) {
		t.Fatal("overlapping aligned rasters should intersect")
	}
	c := northUpRef(100, 10, 1, 10, 10) // far away, no overlap
	if a.Intersects(c) {
		t.Fatal("disjoint rasters must not intersect")
	}
}

func TestRectIntersectionAndHull(t *testing.T) {
	r1 := Rect{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	r2 := Rect{MinX: 5, MinY: 5, MaxX: 15, MaxY: 15}
	inter, ok := r1.Intersection(r2)
	if !ok || inter.MinX != 5 || inter.MaxX != 10 {
		t.Fatalf("intersection = %+v, ok=%v", inter, ok)
	}
	hull := r1.Hull(r2)
	if hull.MinX != 0 || hull.MaxX != 15 {
		t.Fatalf("hull = %+v", hull)
	}

	disjoint := Rect{MinX: 100, MinY: 100, MaxX: 110, MaxY: 110}
	if _, ok := r1.Intersection(disjoint); ok {
		t.Fatal("disjoint rects must not intersect")
	}
}

func TestPixelSizeToZoomRoundingStrategies(t *testing.T) {
	const circumference = 40075016.685578488
	// Zoom 10's nominal pixel size at 256px tiles.
	pixelSize := circumference / (256 * math.Pow(2, 10))

	if z := PixelSizeToZoom(pixelSize, circumference, 256, ZoomNearest); z != 10 {
		t.Errorf("nearest: z = %d, want 10", z)
	}

	// A pixel size between zoom 9 and 10 resolves differently per strategy.
	mid := circumference / (256 * math.Pow(2, 9.5))
	if z := PixelSizeToZoom(mid, circumference, 256, ZoomUpper); z != 10 {
		t.Errorf("upper: z = %d, want 10", z)
	}
	if z := PixelSizeToZoom(mid, circumference, 256, ZoomLower); z != 9 {
		t.Errorf("lower: z = %d, want 9", z)
	}
}

func TestWorldBounds(t *testing.T) {
	w := World()
	if w.MinLon != -180 || w.MaxLon != 180 {
		t.Fatalf("world lon bounds = [%v,%v]", w.MinLon, w.MaxLon)
	}
}
