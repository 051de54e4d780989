package cog

import "github.com/cogengine/raster/internal/array"

// CoordinateTransformer is the external collaborator spec.md §6.4
// delegates reprojection to: the core never implements warping itself, it
// only calls out to one of these when a caller needs points moved between
// CRSes. Grounded on internal/coord/projection.go's Projection interface,
// generalized from "always via WGS84" to an arbitrary source/target pair.
type CoordinateTransformer interface {
	// TransformPoint converts one (x, y) coordinate from the source CRS to
	// the target CRS this transformer was constructed for.
	TransformPoint(x, y float64) (float64, float64, error)

	// TransformPointsInPlace applies TransformPoint to every (xs[i], ys[i])
	// pair, overwriting both slices. Implementations may batch this far
	// more efficiently than a per-point loop (e.g. PROJ's array API).
	TransformPointsInPlace(xs, ys []float64) error
}

// ColorMapper is the external collaborator spec.md §6.4 delegates color
// legend math to: given a decoded DenseArray[T], produce one packed RGBA
// pixel per cell. The core never prescribes a ramp, palette, or stretch;
// it only calls Map at the point a caller asks for a colored tile instead
// of raw values.
type ColorMapper[T array.Numeric] interface {
	Map(values *array.DenseArray[T]) ([]uint32, error)
}

// projectionTransformer adapts a coord.Projection (source CRS <-> WGS84)
// into a CoordinateTransformer chaining source->WGS84->target through two
// Projections, demonstrating the interface without widening the core's
// scope into general CRS-to-CRS math (spec.md's Non-goal on warping).
type projectionTransformer struct {
	source projection
	target projection
}

// projection is the minimal subset of coord.Projection this package needs,
// kept local so internal/cog doesn't import internal/coord just for this
// one adapter.
type projection interface {
	ToWGS84(x, y float64) (lon, lat float64)
	FromWGS84(lon, lat float64) (x, y float64)
}

// NewCoordinateTransformer builds a CoordinateTransformer that reprojects
// through WGS84 using the given source and target Projections (e.g. two
// coord.ForEPSG results).
func NewCoordinateTransformer(source, target projection) CoordinateTransformer {
	return &projectionTransformer{source: source, target: target}
}

func (t *projectionTransformer) TransformPoint(x, y float64) (float64, float64, error) {
	lon, lat := t.source.ToWGS84(x, y)
	tx, ty := t.target.FromWGS84(lon, lat)
	return tx, ty, nil
}

func (t *projectionTransformer) TransformPointsInPlace(xs, ys []float64) error {
	if len(xs) != len(ys) {
		return errInvalidArgument("coordinate slices have mismatched lengths: %d vs %d", len(xs), len(ys))
	}
	for i := range xs {
		tx, ty, err := t.TransformPoint(xs[i], ys[i])
		if err != nil {
			return err
		}
		xs[i], ys[i] = tx, ty
	}
	return nil
}
