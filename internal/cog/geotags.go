package cog

import (
	"fmt"

	"github.com/cogengine/raster/internal/geo"
)

// GeoTIFF GeoKey IDs, grounded on internal/cog/geotags.go.
const (
	gkModelTypeGeoKey       = 1024
	gkRasterTypeGeoKey      = 1025
	gkGeographicTypeGeoKey  = 2048
	gkProjectedCSTypeGeoKey = 3072
)

// deriveGeoTransform builds the six-parameter affine from whichever of
// ModelTransform / (ModelPixelScale + ModelTiepoint) the IFD carries, per
// spec.md §4.3's derivation order: an explicit 4x4 ModelTransformation
// matrix wins; otherwise scale+tiepoint are combined.
func deriveGeoTransform(ifd *IFD) (geo.GeoTransform, bool) {
	if len(ifd.ModelTransform) >= 16 {
		m := ifd.ModelTransform
		return geo.GeoTransform{m[3], m[0], m[1], m[7], m[4], m[5]}, true
	}
	if len(ifd.ModelPixelScale) >= 2 && len(ifd.ModelTiepoint) >= 6 {
		sx, sy := ifd.ModelPixelScale[0], ifd.ModelPixelScale[1]
		tp := ifd.ModelTiepoint
		originX := tp[3] - tp[0]*sx
		originY := tp[4] + tp[1]*sy
		return geo.GeoTransform{originX, sx, 0, originY, 0, -sy}, true
	}
	return geo.GeoTransform{}, false
}

// parseEPSG extracts the EPSG code from GeoKey directory entries, the
// format documented in internal/cog/geotags.go (unchanged from teacher).
func parseEPSG(geoKeys []uint16) int {
	if len(geoKeys) < 4 {
		return 0
	}
	numKeys := int(geoKeys[3])
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(geoKeys) {
			break
		}
		keyID := geoKeys[base]
		valueOffset := geoKeys[base+3]
		switch keyID {
		case gkProjectedCSTypeGeoKey, gkGeographicTypeGeoKey:
			if valueOffset > 0 && valueOffset != 32767 {
				return int(valueOffset)
			}
		}
	}
	return 0
}

// projectionString renders an EPSG code the way the rest of the module
// (CoordinateTransformer, ForEPSG) expects it.
func projectionString(epsg int) string {
	if epsg == 0 {
		return ""
	}
	return fmt.Sprintf("EPSG:%d", epsg)
}
