package coord

// SwissLV95 implements Projection for EPSG:2056 (CH1903+ / LV95) using
// swisstopo's published approximate polynomial, accurate to ~1m — plenty
// for tile-boundary and pixel-reprojection use. It exists in this package
// purely as a second concrete Projection beyond Web-Mercator/identity, so
// internal/cog/collaborators.go's CoordinateTransformer interface has more
// than one real implementation to be adapted against.
//
// https://www.swisstopo.admin.ch/en/knowledge-facts/surveying-geodesy/reference-frames/local/lv95.html
type SwissLV95 struct{}

func (s *SwissLV95) EPSG() int { return epsgSwissLV95 }

// bernEasting/bernNorthing are the LV95 coordinates of the Bern reference
// point the auxiliary y/x values in ToWGS84/FromWGS84 are centered on.
const (
	bernEasting  = 2_600_000.0
	bernNorthing = 1_200_000.0
)

func (s *SwissLV95) ToWGS84(easting, northing float64) (lon, lat float64) {
	y := (easting - bernEasting) / 1_000_000
	x := (northing - bernNorthing) / 1_000_000

	lonSec := 2.6779094 +
		4.728982*y +
		0.791484*y*x +
		0.1306*y*x*x -
		0.0436*y*y*y

	latSec := 16.9023892 +
		3.238272*x -
		0.270978*y*y -
		0.002528*x*x -
		0.0447*y*y*x -
		0.0140*x*x*x

	const secToDeg = 100.0 / 36.0
	lon = lonSec * secToDeg
	lat = latSec * secToDeg
	return
}

func (s *SwissLV95) FromWGS84(lon, lat float64) (easting, northing float64) {
	phiAux := (lat*3600 - 169028.66) / 10000
	lambdaAux := (lon*3600 - 26782.5) / 10000

	easting = 2_600_072.37 +
		211_455.93*lambdaAux -
		10_938.51*lambdaAux*phiAux -
		0.36*lambdaAux*phiAux*phiAux -
		44.54*lambdaAux*lambdaAux*lambdaAux

	northing = 1_200_147.07 +
		308_807.95*phiAux +
		3_745.25*lambdaAux*lambdaAux +
		76.63*phiAux*phiAux -
		194.56*lambdaAux*lambdaAux*phiAux +
		119.79*phiAux*phiAux*phiAux

	return
}
