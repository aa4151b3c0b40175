// Package geo computes the WGS84 corner coordinates of a raster from
// its geotransform and projection. This is a thin wrapper over the GDAL
// spatial-reference machinery.
package geo

import (
	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"

	"github.com/limnolab/chloromap/internal/raster"
)

// Corner is a WGS84 coordinate pair.
type Corner struct {
	Lat float64
	Lon float64
}

// PixelToMap applies a GDAL geotransform to fractional pixel
// coordinates, returning projected map coordinates.
func PixelToMap(gt [6]float64, col, row float64) (x, y float64) {
	x = gt[0] + col*gt[1] + row*gt[2]
	y = gt[3] + col*gt[4] + row*gt[5]
	return x, y
}

// Corners reprojects the raster's top-left and bottom-right corners
// into WGS84 latitude/longitude.
func Corners(r *raster.Raster) (topLeft, bottomRight Corner, err error) {
	if r.Projection == "" {
		return Corner{}, Corner{}, eris.New("geo: raster has no projection")
	}

	x1, y1 := PixelToMap(r.GeoTransform, 0, 0)
	x2, y2 := PixelToMap(r.GeoTransform, float64(r.Cols), float64(r.Rows))

	src, err := godal.NewSpatialRefFromWKT(r.Projection)
	if err != nil {
		return Corner{}, Corner{}, eris.Wrap(err, "geo: parse raster projection")
	}
	defer src.Close()

	dst, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return Corner{}, Corner{}, eris.Wrap(err, "geo: create WGS84 reference")
	}
	defer dst.Close()

	tr, err := godal.NewTransform(src, dst)
	if err != nil {
		return Corner{}, Corner{}, eris.Wrap(err, "geo: create transform")
	}
	defer tr.Close()

	xs := []float64{x1, x2}
	ys := []float64{y1, y2}
	if err := tr.TransformEx(xs, ys, nil, nil); err != nil {
		return Corner{}, Corner{}, eris.Wrap(err, "geo: reproject corners")
	}

	// Transforms run in traditional GIS axis order: x carries longitude.
	topLeft = Corner{Lat: ys[0], Lon: xs[0]}
	bottomRight = Corner{Lat: ys[1], Lon: xs[1]}
	return topLeft, bottomRight, nil
}
