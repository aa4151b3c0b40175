package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limnolab/chloromap/internal/raster"
)

func TestPixelToMap(t *testing.T) {
	// North-up 30m raster anchored at (500000, 4600000).
	gt := [6]float64{500000, 30, 0, 4600000, 0, -30}

	x, y := PixelToMap(gt, 0, 0)
	assert.Equal(t, 500000.0, x)
	assert.Equal(t, 4600000.0, y)

	x, y = PixelToMap(gt, 10, 4)
	assert.Equal(t, 500300.0, x)
	assert.Equal(t, 4599880.0, y)
}

func TestPixelToMap_RotatedTransform(t *testing.T) {
	gt := [6]float64{100, 1, 0.5, 200, -0.5, 1}

	x, y := PixelToMap(gt, 2, 4)
	assert.Equal(t, 100+2*1+4*0.5, x)
	assert.Equal(t, 200+2*-0.5+4*1.0, y)
}

func TestCorners_NoProjection(t *testing.T) {
	r := &raster.Raster{
		Bands: [][]float64{{1}},
		Rows:  1,
		Cols:  1,
	}
	_, _, err := Corners(r)
	require.Error(t, err)
}
