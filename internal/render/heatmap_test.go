package render

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeatmap_SavePNG(t *testing.T) {
	h := NewHeatmap(0, 60)

	values := make([]float64, 12)
	for i := range values {
		values[i] = float64(i * 5)
	}
	values[5] = math.NaN() // masked pixel

	path := filepath.Join(t.TempDir(), "pred.png")
	require.NoError(t, h.Save(values, 3, 4, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestHeatmap_ShapeMismatch(t *testing.T) {
	h := NewHeatmap(0, 60)
	err := h.Save([]float64{1, 2, 3}, 2, 2, filepath.Join(t.TempDir(), "bad.png"))
	require.Error(t, err)
}

func TestPredictionGrid_FlipsRows(t *testing.T) {
	g := predictionGrid{
		values: []float64{
			1, 2,
			3, 4,
		},
		rows: 2,
		cols: 2,
	}

	c, r := g.Dims()
	assert.Equal(t, 2, c)
	assert.Equal(t, 2, r)

	// Raster row 0 (values 1, 2) is the top: plot row r=1.
	assert.Equal(t, 1.0, g.Z(0, 1))
	assert.Equal(t, 2.0, g.Z(1, 1))
	assert.Equal(t, 3.0, g.Z(0, 0))
	assert.Equal(t, 4.0, g.Z(1, 0))
}
