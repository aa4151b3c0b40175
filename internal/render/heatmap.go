// Package render draws prediction grids as PNG heatmaps on a fixed
// concentration scale. Masked (NaN) pixels are left undrawn so the
// image stays transparent where the source had no data.
package render

import (
	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Heatmap renders single-band grids with a fixed value scale so images
// from different dates and lakes are visually comparable.
type Heatmap struct {
	Min     float64
	Max     float64
	Palette palette.Palette
}

// NewHeatmap builds a renderer for the given value scale; 0-60 µg/L is
// the usual chlorophyll-a range.
func NewHeatmap(min, max float64) *Heatmap {
	return &Heatmap{
		Min:     min,
		Max:     max,
		Palette: palette.Heat(256, 255),
	}
}

// predictionGrid adapts a row-major grid to plotter.GridXYZ. Raster row
// 0 is the top of the image while plot Y grows upward, so rows are
// flipped.
type predictionGrid struct {
	values     []float64
	rows, cols int
}

func (g predictionGrid) Dims() (int, int)   { return g.cols, g.rows }
func (g predictionGrid) X(c int) float64    { return float64(c) }
func (g predictionGrid) Y(r int) float64    { return float64(r) }
func (g predictionGrid) Z(c, r int) float64 { return g.values[(g.rows-1-r)*g.cols+c] }

// Save writes the grid as a PNG at path. The image has no axes, titles
// or padding; it is a bare raster view.
func (h *Heatmap) Save(values []float64, rows, cols int, path string) error {
	if len(values) != rows*cols {
		return eris.Errorf("render: grid has %d values, want %dx%d", len(values), rows, cols)
	}

	hm := plotter.NewHeatMap(predictionGrid{values: values, rows: rows, cols: cols}, h.Palette)
	hm.Min = h.Min
	hm.Max = h.Max

	p := plot.New()
	p.HideAxes()
	p.Add(hm)

	// Keep the pixel aspect ratio; scale longest side to 10 inches.
	w, ht := 10*vg.Inch, 10*vg.Inch
	if cols >= rows {
		ht = w * vg.Length(rows) / vg.Length(cols)
	} else {
		w = ht * vg.Length(cols) / vg.Length(rows)
	}

	if err := p.Save(w, ht, path); err != nil {
		return eris.Wrapf(err, "render: save %s", path)
	}
	return nil
}
