// Package raster holds the in-memory multi-band raster model and the
// GeoTIFF adapter used by the prediction pipeline. Bands are stored
// band-major as row-major float64 grids so they can be reshaped into a
// sample matrix without copying per pixel.
package raster

import (
	"strconv"

	"github.com/rotisserie/eris"
)

// Tag keys every input raster must carry.
const (
	TagSatellite = "satellite"
	TagLakeID    = "id"
	TagDate      = "date"
	TagScale     = "scale"
)

// Raster is an in-memory view of a georeferenced multi-band raster.
// Every band has length Rows*Cols, indexed row*Cols+col.
type Raster struct {
	Bands        [][]float64
	Rows         int
	Cols         int
	Tags         map[string]string
	GeoTransform [6]float64
	Projection   string // WKT
}

// NumBands returns the band count.
func (r *Raster) NumBands() int { return len(r.Bands) }

// At returns the value of band b at (row, col).
func (r *Raster) At(b, row, col int) float64 {
	return r.Bands[b][row*r.Cols+col]
}

// Validate checks the band-shape invariant.
func (r *Raster) Validate() error {
	if r.Rows <= 0 || r.Cols <= 0 {
		return eris.Errorf("raster: invalid shape %dx%d", r.Rows, r.Cols)
	}
	if len(r.Bands) == 0 {
		return eris.New("raster: no bands")
	}
	want := r.Rows * r.Cols
	for i, b := range r.Bands {
		if len(b) != want {
			return eris.Errorf("raster: band %d has %d values, want %d", i+1, len(b), want)
		}
	}
	return nil
}

// Tag returns the value of a required tag.
func (r *Raster) Tag(key string) (string, error) {
	v, ok := r.Tags[key]
	if !ok || v == "" {
		return "", eris.Errorf("raster: missing required tag %q", key)
	}
	return v, nil
}

// LakeID parses the numeric lake identifier tag.
func (r *Raster) LakeID() (int, error) {
	v, err := r.Tag(TagLakeID)
	if err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0, eris.Wrapf(err, "raster: tag %q is not an integer", TagLakeID)
	}
	return id, nil
}
