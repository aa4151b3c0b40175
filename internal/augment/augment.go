// Package augment synthesizes the fixed-shape feature raster the
// estimator expects: original sensor bands, sentinel back-fill up to the
// canonical spectral band count, then the three per-lake constant bands.
package augment

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/limnolab/chloromap/internal/constants"
	"github.com/limnolab/chloromap/internal/raster"
)

// ConstantBandCount is the number of constant-valued bands appended to
// every augmented raster: area, pct developed, pct agricultural.
const ConstantBandCount = 3

// ErrUnknownSensor marks a satellite tag that matches no configured
// sensor family. The item cannot be processed.
var ErrUnknownSensor = eris.New("augment: unrecognized sensor family")

// Augmentor normalizes band counts across sensor families. Families map
// a satellite tag prefix to the family's native band count; the
// back-fill count per family is canonical − native, so canonical-band
// sensors genuinely get zero fill.
type Augmentor struct {
	families  map[string]int
	canonical int
	sentinel  float64
}

// New builds an Augmentor. families maps satellite tag prefixes (e.g.
// "sentinel", "landsat") to native band counts; canonical is the full
// spectral band count the model was fit on; sentinel is the value
// written into back-filled bands, shared with the inference engine's
// non-finite substitution.
func New(families map[string]int, canonical int, sentinel float64) *Augmentor {
	return &Augmentor{families: families, canonical: canonical, sentinel: sentinel}
}

// TargetBands is the band count of every augmented raster.
func (a *Augmentor) TargetBands() int {
	return a.canonical + ConstantBandCount
}

// backfill resolves the sensor family of a raster and returns how many
// sentinel bands it needs.
func (a *Augmentor) backfill(src *raster.Raster) (int, error) {
	satellite, err := src.Tag(raster.TagSatellite)
	if err != nil {
		return 0, err
	}
	for prefix, native := range a.families {
		if !strings.HasPrefix(satellite, prefix) {
			continue
		}
		fill := a.canonical - native
		if fill < 0 {
			return 0, eris.Errorf("augment: family %q has %d native bands, more than the canonical %d", prefix, native, a.canonical)
		}
		return fill, nil
	}
	return 0, eris.Wrapf(ErrUnknownSensor, "satellite %q", satellite)
}

// Augment produces the fixed-shape feature raster: source bands in
// original order, sentinel back-fill, then the three constant bands.
// Georeferencing and tags carry over from the source.
func (a *Augmentor) Augment(src *raster.Raster, v constants.Values) (*raster.Raster, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	fill, err := a.backfill(src)
	if err != nil {
		return nil, err
	}

	n := src.Rows * src.Cols
	out := &raster.Raster{
		Bands:        make([][]float64, 0, a.TargetBands()),
		Rows:         src.Rows,
		Cols:         src.Cols,
		Tags:         make(map[string]string, len(src.Tags)),
		GeoTransform: src.GeoTransform,
		Projection:   src.Projection,
	}
	for k, val := range src.Tags {
		out.Tags[k] = val
	}

	for _, band := range src.Bands {
		copied := make([]float64, n)
		copy(copied, band)
		out.Bands = append(out.Bands, copied)
	}
	for i := 0; i < fill; i++ {
		out.Bands = append(out.Bands, uniformBand(n, a.sentinel))
	}
	for _, c := range [ConstantBandCount]float64{v.AreaSqKm, v.PctDeveloped, v.PctAgricultural} {
		out.Bands = append(out.Bands, uniformBand(n, c))
	}

	if got := out.NumBands(); got != a.TargetBands() {
		return nil, eris.Errorf("augment: produced %d bands, want %d (source has %d)", got, a.TargetBands(), src.NumBands())
	}
	return out, nil
}

func uniformBand(n int, value float64) []float64 {
	band := make([]float64, n)
	for i := range band {
		band[i] = value
	}
	return band
}
