// Package inference runs a pretrained pointwise regression estimator
// over every pixel of an augmented raster and reconstructs a
// georeferenced single-band prediction grid with the original no-data
// mask restored.
package inference

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/limnolab/chloromap/internal/raster"
)

// Engine flattens augmented rasters into sample matrices, sanitizes
// non-finite values with the shared sentinel and re-masks the output.
type Engine struct {
	est      Estimator
	sentinel float64
}

// NewEngine wires an estimator. sentinel replaces non-finite sample
// entries so the estimator only ever sees finite input; predictions at
// those pixels are discarded by the mask anyway.
func NewEngine(est Estimator, sentinel float64) *Engine {
	return &Engine{est: est, sentinel: sentinel}
}

// NoDataMask marks pixels whose original (pre-augmentation) first-band
// value is non-finite. It must be computed from the unmodified source
// band: augmentation has already substituted sentinels for some
// non-finite entries, so the information is unrecoverable afterwards.
func NoDataMask(originalFirstBand []float64) []bool {
	mask := make([]bool, len(originalFirstBand))
	for i, v := range originalFirstBand {
		mask[i] = math.IsNaN(v) || math.IsInf(v, 0)
	}
	return mask
}

// Infer runs the estimator over every pixel of aug and returns a
// single-band prediction raster of the same shape. originalFirstBand is
// the first band of the source raster before augmentation; every pixel
// that was non-finite there is forced to NaN in the output, overriding
// whatever the estimator produced.
func (e *Engine) Infer(aug *raster.Raster, originalFirstBand []float64) (*raster.Raster, error) {
	if err := aug.Validate(); err != nil {
		return nil, err
	}
	samples := aug.Rows * aug.Cols
	if len(originalFirstBand) != samples {
		return nil, eris.Errorf("inference: original band has %d pixels, raster has %d", len(originalFirstBand), samples)
	}
	if aug.NumBands() != e.est.Features() {
		return nil, eris.Errorf("inference: raster has %d bands, estimator wants %d features", aug.NumBands(), e.est.Features())
	}

	mask := NoDataMask(originalFirstBand)
	matrix := e.toSampleMatrix(aug)

	preds, err := e.est.Predict(matrix)
	if err != nil {
		return nil, eris.Wrap(err, "inference: predict")
	}
	if len(preds) != samples {
		return nil, eris.Errorf("inference: estimator returned %d predictions for %d samples", len(preds), samples)
	}

	// Inverse reshape is the identity on the flat grid: sample s maps
	// back to pixel (s/cols, s%cols).
	out := make([]float64, samples)
	copy(out, preds)
	for i, masked := range mask {
		if masked {
			out[i] = math.NaN()
		}
	}

	return &raster.Raster{
		Bands:        [][]float64{out},
		Rows:         aug.Rows,
		Cols:         aug.Cols,
		Tags:         map[string]string{},
		GeoTransform: aug.GeoTransform,
		Projection:   aug.Projection,
	}, nil
}

// toSampleMatrix reshapes (bands × rows × cols) into (rows·cols) × bands,
// rows outer, cols inner, feature = band index. Non-finite entries are
// replaced with the sentinel so the estimator receives only finite
// input.
func (e *Engine) toSampleMatrix(aug *raster.Raster) *mat.Dense {
	samples := aug.Rows * aug.Cols
	bands := aug.NumBands()

	m := mat.NewDense(samples, bands, nil)
	for b, band := range aug.Bands {
		for s, v := range band {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = e.sentinel
			}
			m.Set(s, b, v)
		}
	}
	return m
}

// Summary holds descriptive statistics over the unmasked predictions.
type Summary struct {
	Min, Max, Mean, StdDev float64
	Valid                  int
}

// Summarize computes prediction statistics ignoring NaN (masked) pixels.
func Summarize(predictions []float64) Summary {
	finite := make([]float64, 0, len(predictions))
	for _, v := range predictions {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return Summary{Min: math.NaN(), Max: math.NaN(), Mean: math.NaN(), StdDev: math.NaN()}
	}

	min, max := finite[0], finite[0]
	for _, v := range finite[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean, std := stat.MeanStdDev(finite, nil)
	if len(finite) == 1 {
		std = 0
	}
	return Summary{Min: min, Max: max, Mean: mean, StdDev: std, Valid: len(finite)}
}
