package inference

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// Estimator produces one scalar prediction per sample row. Predict is
// batched: it is invoked once per raster, never per pixel. Implementations
// must be deterministic and side-effect free.
type Estimator interface {
	// Features is the fixed feature width the estimator was fit on.
	Features() int
	// Predict returns one value per row of samples, in row order.
	Predict(samples *mat.Dense) ([]float64, error)
}

// LinearModel is a pointwise linear regression estimator loaded from a
// coefficients file. Model fitting happens elsewhere; this type only
// evaluates.
type LinearModel struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	FeatureNames []string  `json:"features,omitempty"`
}

// LoadLinear reads a LinearModel from a JSON coefficients file.
func LoadLinear(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "inference: read model %s", path)
	}
	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "inference: parse model %s", path)
	}
	if len(m.Coefficients) == 0 {
		return nil, eris.Errorf("inference: model %s has no coefficients", path)
	}
	if len(m.FeatureNames) > 0 && len(m.FeatureNames) != len(m.Coefficients) {
		return nil, eris.Errorf("inference: model %s names %d features but has %d coefficients",
			path, len(m.FeatureNames), len(m.Coefficients))
	}
	return &m, nil
}

// Features returns the coefficient count.
func (m *LinearModel) Features() int { return len(m.Coefficients) }

// Predict computes samples·coefficients + intercept for every row.
func (m *LinearModel) Predict(samples *mat.Dense) ([]float64, error) {
	rows, cols := samples.Dims()
	if cols != len(m.Coefficients) {
		return nil, eris.Errorf("inference: sample width %d does not match %d model features", cols, len(m.Coefficients))
	}

	coef := mat.NewVecDense(len(m.Coefficients), m.Coefficients)
	var out mat.VecDense
	out.MulVec(samples, coef)

	preds := make([]float64, rows)
	for i := range preds {
		preds[i] = out.AtVec(i) + m.Intercept
	}
	return preds, nil
}
