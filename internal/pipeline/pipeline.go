// Package pipeline drives one input raster through augmentation,
// inference and export, isolating any failure to that single item, and
// runs batches of items under a session ledger.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/limnolab/chloromap/internal/augment"
	"github.com/limnolab/chloromap/internal/constants"
	"github.com/limnolab/chloromap/internal/geo"
	"github.com/limnolab/chloromap/internal/inference"
	"github.com/limnolab/chloromap/internal/raster"
	"github.com/limnolab/chloromap/internal/sink"
)

// FailureKind classifies why an item failed. Every kind is fatal to the
// item and never to the run.
type FailureKind string

const (
	FailureConfiguration FailureKind = "configuration"
	FailureLookup        FailureKind = "lookup"
	FailureIO            FailureKind = "io"
	FailureInference     FailureKind = "inference"
)

// State is an item's position in the per-item state machine. An item
// moves Pending → Augmenting → Inferring → Exporting → Succeeded, or to
// Failed from any non-terminal state.
type State string

const (
	StatePending    State = "pending"
	StateAugmenting State = "augmenting"
	StateInferring  State = "inferring"
	StateExporting  State = "exporting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Artifacts are the durable outputs of a succeeded item.
type Artifacts struct {
	PredictionTIF string
	DisplayPNG    string
}

// Outcome is the tagged result of processing one item. Failures carry
// the stage they occurred in, a kind for the error taxonomy and the
// underlying error; there is no stack unwinding across items.
type Outcome struct {
	Path      string
	State     State
	FailedIn  State
	Kind      FailureKind
	Err       error
	Artifacts Artifacts
}

// Succeeded reports whether the item reached the terminal success state.
func (o Outcome) Succeeded() bool { return o.State == StateSucceeded }

// Renderer draws a prediction grid to an image file.
type Renderer interface {
	Save(values []float64, rows, cols int, path string) error
}

// Settings wires a Pipeline. Open, Write and Corners default to the
// GDAL-backed implementations and exist as fields so tests can run
// without raster fixtures on disk.
type Settings struct {
	Augmentor     *augment.Augmentor
	Engine        *inference.Engine
	Constants     constants.Source
	Renderer      Renderer
	Sink          sink.Sink // nil outside production mode
	SessionID     string
	TIFDir        string
	PNGDir        string
	KeepAugmented bool

	Open    func(path string) (*raster.Raster, error)
	Write   func(path string, r *raster.Raster) error
	Corners func(r *raster.Raster) (geo.Corner, geo.Corner, error)
}

// Pipeline processes items one at a time. It holds no per-item state.
type Pipeline struct {
	s Settings
}

// New validates the wiring and returns a Pipeline.
func New(s Settings) (*Pipeline, error) {
	if s.Augmentor == nil || s.Engine == nil || s.Constants == nil || s.Renderer == nil {
		return nil, eris.New("pipeline: missing collaborator")
	}
	if s.SessionID == "" {
		return nil, eris.New("pipeline: missing session id")
	}
	if s.Open == nil {
		s.Open = raster.Open
	}
	if s.Write == nil {
		s.Write = raster.Write
	}
	if s.Corners == nil {
		s.Corners = geo.Corners
	}
	return &Pipeline{s: s}, nil
}

// ProcessItem runs one input raster end to end and returns a tagged
// outcome. It never returns an error: every failure is folded into the
// outcome so the batch loop stays a straight line.
func (p *Pipeline) ProcessItem(ctx context.Context, path string) Outcome {
	log := zap.L().With(zap.String("input", path))

	fail := func(stage State, kind FailureKind, err error) Outcome {
		log.Error("pipeline: item failed",
			zap.String("stage", string(stage)),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return Outcome{Path: path, State: StateFailed, FailedIn: stage, Kind: kind, Err: err}
	}

	src, err := p.s.Open(path)
	if err != nil {
		return fail(StatePending, FailureIO, err)
	}

	lakeID, err := src.LakeID()
	if err != nil {
		return fail(StatePending, FailureConfiguration, err)
	}
	dateTag, err := src.Tag(raster.TagDate)
	if err != nil {
		return fail(StatePending, FailureConfiguration, err)
	}
	date, err := time.Parse("2006-01-02", dateTag)
	if err != nil {
		return fail(StatePending, FailureConfiguration, eris.Wrapf(err, "pipeline: tag %q", raster.TagDate))
	}
	scale, err := src.Tag(raster.TagScale)
	if err != nil {
		return fail(StatePending, FailureConfiguration, err)
	}

	vals, err := p.s.Constants.Get(ctx, lakeID)
	if err != nil {
		return fail(StatePending, FailureLookup, err)
	}

	corner1, corner2, err := p.s.Corners(src)
	if err != nil {
		return fail(StatePending, FailureConfiguration, err)
	}

	// Augmenting
	aug, err := p.s.Augmentor.Augment(src, vals)
	if err != nil {
		return fail(StateAugmenting, FailureConfiguration, err)
	}
	if p.s.KeepAugmented {
		modifiedTIF := filepath.Join(p.s.TIFDir, outputName(path, "modified"))
		if err := p.s.Write(modifiedTIF, aug); err != nil {
			return fail(StateAugmenting, FailureIO, err)
		}
	}

	// Inferring. The mask comes from the pre-augmentation first band:
	// augmentation already replaced some non-finite entries with
	// sentinels, so it cannot be recovered later.
	pred, err := p.s.Engine.Infer(aug, src.Bands[0])
	if err != nil {
		return fail(StateInferring, FailureInference, err)
	}
	for k, v := range src.Tags {
		pred.Tags[k] = v
	}

	summary := inference.Summarize(pred.Bands[0])
	log.Debug("pipeline: predictions",
		zap.Int("lake_id", lakeID),
		zap.Int("valid_pixels", summary.Valid),
		zap.Float64("min", summary.Min),
		zap.Float64("max", summary.Max),
		zap.Float64("mean", summary.Mean),
		zap.Float64("stddev", summary.StdDev),
	)

	// Exporting
	artifacts := Artifacts{
		PredictionTIF: filepath.Join(p.s.TIFDir, outputName(path, "predicted")),
		DisplayPNG:    filepath.Join(p.s.PNGDir, pngName(path)),
	}
	if err := p.s.Write(artifacts.PredictionTIF, pred); err != nil {
		return fail(StateExporting, FailureIO, err)
	}
	if err := p.s.Renderer.Save(pred.Bands[0], pred.Rows, pred.Cols, artifacts.DisplayPNG); err != nil {
		return fail(StateExporting, FailureIO, err)
	}

	if p.s.Sink != nil {
		rec := sink.Record{
			LakeID:       lakeID,
			RasterImage:  filepath.Base(artifacts.PredictionTIF),
			DisplayImage: filepath.Base(artifacts.DisplayPNG),
			DateISO:      date.Format("2006-01-02T15:04:05"),
			Corner1:      corner1,
			Corner2:      corner2,
			Scale:        scale,
			SessionID:    p.s.SessionID,
		}
		if err := p.s.Sink.Publish(ctx, rec); err != nil {
			return fail(StateExporting, FailureIO, err)
		}
	}

	log.Info("pipeline: item complete",
		zap.Int("lake_id", lakeID),
		zap.String("prediction", artifacts.PredictionTIF),
	)
	return Outcome{Path: path, State: StateSucceeded, Artifacts: artifacts}
}

// outputName inserts a suffix before the extension of the input's
// basename: lake42.tif → lake42_predicted.tif.
func outputName(inputPath, suffix string) string {
	base := filepath.Base(inputPath)
	stem, ext, found := strings.Cut(base, ".")
	if !found {
		return stem + "_" + suffix
	}
	return stem + "_" + suffix + "." + ext
}

// pngName maps the input basename to its display image name.
func pngName(inputPath string) string {
	base := filepath.Base(inputPath)
	stem, _, _ := strings.Cut(base, ".")
	return stem + ".png"
}
