package pipeline

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/limnolab/chloromap/internal/augment"
	"github.com/limnolab/chloromap/internal/constants"
	"github.com/limnolab/chloromap/internal/geo"
	"github.com/limnolab/chloromap/internal/inference"
	"github.com/limnolab/chloromap/internal/raster"
	"github.com/limnolab/chloromap/internal/sink"
)

// --- fakes ---

type memSource map[int]constants.Values

func (m memSource) Get(_ context.Context, lakeID int) (constants.Values, error) {
	v, ok := m[lakeID]
	if !ok {
		return constants.Values{}, eris.Wrapf(constants.ErrNotFound, "lagoslakeid %d", lakeID)
	}
	return v, nil
}

type fixedEstimator struct {
	features int
	value    float64
	err      error
}

func (f *fixedEstimator) Features() int { return f.features }

func (f *fixedEstimator) Predict(samples *mat.Dense) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	rows, _ := samples.Dims()
	out := make([]float64, rows)
	for i := range out {
		out[i] = f.value
	}
	return out, nil
}

type fakeRenderer struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (f *fakeRenderer) Save(_ []float64, _, _ int, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, path)
	return nil
}

type fakeSink struct {
	records []sink.Record
	err     error
}

func (f *fakeSink) Publish(_ context.Context, rec sink.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeSink) Close(context.Context) error { return nil }

type memFS struct {
	mu       sync.Mutex
	rasters  map[string]*raster.Raster
	written  map[string]*raster.Raster
	openErr  map[string]error
	writeErr error
}

func newMemFS() *memFS {
	return &memFS{
		rasters: map[string]*raster.Raster{},
		written: map[string]*raster.Raster{},
		openErr: map[string]error{},
	}
}

func (m *memFS) open(path string) (*raster.Raster, error) {
	if err := m.openErr[path]; err != nil {
		return nil, err
	}
	r, ok := m.rasters[path]
	if !ok {
		return nil, eris.Errorf("open %s: no such file", path)
	}
	return r, nil
}

func (m *memFS) write(path string, r *raster.Raster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written[path] = r
	return nil
}

func fixedCorners(*raster.Raster) (geo.Corner, geo.Corner, error) {
	return geo.Corner{Lat: 44.5, Lon: -85.2}, geo.Corner{Lat: 44.4, Lon: -85.1}, nil
}

// --- fixtures ---

func sentinelRaster(lakeID string) *raster.Raster {
	r := &raster.Raster{
		Rows: 2,
		Cols: 2,
		Tags: map[string]string{
			raster.TagSatellite: "sentinel-2a",
			raster.TagLakeID:    lakeID,
			raster.TagDate:      "2024-07-14",
			raster.TagScale:     "30",
		},
		GeoTransform: [6]float64{500000, 30, 0, 4600000, 0, -30},
		Projection:   "PROJCS[...]",
	}
	for b := 0; b < 9; b++ {
		r.Bands = append(r.Bands, []float64{1, 2, 3, 4})
	}
	return r
}

type env struct {
	fs       *memFS
	renderer *fakeRenderer
	sink     *fakeSink
	source   memSource
	pipeline *Pipeline
}

func newEnv(t *testing.T, withSink bool) *env {
	t.Helper()

	e := &env{
		fs:       newMemFS(),
		renderer: &fakeRenderer{},
		source:   memSource{42: {AreaSqKm: 2.5, PctDeveloped: 10, PctAgricultural: 30}},
	}

	s := Settings{
		Augmentor: augment.New(map[string]int{"sentinel": 9, "landsat": 5}, 9, -9999),
		Engine:    inference.NewEngine(&fixedEstimator{features: 12, value: 7.5}, -9999),
		Constants: e.source,
		Renderer:  e.renderer,
		SessionID: "test-session",
		TIFDir:    "out/tif",
		PNGDir:    "out/png",
		Open:      e.fs.open,
		Write:     e.fs.write,
		Corners:   fixedCorners,
	}
	if withSink {
		e.sink = &fakeSink{}
		s.Sink = e.sink
	}

	p, err := New(s)
	require.NoError(t, err)
	e.pipeline = p
	return e
}

// --- tests ---

func TestProcessItem_Succeeds(t *testing.T) {
	e := newEnv(t, true)
	e.fs.rasters["in/lake42.tif"] = sentinelRaster("42")

	outcome := e.pipeline.ProcessItem(context.Background(), "in/lake42.tif")
	require.True(t, outcome.Succeeded(), "err: %v", outcome.Err)

	assert.Equal(t, "out/tif/lake42_predicted.tif", outcome.Artifacts.PredictionTIF)
	assert.Equal(t, "out/png/lake42.png", outcome.Artifacts.DisplayPNG)

	pred := e.fs.written["out/tif/lake42_predicted.tif"]
	require.NotNil(t, pred)
	assert.Equal(t, 1, pred.NumBands())
	assert.Equal(t, "sentinel-2a", pred.Tags[raster.TagSatellite])
	for _, v := range pred.Bands[0] {
		assert.Equal(t, 7.5, v)
	}

	require.Len(t, e.sink.records, 1)
	rec := e.sink.records[0]
	assert.Equal(t, 42, rec.LakeID)
	assert.Equal(t, "lake42_predicted.tif", rec.RasterImage)
	assert.Equal(t, "lake42.png", rec.DisplayImage)
	assert.Equal(t, "2024-07-14T00:00:00", rec.DateISO)
	assert.Equal(t, "30", rec.Scale)
	assert.Equal(t, "test-session", rec.SessionID)
	assert.Equal(t, 44.5, rec.Corner1.Lat)
}

func TestProcessItem_MaskedPixelStaysNaN(t *testing.T) {
	e := newEnv(t, false)
	src := sentinelRaster("42")
	src.Bands[0][2] = math.Inf(1)
	e.fs.rasters["in/lake42.tif"] = src

	outcome := e.pipeline.ProcessItem(context.Background(), "in/lake42.tif")
	require.True(t, outcome.Succeeded(), "err: %v", outcome.Err)

	pred := e.fs.written["out/tif/lake42_predicted.tif"]
	require.NotNil(t, pred)
	assert.Equal(t, 7.5, pred.Bands[0][0])
	assert.True(t, math.IsNaN(pred.Bands[0][2]), "estimator output at a masked pixel must be discarded")
}

func TestProcessItem_FailureKinds(t *testing.T) {
	tests := []struct {
		name  string
		setup func(e *env) string
		stage State
		kind  FailureKind
	}{
		{
			name: "open failure",
			setup: func(e *env) string {
				e.fs.openErr["in/gone.tif"] = eris.New("disk error")
				return "in/gone.tif"
			},
			stage: StatePending,
			kind:  FailureIO,
		},
		{
			name: "missing lake id tag",
			setup: func(e *env) string {
				r := sentinelRaster("42")
				delete(r.Tags, raster.TagLakeID)
				e.fs.rasters["in/noid.tif"] = r
				return "in/noid.tif"
			},
			stage: StatePending,
			kind:  FailureConfiguration,
		},
		{
			name: "malformed date tag",
			setup: func(e *env) string {
				r := sentinelRaster("42")
				r.Tags[raster.TagDate] = "July 14th"
				e.fs.rasters["in/baddate.tif"] = r
				return "in/baddate.tif"
			},
			stage: StatePending,
			kind:  FailureConfiguration,
		},
		{
			name: "unknown lake id",
			setup: func(e *env) string {
				e.fs.rasters["in/lake7.tif"] = sentinelRaster("7")
				return "in/lake7.tif"
			},
			stage: StatePending,
			kind:  FailureLookup,
		},
		{
			name: "unrecognized sensor",
			setup: func(e *env) string {
				r := sentinelRaster("42")
				r.Tags[raster.TagSatellite] = "modis-terra"
				e.fs.rasters["in/modis.tif"] = r
				return "in/modis.tif"
			},
			stage: StateAugmenting,
			kind:  FailureConfiguration,
		},
		{
			name: "export write failure",
			setup: func(e *env) string {
				e.fs.writeErr = eris.New("disk full")
				e.fs.rasters["in/lake42.tif"] = sentinelRaster("42")
				return "in/lake42.tif"
			},
			stage: StateExporting,
			kind:  FailureIO,
		},
		{
			name: "render failure",
			setup: func(e *env) string {
				e.renderer.err = eris.New("encode error")
				e.fs.rasters["in/lake42.tif"] = sentinelRaster("42")
				return "in/lake42.tif"
			},
			stage: StateExporting,
			kind:  FailureIO,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, false)
			path := tc.setup(e)

			outcome := e.pipeline.ProcessItem(context.Background(), path)
			require.Equal(t, StateFailed, outcome.State)
			assert.Equal(t, tc.stage, outcome.FailedIn)
			assert.Equal(t, tc.kind, outcome.Kind)
			assert.Error(t, outcome.Err)
		})
	}
}

func TestProcessItem_EstimatorFailureIsInferenceKind(t *testing.T) {
	e := newEnv(t, false)
	e.fs.rasters["in/lake42.tif"] = sentinelRaster("42")

	s := e.pipeline.s
	s.Engine = inference.NewEngine(&fixedEstimator{features: 12, err: eris.New("model exploded")}, -9999)
	p, err := New(s)
	require.NoError(t, err)

	outcome := p.ProcessItem(context.Background(), "in/lake42.tif")
	require.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, StateInferring, outcome.FailedIn)
	assert.Equal(t, FailureInference, outcome.Kind)
}

func TestProcessItem_SinkFailureFailsItem(t *testing.T) {
	e := newEnv(t, true)
	e.sink.err = eris.New("database unreachable")
	e.fs.rasters["in/lake42.tif"] = sentinelRaster("42")

	outcome := e.pipeline.ProcessItem(context.Background(), "in/lake42.tif")
	require.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, StateExporting, outcome.FailedIn)
	assert.Equal(t, FailureIO, outcome.Kind)
}

func TestProcessItem_KeepAugmentedWritesModifiedRaster(t *testing.T) {
	e := newEnv(t, false)
	e.fs.rasters["in/lake42.tif"] = sentinelRaster("42")

	s := e.pipeline.s
	s.KeepAugmented = true
	p, err := New(s)
	require.NoError(t, err)

	outcome := p.ProcessItem(context.Background(), "in/lake42.tif")
	require.True(t, outcome.Succeeded(), "err: %v", outcome.Err)

	aug := e.fs.written["out/tif/lake42_modified.tif"]
	require.NotNil(t, aug)
	assert.Equal(t, 12, aug.NumBands())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Settings{})
	require.Error(t, err)

	_, err = New(Settings{
		Augmentor: augment.New(map[string]int{"sentinel": 9}, 9, -9999),
		Engine:    inference.NewEngine(&fixedEstimator{features: 12}, -9999),
		Constants: memSource{},
		Renderer:  &fakeRenderer{},
	})
	require.Error(t, err, "missing session id")
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "lake42_predicted.tif", outputName("in/lake42.tif", "predicted"))
	assert.Equal(t, "lake42_modified.cog.tif", outputName("in/lake42.cog.tif", "modified"))
	assert.Equal(t, "lake42_predicted", outputName("in/lake42", "predicted"))
	assert.Equal(t, "lake42.png", pngName("in/lake42.tif"))
}
