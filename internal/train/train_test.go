package train

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/poet/internal/config"
	"github.com/born-ml/poet/internal/corpus"
	"github.com/born-ml/poet/internal/model"
)

var tinyPoems = []string{
	"春江潮水连海平，海上明月共潮生。",
	"花月夜凉如水，江流宛转绕芳甸。",
	"月照花林皆似霰，空里流霜不觉飞。",
}

func tinyConfig(t *testing.T) config.Train {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultTrain()
	cfg.MaxLen = 12
	cfg.Model = config.Model{EmbeddingDim: 8, HiddenDim: 8, NumLayers: 1}
	cfg.BatchSize = 2
	cfg.Epochs = 2
	cfg.PlotEvery = 1
	cfg.MaxGenLen = 6
	cfg.LogDir = filepath.Join(dir, "logs")
	cfg.ModelPrefix = filepath.Join(dir, "checkpoints", "tang")
	cfg.DebugFile = filepath.Join(dir, "debugp")
	return cfg
}

func tinyCorpus(t *testing.T, maxLen int) *corpus.Corpus {
	t.Helper()
	c, err := corpus.Build(tinyPoems, maxLen)
	require.NoError(t, err)
	return c
}

func newTrainer(t *testing.T, cfg config.Train) *Trainer[*cpu.Backend] {
	t.Helper()
	tr, err := New(cfg, tinyCorpus(t, cfg.MaxLen), autodiff.New(cpu.New()), io.Discard)
	require.NoError(t, err)
	return tr
}

func TestRunWritesCheckpointsAndLogs(t *testing.T) {
	cfg := tinyConfig(t)
	require.NoError(t, os.WriteFile(cfg.DebugFile, nil, 0o600))

	tr := newTrainer(t, cfg)
	require.NoError(t, tr.Run())

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		assert.FileExists(t, model.CheckpointPath(cfg.ModelPrefix, epoch))
	}

	loss, err := os.ReadFile(filepath.Join(cfg.LogDir, LossLog))
	require.NoError(t, err)
	// 3 poems in batches of 2: two reports per epoch
	assert.Len(t, strings.Split(strings.TrimSpace(string(loss)), "\n"), 4)

	origin, err := os.ReadFile(filepath.Join(cfg.LogDir, OriginLog))
	require.NoError(t, err)
	assert.Contains(t, string(origin), "<START>")
	assert.NotContains(t, string(origin), "</s>", "padding is not logged")

	samples, err := os.ReadFile(filepath.Join(cfg.LogDir, SampleLog))
	require.NoError(t, err)
	firstReport := strings.SplitN(string(samples), "\n", 2)[0]
	// 春 江 花 月 夜 凉 如 水 all occur in the corpus
	assert.Len(t, strings.Split(firstReport, "</br>"), 8)
	assert.True(t, strings.HasPrefix(firstReport, "春"))

	debug, err := os.ReadFile(filepath.Join(cfg.LogDir, DebugLog))
	require.NoError(t, err)
	assert.Contains(t, string(debug), "embedding.weight")
	assert.Contains(t, string(debug), "head.bias")

	assert.Len(t, tr.Losses(), cfg.Epochs)
	for _, l := range tr.Losses() {
		assert.False(t, math.IsNaN(float64(l)))
		assert.Greater(t, l, float32(0))
	}
}

func TestRunWithoutDebugFile(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.Epochs = 1

	require.NoError(t, newTrainer(t, cfg).Run())
	assert.NoFileExists(t, filepath.Join(cfg.LogDir, DebugLog))
}

func TestCheckpointLoadsForGeneration(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.Epochs = 1
	tr := newTrainer(t, cfg)
	require.NoError(t, tr.Run())

	backend := autodiff.New(cpu.New())
	m, err := model.Open(model.CheckpointPath(cfg.ModelPrefix, 0), tr.Model().Config(), backend)
	require.NoError(t, err)

	want := tr.Model().NewSession().Step(3)
	assert.Equal(t, want, m.NewSession().Step(3))
}

func TestLossDecreases(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.Epochs = 15
	cfg.LR = 0.02
	cfg.PlotEvery = 1000
	cfg.BatchSize = 3

	tr := newTrainer(t, cfg)
	require.NoError(t, tr.Run())

	losses := tr.Losses()
	assert.Less(t, losses[len(losses)-1], losses[0])
}

func TestDivergedLossIsReported(t *testing.T) {
	cfg := tinyConfig(t)
	tr := newTrainer(t, cfg)

	weights := tr.Model().Parameters()[0].Tensor().Raw().AsFloat32()
	for i := range weights {
		weights[i] = float32(math.NaN())
	}

	err := tr.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDiverged)
	assert.NoFileExists(t, model.CheckpointPath(cfg.ModelPrefix, 0))
}

func TestPretrainedModel(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.Epochs = 1
	first := newTrainer(t, cfg)
	require.NoError(t, first.Run())

	resumed := cfg
	resumed.ModelPath = model.CheckpointPath(cfg.ModelPrefix, 0)
	second := newTrainer(t, resumed)
	assert.Equal(t, first.Model().NewSession().Step(5), second.Model().NewSession().Step(5))
}

func TestPretrainedModelErrors(t *testing.T) {
	cfg := tinyConfig(t)
	c := tinyCorpus(t, cfg.MaxLen)
	backend := autodiff.New(cpu.New())

	missing := cfg
	missing.ModelPath = filepath.Join(t.TempDir(), "missing.born")
	_, err := New(missing, c, backend, io.Discard)
	assert.Error(t, err)

	other := model.New(model.Config{VocabSize: c.Vocab.Size() + 1, EmbeddingDim: 8, HiddenDim: 8, NumLayers: 1}, backend)
	path := filepath.Join(t.TempDir(), "other.born")
	require.NoError(t, other.Save(path, 0))

	mismatched := cfg
	mismatched.ModelPath = path
	_, err = New(mismatched, c, backend, io.Discard)
	assert.ErrorIs(t, err, model.ErrVocabMismatch)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.BatchSize = 0

	_, err := New(cfg, tinyCorpus(t, cfg.MaxLen), autodiff.New(cpu.New()), io.Discard)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func testParams(t *testing.T, values ...[]float32) ([]*nn.Parameter[*cpu.Backend], gradients) {
	t.Helper()
	backend := cpu.New()
	params := make([]*nn.Parameter[*cpu.Backend], len(values))
	grads := make(gradients)
	for i, v := range values {
		p, err := tensor.FromSlice(v, tensor.Shape{len(v)}, backend)
		require.NoError(t, err)
		g, err := tensor.FromSlice([]float32{3, 4}[:len(v)], tensor.Shape{len(v)}, backend)
		require.NoError(t, err)
		params[i] = nn.NewParameter("p", p)
		grads[p.Raw()] = g.Raw()
	}
	return params, grads
}

func TestApplyWeightDecay(t *testing.T) {
	params, grads := testParams(t, []float32{1, 2})
	original := grads[params[0].Tensor().Raw()]

	applyWeightDecay(params, grads, 0.5)

	assert.Equal(t, []float32{3.5, 5}, grads[params[0].Tensor().Raw()].AsFloat32())
	assert.Equal(t, []float32{3, 4}, original.AsFloat32(), "the tape's gradient is not modified")
}

func TestClipGradients(t *testing.T) {
	params, grads := testParams(t, []float32{0, 0})

	norm := clipGradients(params, grads, 10)
	assert.InDelta(t, 5, norm, 1e-6)
	assert.Equal(t, []float32{3, 4}, grads[params[0].Tensor().Raw()].AsFloat32(), "below the limit")

	norm = clipGradients(params, grads, 1)
	assert.InDelta(t, 5, norm, 1e-6)
	clipped := grads[params[0].Tensor().Raw()].AsFloat32()
	assert.InDelta(t, 0.6, clipped[0], 1e-6)
	assert.InDelta(t, 0.8, clipped[1], 1e-6)
}

func TestLossMeter(t *testing.T) {
	var m lossMeter
	assert.Zero(t, m.mean())

	m.add(1)
	m.add(2)
	m.add(6)
	assert.InDelta(t, 3, m.mean(), 1e-6)

	m.reset()
	assert.Zero(t, m.mean())
}
