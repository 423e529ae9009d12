// Package train fits a PoetryModel to a poem corpus.
//
// Every batch is unrolled over the full sequence length with teacher forcing:
// the model reads position t and is scored on position t+1. The loss is the
// mean cross-entropy over all positions of the batch; gradients come from the
// autodiff tape and Adam applies them.
package train

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/poet/internal/config"
	"github.com/born-ml/poet/internal/corpus"
	"github.com/born-ml/poet/internal/model"
)

// ErrDiverged is returned when a batch loss is NaN or infinite.
var ErrDiverged = errors.New("train: loss is not finite")

// Trainer runs the training loop. Create it with New.
type Trainer[B tensor.Backend] struct {
	cfg       config.Train
	corpus    *corpus.Corpus
	backend   *autodiff.Backend[B]
	model     *model.PoetryModel[*autodiff.Backend[B]]
	optimizer *optim.Adam[*autodiff.Backend[B]]
	rng       *rand.Rand
	out       io.Writer

	meter     lossMeter
	losses    []float32 // mean loss of every finished epoch
	lastGrads gradients
}

// New builds the model and optimizer. When cfg.ModelPath is set the model
// starts from that checkpoint; failing to load it is an error.
// Progress lines are written to out.
func New[B tensor.Backend](cfg config.Train, c *corpus.Corpus, backend *autodiff.Backend[B], out io.Writer) (*Trainer[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c.MaxLen < 2 {
		return nil, fmt.Errorf("train: sequences of length %d leave nothing to predict", c.MaxLen)
	}

	mcfg := model.Config{
		VocabSize:    c.Vocab.Size(),
		EmbeddingDim: cfg.EmbeddingDim,
		HiddenDim:    cfg.HiddenDim,
		NumLayers:    cfg.NumLayers,
	}
	m := model.New(mcfg, backend)
	if cfg.ModelPath != "" {
		if _, err := m.Load(cfg.ModelPath); err != nil {
			return nil, fmt.Errorf("pretrained model: %w", err)
		}
		fmt.Fprintf(out, "Loaded pretrained model from %s\n", cfg.ModelPath)
	}

	optimizer := optim.NewAdam(
		m.Parameters(),
		optim.AdamConfig{
			LR:    float32(cfg.LR),
			Betas: [2]float32{0.9, 0.999},
			Eps:   1e-8,
		},
		backend,
	)

	return &Trainer[B]{
		cfg:       cfg,
		corpus:    c,
		backend:   backend,
		model:     m,
		optimizer: optimizer,
		rng:       rand.New(rand.NewSource(cfg.Seed)), //nolint:gosec // reproducible shuffling
		out:       out,
	}, nil
}

// Model returns the model being trained.
func (t *Trainer[B]) Model() *model.PoetryModel[*autodiff.Backend[B]] {
	return t.model
}

// Losses returns the mean loss of every finished epoch.
func (t *Trainer[B]) Losses() []float32 {
	return append([]float32(nil), t.losses...)
}

// Run trains for cfg.Epochs epochs and writes a checkpoint after each one.
func (t *Trainer[B]) Run() error {
	if err := os.MkdirAll(t.cfg.LogDir, 0o750); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	tape := t.backend.Tape()
	wasRecording := tape.IsRecording()
	tape.StartRecording()
	defer func() {
		tape.Clear()
		if !wasRecording {
			tape.StopRecording()
		}
	}()

	fmt.Fprintf(t.out, "Training on %d poems, vocabulary %d, %d epochs of batch size %d\n",
		t.corpus.NumPoems(), t.corpus.Vocab.Size(), t.cfg.Epochs, t.cfg.BatchSize)

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		t.meter.reset()
		batches := t.corpus.Batches(t.cfg.BatchSize, t.rng)

		for i, batch := range batches {
			loss, err := t.trainBatch(batch)
			if err != nil {
				return fmt.Errorf("epoch %d batch %d: %w", epoch, i, err)
			}
			t.meter.add(loss)

			if (i+1)%t.cfg.PlotEvery == 0 {
				if err := t.report(epoch, i, batch); err != nil {
					return err
				}
			}
		}

		t.losses = append(t.losses, t.meter.mean())
		fmt.Fprintf(t.out, "Epoch %2d/%d: loss=%.4f (%d batches)\n", epoch+1, t.cfg.Epochs, t.meter.mean(), len(batches))

		path := model.CheckpointPath(t.cfg.ModelPrefix, epoch)
		if err := t.model.Save(path, epoch); err != nil {
			return err
		}
	}
	return nil
}

// trainBatch runs one forward/backward pass and one optimizer step and
// returns the mean loss per position.
func (t *Trainer[B]) trainBatch(batch corpus.Batch) (float32, error) {
	tape := t.backend.Tape()
	defer tape.Clear()

	t.optimizer.ZeroGrad()

	steps := batch.Len() - 1
	state := t.model.ZeroState(batch.Size())
	var total *tensor.Tensor[float32, *autodiff.Backend[B]]

	for s := 0; s < steps; s++ {
		input, err := tensor.FromSlice(batch.Column(s), tensor.Shape{batch.Size()}, t.backend)
		if err != nil {
			return 0, fmt.Errorf("input tensor: %w", err)
		}
		target, err := tensor.FromSlice(batch.Column(s+1), tensor.Shape{batch.Size()}, t.backend)
		if err != nil {
			return 0, fmt.Errorf("target tensor: %w", err)
		}

		var logits *tensor.Tensor[float32, *autodiff.Backend[B]]
		logits, state = t.model.Step(input, state)

		loss := tensor.New[float32](t.backend.CrossEntropy(logits.Raw(), target.Raw()), t.backend)
		if total == nil {
			total = loss
		} else {
			total = total.Add(loss)
		}
	}

	mean := total.Raw().AsFloat32()[0] / float32(steps)
	if math.IsNaN(float64(mean)) || math.IsInf(float64(mean), 0) {
		return mean, fmt.Errorf("%w: %v", ErrDiverged, mean)
	}

	// d(mean)/d(total) = 1/steps
	outputGrad, err := tensor.NewRaw(total.Shape(), total.DType(), t.backend.Device())
	if err != nil {
		return 0, fmt.Errorf("output gradient: %w", err)
	}
	outputGrad.AsFloat32()[0] = 1 / float32(steps)

	grads := tape.Backward(outputGrad, t.backend)

	params := t.model.Parameters()
	applyWeightDecay(params, grads, float32(t.cfg.WeightDecay))
	if t.cfg.Clip > 0 {
		clipGradients(params, grads, float32(t.cfg.Clip))
	}
	t.optimizer.Step(grads)
	t.lastGrads = grads

	return mean, nil
}
