// Package model implements the character-level poem model: a token
// embedding, a stack of LSTM layers and a linear projection back to the
// vocabulary.
//
// The model is evaluated one time step at a time. Training unrolls it over a
// batch of sequences; generation drives it through a Session that owns the
// recurrent state of a single decoding run.
package model

import (
	"errors"
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// ErrVocabMismatch is returned when a checkpoint was trained with a different
// vocabulary size than the one it is loaded against.
var ErrVocabMismatch = errors.New("model: vocabulary size mismatch")

// Config holds the model dimensions.
type Config struct {
	VocabSize    int
	EmbeddingDim int
	HiddenDim    int
	NumLayers    int
}

// DefaultConfig returns the standard dimensions for a vocabulary of the
// given size.
func DefaultConfig(vocabSize int) Config {
	return Config{
		VocabSize:    vocabSize,
		EmbeddingDim: 128,
		HiddenDim:    256,
		NumLayers:    2,
	}
}

// Validate checks that all dimensions are positive.
func (c Config) Validate() error {
	if c.VocabSize <= 0 || c.EmbeddingDim <= 0 || c.HiddenDim <= 0 || c.NumLayers <= 0 {
		return fmt.Errorf("model: invalid dimensions %+v", c)
	}
	return nil
}

// NamedParameter is a parameter together with its checkpoint name.
type NamedParameter[B tensor.Backend] struct {
	Name  string
	Param *nn.Parameter[B]
}

// PoetryModel is the embedding -> LSTM stack -> linear network.
type PoetryModel[B tensor.Backend] struct {
	cfg       Config
	embedding *nn.Embedding[B]
	layers    []*lstmCell[B]
	head      *nn.Linear[B]
	backend   B
}

var _ nn.Module[tensor.Backend] = (*PoetryModel[tensor.Backend])(nil)

// New creates a randomly initialized model.
func New[B tensor.Backend](cfg Config, backend B) *PoetryModel[B] {
	layers := make([]*lstmCell[B], cfg.NumLayers)
	in := cfg.EmbeddingDim
	for l := range layers {
		layers[l] = newLSTMCell(in, cfg.HiddenDim, backend)
		in = cfg.HiddenDim
	}

	return &PoetryModel[B]{
		cfg:       cfg,
		embedding: nn.NewEmbedding(cfg.VocabSize, cfg.EmbeddingDim, backend),
		layers:    layers,
		head:      nn.NewLinear(cfg.HiddenDim, cfg.VocabSize, backend),
		backend:   backend,
	}
}

// Config returns the model dimensions.
func (m *PoetryModel[B]) Config() Config {
	return m.cfg
}

// Backend returns the backend the parameters live on.
func (m *PoetryModel[B]) Backend() B {
	return m.backend
}

// State is the recurrent state of every layer for one batch.
type State[B tensor.Backend] struct {
	H []*tensor.Tensor[float32, B] // per layer, [batch, hidden]
	C []*tensor.Tensor[float32, B] // per layer, [batch, hidden]
}

// ZeroState returns the initial all-zero state for a batch.
func (m *PoetryModel[B]) ZeroState(batch int) *State[B] {
	st := &State[B]{
		H: make([]*tensor.Tensor[float32, B], len(m.layers)),
		C: make([]*tensor.Tensor[float32, B], len(m.layers)),
	}
	for l := range m.layers {
		st.H[l] = tensor.Zeros[float32](tensor.Shape{batch, m.cfg.HiddenDim}, m.backend)
		st.C[l] = tensor.Zeros[float32](tensor.Shape{batch, m.cfg.HiddenDim}, m.backend)
	}
	return st
}

// Step feeds one token per batch row and returns the logits for the next
// token together with the updated state.
//
// tokens: [batch] int32, logits: [batch, vocab]. A nil state means the zero
// state. The input state is not modified.
func (m *PoetryModel[B]) Step(tokens *tensor.Tensor[int32, B], st *State[B]) (*tensor.Tensor[float32, B], *State[B]) {
	if st == nil {
		st = m.ZeroState(tokens.Shape()[0])
	}
	return m.forwardEmbedded(m.embedding.Forward(tokens), st)
}

func (m *PoetryModel[B]) forwardEmbedded(x *tensor.Tensor[float32, B], st *State[B]) (*tensor.Tensor[float32, B], *State[B]) {
	next := &State[B]{
		H: make([]*tensor.Tensor[float32, B], len(m.layers)),
		C: make([]*tensor.Tensor[float32, B], len(m.layers)),
	}
	for l, cell := range m.layers {
		next.H[l], next.C[l] = cell.forward(x, st.H[l], st.C[l])
		x = next.H[l]
	}
	return m.head.Forward(x), next
}

// Forward runs a single step on already embedded input [batch, embedding]
// from the zero state. It exists so the model satisfies nn.Module; use Step
// for token input.
func (m *PoetryModel[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	logits, _ := m.forwardEmbedded(input, m.ZeroState(input.Shape()[0]))
	return logits
}

// NamedParameters returns every trainable parameter with its checkpoint name,
// in a fixed order.
func (m *PoetryModel[B]) NamedParameters() []NamedParameter[B] {
	out := []NamedParameter[B]{{Name: "embedding.weight", Param: m.embedding.Weight}}
	for l, cell := range m.layers {
		out = append(out, cell.namedParameters(fmt.Sprintf("lstm.%d", l))...)
	}
	return append(out, linearParameters("head", m.head)...)
}

// Parameters returns all trainable parameters.
func (m *PoetryModel[B]) Parameters() []*nn.Parameter[B] {
	named := m.NamedParameters()
	params := make([]*nn.Parameter[B], len(named))
	for i, np := range named {
		params[i] = np.Param
	}
	return params
}

// StateDict returns the parameters keyed by checkpoint name.
func (m *PoetryModel[B]) StateDict() map[string]*tensor.RawTensor {
	named := m.NamedParameters()
	sd := make(map[string]*tensor.RawTensor, len(named))
	for _, np := range named {
		sd[np.Name] = np.Param.Tensor().Raw()
	}
	return sd
}

// LoadStateDict copies saved values into the model's parameters. Every
// parameter must be present with the same shape. A different number of
// embedding rows is reported as ErrVocabMismatch.
func (m *PoetryModel[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	if emb, ok := sd["embedding.weight"]; ok {
		if rows := emb.Shape()[0]; rows != m.cfg.VocabSize {
			return fmt.Errorf("%w: checkpoint has %d tokens, vocabulary has %d", ErrVocabMismatch, rows, m.cfg.VocabSize)
		}
	}

	named := m.NamedParameters()
	for _, np := range named {
		src, ok := sd[np.Name]
		if !ok {
			return fmt.Errorf("model: missing parameter %q", np.Name)
		}
		dst := np.Param.Tensor().Raw()
		if !src.Shape().Equal(dst.Shape()) {
			return fmt.Errorf("model: parameter %q shape mismatch: expected %v, got %v", np.Name, dst.Shape(), src.Shape())
		}
		if src.DType() != tensor.Float32 {
			return fmt.Errorf("model: parameter %q dtype mismatch: expected float32, got %v", np.Name, src.DType())
		}
	}

	for _, np := range named {
		copy(np.Param.Tensor().Raw().AsFloat32(), sd[np.Name].AsFloat32())
	}
	return nil
}
