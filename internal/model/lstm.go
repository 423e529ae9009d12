package model

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Gate order inside a cell. Used for parameter names.
var gateNames = [4]string{"input", "forget", "cell", "output"}

const (
	gateInput = iota
	gateForget
	gateCell
	gateOutput
)

// lstmCell is one LSTM layer evaluated a single time step at a time.
//
// Each gate has its own input and recurrent projection:
//
//	i  = σ(W_ii x + b_ii + W_hi h + b_hi)
//	f  = σ(W_if x + b_if + W_hf h + b_hf)
//	g  = tanh(W_ig x + b_ig + W_hg h + b_hg)
//	o  = σ(W_io x + b_io + W_ho h + b_ho)
//	c' = f * c + i * g
//	h' = o * tanh(c')
type lstmCell[B tensor.Backend] struct {
	x    [4]*nn.Linear[B] // [hidden, in]
	h    [4]*nn.Linear[B] // [hidden, hidden]
	tanh *nn.Tanh[B]

	inFeatures int
	hiddenSize int
}

func newLSTMCell[B tensor.Backend](inFeatures, hiddenSize int, backend B) *lstmCell[B] {
	c := &lstmCell[B]{
		tanh:       nn.NewTanh[B](),
		inFeatures: inFeatures,
		hiddenSize: hiddenSize,
	}
	for g := range gateNames {
		c.x[g] = nn.NewLinear(inFeatures, hiddenSize, backend)
		c.h[g] = nn.NewLinear(hiddenSize, hiddenSize, backend)
	}
	return c
}

func (c *lstmCell[B]) gate(g int, x, h *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return c.x[g].Forward(x).Add(c.h[g].Forward(h))
}

// forward advances the cell by one step.
//
// x: [batch, inFeatures], h and c: [batch, hiddenSize].
func (c *lstmCell[B]) forward(x, h, cell *tensor.Tensor[float32, B]) (hNext, cNext *tensor.Tensor[float32, B]) {
	i := nn.SigmoidFunc(c.gate(gateInput, x, h))
	f := nn.SigmoidFunc(c.gate(gateForget, x, h))
	g := c.tanh.Forward(c.gate(gateCell, x, h))
	o := nn.SigmoidFunc(c.gate(gateOutput, x, h))

	cNext = f.Mul(cell).Add(i.Mul(g))
	hNext = o.Mul(c.tanh.Forward(cNext))
	return hNext, cNext
}

// namedParameters lists the cell's parameters under prefix, e.g.
// "lstm.0.forget.h.weight".
func (c *lstmCell[B]) namedParameters(prefix string) []NamedParameter[B] {
	out := make([]NamedParameter[B], 0, 16)
	for g, name := range gateNames {
		out = append(out, linearParameters(fmt.Sprintf("%s.%s.x", prefix, name), c.x[g])...)
		out = append(out, linearParameters(fmt.Sprintf("%s.%s.h", prefix, name), c.h[g])...)
	}
	return out
}

func linearParameters[B tensor.Backend](prefix string, l *nn.Linear[B]) []NamedParameter[B] {
	out := []NamedParameter[B]{{Name: prefix + ".weight", Param: l.Weight()}}
	if l.Bias() != nil {
		out = append(out, NamedParameter[B]{Name: prefix + ".bias", Param: l.Bias()})
	}
	return out
}
