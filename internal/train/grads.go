package train

import (
	"fmt"
	"math"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"gonum.org/v1/gonum/blas/blas32"
)

// Gradients as returned by the tape: parameter tensor -> gradient.
type gradients = map[*tensor.RawTensor]*tensor.RawTensor

func vector(r *tensor.RawTensor) blas32.Vector {
	data := r.AsFloat32()
	return blas32.Vector{N: len(data), Data: data, Inc: 1}
}

// detach returns a copy of r with its own buffer. RawTensor.Clone shares
// the buffer, so it cannot be written through AsFloat32.
func detach(r *tensor.RawTensor) *tensor.RawTensor {
	out, err := tensor.NewRaw(r.Shape(), r.DType(), r.Device())
	if err != nil {
		panic(fmt.Sprintf("train: copy gradient: %v", err))
	}
	copy(out.AsFloat32(), r.AsFloat32())
	return out
}

// applyWeightDecay adds wd*p to the gradient of every parameter (coupled L2
// decay). Gradients are replaced by copies, the tape may share buffers
// between them.
func applyWeightDecay[B tensor.Backend](params []*nn.Parameter[B], grads gradients, wd float32) {
	if wd == 0 {
		return
	}
	for _, p := range params {
		raw := p.Tensor().Raw()
		g, ok := grads[raw]
		if !ok {
			continue
		}
		decayed := detach(g)
		blas32.Axpy(wd, vector(raw), vector(decayed))
		grads[raw] = decayed
	}
}

// clipGradients rescales all parameter gradients so that their global L2
// norm is at most maxNorm. It returns the norm before clipping.
func clipGradients[B tensor.Backend](params []*nn.Parameter[B], grads gradients, maxNorm float32) float32 {
	norm := globalNorm(params, grads)
	if maxNorm <= 0 || norm <= maxNorm || norm == 0 {
		return norm
	}

	scale := maxNorm / norm
	for _, p := range params {
		raw := p.Tensor().Raw()
		g, ok := grads[raw]
		if !ok {
			continue
		}
		scaled := detach(g)
		blas32.Scal(scale, vector(scaled))
		grads[raw] = scaled
	}
	return norm
}

func globalNorm[B tensor.Backend](params []*nn.Parameter[B], grads gradients) float32 {
	var sum float64
	for _, p := range params {
		if g, ok := grads[p.Tensor().Raw()]; ok {
			n := float64(blas32.Nrm2(vector(g)))
			sum += n * n
		}
	}
	return float32(math.Sqrt(sum))
}
