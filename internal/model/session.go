package model

import (
	"fmt"

	"github.com/born-ml/born/tensor"

	"github.com/born-ml/poet/internal/generate"
)

// Session decodes one sequence with batch size 1. It owns its recurrent
// state; independent sessions never share state.
type Session[B tensor.Backend] struct {
	model *PoetryModel[B]
	state *State[B]
}

// NewSession starts decoding from the zero state.
func (m *PoetryModel[B]) NewSession() generate.Session {
	return &Session[B]{model: m, state: m.ZeroState(1)}
}

// Step feeds token and returns the logits over the vocabulary.
func (s *Session[B]) Step(token int32) []float32 {
	in, err := tensor.FromSlice([]int32{token}, tensor.Shape{1}, s.model.backend)
	if err != nil {
		panic(fmt.Sprintf("model: create input tensor: %v", err))
	}
	logits, next := s.model.Step(in, s.state)
	s.state = next
	return logits.Data()
}
