package layer

import (
	"fmt"

	"github.com/FlavioCFOliveira/QNeuron/internal/errs"
	"gonum.org/v1/gonum/floats"
)

// SequenceUnroller drives a QLSTM cell over T time steps.
type SequenceUnroller struct {
	cell *QLSTM
}

// NewSequenceUnroller wraps cell.
func NewSequenceUnroller(cell *QLSTM) *SequenceUnroller {
	return &SequenceUnroller{cell: cell}
}

// Forward feeds xs in order starting from init and returns the state after
// every step. init is not modified.
func (s *SequenceUnroller) Forward(xs [][]float64, init State) ([]State, error) {
	states := make([]State, len(xs))
	prev := init
	for t, x := range xs {
		next, err := s.cell.Forward(x, prev)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", t, err)
		}
		states[t] = next
		prev = next
	}
	return states, nil
}

// SequenceGradients is the result of back-propagation through time.
type SequenceGradients struct {
	// Inputs[t] is dL/dxs[t].
	Inputs [][]float64
	// Initial is dL/dinit.
	Initial State
	// Params accumulates the parameter gradients of every step.
	Params *Gradients
}

// Backward back-propagates through time. dStates[t] is the gradient of the
// loss with respect to the state after step t; nil vectors count as zero.
func (s *SequenceUnroller) Backward(xs [][]float64, init State, dStates []State) (*SequenceGradients, error) {
	if len(dStates) != len(xs) {
		return nil, errs.Dim("unroller state grads", len(dStates), len(xs))
	}
	states, err := s.Forward(xs, init)
	if err != nil {
		return nil, err
	}

	h := s.cell.OutSize()
	out := &SequenceGradients{
		Inputs: make([][]float64, len(xs)),
		Params: s.cell.zeroGradients(),
	}
	carry := State{Hidden: make([]float64, h), Cell: make([]float64, h)}

	for t := len(xs) - 1; t >= 0; t-- {
		dh, dc, err := s.cell.stateGrads(dStates[t])
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", t, err)
		}
		d := State{
			Hidden: floats.AddTo(make([]float64, h), dh, carry.Hidden),
			Cell:   floats.AddTo(make([]float64, h), dc, carry.Cell),
		}

		prev := init
		if t > 0 {
			prev = states[t-1]
		}
		g, err := s.cell.Backward(xs[t], prev, d)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", t, err)
		}
		out.Inputs[t] = g.Input
		out.Params.addParams(g)
		carry = State{Hidden: g.Hidden, Cell: g.Cell}
	}

	out.Initial = carry
	return out, nil
}
