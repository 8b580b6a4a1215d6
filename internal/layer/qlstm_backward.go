package layer

import (
	"fmt"

	"github.com/FlavioCFOliveira/QNeuron/internal/activations"
	"github.com/FlavioCFOliveira/QNeuron/internal/errs"
	"gonum.org/v1/gonum/floats"
)

// NamedParam is a named group of trainable values.
type NamedParam struct {
	Name   string
	Values []float64
}

// Gradients holds dL/d(everything) for one step or a whole sequence.
// Parameter groups follow the order of QLSTM.Params.
type Gradients struct {
	Input  []float64
	Hidden []float64
	Cell   []float64

	Fusion     []float64
	Projection []float64
	Circuits   [numGates][]float64
}

// Params flattens the parameter gradients in QLSTM.Params order.
func (g *Gradients) Params() []float64 {
	n := len(g.Fusion) + len(g.Projection)
	for _, c := range g.Circuits {
		n += len(c)
	}
	flat := make([]float64, 0, n)
	flat = append(flat, g.Fusion...)
	for _, c := range g.Circuits {
		flat = append(flat, c...)
	}
	return append(flat, g.Projection...)
}

// addParams accumulates the parameter gradients of o into g.
func (g *Gradients) addParams(o *Gradients) {
	floats.Add(g.Fusion, o.Fusion)
	floats.Add(g.Projection, o.Projection)
	for i := range g.Circuits {
		floats.Add(g.Circuits[i], o.Circuits[i])
	}
}

func (q *QLSTM) zeroGradients() *Gradients {
	g := &Gradients{
		Fusion:     make([]float64, q.fusion.NumParams()),
		Projection: make([]float64, q.projection.NumParams()),
	}
	for i, c := range q.vqc {
		g.Circuits[i] = make([]float64, c.NumParams())
	}
	return g
}

// NamedParams returns copies of every parameter group in Params order.
func (q *QLSTM) NamedParams() []NamedParam {
	params := []NamedParam{{Name: "fusion", Values: q.fusion.Params()}}
	for g := GateKind(0); g < numGates; g++ {
		params = append(params, NamedParam{Name: "vqc." + g.String(), Values: q.vqc[g].Params()})
	}
	return append(params, NamedParam{Name: "projection", Values: q.projection.Params()})
}

// NumParams returns the total number of trainable values.
func (q *QLSTM) NumParams() int {
	n := q.fusion.NumParams() + q.projection.NumParams()
	for _, c := range q.vqc {
		n += c.NumParams()
	}
	return n
}

// Params returns all parameters flattened: fusion weights and biases, the
// forget, inputs, update and output circuits, then the projection weights.
func (q *QLSTM) Params() []float64 {
	flat := make([]float64, 0, q.NumParams())
	for _, p := range q.NamedParams() {
		flat = append(flat, p.Values...)
	}
	return flat
}

// SetParams updates every parameter from a slice laid out like Params. It
// must not be called while a forward evaluation is running.
func (q *QLSTM) SetParams(params []float64) error {
	if len(params) != q.NumParams() {
		return errs.Dim("qlstm params", len(params), q.NumParams())
	}
	off := 0
	take := func(n int) []float64 {
		s := params[off : off+n]
		off += n
		return s
	}
	if err := q.fusion.SetParams(take(q.fusion.NumParams())); err != nil {
		return err
	}
	for _, c := range q.vqc {
		if err := c.SetParams(take(c.NumParams())); err != nil {
			return err
		}
	}
	return q.projection.SetParams(take(q.projection.NumParams()))
}

// Backward back-propagates dNext, the gradient of the loss with respect to
// the state returned by Forward(x, prev), through one step. Nil vectors in
// dNext are treated as zero.
func (q *QLSTM) Backward(x []float64, prev State, dNext State) (*Gradients, error) {
	h := q.cfg.HiddenSize
	dh, dc, err := q.stateGrads(dNext)
	if err != nil {
		return nil, err
	}

	tr, err := q.step(x, prev)
	if err != nil {
		return nil, err
	}

	tanhC := activations.Apply(activations.Tanh{}, make([]float64, h), tr.cell)
	ig, fg, cg, og := tr.act[pathIn], tr.act[pathForget], tr.act[pathCell], tr.act[pathOut]

	// dc_total = dc + dh * og * (1 - tanh(c)^2)
	dcTotal := append([]float64(nil), dc...)
	for i := 0; i < h; i++ {
		dcTotal[i] += dh[i] * og[i] * (1 - tanhC[i]*tanhC[i])
	}

	var dAct [numGates][]float64
	dAct[pathIn] = floats.MulTo(make([]float64, h), dcTotal, cg)
	dAct[pathForget] = floats.MulTo(make([]float64, h), dcTotal, prev.Cell)
	dAct[pathCell] = floats.MulTo(make([]float64, h), dcTotal, ig)
	dAct[pathOut] = floats.MulTo(make([]float64, h), dh, tanhC)

	grads := q.zeroGradients()
	grads.Cell = floats.MulTo(make([]float64, h), dcTotal, fg)

	// Paths sharing a circuit sum their contributions before the circuit.
	var dQ [numGates][]float64
	for i, p := range q.paths {
		dPre := activations.Backprop(p.act, make([]float64, h), tr.pre[i], dAct[i])
		gIn, gW, err := q.projection.Backward(tr.q[p.circuit], dPre)
		if err != nil {
			return nil, fmt.Errorf("qlstm %s projection backward: %w", p.name, err)
		}
		floats.Add(grads.Projection, gW)
		if dQ[p.circuit] == nil {
			dQ[p.circuit] = make([]float64, q.cfg.NQubits)
		}
		floats.Add(dQ[p.circuit], gIn)
	}

	dEmbed := make([]float64, q.cfg.NQubits)
	for _, g := range q.used {
		gIn, gTheta, err := q.vqc[g].Backward(tr.embed, dQ[g])
		if err != nil {
			return nil, fmt.Errorf("qlstm %s circuit backward: %w", g, err)
		}
		floats.Add(dEmbed, gIn)
		grads.Circuits[g] = gTheta
	}

	// Only the fused components that reached the circuits get a gradient.
	dGates := make([]float64, len(tr.gates))
	copy(dGates, dEmbed)

	dFused, gFusion, err := q.fusion.Backward(tr.fused, dGates)
	if err != nil {
		return nil, fmt.Errorf("qlstm fusion backward: %w", err)
	}
	grads.Fusion = gFusion
	grads.Input = dFused[:q.cfg.InputSize]
	grads.Hidden = dFused[q.cfg.InputSize:]

	return grads, nil
}

func (q *QLSTM) stateGrads(d State) ([]float64, []float64, error) {
	h := q.cfg.HiddenSize
	dh, dc := d.Hidden, d.Cell
	if dh == nil {
		dh = make([]float64, h)
	}
	if dc == nil {
		dc = make([]float64, h)
	}
	if len(dh) != h {
		return nil, nil, errs.Dim("qlstm hidden grad", len(dh), h)
	}
	if len(dc) != h {
		return nil, nil, errs.Dim("qlstm cell grad", len(dc), h)
	}
	return dh, dc, nil
}
