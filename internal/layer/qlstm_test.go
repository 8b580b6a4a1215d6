package layer

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/FlavioCFOliveira/QNeuron/internal/errs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCell(t *testing.T, cfg QLSTMConfig, opts ...Option) *QLSTM {
	t.Helper()
	cell, err := NewQLSTM(cfg, opts...)
	require.NoError(t, err)
	return cell
}

func identity(n int) []float64 {
	w := make([]float64, n*n)
	for i := 0; i < n; i++ {
		w[i*n+i] = 1
	}
	return w
}

// goldenCell returns the 4/4/4/1 cell with zero circuit parameters, identity
// fusion weights, zero fusion bias and identity projection.
func goldenCell(t *testing.T) *QLSTM {
	cell := newTestCell(t, QLSTMConfig{InputSize: 4, HiddenSize: 4, NQubits: 4, NLayers: 1})
	require.NoError(t, cell.Fusion().SetParams(append(identity(8), make([]float64, 8)...)))
	require.NoError(t, cell.Projection().SetParams(identity(4)))
	for g := GateKind(0); g < numGates; g++ {
		require.NoError(t, cell.Circuit(g).SetWeights([][]float64{make([]float64, 4)}))
	}
	return cell
}

func TestQLSTMGolden(t *testing.T) {
	cell := goldenCell(t)

	next, err := cell.Forward([]float64{0.1, -0.2, 0.3, 0.0}, cell.ZeroState())
	require.NoError(t, err)

	wantCell := []float64{0.526920451975, 0.545314235379, 0.524670047186, 0.524670047186}
	wantHidden := []float64{0.346980125972, 0.360896050183, 0.345283413165, 0.345283413165}
	assert.InDeltaSlice(t, wantCell, next.Cell, 1e-5)
	assert.InDeltaSlice(t, wantHidden, next.Hidden, 1e-5)
}

func TestQLSTMShapes(t *testing.T) {
	tests := []struct {
		name string
		cfg  QLSTMConfig
	}{
		{"reference widths", QLSTMConfig{InputSize: 4, HiddenSize: 4, NQubits: 4}},
		{"fused wider than circuit", QLSTMConfig{InputSize: 5, HiddenSize: 2, NQubits: 3, NLayers: 2}},
		{"fused narrower than circuit", QLSTMConfig{InputSize: 1, HiddenSize: 1, NQubits: 3}},
		{"hidden differs from qubits", QLSTMConfig{InputSize: 2, HiddenSize: 6, NQubits: 2, NLayers: 3}},
		{"single qubit", QLSTMConfig{InputSize: 1, HiddenSize: 1, NQubits: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cell := newTestCell(t, tt.cfg)
			x := make([]float64, tt.cfg.InputSize)
			for i := range x {
				x[i] = 0.3 * float64(i+1)
			}
			next, err := cell.Forward(x, cell.ZeroState())
			require.NoError(t, err)
			assert.Len(t, next.Hidden, tt.cfg.HiddenSize)
			assert.Len(t, next.Cell, tt.cfg.HiddenSize)
		})
	}
}

func TestQLSTMDefaults(t *testing.T) {
	cell := newTestCell(t, QLSTMConfig{InputSize: 2, HiddenSize: 2, NQubits: 2})
	cfg := cell.Config()
	assert.Equal(t, 1, cfg.NLayers)
	assert.Equal(t, "default.qubit", cfg.Backend)
	assert.Equal(t, RoutingReference, cfg.Routing)
	assert.Equal(t, EmbedTruncate, cfg.Embedding)
	assert.Equal(t, 4, cell.InSize())
	assert.Equal(t, 2, cell.OutSize())
}

func TestQLSTMActivationRanges(t *testing.T) {
	cell := newTestCell(t, QLSTMConfig{InputSize: 3, HiddenSize: 3, NQubits: 3, Seed: 5})
	s := State{Hidden: []float64{5, -5, 0.5}, Cell: []float64{-2, 3, 0}}

	tr, err := cell.step([]float64{10, -10, 1}, s)
	require.NoError(t, err)

	for i, p := range cell.paths {
		for _, v := range tr.act[i] {
			if p.name == "cellgate" {
				assert.True(t, v > -1 && v < 1, "%s = %v", p.name, v)
			} else {
				assert.True(t, v > 0 && v < 1, "%s = %v", p.name, v)
			}
		}
	}
	for _, v := range tr.hidden {
		assert.True(t, math.Abs(v) < 1)
	}
}

func TestQLSTMPurity(t *testing.T) {
	cell := newTestCell(t, QLSTMConfig{InputSize: 2, HiddenSize: 3, NQubits: 3, NLayers: 2, Seed: 8})
	x := []float64{0.4, -0.6}
	s := State{Hidden: []float64{0.1, 0.2, -0.3}, Cell: []float64{-0.5, 0.0, 0.5}}
	before := s.Clone()

	a, err := cell.Forward(x, s)
	require.NoError(t, err)
	b, err := cell.Forward(x, s)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, before, s, "caller state must not be mutated")

	a.Hidden[0] = 42
	c, err := cell.Forward(x, s)
	require.NoError(t, err)
	assert.Equal(t, b.Hidden, c.Hidden, "returned states must not alias internal buffers")
}

func TestQLSTMDimensionMismatch(t *testing.T) {
	cell := newTestCell(t, QLSTMConfig{InputSize: 4, HiddenSize: 4, NQubits: 4})
	zero := cell.ZeroState()

	_, err := cell.Forward(make([]float64, 3), zero)
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)

	_, err = cell.Forward(make([]float64, 4), State{Hidden: make([]float64, 5), Cell: make([]float64, 4)})
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)

	_, err = cell.Forward(make([]float64, 4), State{Hidden: make([]float64, 4)})
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)

	_, err = cell.Backward(make([]float64, 4), zero, State{Hidden: make([]float64, 2)})
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)

	assert.ErrorIs(t, cell.SetParams(make([]float64, 3)), errs.ErrDimensionMismatch)
}

func TestQLSTMConstructionErrors(t *testing.T) {
	_, err := NewQLSTM(QLSTMConfig{InputSize: 2, HiddenSize: 2, NQubits: 2, Backend: "qiskit.ibmq"})
	assert.ErrorIs(t, err, errs.ErrBackendUnavailable)

	_, err = NewQLSTM(QLSTMConfig{InputSize: 2, HiddenSize: 2, NQubits: 64})
	assert.ErrorIs(t, err, errs.ErrBackendUnavailable)

	_, err = NewQLSTM(QLSTMConfig{InputSize: 0, HiddenSize: 2, NQubits: 2})
	assert.Error(t, err)

	_, err = NewQLSTM(QLSTMConfig{InputSize: 4, HiddenSize: 4, NQubits: 4, Embedding: EmbedStrict})
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)

	_, err = NewQLSTM(QLSTMConfig{InputSize: 2, HiddenSize: 2, NQubits: 4, Embedding: EmbedStrict})
	assert.NoError(t, err)
}

func TestQLSTMDisjointWireSets(t *testing.T) {
	cell := newTestCell(t, QLSTMConfig{InputSize: 2, HiddenSize: 2, NQubits: 3})
	for a := GateKind(0); a < numGates; a++ {
		wa := cell.Circuit(a).Circuit().Device().Wires()
		assert.Equal(t, "wire_"+a.String()+"_0", wa.At(0))
		for b := a + 1; b < numGates; b++ {
			wb := cell.Circuit(b).Circuit().Device().Wires()
			assert.True(t, wa.Disjoint(wb), "%s and %s share wires", a, b)
		}
	}
}

func TestQLSTMSeedDeterminism(t *testing.T) {
	cfg := QLSTMConfig{InputSize: 2, HiddenSize: 3, NQubits: 3, Seed: 42}
	a := newTestCell(t, cfg)
	b := newTestCell(t, cfg)
	assert.Equal(t, a.Params(), b.Params())

	cfg.Seed = 43
	c := newTestCell(t, cfg)
	assert.NotEqual(t, a.Params(), c.Params())
}

func TestQLSTMParamsRoundTrip(t *testing.T) {
	cell := newTestCell(t, QLSTMConfig{InputSize: 2, HiddenSize: 3, NQubits: 3, NLayers: 2})

	// fusion 5x5+5, four circuits 2x3, projection 3x3
	assert.Equal(t, 30+4*6+9, cell.NumParams())

	named := cell.NamedParams()
	names := make([]string, len(named))
	for i, p := range named {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"fusion", "vqc.forget", "vqc.inputs", "vqc.update", "vqc.output", "projection"}, names)

	params := cell.Params()
	for i := range params {
		params[i] = float64(i) / 100
	}
	require.NoError(t, cell.SetParams(params))
	assert.Equal(t, params, cell.Params())
}

func TestQLSTMReferenceRouting(t *testing.T) {
	cell := newTestCell(t, QLSTMConfig{InputSize: 2, HiddenSize: 2, NQubits: 2, Seed: 3})
	tr, err := cell.step([]float64{0.5, -0.5}, cell.ZeroState())
	require.NoError(t, err)

	// outgate reuses the forget circuit, so it equals ingate.
	assert.Equal(t, tr.act[pathIn], tr.act[pathOut])
	assert.Nil(t, tr.q[GateOutput], "output circuit must not be evaluated")
	assert.Equal(t, []GateKind{GateForget, GateInput, GateUpdate}, cell.used)

	grads, err := cell.Backward([]float64{0.5, -0.5}, cell.ZeroState(), State{Hidden: []float64{1, 1}})
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 2), grads.Circuits[GateOutput])
}

func TestQLSTMDedicatedRouting(t *testing.T) {
	cfg := QLSTMConfig{InputSize: 2, HiddenSize: 2, NQubits: 2, Seed: 3}
	ref := newTestCell(t, cfg)
	cfg.Routing = RoutingDedicated
	ded := newTestCell(t, cfg)

	x := []float64{0.5, -0.5}
	a, err := ref.Forward(x, ref.ZeroState())
	require.NoError(t, err)
	b, err := ded.Forward(x, ded.ZeroState())
	require.NoError(t, err)
	assert.NotEqual(t, a.Hidden, b.Hidden)

	assert.Len(t, ded.used, 4)
	grads, err := ded.Backward(x, ded.ZeroState(), State{Hidden: []float64{1, 1}})
	require.NoError(t, err)
	assert.NotEqual(t, make([]float64, 2), grads.Circuits[GateOutput])
}

func TestQLSTMParallelGatesMatchSequential(t *testing.T) {
	cfg := QLSTMConfig{InputSize: 3, HiddenSize: 2, NQubits: 4, NLayers: 2, Seed: 17, Routing: RoutingDedicated}
	seq := newTestCell(t, cfg)
	cfg.ParallelGates = true
	par := newTestCell(t, cfg)

	x := []float64{0.1, 0.9, -0.4}
	s := State{Hidden: []float64{0.2, -0.1}, Cell: []float64{0.3, 0.3}}
	a, err := seq.Forward(x, s)
	require.NoError(t, err)
	b, err := par.Forward(x, s)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestQLSTMForwardBatch(t *testing.T) {
	cell := newTestCell(t, QLSTMConfig{InputSize: 2, HiddenSize: 2, NQubits: 3, Seed: 2})
	xs := [][]float64{{0.1, 0.2}, {-0.3, 0.4}, {1.0, -1.0}}
	states := []State{
		cell.ZeroState(),
		{Hidden: []float64{0.5, 0.5}, Cell: []float64{-0.5, 0.1}},
		{Hidden: []float64{-0.2, 0.9}, Cell: []float64{0.0, 0.7}},
	}

	out, err := cell.ForwardBatch(context.Background(), xs, states)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := range xs {
		want, err := cell.Forward(xs[i], states[i])
		require.NoError(t, err)
		assert.Equal(t, want, out[i], "row %d", i)
	}

	_, err = cell.ForwardBatch(context.Background(), xs, states[:2])
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)

	states[1].Cell = []float64{1}
	_, err = cell.ForwardBatch(context.Background(), xs, states)
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestQLSTMNumericInstability(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	cfg := QLSTMConfig{InputSize: 2, HiddenSize: 2, NQubits: 2}
	cell := newTestCell(t, cfg, WithLogger(log))
	cell.Fusion().SetBias(0, math.NaN())

	next, err := cell.Forward([]float64{0.1, 0.2}, cell.ZeroState())
	require.NoError(t, err)
	assert.True(t, math.IsNaN(next.Hidden[0]))
	assert.Contains(t, buf.String(), "numeric instability")
	assert.Contains(t, buf.String(), `"component":"qlstm"`)

	cfg.StrictNumerics = true
	strict := newTestCell(t, cfg)
	strict.Fusion().SetBias(0, math.NaN())
	_, err = strict.Forward([]float64{0.1, 0.2}, strict.ZeroState())
	assert.ErrorIs(t, err, errs.ErrNumericInstability)
}

func TestQLSTMBackwardMatchesFiniteDifference(t *testing.T) {
	configs := map[string]QLSTMConfig{
		"reference truncate": {InputSize: 2, HiddenSize: 3, NQubits: 3, NLayers: 2, Seed: 7},
		"dedicated padded":   {InputSize: 1, HiddenSize: 2, NQubits: 4, Seed: 9, Routing: RoutingDedicated},
	}

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			cell := newTestCell(t, cfg)
			x := make([]float64, cfg.InputSize)
			for i := range x {
				x[i] = 0.6 - 0.5*float64(i)
			}
			s := cell.ZeroState()
			for i := range s.Hidden {
				s.Hidden[i] = 0.2*float64(i) - 0.3
				s.Cell[i] = 0.4 - 0.3*float64(i)
			}
			dh := make([]float64, cfg.HiddenSize)
			dc := make([]float64, cfg.HiddenSize)
			for i := range dh {
				dh[i] = 1 + 0.5*float64(i)
				dc[i] = -0.5 + 0.25*float64(i)
			}

			grads, err := cell.Backward(x, s, State{Hidden: dh, Cell: dc})
			require.NoError(t, err)

			loss := func() float64 {
				next, err := cell.Forward(x, s)
				require.NoError(t, err)
				return dot(dh, next.Hidden) + dot(dc, next.Cell)
			}

			for i := range x {
				assert.InDelta(t, numericGrad(&x[i], loss), grads.Input[i], 1e-6, "x[%d]", i)
			}
			for i := range s.Hidden {
				assert.InDelta(t, numericGrad(&s.Hidden[i], loss), grads.Hidden[i], 1e-6, "h[%d]", i)
				assert.InDelta(t, numericGrad(&s.Cell[i], loss), grads.Cell[i], 1e-6, "c[%d]", i)
			}

			params := cell.Params()
			flat := grads.Params()
			require.Len(t, flat, len(params))
			for i := range params {
				lossAt := func() float64 {
					require.NoError(t, cell.SetParams(params))
					return loss()
				}
				assert.InDelta(t, numericGrad(&params[i], lossAt), flat[i], 1e-6, "param %d", i)
			}
		})
	}
}

func TestParseRoutingAndEmbedding(t *testing.T) {
	r, err := ParseRouting("Dedicated")
	require.NoError(t, err)
	assert.Equal(t, RoutingDedicated, r)
	r, err = ParseRouting("")
	require.NoError(t, err)
	assert.Equal(t, RoutingReference, r)
	_, err = ParseRouting("shuffled")
	assert.Error(t, err)

	e, err := ParseEmbedding("strict")
	require.NoError(t, err)
	assert.Equal(t, EmbedStrict, e)
	_, err = ParseEmbedding("pad")
	assert.Error(t, err)

	assert.Equal(t, "reference", RoutingReference.String())
	assert.Equal(t, "truncate", EmbedTruncate.String())
	assert.Equal(t, "inputs", GateInput.String())
}
