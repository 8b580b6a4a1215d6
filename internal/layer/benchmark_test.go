// Package layer provides benchmarks for the QLSTM cell and its layers.
package layer

import (
	"context"
	"testing"
)

// fillRandom fills a slice with values in [-1, 1).
func fillRandom(slice []float64, seed uint64) {
	r := NewRNG(seed)
	for i := range slice {
		slice[i] = r.Float64()*2 - 1
	}
}

func benchCell(b *testing.B, cfg QLSTMConfig) *QLSTM {
	b.Helper()
	cell, err := NewQLSTM(cfg)
	if err != nil {
		b.Fatal(err)
	}
	return cell
}

// BenchmarkLinearForward benchmarks the fusion-sized linear layer.
func BenchmarkLinearForward(b *testing.B) {
	l, err := NewLinear(64, 64, true, NewRNG(1))
	if err != nil {
		b.Fatal(err)
	}
	x := make([]float64, 64)
	fillRandom(x, 2)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Forward(x)
	}
}

// BenchmarkQLSTMForward benchmarks one recurrence step.
func BenchmarkQLSTMForward(b *testing.B) {
	for _, parallel := range []bool{false, true} {
		name := "sequential"
		if parallel {
			name = "parallel"
		}
		b.Run(name, func(b *testing.B) {
			cell := benchCell(b, QLSTMConfig{InputSize: 4, HiddenSize: 4, NQubits: 8, NLayers: 2, ParallelGates: parallel})
			x := make([]float64, 4)
			fillRandom(x, 3)
			s := cell.ZeroState()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				cell.Forward(x, s)
			}
		})
	}
}

// BenchmarkQLSTMBackward benchmarks the analytic single-step backward pass.
func BenchmarkQLSTMBackward(b *testing.B) {
	cell := benchCell(b, QLSTMConfig{InputSize: 4, HiddenSize: 4, NQubits: 8, NLayers: 2})
	x := make([]float64, 4)
	fillRandom(x, 4)
	d := State{Hidden: make([]float64, 4)}
	fillRandom(d.Hidden, 5)
	s := cell.ZeroState()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cell.Backward(x, s, d)
	}
}

// BenchmarkQLSTMForwardBatch benchmarks 32 independent steps.
func BenchmarkQLSTMForwardBatch(b *testing.B) {
	cell := benchCell(b, QLSTMConfig{InputSize: 4, HiddenSize: 4, NQubits: 8})
	xs := make([][]float64, 32)
	states := make([]State, 32)
	for i := range xs {
		xs[i] = make([]float64, 4)
		fillRandom(xs[i], uint64(i))
		states[i] = cell.ZeroState()
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cell.ForwardBatch(ctx, xs, states)
	}
}
