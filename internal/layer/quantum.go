package layer

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"github.com/FlavioCFOliveira/QNeuron/internal/errs"
	"github.com/FlavioCFOliveira/QNeuron/internal/quantum"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"
)

// QuantumLayer wraps a variational circuit as a trainable layer. Its
// parameters have shape (nLayers, nQubits) and are stored row-major.
type QuantumLayer struct {
	circuit *quantum.Circuit
	params  []float64
	nLayers int
	nQubits int
	workers int
}

// NewQuantumLayer binds circuit parameters drawn from U(0, 2π) with rng.
func NewQuantumLayer(c *quantum.Circuit, rng *rand.Rand) *QuantumLayer {
	q := &QuantumLayer{
		circuit: c,
		nLayers: c.NLayers(),
		nQubits: c.NQubits(),
		workers: runtime.GOMAXPROCS(0),
	}
	u := distuv.Uniform{Min: 0, Max: 2 * math.Pi, Src: rng}
	q.params = make([]float64, q.nLayers*q.nQubits)
	for i := range q.params {
		q.params[i] = u.Rand()
	}
	return q
}

// shaped views the flat parameters as rows of the circuit's weight array.
func (q *QuantumLayer) shaped(flat []float64) [][]float64 {
	rows := make([][]float64, q.nLayers)
	for l := range rows {
		rows[l] = flat[l*q.nQubits : (l+1)*q.nQubits]
	}
	return rows
}

// Forward evaluates the circuit on one feature vector.
func (q *QuantumLayer) Forward(x []float64) ([]float64, error) {
	return q.circuit.Forward(x, q.shaped(q.params))
}

// ForwardBatch evaluates each row of a row-major batch independently. Rows
// run concurrently; the first failing row cancels the rest.
func (q *QuantumLayer) ForwardBatch(ctx context.Context, x []float64, batchSize int) ([]float64, error) {
	if batchSize <= 0 || len(x) != batchSize*q.nQubits {
		return nil, errs.Shape("quantum batch", batchSize, len(x)/max(batchSize, 1), batchSize, q.nQubits)
	}
	params := q.shaped(q.params)
	out := make([]float64, batchSize*q.nQubits)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(q.workers)
	for r := 0; r < batchSize; r++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row, err := q.circuit.Forward(x[r*q.nQubits:(r+1)*q.nQubits], params)
			if err != nil {
				return fmt.Errorf("batch row %d: %w", r, err)
			}
			copy(out[r*q.nQubits:], row)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Backward returns the input gradient and the parameter gradient (row-major)
// of grad·circuit(x).
func (q *QuantumLayer) Backward(x, grad []float64) ([]float64, []float64, error) {
	gradIn, gradRows, err := q.circuit.VJP(x, q.shaped(q.params), grad)
	if err != nil {
		return nil, nil, err
	}
	gradParams := make([]float64, 0, len(q.params))
	for _, row := range gradRows {
		gradParams = append(gradParams, row...)
	}
	return gradIn, gradParams, nil
}

// Params returns a copy of the circuit parameters.
func (q *QuantumLayer) Params() []float64 {
	return append([]float64(nil), q.params...)
}

// SetParams replaces the circuit parameters.
func (q *QuantumLayer) SetParams(params []float64) error {
	if len(params) != len(q.params) {
		return errs.Dim("quantum params", len(params), len(q.params))
	}
	copy(q.params, params)
	return nil
}

// Weights returns a copy of the parameters shaped (nLayers, nQubits).
func (q *QuantumLayer) Weights() [][]float64 {
	return q.shaped(q.Params())
}

// SetWeights replaces the parameters from a (nLayers, nQubits) array.
func (q *QuantumLayer) SetWeights(w [][]float64) error {
	cols := q.nQubits
	if len(w) > 0 {
		cols = len(w[0])
	}
	if len(w) != q.nLayers {
		return errs.Shape("quantum weights", len(w), cols, q.nLayers, q.nQubits)
	}
	for _, row := range w {
		if len(row) != q.nQubits {
			return errs.Shape("quantum weights", len(w), len(row), q.nLayers, q.nQubits)
		}
	}
	for l, row := range w {
		copy(q.params[l*q.nQubits:], row)
	}
	return nil
}

// SetWorkers bounds the goroutines used by ForwardBatch.
func (q *QuantumLayer) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	q.workers = n
}

// Circuit returns the wrapped circuit.
func (q *QuantumLayer) Circuit() *quantum.Circuit { return q.circuit }

// NumParams returns nLayers * nQubits.
func (q *QuantumLayer) NumParams() int { return len(q.params) }

// InSize returns the number of qubits.
func (q *QuantumLayer) InSize() int { return q.nQubits }

// OutSize returns the number of qubits.
func (q *QuantumLayer) OutSize() int { return q.nQubits }
