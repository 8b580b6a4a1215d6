// Package layer provides the differentiable layers of the QLSTM cell.
package layer

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/FlavioCFOliveira/QNeuron/internal/errs"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Layer is a differentiable operator. Backward is a vector-Jacobian product
// evaluated at x, so layers keep no per-call state and Forward may run
// concurrently as long as parameters are not being changed.
type Layer interface {
	Forward(x []float64) ([]float64, error)
	// ForwardBatch applies Forward to each row of a row-major batch.
	ForwardBatch(ctx context.Context, x []float64, batchSize int) ([]float64, error)
	// Backward returns dL/dx and dL/dparams given x and dL/dy.
	Backward(x, grad []float64) (gradIn, gradParams []float64, err error)
	Params() []float64
	SetParams(params []float64) error
	InSize() int
	OutSize() int
}

var (
	_ Layer = (*Linear)(nil)
	_ Layer = (*QuantumLayer)(nil)
)

// NewRNG returns a deterministic generator for parameter initialization.
func NewRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// glorotUniform draws out*in weights from U(-l, l), l = sqrt(6 / (in + out)).
func glorotUniform(in, out int, src rand.Source) []float64 {
	limit := math.Sqrt(6.0 / float64(in+out))
	u := distuv.Uniform{Min: -limit, Max: limit, Src: src}
	w := make([]float64, in*out)
	for i := range w {
		w[i] = u.Rand()
	}
	return w
}

// Linear is a fully connected layer y = Wx (+ b) without activation.
// Weights are stored as a gonum dense matrix of shape [out, in].
type Linear struct {
	weights *mat.Dense
	biases  *mat.VecDense // nil when the layer has no bias
	inSize  int
	outSize int
}

// NewLinear creates a linear layer with Glorot-uniform weights and zero
// biases drawn from rng.
func NewLinear(in, out int, bias bool, rng *rand.Rand) (*Linear, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("linear: sizes must be positive, got in=%d out=%d", in, out)
	}
	l := &Linear{
		weights: mat.NewDense(out, in, glorotUniform(in, out, rng)),
		inSize:  in,
		outSize: out,
	}
	if bias {
		l.biases = mat.NewVecDense(out, nil)
	}
	return l, nil
}

// Forward computes Wx + b.
func (l *Linear) Forward(x []float64) ([]float64, error) {
	if len(x) != l.inSize {
		return nil, errs.Dim("linear forward", len(x), l.inSize)
	}
	y := mat.NewVecDense(l.outSize, nil)
	y.MulVec(l.weights, mat.NewVecDense(l.inSize, x))
	if l.biases != nil {
		y.AddVec(y, l.biases)
	}
	return y.RawVector().Data, nil
}

// ForwardBatch computes XWᵀ + b for a row-major batch X.
func (l *Linear) ForwardBatch(ctx context.Context, x []float64, batchSize int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if batchSize <= 0 || len(x) != batchSize*l.inSize {
		return nil, errs.Shape("linear batch", batchSize, len(x)/max(batchSize, 1), batchSize, l.inSize)
	}
	y := mat.NewDense(batchSize, l.outSize, nil)
	y.Mul(mat.NewDense(batchSize, l.inSize, x), l.weights.T())
	if l.biases != nil {
		for r := 0; r < batchSize; r++ {
			row := y.RowView(r).(*mat.VecDense)
			row.AddVec(row, l.biases)
		}
	}
	return y.RawMatrix().Data, nil
}

// Backward returns Wᵀg as the input gradient and [g ⊗ x, g] as the
// parameter gradient, laid out like Params.
func (l *Linear) Backward(x, grad []float64) ([]float64, []float64, error) {
	if len(x) != l.inSize {
		return nil, nil, errs.Dim("linear backward input", len(x), l.inSize)
	}
	if len(grad) != l.outSize {
		return nil, nil, errs.Dim("linear backward grad", len(grad), l.outSize)
	}
	g := mat.NewVecDense(l.outSize, grad)

	gradIn := mat.NewVecDense(l.inSize, nil)
	gradIn.MulVec(l.weights.T(), g)

	gradW := mat.NewDense(l.outSize, l.inSize, nil)
	gradW.Outer(1, g, mat.NewVecDense(l.inSize, x))

	gradParams := make([]float64, 0, l.NumParams())
	gradParams = append(gradParams, gradW.RawMatrix().Data...)
	if l.biases != nil {
		gradParams = append(gradParams, grad...)
	}
	return gradIn.RawVector().Data, gradParams, nil
}

// NumParams returns the number of trainable values.
func (l *Linear) NumParams() int {
	n := l.inSize * l.outSize
	if l.biases != nil {
		n += l.outSize
	}
	return n
}

// Params returns weights (row-major) followed by biases.
func (l *Linear) Params() []float64 {
	params := make([]float64, 0, l.NumParams())
	params = append(params, l.weights.RawMatrix().Data...)
	if l.biases != nil {
		params = append(params, l.biases.RawVector().Data...)
	}
	return params
}

// SetParams updates weights and biases from a flattened slice.
func (l *Linear) SetParams(params []float64) error {
	if len(params) != l.NumParams() {
		return errs.Dim("linear params", len(params), l.NumParams())
	}
	nw := l.inSize * l.outSize
	copy(l.weights.RawMatrix().Data, params[:nw])
	if l.biases != nil {
		copy(l.biases.RawVector().Data, params[nw:])
	}
	return nil
}

// SetWeight sets a single weight at (row, col).
func (l *Linear) SetWeight(row, col int, val float64) {
	l.weights.Set(row, col, val)
}

// GetWeight gets a single weight at (row, col).
func (l *Linear) GetWeight(row, col int) float64 {
	return l.weights.At(row, col)
}

// SetBias sets a single bias. It panics if the layer has no bias.
func (l *Linear) SetBias(idx int, val float64) {
	l.biases.SetVec(idx, val)
}

// HasBias reports whether the layer adds a bias term.
func (l *Linear) HasBias() bool { return l.biases != nil }

// InSize returns the input size of the layer.
func (l *Linear) InSize() int { return l.inSize }

// OutSize returns the output size of the layer.
func (l *Linear) OutSize() int { return l.outSize }
