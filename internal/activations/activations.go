// Package activations provides activation functions used by the gate paths.
package activations

import "math"

// Activation is an activation function with derivative.
type Activation interface {
	// Activate computes f(x)
	Activate(x float64) float64

	// Derivative computes f'(x)
	Derivative(x float64) float64
}

// Sigmoid activation function.
type Sigmoid struct{}

// sigmoid is split by sign so that exp never overflows.
func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Activate computes sigmoid(x)
func (s Sigmoid) Activate(x float64) float64 {
	return sigmoid(x)
}

// Derivative computes sigmoid(x) * (1 - sigmoid(x))
func (s Sigmoid) Derivative(x float64) float64 {
	sigma := sigmoid(x)
	return sigma * (1 - sigma)
}

// Tanh activation function.
type Tanh struct{}

// Activate computes tanh(x)
func (t Tanh) Activate(x float64) float64 {
	return math.Tanh(x)
}

// Derivative computes 1 - tanh(x)^2
func (t Tanh) Derivative(x float64) float64 {
	tanhX := math.Tanh(x)
	return 1 - tanhX*tanhX
}

// Linear is the identity activation.
type Linear struct{}

// Activate returns x unchanged.
func (l Linear) Activate(x float64) float64 {
	return x
}

// Derivative is always 1.
func (l Linear) Derivative(x float64) float64 {
	return 1
}

// Apply writes act(x[i]) into dst and returns it. dst must have len(x).
func Apply(act Activation, dst, x []float64) []float64 {
	for i, v := range x {
		dst[i] = act.Activate(v)
	}
	return dst
}

// Backprop writes grad[i] * act'(pre[i]) into dst and returns it.
func Backprop(act Activation, dst, pre, grad []float64) []float64 {
	for i, v := range pre {
		dst[i] = grad[i] * act.Derivative(v)
	}
	return dst
}

// HasNonFinite reports whether any value is NaN or infinite.
func HasNonFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
