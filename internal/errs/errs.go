// Package errs defines the sentinel errors shared by the QNeuron packages.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch reports a vector or parameter shape that does not
	// match what a circuit, layer or cell was built for.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrBackendUnavailable reports a quantum backend that cannot be
	// instantiated for the requested wires.
	ErrBackendUnavailable = errors.New("quantum backend unavailable")

	// ErrNumericInstability reports NaN or Inf values in gate activations.
	ErrNumericInstability = errors.New("numeric instability")

	// ErrIndexOutOfRange reports a dataset index outside [0, Len()).
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrInvalidSMILES reports a SMILES string that cannot be parsed.
	ErrInvalidSMILES = errors.New("invalid SMILES")
)

// Dim returns an ErrDimensionMismatch annotated with the operation and sizes.
func Dim(op string, got, want int) error {
	return fmt.Errorf("%s: %w: got %d, want %d", op, ErrDimensionMismatch, got, want)
}

// Shape returns an ErrDimensionMismatch for two-dimensional shapes.
func Shape(op string, gotRows, gotCols, wantRows, wantCols int) error {
	return fmt.Errorf("%s: %w: got (%d, %d), want (%d, %d)",
		op, ErrDimensionMismatch, gotRows, gotCols, wantRows, wantCols)
}
