package quantum

import (
	"fmt"
	"math"

	"github.com/FlavioCFOliveira/QNeuron/internal/errs"
)

// shift is the parameter-shift offset for rotations generated by Pauli/2.
const shift = math.Pi / 2

// Circuit is a variational gate circuit: angle embedding with RX on every
// wire, nLayers entangling layers (per-wire rotation followed by a CNOT
// ring), and a Pauli-Z readout on every wire in order.
type Circuit struct {
	dev      Device
	wires    Wires
	nLayers  int
	rotation Gate
}

// NewCircuit binds a circuit to a device. The circuit uses all of the
// device's wires; rotation selects the axis of the entangling-layer
// rotations and must be GateRX, GateRY or GateRZ.
func NewCircuit(dev Device, nLayers int, rotation Gate) (*Circuit, error) {
	if nLayers < 1 {
		return nil, fmt.Errorf("circuit: n_layers must be positive, got %d", nLayers)
	}
	if rotation.arity() != 1 {
		return nil, fmt.Errorf("circuit: %s is not a single-qubit rotation", rotation)
	}
	return &Circuit{
		dev:      dev,
		wires:    dev.Wires(),
		nLayers:  nLayers,
		rotation: rotation,
	}, nil
}

// NQubits returns the width of the circuit.
func (c *Circuit) NQubits() int { return c.wires.Len() }

// NLayers returns the number of entangling layers.
func (c *Circuit) NLayers() int { return c.nLayers }

// Rotation returns the entangling-layer rotation gate.
func (c *Circuit) Rotation() Gate { return c.rotation }

// Device returns the device the circuit executes on.
func (c *Circuit) Device() Device { return c.dev }

func (c *Circuit) check(inputs []float64, params [][]float64) error {
	n := c.wires.Len()
	if len(inputs) != n {
		return errs.Dim("circuit inputs", len(inputs), n)
	}
	if len(params) != c.nLayers {
		cols := n
		if len(params) > 0 {
			cols = len(params[0])
		}
		return errs.Shape("circuit params", len(params), cols, c.nLayers, n)
	}
	for _, row := range params {
		if len(row) != n {
			return errs.Shape("circuit params", len(params), len(row), c.nLayers, n)
		}
	}
	return nil
}

// Tape records the circuit for the given inputs and parameters.
func (c *Circuit) Tape(inputs []float64, params [][]float64) (*Tape, error) {
	if err := c.check(inputs, params); err != nil {
		return nil, err
	}
	n := c.wires.Len()
	ops := make([]Operation, 0, n+c.nLayers*2*n)

	for i, x := range inputs {
		ops = append(ops, Operation{Gate: GateRX, Wires: []string{c.wires.At(i)}, Param: x})
	}

	for _, row := range params {
		for i, theta := range row {
			ops = append(ops, Operation{Gate: c.rotation, Wires: []string{c.wires.At(i)}, Param: theta})
		}
		ops = append(ops, c.ring()...)
	}

	return &Tape{Ops: ops, Observables: c.wires.Names()}, nil
}

// ring couples adjacent wires cyclically. Two wires get a single CNOT, one
// wire gets none.
func (c *Circuit) ring() []Operation {
	n := c.wires.Len()
	switch {
	case n < 2:
		return nil
	case n == 2:
		return []Operation{{Gate: GateCNOT, Wires: []string{c.wires.At(0), c.wires.At(1)}}}
	}
	ops := make([]Operation, n)
	for i := 0; i < n; i++ {
		ops[i] = Operation{Gate: GateCNOT, Wires: []string{c.wires.At(i), c.wires.At((i + 1) % n)}}
	}
	return ops
}

// Forward returns the Pauli-Z expectation value of every wire.
func (c *Circuit) Forward(inputs []float64, params [][]float64) ([]float64, error) {
	tape, err := c.Tape(inputs, params)
	if err != nil {
		return nil, err
	}
	return c.dev.Execute(tape)
}

// VJP returns grad·J with respect to the inputs and the parameters, where J
// is the Jacobian of Forward. Derivatives use the parameter-shift rule, which
// is exact for the rotation gates used here.
func (c *Circuit) VJP(inputs []float64, params [][]float64, grad []float64) ([]float64, [][]float64, error) {
	if err := c.check(inputs, params); err != nil {
		return nil, nil, err
	}
	n := c.wires.Len()
	if len(grad) != n {
		return nil, nil, errs.Dim("circuit output grad", len(grad), n)
	}

	x := append([]float64(nil), inputs...)
	p := make([][]float64, len(params))
	for l := range params {
		p[l] = append([]float64(nil), params[l]...)
	}

	// derivative evaluates grad·(f(v+s) - f(v-s))/2 for one shifted slot.
	derivative := func(v *float64) (float64, error) {
		orig := *v
		*v = orig + shift
		plus, err := c.Forward(x, p)
		if err != nil {
			*v = orig
			return 0, err
		}
		*v = orig - shift
		minus, err := c.Forward(x, p)
		*v = orig
		if err != nil {
			return 0, err
		}
		var d float64
		for k := range grad {
			d += grad[k] * (plus[k] - minus[k]) / 2
		}
		return d, nil
	}

	gradIn := make([]float64, n)
	for i := range x {
		d, err := derivative(&x[i])
		if err != nil {
			return nil, nil, err
		}
		gradIn[i] = d
	}

	gradParams := make([][]float64, len(p))
	for l := range p {
		gradParams[l] = make([]float64, n)
		for i := range p[l] {
			d, err := derivative(&p[l][i])
			if err != nil {
				return nil, nil, err
			}
			gradParams[l][i] = d
		}
	}
	return gradIn, gradParams, nil
}
