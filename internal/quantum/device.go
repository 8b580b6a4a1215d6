package quantum

import (
	"fmt"
	"sort"
	"sync"

	"github.com/FlavioCFOliveira/QNeuron/internal/errs"
)

// DefaultBackend is the local ideal state-vector simulator.
const DefaultBackend = "default.qubit"

// Gate identifies a primitive quantum operation.
type Gate int

const (
	GateRX Gate = iota
	GateRY
	GateRZ
	GateCNOT
)

func (g Gate) String() string {
	switch g {
	case GateRX:
		return "RX"
	case GateRY:
		return "RY"
	case GateRZ:
		return "RZ"
	case GateCNOT:
		return "CNOT"
	}
	return fmt.Sprintf("Gate(%d)", int(g))
}

func (g Gate) arity() int {
	if g == GateCNOT {
		return 2
	}
	return 1
}

// Operation is one gate application on named wires.
type Operation struct {
	Gate  Gate
	Wires []string
	Param float64
}

// Tape is a recorded circuit: operations in order, then a Pauli-Z
// measurement on each observable wire.
type Tape struct {
	Ops         []Operation
	Observables []string
}

// Device executes tapes on its own wire set.
type Device interface {
	Name() string
	Wires() Wires
	Execute(t *Tape) ([]float64, error)
}

// Backend instantiates a device for a wire set.
type Backend func(wires Wires) (Device, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]Backend{
		DefaultBackend:    simulatorBackend(DefaultBackend, 20),
		"lightning.qubit": simulatorBackend("lightning.qubit", 26),
	}
)

// RegisterBackend makes a backend available under name, replacing any
// previous registration.
func RegisterBackend(name string, b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = b
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDevice instantiates the named backend on wires.
func NewDevice(backend string, wires Wires) (Device, error) {
	if backend == "" {
		backend = DefaultBackend
	}
	backendsMu.RLock()
	b, ok := backends[backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no backend named %q", errs.ErrBackendUnavailable, backend)
	}
	dev, err := b(wires)
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", backend, err)
	}
	return dev, nil
}

// Simulator is an ideal state-vector device.
type Simulator struct {
	name  string
	wires Wires
}

func simulatorBackend(name string, maxWires int) Backend {
	return func(wires Wires) (Device, error) {
		if wires.Len() == 0 || wires.Len() > maxWires {
			return nil, fmt.Errorf("%w: %s supports 1 to %d wires, requested %d",
				errs.ErrBackendUnavailable, name, maxWires, wires.Len())
		}
		return &Simulator{name: name, wires: wires}, nil
	}
}

func (s *Simulator) Name() string { return s.name }
func (s *Simulator) Wires() Wires { return s.wires }

// Execute runs the tape from |0...0> and returns <Z> for each observable.
// Every wire named by the tape must belong to the device.
func (s *Simulator) Execute(t *Tape) ([]float64, error) {
	state := newStateVector(s.wires.Len())
	for _, op := range t.Ops {
		if len(op.Wires) != op.Gate.arity() {
			return nil, fmt.Errorf("%s: %w", op.Gate, errs.Dim("gate wires", len(op.Wires), op.Gate.arity()))
		}
		w0, err := s.wires.Index(op.Wires[0])
		if err != nil {
			return nil, fmt.Errorf("%s on %s: %w", op.Gate, s.name, err)
		}
		switch op.Gate {
		case GateRX:
			state.rx(w0, op.Param)
		case GateRY:
			state.ry(w0, op.Param)
		case GateRZ:
			state.rz(w0, op.Param)
		case GateCNOT:
			w1, err := s.wires.Index(op.Wires[1])
			if err != nil {
				return nil, fmt.Errorf("%s on %s: %w", op.Gate, s.name, err)
			}
			if w0 == w1 {
				return nil, fmt.Errorf("CNOT on %s: control and target are both %q", s.name, op.Wires[0])
			}
			state.cnot(w0, w1)
		default:
			return nil, fmt.Errorf("unsupported gate %s", op.Gate)
		}
	}

	out := make([]float64, len(t.Observables))
	for i, name := range t.Observables {
		w, err := s.wires.Index(name)
		if err != nil {
			return nil, fmt.Errorf("measure on %s: %w", s.name, err)
		}
		out[i] = state.expvalZ(w)
	}
	return out, nil
}
