package quantum

import (
	"errors"
	"fmt"
)

// ErrUnknownWire is returned when an operation names a wire that does not
// belong to the device executing it.
var ErrUnknownWire = errors.New("unknown wire")

// Wires is an ordered set of named register lines.
type Wires struct {
	names []string
	index map[string]int
}

// NewWires returns n wires named "<prefix>_0" ... "<prefix>_<n-1>".
func NewWires(prefix string, n int) Wires {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s_%d", prefix, i)
	}
	w, _ := WiresOf(names...)
	return w
}

// WiresOf builds a wire set from explicit names. Names must be unique.
func WiresOf(names ...string) (Wires, error) {
	index := make(map[string]int, len(names))
	for i, name := range names {
		if _, dup := index[name]; dup {
			return Wires{}, fmt.Errorf("duplicate wire %q", name)
		}
		index[name] = i
	}
	return Wires{names: append([]string(nil), names...), index: index}, nil
}

// Len returns the number of wires.
func (w Wires) Len() int { return len(w.names) }

// At returns the name of the i-th wire.
func (w Wires) At(i int) string { return w.names[i] }

// Names returns a copy of the wire names in order.
func (w Wires) Names() []string { return append([]string(nil), w.names...) }

// Index resolves a wire name to its position.
func (w Wires) Index(name string) (int, error) {
	i, ok := w.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownWire, name)
	}
	return i, nil
}

// Disjoint reports whether w and other share no wire names.
func (w Wires) Disjoint(other Wires) bool {
	for _, name := range other.names {
		if _, ok := w.index[name]; ok {
			return false
		}
	}
	return true
}
