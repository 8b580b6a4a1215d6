// Package quantum provides a state-vector simulator, named wire sets,
// execution devices and the variational gate circuits used by the QLSTM cell.
package quantum

import "math"

// stateVector holds the 2^n amplitudes of an n-qubit register. Wire 0 is the
// most significant bit of the basis index.
type stateVector struct {
	n    int
	amps []complex128
}

// newStateVector returns |0...0> on n qubits.
func newStateVector(n int) *stateVector {
	amps := make([]complex128, 1<<n)
	amps[0] = 1
	return &stateVector{n: n, amps: amps}
}

func (s *stateVector) mask(wire int) int {
	return 1 << (s.n - 1 - wire)
}

// apply1 applies the 2x2 matrix [[m00, m01], [m10, m11]] to one wire.
func (s *stateVector) apply1(wire int, m00, m01, m10, m11 complex128) {
	b := s.mask(wire)
	for i := range s.amps {
		if i&b != 0 {
			continue
		}
		a0, a1 := s.amps[i], s.amps[i|b]
		s.amps[i] = m00*a0 + m01*a1
		s.amps[i|b] = m10*a0 + m11*a1
	}
}

func (s *stateVector) rx(wire int, theta float64) {
	c := complex(math.Cos(theta/2), 0)
	ms := complex(0, -math.Sin(theta/2))
	s.apply1(wire, c, ms, ms, c)
}

func (s *stateVector) ry(wire int, theta float64) {
	c := complex(math.Cos(theta/2), 0)
	sn := complex(math.Sin(theta/2), 0)
	s.apply1(wire, c, -sn, sn, c)
}

func (s *stateVector) rz(wire int, theta float64) {
	s.apply1(wire,
		complex(math.Cos(theta/2), -math.Sin(theta/2)), 0,
		0, complex(math.Cos(theta/2), math.Sin(theta/2)))
}

// cnot flips the target wire on every basis state whose control bit is set.
func (s *stateVector) cnot(control, target int) {
	bc, bt := s.mask(control), s.mask(target)
	for i := range s.amps {
		if i&bc != 0 && i&bt == 0 {
			s.amps[i], s.amps[i|bt] = s.amps[i|bt], s.amps[i]
		}
	}
}

// expvalZ returns <Z> on one wire.
func (s *stateVector) expvalZ(wire int) float64 {
	b := s.mask(wire)
	var e float64
	for i, a := range s.amps {
		p := real(a)*real(a) + imag(a)*imag(a)
		if i&b == 0 {
			e += p
		} else {
			e -= p
		}
	}
	return e
}

// norm returns the squared L2 norm of the amplitudes.
func (s *stateVector) norm() float64 {
	var n float64
	for _, a := range s.amps {
		n += real(a)*real(a) + imag(a)*imag(a)
	}
	return n
}
