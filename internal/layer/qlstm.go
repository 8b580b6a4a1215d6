package layer

import (
	"context"
	"fmt"
	"strings"

	"github.com/FlavioCFOliveira/QNeuron/internal/activations"
	"github.com/FlavioCFOliveira/QNeuron/internal/errs"
	"github.com/FlavioCFOliveira/QNeuron/internal/quantum"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// GateKind names one of the four variational circuits of the cell.
type GateKind int

const (
	GateForget GateKind = iota
	GateInput
	GateUpdate
	GateOutput

	numGates = 4
)

// String returns the name used in the gate's wire labels.
func (g GateKind) String() string {
	switch g {
	case GateForget:
		return "forget"
	case GateInput:
		return "inputs"
	case GateUpdate:
		return "update"
	case GateOutput:
		return "output"
	}
	return fmt.Sprintf("GateKind(%d)", int(g))
}

// rotation is the entangling-layer axis of each gate's circuit. The input
// gate rotates around Y, the others around X.
func (g GateKind) rotation() quantum.Gate {
	if g == GateInput {
		return quantum.GateRY
	}
	return quantum.GateRX
}

// Routing selects which circuit feeds each LSTM gate.
type Routing int

const (
	// RoutingReference feeds ingate and outgate from the forget circuit and
	// forgetgate from the input circuit. The output circuit is built but
	// never evaluated.
	RoutingReference Routing = iota
	// RoutingDedicated feeds every gate from its own circuit.
	RoutingDedicated
)

func (r Routing) String() string {
	if r == RoutingDedicated {
		return "dedicated"
	}
	return "reference"
}

// ParseRouting parses "reference" or "dedicated".
func ParseRouting(s string) (Routing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reference":
		return RoutingReference, nil
	case "dedicated":
		return RoutingDedicated, nil
	}
	return 0, fmt.Errorf("unknown gate routing %q", s)
}

// Embedding selects how the fused gate vector is fitted to the circuit width.
type Embedding int

const (
	// EmbedTruncate feeds the first nQubits fused components to the circuits
	// and zero-pads when the fused vector is narrower.
	EmbedTruncate Embedding = iota
	// EmbedStrict requires inputSize + hiddenSize == nQubits.
	EmbedStrict
)

func (e Embedding) String() string {
	if e == EmbedStrict {
		return "strict"
	}
	return "truncate"
}

// ParseEmbedding parses "truncate" or "strict".
func ParseEmbedding(s string) (Embedding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "truncate":
		return EmbedTruncate, nil
	case "strict":
		return EmbedStrict, nil
	}
	return 0, fmt.Errorf("unknown embedding policy %q", s)
}

// QLSTMConfig describes a QLSTM cell.
type QLSTMConfig struct {
	InputSize  int
	HiddenSize int
	NQubits    int
	NLayers    int    // entangling layers per circuit, 0 means 1
	Backend    string // quantum backend name, empty means quantum.DefaultBackend
	Seed       uint64 // seeds every parameter initializer

	Routing   Routing
	Embedding Embedding

	// ParallelGates evaluates the circuits of one step concurrently.
	ParallelGates bool
	// StrictNumerics turns NaN/Inf gate activations into errors instead of
	// warnings.
	StrictNumerics bool
}

// State is the (hidden, cell) pair carried across recurrence steps.
type State struct {
	Hidden []float64
	Cell   []float64
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	return State{
		Hidden: append([]float64(nil), s.Hidden...),
		Cell:   append([]float64(nil), s.Cell...),
	}
}

// gatePath is one LSTM gate: a circuit followed by the shared projection and
// an activation.
type gatePath struct {
	name    string
	circuit GateKind
	act     activations.Activation
}

// Path order used throughout the cell.
const (
	pathIn = iota
	pathForget
	pathCell
	pathOut
)

func routes(r Routing) [numGates]gatePath {
	if r == RoutingDedicated {
		return [numGates]gatePath{
			{"ingate", GateInput, activations.Sigmoid{}},
			{"forgetgate", GateForget, activations.Sigmoid{}},
			{"cellgate", GateUpdate, activations.Tanh{}},
			{"outgate", GateOutput, activations.Sigmoid{}},
		}
	}
	return [numGates]gatePath{
		{"ingate", GateForget, activations.Sigmoid{}},
		{"forgetgate", GateInput, activations.Sigmoid{}},
		{"cellgate", GateUpdate, activations.Tanh{}},
		{"outgate", GateForget, activations.Sigmoid{}},
	}
}

// Option configures a QLSTM at construction.
type Option func(*QLSTM)

// WithLogger sets the logger used for numeric-instability warnings.
func WithLogger(log zerolog.Logger) Option {
	return func(q *QLSTM) {
		q.log = log.With().Str("component", "qlstm").Logger()
	}
}

// QLSTM is a quantum LSTM cell. It keeps no recurrent state: Forward maps
// (x, previous state) to a fresh state.
type QLSTM struct {
	cfg        QLSTMConfig
	fusion     *Linear
	projection *Linear
	vqc        [numGates]*QuantumLayer
	paths      [numGates]gatePath
	used       []GateKind
	log        zerolog.Logger
}

// NewQLSTM builds the cell and its four circuit devices. Parameters are
// drawn from one generator seeded with cfg.Seed in this order: fusion,
// forget, inputs, update and output circuits, projection.
func NewQLSTM(cfg QLSTMConfig, opts ...Option) (*QLSTM, error) {
	if cfg.NLayers == 0 {
		cfg.NLayers = 1
	}
	if cfg.Backend == "" {
		cfg.Backend = quantum.DefaultBackend
	}
	if cfg.InputSize <= 0 || cfg.HiddenSize <= 0 || cfg.NQubits <= 0 || cfg.NLayers < 0 {
		return nil, fmt.Errorf("qlstm: sizes must be positive, got input=%d hidden=%d qubits=%d layers=%d",
			cfg.InputSize, cfg.HiddenSize, cfg.NQubits, cfg.NLayers)
	}
	fusedSize := cfg.InputSize + cfg.HiddenSize
	if cfg.Embedding == EmbedStrict && fusedSize != cfg.NQubits {
		return nil, fmt.Errorf("qlstm: strict embedding: %w", errs.Dim("fused width", fusedSize, cfg.NQubits))
	}

	q := &QLSTM{
		cfg:   cfg,
		paths: routes(cfg.Routing),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}

	rng := NewRNG(cfg.Seed)

	var err error
	if q.fusion, err = NewLinear(fusedSize, fusedSize, true, rng); err != nil {
		return nil, fmt.Errorf("qlstm: fusion: %w", err)
	}

	for g := GateKind(0); g < numGates; g++ {
		wires := quantum.NewWires("wire_"+g.String(), cfg.NQubits)
		dev, err := quantum.NewDevice(cfg.Backend, wires)
		if err != nil {
			return nil, fmt.Errorf("qlstm: %s circuit: %w", g, err)
		}
		c, err := quantum.NewCircuit(dev, cfg.NLayers, g.rotation())
		if err != nil {
			return nil, fmt.Errorf("qlstm: %s circuit: %w", g, err)
		}
		q.vqc[g] = NewQuantumLayer(c, rng)
	}

	if q.projection, err = NewLinear(cfg.NQubits, cfg.HiddenSize, false, rng); err != nil {
		return nil, fmt.Errorf("qlstm: projection: %w", err)
	}

	seen := make(map[GateKind]bool, numGates)
	for _, p := range q.paths {
		if !seen[p.circuit] {
			seen[p.circuit] = true
			q.used = append(q.used, p.circuit)
		}
	}

	q.log.Debug().
		Int("input_size", cfg.InputSize).
		Int("hidden_size", cfg.HiddenSize).
		Int("n_qubits", cfg.NQubits).
		Int("n_layers", cfg.NLayers).
		Str("backend", cfg.Backend).
		Str("routing", cfg.Routing.String()).
		Str("embedding", cfg.Embedding.String()).
		Msg("QLSTM cell constructed")

	return q, nil
}

// stepTrace holds the intermediates of one forward step.
type stepTrace struct {
	fused  []float64 // concat(x, h)
	gates  []float64 // fusion output
	embed  []float64 // circuit input, nQubits wide
	q      [numGates][]float64
	pre    [numGates][]float64
	act    [numGates][]float64
	cell   []float64
	hidden []float64
}

func (q *QLSTM) checkStep(x []float64, s State) error {
	if len(x) != q.cfg.InputSize {
		return errs.Dim("qlstm input", len(x), q.cfg.InputSize)
	}
	if len(s.Hidden) != q.cfg.HiddenSize {
		return errs.Dim("qlstm hidden state", len(s.Hidden), q.cfg.HiddenSize)
	}
	if len(s.Cell) != q.cfg.HiddenSize {
		return errs.Dim("qlstm cell state", len(s.Cell), q.cfg.HiddenSize)
	}
	return nil
}

// embedWidth fits the fused gate vector to the circuit width.
func (q *QLSTM) embedWidth(gates []float64) []float64 {
	e := make([]float64, q.cfg.NQubits)
	copy(e, gates)
	return e
}

func (q *QLSTM) step(x []float64, s State) (*stepTrace, error) {
	if err := q.checkStep(x, s); err != nil {
		return nil, err
	}
	tr := &stepTrace{fused: make([]float64, 0, q.fusion.InSize())}
	tr.fused = append(tr.fused, x...)
	tr.fused = append(tr.fused, s.Hidden...)

	var err error
	if tr.gates, err = q.fusion.Forward(tr.fused); err != nil {
		return nil, fmt.Errorf("qlstm fusion: %w", err)
	}
	tr.embed = q.embedWidth(tr.gates)

	// Repeating the gate evaluation n_layers times sees the same gates
	// vector each time and keeps only the last pass, so one pass suffices.
	if err := q.evalCircuits(tr); err != nil {
		return nil, err
	}

	for i, p := range q.paths {
		pre, err := q.projection.Forward(tr.q[p.circuit])
		if err != nil {
			return nil, fmt.Errorf("qlstm %s projection: %w", p.name, err)
		}
		tr.pre[i] = pre
		tr.act[i] = activations.Apply(p.act, make([]float64, len(pre)), pre)
	}

	h := q.cfg.HiddenSize
	tr.cell = floats.MulTo(make([]float64, h), s.Cell, tr.act[pathForget])
	floats.Add(tr.cell, floats.MulTo(make([]float64, h), tr.act[pathIn], tr.act[pathCell]))

	tanhC := activations.Apply(activations.Tanh{}, make([]float64, h), tr.cell)
	tr.hidden = floats.MulTo(make([]float64, h), tr.act[pathOut], tanhC)

	return tr, nil
}

// evalCircuits runs every circuit referenced by the routing on tr.embed.
func (q *QLSTM) evalCircuits(tr *stepTrace) error {
	run := func(g GateKind) error {
		out, err := q.vqc[g].Forward(tr.embed)
		if err != nil {
			return fmt.Errorf("qlstm %s circuit: %w", g, err)
		}
		tr.q[g] = out
		return nil
	}

	if !q.cfg.ParallelGates {
		for _, g := range q.used {
			if err := run(g); err != nil {
				return err
			}
		}
		return nil
	}

	var eg errgroup.Group
	for _, g := range q.used {
		eg.Go(func() error { return run(g) })
	}
	return eg.Wait()
}

func (q *QLSTM) checkNumerics(tr *stepTrace) error {
	bad := activations.HasNonFinite(tr.cell) || activations.HasNonFinite(tr.hidden)
	for _, a := range tr.act {
		bad = bad || activations.HasNonFinite(a)
	}
	if !bad {
		return nil
	}
	if q.cfg.StrictNumerics {
		return fmt.Errorf("qlstm forward: %w", errs.ErrNumericInstability)
	}
	q.log.Warn().Err(errs.ErrNumericInstability).Msg("non-finite values in gate activations")
	return nil
}

// Forward runs one recurrence step and returns the new (hidden, cell) pair.
// x must have InputSize values and both state vectors HiddenSize values.
func (q *QLSTM) Forward(x []float64, s State) (State, error) {
	tr, err := q.step(x, s)
	if err != nil {
		return State{}, err
	}
	if err := q.checkNumerics(tr); err != nil {
		return State{}, err
	}
	return State{Hidden: tr.hidden, Cell: tr.cell}, nil
}

// ForwardBatch runs one step for every (xs[i], states[i]) pair concurrently.
func (q *QLSTM) ForwardBatch(ctx context.Context, xs [][]float64, states []State) ([]State, error) {
	if len(xs) != len(states) {
		return nil, errs.Dim("qlstm batch states", len(states), len(xs))
	}
	out := make([]State, len(xs))
	g, ctx := errgroup.WithContext(ctx)
	for i := range xs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			next, err := q.Forward(xs[i], states[i])
			if err != nil {
				return fmt.Errorf("batch row %d: %w", i, err)
			}
			out[i] = next
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ZeroState returns zero hidden and cell vectors.
func (q *QLSTM) ZeroState() State {
	return State{
		Hidden: make([]float64, q.cfg.HiddenSize),
		Cell:   make([]float64, q.cfg.HiddenSize),
	}
}

// Config returns the effective configuration.
func (q *QLSTM) Config() QLSTMConfig { return q.cfg }

// Fusion returns the input fusion layer.
func (q *QLSTM) Fusion() *Linear { return q.fusion }

// Projection returns the gate projection shared by all gate paths.
func (q *QLSTM) Projection() *Linear { return q.projection }

// Circuit returns the quantum layer of one gate.
func (q *QLSTM) Circuit(g GateKind) *QuantumLayer { return q.vqc[g] }

// InSize returns the input size of the cell.
func (q *QLSTM) InSize() int { return q.cfg.InputSize }

// OutSize returns the hidden size of the cell.
func (q *QLSTM) OutSize() int { return q.cfg.HiddenSize }
