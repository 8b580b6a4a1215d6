// Package qneuron exposes the quantum LSTM cell, its building blocks and the
// QM9 dataset helper.
package qneuron

import (
	"time"

	"github.com/FlavioCFOliveira/QNeuron/internal/activations"
	"github.com/FlavioCFOliveira/QNeuron/internal/dataset"
	"github.com/FlavioCFOliveira/QNeuron/internal/errs"
	"github.com/FlavioCFOliveira/QNeuron/internal/layer"
	"github.com/FlavioCFOliveira/QNeuron/internal/quantum"
	"github.com/rs/zerolog"
)

// Re-export common types and functions for easier access
type (
	Layer             = layer.Layer
	Linear            = layer.Linear
	QuantumLayer      = layer.QuantumLayer
	QLSTM             = layer.QLSTM
	QLSTMConfig       = layer.QLSTMConfig
	State             = layer.State
	Gradients         = layer.Gradients
	NamedParam        = layer.NamedParam
	GateKind          = layer.GateKind
	Routing           = layer.Routing
	Embedding         = layer.Embedding
	SequenceUnroller  = layer.SequenceUnroller
	SequenceGradients = layer.SequenceGradients

	Device  = quantum.Device
	Backend = quantum.Backend
	Wires   = quantum.Wires
	Circuit = quantum.Circuit

	Dataset  = dataset.Dataset
	Molecule = dataset.Molecule
	Atom     = dataset.Atom
	Bond     = dataset.Bond
	Fetcher  = dataset.Fetcher
)

// Gates
const (
	GateForget = layer.GateForget
	GateInput  = layer.GateInput
	GateUpdate = layer.GateUpdate
	GateOutput = layer.GateOutput
)

// Routing and embedding policies
const (
	RoutingReference = layer.RoutingReference
	RoutingDedicated = layer.RoutingDedicated
	EmbedTruncate    = layer.EmbedTruncate
	EmbedStrict      = layer.EmbedStrict
)

// Backends
const (
	DefaultBackend   = quantum.DefaultBackend
	LightningBackend = "lightning.qubit"
)

// Errors
var (
	ErrDimensionMismatch  = errs.ErrDimensionMismatch
	ErrBackendUnavailable = errs.ErrBackendUnavailable
	ErrNumericInstability = errs.ErrNumericInstability
	ErrIndexOutOfRange    = errs.ErrIndexOutOfRange
	ErrInvalidSMILES      = errs.ErrInvalidSMILES
	ErrUnknownWire        = quantum.ErrUnknownWire
	ErrUnsupportedSource  = dataset.ErrUnsupportedSource
)

// Activations
var (
	Sigmoid = activations.Sigmoid{}
	Tanh    = activations.Tanh{}
)

// NewQLSTM builds a quantum LSTM cell.
func NewQLSTM(cfg QLSTMConfig, opts ...layer.Option) (*QLSTM, error) {
	return layer.NewQLSTM(cfg, opts...)
}

// WithLogger sets the logger a cell reports numeric instability to.
func WithLogger(log zerolog.Logger) layer.Option {
	return layer.WithLogger(log)
}

func NewSequenceUnroller(cell *QLSTM) *SequenceUnroller {
	return layer.NewSequenceUnroller(cell)
}

func NewLinear(in, out int, bias bool, seed uint64) (*Linear, error) {
	return layer.NewLinear(in, out, bias, layer.NewRNG(seed))
}

// NewDevice creates a device for the named backend over wires.
func NewDevice(backend string, wires Wires) (Device, error) {
	return quantum.NewDevice(backend, wires)
}

func NewWires(prefix string, n int) Wires {
	return quantum.NewWires(prefix, n)
}

func RegisterBackend(name string, b Backend) {
	quantum.RegisterBackend(name, b)
}

func Backends() []string {
	return quantum.Backends()
}

func ParseRouting(s string) (Routing, error) {
	return layer.ParseRouting(s)
}

func ParseEmbedding(s string) (Embedding, error) {
	return layer.ParseEmbedding(s)
}

// Dataset helpers
func ParseSMILES(smiles string) (*Molecule, error) {
	return dataset.ParseSMILES(smiles)
}

func NewFetcher(cacheDir string, timeout time.Duration, region string, log zerolog.Logger) *Fetcher {
	return dataset.NewFetcher(cacheDir, timeout, region, log)
}
