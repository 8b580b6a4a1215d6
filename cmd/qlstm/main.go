package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/FlavioCFOliveira/QNeuron/internal/config"
	"github.com/FlavioCFOliveira/QNeuron/internal/layer"
	"github.com/FlavioCFOliveira/QNeuron/internal/logger"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// Runs a QLSTM cell over a deterministic sine sequence and prints the
// (hidden, cell) state after every step.
func main() {
	steps := flag.Int("steps", 8, "number of time steps")
	parallel := flag.Bool("parallel", false, "evaluate the gate circuits concurrently")
	grads := flag.Bool("grads", false, "back-propagate sum(h_T) through time and print gradient norms")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	if err := run(cfg, log, *steps, *parallel, *grads); err != nil {
		log.Fatal().Err(err).Msg("qlstm failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger, steps int, parallel, grads bool) error {
	cellCfg, err := cfg.QLSTM()
	if err != nil {
		return err
	}
	cellCfg.ParallelGates = parallel

	cell, err := layer.NewQLSTM(cellCfg, layer.WithLogger(log))
	if err != nil {
		return err
	}
	log.Info().
		Int("input_size", cellCfg.InputSize).
		Int("hidden_size", cellCfg.HiddenSize).
		Int("n_qubits", cellCfg.NQubits).
		Int("params", cell.NumParams()).
		Str("backend", cellCfg.Backend).
		Str("routing", cellCfg.Routing.String()).
		Msg("cell ready")

	xs := sineSequence(steps, cellCfg.InputSize)
	u := layer.NewSequenceUnroller(cell)
	states, err := u.Forward(xs, cell.ZeroState())
	if err != nil {
		return err
	}

	fmt.Println("=== QLSTM states ===")
	for t, s := range states {
		fmt.Printf("  t=%d h=%s c=%s\n", t, format(s.Hidden), format(s.Cell))
		log.Debug().Int("step", t).Floats64("hidden", s.Hidden).Floats64("cell", s.Cell).Msg("step")
	}

	if !grads || steps == 0 {
		return nil
	}

	dStates := make([]layer.State, steps)
	last := make([]float64, cellCfg.HiddenSize)
	for i := range last {
		last[i] = 1
	}
	dStates[steps-1].Hidden = last

	g, err := u.Backward(xs, cell.ZeroState(), dStates)
	if err != nil {
		return err
	}

	fmt.Println("=== Gradient norms of sum(h_T) ===")
	fmt.Printf("  %-11s %.6f\n", "fusion", floats.Norm(g.Params.Fusion, 2))
	for gate := layer.GateForget; gate <= layer.GateOutput; gate++ {
		fmt.Printf("  %-11s %.6f\n", "vqc."+gate.String(), floats.Norm(g.Params.Circuits[gate], 2))
	}
	fmt.Printf("  %-11s %.6f\n", "projection", floats.Norm(g.Params.Projection, 2))
	fmt.Printf("  %-11s %.6f\n", "x_0", floats.Norm(g.Inputs[0], 2))
	return nil
}

// sineSequence returns steps inputs with x[t][i] = 0.5 sin(0.4 t + i).
func sineSequence(steps, size int) [][]float64 {
	xs := make([][]float64, steps)
	for t := range xs {
		xs[t] = make([]float64, size)
		for i := range xs[t] {
			xs[t][i] = 0.5 * math.Sin(0.4*float64(t)+float64(i))
		}
	}
	return xs
}

func format(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%+.4f", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
