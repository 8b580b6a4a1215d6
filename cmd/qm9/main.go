package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/FlavioCFOliveira/QNeuron/internal/config"
	"github.com/FlavioCFOliveira/QNeuron/internal/dataset"
	"github.com/FlavioCFOliveira/QNeuron/internal/logger"
)

// Downloads (or reuses the cached) QM9 CSV and prints the SMILES string and
// heavy-atom count of the requested molecules.
func main() {
	index := flag.Int("index", 0, "first molecule index")
	count := flag.Int("count", 1, "number of molecules to print")
	source := flag.String("source", "", "override QM9_SOURCE")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	if *source != "" {
		cfg.QM9Source = *source
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	f := dataset.NewFetcher(cfg.QM9CacheDir, cfg.QM9Timeout, cfg.AWSRegion, log)
	d, err := dataset.Load(ctx, f, cfg.QM9Source, dataset.WithLogger(log))
	if err != nil {
		log.Fatal().Err(err).Str("source", cfg.QM9Source).Msg("failed to load dataset")
	}
	log.Info().Int("molecules", d.Len()).Msg("dataset loaded")

	for i := *index; i < *index+*count; i++ {
		mol, err := d.Get(i)
		if err != nil {
			log.Fatal().Err(err).Int("index", i).Msg("failed to read molecule")
		}
		fmt.Printf("SMILES: %s\n", mol.SMILES)
		fmt.Printf("Number of Heavy Atoms: %d\n", mol.NumHeavyAtoms())
		fmt.Printf("Formula: %s\n", mol.Formula())
	}
}
