// Package dataset loads the QM9 molecule list and parses its SMILES strings.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/FlavioCFOliveira/QNeuron/internal/errs"
	"github.com/rs/zerolog"
)

// smilesColumn is the CSV column holding the SMILES string.
const smilesColumn = 1

// Dataset is an indexed list of SMILES strings. Molecules are parsed on
// access.
type Dataset struct {
	smiles []string
	log    zerolog.Logger
}

// Option configures a Dataset.
type Option func(*Dataset)

// WithLogger sets the logger used by Get.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Dataset) {
		d.log = log.With().Str("component", "dataset").Logger()
	}
}

// New wraps an in-memory SMILES list.
func New(smiles []string, opts ...Option) *Dataset {
	d := &Dataset{smiles: smiles, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Parse reads a CSV with a header row and the SMILES string in its second
// column.
func Parse(r io.Reader, opts ...Option) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("dataset: missing header row")
		}
		return nil, fmt.Errorf("dataset: reading header: %w", err)
	}

	var smiles []string
	for row := 1; ; row++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: row %d: %w", row, err)
		}
		if len(record) <= smilesColumn {
			return nil, fmt.Errorf("dataset: row %d: expected at least %d columns, got %d", row, smilesColumn+1, len(record))
		}
		smiles = append(smiles, strings.TrimSpace(record[smilesColumn]))
	}
	return New(smiles, opts...), nil
}

// Load fetches source through f and parses it.
func Load(ctx context.Context, f *Fetcher, source string, opts ...Option) (*Dataset, error) {
	rc, err := f.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Parse(rc, opts...)
}

// Len returns the number of molecules.
func (d *Dataset) Len() int { return len(d.smiles) }

// SMILES returns the raw SMILES string at idx.
func (d *Dataset) SMILES(idx int) (string, error) {
	if idx < 0 || idx >= len(d.smiles) {
		return "", fmt.Errorf("dataset: index %d of %d: %w", idx, len(d.smiles), errs.ErrIndexOutOfRange)
	}
	return d.smiles[idx], nil
}

// Get parses the molecule at idx.
func (d *Dataset) Get(idx int) (*Molecule, error) {
	s, err := d.SMILES(idx)
	if err != nil {
		return nil, err
	}
	d.log.Debug().Int("index", idx).Str("smiles", s).Msg("SMILES")

	mol, err := ParseSMILES(s)
	if err != nil {
		return nil, fmt.Errorf("dataset: index %d: %w", idx, err)
	}
	d.log.Debug().Int("index", idx).Int("heavy_atoms", mol.NumHeavyAtoms()).Msg("number of heavy atoms")
	return mol, nil
}
