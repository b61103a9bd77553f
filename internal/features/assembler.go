// Package features selects the model input columns of a feature table and
// materializes the fixed-order feature vector for each row.
package features

import (
	"fmt"

	"pdm-trainer/internal/dataset"
)

// ColumnEncoder turns one cell of a feature column into its numeric vector
// entry. Continuous columns pass through; categorical columns map through
// indexing metadata fitted over the full dataset.
type ColumnEncoder func(col dataset.Column, row int) (float64, error)

// Assembler derives the ordered feature column set from a table schema.
// Columns named in the exclusion list (label, keys, raw identifiers) are
// dropped; when an explicit include list is given, exactly those columns are
// used and a missing column is a schema error. Order always follows the
// table schema so two tables with identical column sets yield identically
// ordered vectors regardless of row order.
type Assembler struct {
	include []string
	exclude map[string]struct{}
}

// NewAssembler builds an assembler. include may be nil, meaning all schema
// columns minus the exclusions.
func NewAssembler(include, exclude []string) *Assembler {
	ex := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		ex[name] = struct{}{}
	}
	return &Assembler{include: include, exclude: ex}
}

// Columns resolves the ordered feature column list for the table.
func (a *Assembler) Columns(t *dataset.Table) ([]string, error) {
	schema := t.ColumnNames()

	if len(a.include) > 0 {
		want := make(map[string]struct{}, len(a.include))
		for _, name := range a.include {
			if _, ok := t.Column(name); !ok {
				return nil, fmt.Errorf("feature column %q not in schema", name)
			}
			want[name] = struct{}{}
		}
		var cols []string
		for _, name := range schema {
			if _, ok := want[name]; ok {
				cols = append(cols, name)
			}
		}
		return cols, nil
	}

	var cols []string
	for _, name := range schema {
		if _, skip := a.exclude[name]; skip {
			continue
		}
		cols = append(cols, name)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("feature column list empty after exclusions")
	}
	return cols, nil
}

// Vectorize materializes one numeric vector per row from exactly the given
// columns, preserving column order. The original columns are untouched.
func (a *Assembler) Vectorize(t *dataset.Table, cols []string, enc ColumnEncoder) ([][]float64, error) {
	columns := make([]dataset.Column, len(cols))
	for i, name := range cols {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("feature column %q not in schema", name)
		}
		columns[i] = c
	}

	n := t.Len()
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		vec := make([]float64, len(cols))
		for j, c := range columns {
			v, err := enc(c, i)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, c.Name, err)
			}
			vec[j] = v
		}
		out[i] = vec
	}
	return out, nil
}
