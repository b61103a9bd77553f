// Package dataset provides the in-memory feature table consumed by the
// training pipeline and its persistent BoltDB-backed store.
//
// A table is keyed by (machine identifier, truncated timestamp) and carries
// a fixed, ordered set of numeric and categorical feature columns plus a
// multiclass failure label. Column order is part of the schema and is
// preserved across save/load so that feature vectors line up between
// training and scoring.
package dataset

import (
	"fmt"
	"math"
	"time"
)

// ColumnKind distinguishes numeric from categorical feature columns.
type ColumnKind string

const (
	KindNumeric     ColumnKind = "numeric"
	KindCategorical ColumnKind = "categorical"
)

// ColumnSpec describes one feature column in schema order.
type ColumnSpec struct {
	Name string     `json:"name"`
	Kind ColumnKind `json:"kind"`
}

// Schema is the ordered column layout of a feature table.
type Schema struct {
	Columns []ColumnSpec `json:"columns"`
}

// Validate checks the schema for duplicate or unnamed columns.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("schema: column with empty name")
		}
		if c.Kind != KindNumeric && c.Kind != KindCategorical {
			return fmt.Errorf("schema: column %s has unknown kind %q", c.Name, c.Kind)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("schema: duplicate column %s", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// Row is one (machine, time-bucket) observation as stored and ingested.
type Row struct {
	MachineID   string             `json:"machine_id"`
	Timestamp   time.Time          `json:"timestamp"`
	Label       string             `json:"label"`
	Numeric     map[string]float64 `json:"numeric,omitempty"`
	Categorical map[string]string  `json:"categorical,omitempty"`
}

// Column is a materialized feature column. Exactly one of Nums/Cats is
// populated, matching Kind.
type Column struct {
	Name string
	Kind ColumnKind
	Nums []float64
	Cats []string
}

// Table is a columnar feature table with (machine, timestamp) keys and a
// label column held apart from the feature columns.
type Table struct {
	MachineIDs []string
	Timestamps []time.Time
	Labels     []string

	cols   []Column
	byName map[string]int
}

// New creates an empty table with the given schema.
func New(s Schema) (*Table, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	t := &Table{byName: make(map[string]int, len(s.Columns))}
	for _, spec := range s.Columns {
		t.byName[spec.Name] = len(t.cols)
		t.cols = append(t.cols, Column{Name: spec.Name, Kind: spec.Kind})
	}
	return t, nil
}

// Append adds one observation. Numeric columns missing from the row are
// recorded as NaN; categorical columns missing from the row are recorded as
// the empty category.
func (t *Table) Append(r Row) error {
	if r.MachineID == "" {
		return fmt.Errorf("dataset: row with empty machine id")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("dataset: row for machine %s has zero timestamp", r.MachineID)
	}
	t.MachineIDs = append(t.MachineIDs, r.MachineID)
	t.Timestamps = append(t.Timestamps, r.Timestamp)
	t.Labels = append(t.Labels, r.Label)
	for i := range t.cols {
		c := &t.cols[i]
		switch c.Kind {
		case KindNumeric:
			v, ok := r.Numeric[c.Name]
			if !ok {
				v = math.NaN()
			}
			c.Nums = append(c.Nums, v)
		case KindCategorical:
			c.Cats = append(c.Cats, r.Categorical[c.Name])
		}
	}
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.MachineIDs) }

// Schema returns the ordered column layout.
func (t *Table) Schema() Schema {
	s := Schema{Columns: make([]ColumnSpec, len(t.cols))}
	for i, c := range t.cols {
		s.Columns[i] = ColumnSpec{Name: c.Name, Kind: c.Kind}
	}
	return s
}

// ColumnNames returns feature column names in schema order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Column returns the named feature column.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Column{}, false
	}
	return t.cols[i], true
}

// Row reconstructs observation i.
func (t *Table) Row(i int) Row {
	r := Row{
		MachineID:   t.MachineIDs[i],
		Timestamp:   t.Timestamps[i],
		Label:       t.Labels[i],
		Numeric:     make(map[string]float64),
		Categorical: make(map[string]string),
	}
	for _, c := range t.cols {
		switch c.Kind {
		case KindNumeric:
			r.Numeric[c.Name] = c.Nums[i]
		case KindCategorical:
			r.Categorical[c.Name] = c.Cats[i]
		}
	}
	return r
}

// Select returns a new table containing the rows at the given indices, in
// the given order. The schema is shared layout-wise but data is copied.
func (t *Table) Select(indices []int) *Table {
	out := &Table{byName: make(map[string]int, len(t.cols))}
	for i, c := range t.cols {
		out.byName[c.Name] = i
		nc := Column{Name: c.Name, Kind: c.Kind}
		if c.Kind == KindNumeric {
			nc.Nums = make([]float64, 0, len(indices))
		} else {
			nc.Cats = make([]string, 0, len(indices))
		}
		out.cols = append(out.cols, nc)
	}
	out.MachineIDs = make([]string, 0, len(indices))
	out.Timestamps = make([]time.Time, 0, len(indices))
	out.Labels = make([]string, 0, len(indices))
	for _, i := range indices {
		out.MachineIDs = append(out.MachineIDs, t.MachineIDs[i])
		out.Timestamps = append(out.Timestamps, t.Timestamps[i])
		out.Labels = append(out.Labels, t.Labels[i])
		for j := range t.cols {
			if t.cols[j].Kind == KindNumeric {
				out.cols[j].Nums = append(out.cols[j].Nums, t.cols[j].Nums[i])
			} else {
				out.cols[j].Cats = append(out.cols[j].Cats, t.cols[j].Cats[i])
			}
		}
	}
	return out
}

// SetLabel overwrites the label of row i. Used by the censoring policy that
// resets boundary-window rows to the non-failure class.
func (t *Table) SetLabel(i int, label string) {
	t.Labels[i] = label
}
