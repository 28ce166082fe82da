// Package etl merges the heterogeneous disease/symptom CSV tables into the
// canonical knowledge base and maintains its on-disk cache alongside the
// embedding vectors.
package etl

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Cell is a single table value. Missing values ("", "nan", "NaN" in the
// source files) are converted to invalid cells at the reading boundary so
// the merge logic never compares against a string sentinel.
type Cell struct {
	Value string
	Valid bool
}

// Table is a loaded tabular source.
type Table struct {
	Columns []string
	Rows    [][]Cell
}

// Empty reports whether the table has no rows.
func (t Table) Empty() bool { return len(t.Rows) == 0 }

// Col returns the index of the named column, or -1.
func (t Table) Col(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cell returns the cell at (row, col), tolerating ragged rows.
func (t Table) Cell(row, col int) Cell {
	if col < 0 || row < 0 || row >= len(t.Rows) || col >= len(t.Rows[row]) {
		return Cell{}
	}
	return t.Rows[row][col]
}

// missing values the source files use interchangeably.
func isMissing(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "nan", "NaN", "NAN":
		return true
	}
	return false
}

func newCell(raw string) Cell {
	if isMissing(raw) {
		return Cell{}
	}
	return Cell{Value: strings.TrimSpace(raw), Valid: true}
}

// ReadCSV loads a single CSV source. A missing file is not an error: the
// build tolerates absent sources and works with whatever is present.
func ReadCSV(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Table{}, nil
		}
		return Table{}, fmt.Errorf("etl: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // source files have ragged precaution rows

	header, err := r.Read()
	if err == io.EOF {
		return Table{}, nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("etl: read header %s: %w", path, err)
	}

	t := Table{Columns: header}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("etl: read row %s: %w", path, err)
		}
		row := make([]Cell, len(rec))
		for i, v := range rec {
			row[i] = newCell(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// NormalizeColumns standardizes column names (trim, case-fold, spaces to
// underscores) so joins are key-stable regardless of source formatting.
// Idempotent: normalizing twice equals normalizing once.
func NormalizeColumns(t Table) Table {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c)), " ", "_")
	}
	return Table{Columns: cols, Rows: t.Rows}
}
