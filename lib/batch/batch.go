package batch

import (
	"fmt"
	"slices"
	"strings"
)

// Batch is a rectangular set of rows extracted from a tenant's source database.
// Table is the target table the batch will be committed to, it is never a column.
type Batch struct {
	Table   string
	columns []string
	rows    [][]any
}

func New(table string, columns []string) *Batch {
	return &Batch{
		Table:   table,
		columns: slices.Clone(columns),
	}
}

// FromRows builds a batch and validates that every row matches the column count.
func FromRows(table string, columns []string, rows [][]any) (*Batch, error) {
	b := New(table, columns)
	for i, row := range rows {
		if err := b.Append(row); err != nil {
			return nil, fmt.Errorf("failed to append row %d: %w", i, err)
		}
	}

	return b, nil
}

// MustFromRows is FromRows that panics, used for tests.
func MustFromRows(table string, columns []string, rows [][]any) *Batch {
	b, err := FromRows(table, columns, rows)
	if err != nil {
		panic(err)
	}
	return b
}

func (b *Batch) Append(row []any) error {
	if len(row) != len(b.columns) {
		return fmt.Errorf("expected %d values, got %d", len(b.columns), len(row))
	}

	b.rows = append(b.rows, slices.Clone(row))
	return nil
}

func (b *Batch) Columns() []string {
	return slices.Clone(b.columns)
}

func (b *Batch) NumRows() int {
	return len(b.rows)
}

func (b *Batch) NumColumns() int {
	return len(b.columns)
}

func (b *Batch) Rows() [][]any {
	return b.rows
}

// ColumnIndex returns the position of [name], matching case-insensitively.
func (b *Batch) ColumnIndex(name string) int {
	for i, col := range b.columns {
		if strings.EqualFold(col, name) {
			return i
		}
	}

	return -1
}

func (b *Batch) HasColumn(name string) bool {
	return b.ColumnIndex(name) >= 0
}

// Column returns a copy of the values for the column at [idx].
func (b *Batch) Column(idx int) []any {
	values := make([]any, len(b.rows))
	for i, row := range b.rows {
		values[i] = row[idx]
	}
	return values
}

// SetColumn overwrites the column at [idx]; [values] must have one entry per row.
func (b *Batch) SetColumn(idx int, values []any) error {
	if len(values) != len(b.rows) {
		return fmt.Errorf("expected %d values for column %q, got %d", len(b.rows), b.columns[idx], len(values))
	}

	for i := range b.rows {
		b.rows[i][idx] = values[i]
	}
	return nil
}

func (b *Batch) Value(row int, column string) (any, bool) {
	idx := b.ColumnIndex(column)
	if idx < 0 || row >= len(b.rows) {
		return nil, false
	}

	return b.rows[row][idx], true
}

// Clone returns a deep copy of the batch layout, cell values are shared.
func (b *Batch) Clone() *Batch {
	out := New(b.Table, b.columns)
	out.rows = make([][]any, len(b.rows))
	for i, row := range b.rows {
		out.rows[i] = slices.Clone(row)
	}
	return out
}

// SelectColumns returns a new batch containing only the columns at [indices], in that order.
func (b *Batch) SelectColumns(indices []int) *Batch {
	cols := make([]string, len(indices))
	for i, idx := range indices {
		cols[i] = b.columns[idx]
	}

	out := New(b.Table, cols)
	out.rows = make([][]any, len(b.rows))
	for i, row := range b.rows {
		newRow := make([]any, len(indices))
		for j, idx := range indices {
			newRow[j] = row[idx]
		}
		out.rows[i] = newRow
	}
	return out
}

// RenameColumns applies [fn] to every column name.
func (b *Batch) RenameColumns(fn func(string) string) {
	for i, col := range b.columns {
		b.columns[i] = fn(col)
	}
}

// FilterRows keeps the rows for which [keep] returns true.
func (b *Batch) FilterRows(keep func(row []any) bool) {
	kept := b.rows[:0]
	for _, row := range b.rows {
		if keep(row) {
			kept = append(kept, row)
		}
	}
	b.rows = kept
}
