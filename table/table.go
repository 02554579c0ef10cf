package table

import (
	"fmt"
	"strings"
)

// Field is one (name, type) entry of a Schema.
type Field struct {
	Name string
	Type ValueType
}

// Schema is the ordered list of a table's fields. Names are unique.
type Schema []Field

// Names returns the field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of a field by name, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Table is an immutable columnar dataset: a schema, one column per field
// and a row count shared by every column.
type Table struct {
	schema  Schema
	columns []Column
	rows    int
}

// New builds a table, checking that names are unique, that column types
// match the schema and that all columns have the same length.
func New(schema Schema, columns []Column) (*Table, error) {
	if len(schema) != len(columns) {
		return nil, fmt.Errorf("schema has %d fields but %d columns were given", len(schema), len(columns))
	}
	seen := make(map[string]bool, len(schema))
	rows := 0
	for i, f := range schema {
		if seen[f.Name] {
			return nil, fmt.Errorf("duplicate column name %q", f.Name)
		}
		seen[f.Name] = true
		if columns[i].Type() != f.Type {
			return nil, fmt.Errorf("column %q: schema type %s does not match storage type %s", f.Name, f.Type, columns[i].Type())
		}
		if i == 0 {
			rows = columns[i].Len()
		} else if columns[i].Len() != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", f.Name, columns[i].Len(), rows)
		}
	}
	s := make(Schema, len(schema))
	copy(s, schema)
	c := make([]Column, len(columns))
	copy(c, columns)
	return &Table{schema: s, columns: c, rows: rows}, nil
}

// FromRows builds a table from row-oriented values. Handy for fixtures.
func FromRows(schema Schema, rows [][]Value) (*Table, error) {
	columns := make([]Column, len(schema))
	for j, f := range schema {
		vals := make([]Value, len(rows))
		for i, r := range rows {
			if len(r) != len(schema) {
				return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(r), len(schema))
			}
			vals[i] = r[j]
		}
		col, err := NewColumn(f.Type, vals)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", f.Name, err)
		}
		columns[j] = col
	}
	return New(schema, columns)
}

// Schema returns a copy of the table schema.
func (t *Table) Schema() Schema {
	s := make(Schema, len(t.schema))
	copy(s, t.schema)
	return s
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return t.schema.Names()
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	return t.rows
}

// NumCols returns the column count.
func (t *Table) NumCols() int {
	return len(t.schema)
}

// ColIndex returns the index of a column by name, or -1.
func (t *Table) ColIndex(name string) int {
	return t.schema.Index(name)
}

// Field returns the i-th schema field.
func (t *Table) Field(i int) Field {
	return t.schema[i]
}

// Column returns the i-th column.
func (t *Table) Column(i int) Column {
	return t.columns[i]
}

// ColumnByName returns a column by name.
func (t *Table) ColumnByName(name string) (Column, bool) {
	idx := t.ColIndex(name)
	if idx < 0 {
		return nil, false
	}
	return t.columns[idx], true
}

// Get returns the value at a given row and column name.
func (t *Table) Get(row int, col string) Value {
	idx := t.ColIndex(col)
	if idx < 0 || row < 0 || row >= t.rows {
		return Null()
	}
	return t.columns[idx].Value(row)
}

// Row extracts one row as values in schema order.
func (t *Table) Row(i int) []Value {
	vals := make([]Value, len(t.columns))
	for j, c := range t.columns {
		vals[j] = c.Value(i)
	}
	return vals
}

// Take returns a new table holding the given rows, in the given order.
func (t *Table) Take(rows []int) *Table {
	cols := make([]Column, len(t.columns))
	for i, c := range t.columns {
		cols[i] = c.Take(rows)
	}
	return &Table{schema: t.Schema(), columns: cols, rows: len(rows)}
}

// Slice returns the first n rows. n is clamped to the row count.
func (t *Table) Slice(n int) *Table {
	if n > t.rows {
		n = t.rows
	}
	if n < 0 {
		n = 0
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return t.Take(idx)
}

// Project returns a table made of the columns at the given indices. The
// indices must be distinct.
func (t *Table) Project(indices []int) *Table {
	schema := make(Schema, len(indices))
	cols := make([]Column, len(indices))
	for i, idx := range indices {
		schema[i] = t.schema[idx]
		cols[i] = t.columns[idx]
	}
	return &Table{schema: schema, columns: cols, rows: t.rows}
}

// WithColumn returns a table where name holds col: an existing column of
// that name is replaced at the same position, otherwise col is appended.
func (t *Table) WithColumn(name string, col Column) (*Table, error) {
	if col.Len() != t.rows && len(t.columns) > 0 {
		return nil, fmt.Errorf("column %q has %d rows, expected %d", name, col.Len(), t.rows)
	}
	schema := t.Schema()
	cols := make([]Column, len(t.columns), len(t.columns)+1)
	copy(cols, t.columns)

	field := Field{Name: name, Type: col.Type()}
	if idx := schema.Index(name); idx >= 0 {
		schema[idx] = field
		cols[idx] = col
	} else {
		schema = append(schema, field)
		cols = append(cols, col)
	}
	return &Table{schema: schema, columns: cols, rows: col.Len()}, nil
}

// String returns a compact representation of the table.
func (t *Table) String() string {
	if t.rows == 0 {
		return "[" + strings.Join(t.Columns(), ", ") + "] (0 rows)"
	}

	var sb strings.Builder
	sb.WriteString("[ ")
	for i := 0; i < t.rows; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("{")
		for j, c := range t.columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(t.schema[j].Name)
			sb.WriteString(":")
			sb.WriteString(c.Value(i).AsString())
		}
		sb.WriteString("}")
	}
	sb.WriteString(" ]")
	return sb.String()
}
