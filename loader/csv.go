package loader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/razeghi71/dqserve/qerr"
	"github.com/razeghi71/dqserve/table"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseCSV parses CSV text with a header row into a table. Column names are
// the lower-cased header cells; column types are inferred from the first
// opts.InferRows data rows.
func ParseCSV(data []byte, opts Options) (*table.Table, error) {
	if !utf8.Valid(data) {
		return nil, qerr.New(qerr.KindParse, "CSV input is not valid UTF-8 text")
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	// Row width is checked below so short rows can be padded.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, qerr.New(qerr.KindParse, "CSV input is empty: no header row")
	}
	if err != nil {
		return nil, csvError(err)
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}
		records = append(records, record)
	}

	return fromText(header, records, opts)
}

func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &qerr.Error{Kind: qerr.KindParse, Op: qerr.NoOp, Msg: fmt.Sprintf("malformed CSV at line %d: %v", pe.Line, pe.Err), Err: err}
	}
	return qerr.Wrap(qerr.KindParse, err)
}

// fromText builds a table from a header and string records, the shape
// shared by CSV and spreadsheet sources.
func fromText(header []string, records [][]string, opts Options) (*table.Table, error) {
	columns, err := normalizeHeader(header)
	if err != nil {
		return nil, err
	}

	for i, rec := range records {
		if len(rec) > len(columns) {
			// Data row numbers are 1-based and exclude the header.
			return nil, qerr.New(qerr.KindParse, "row %d has %d fields but the header has %d", i+1, len(rec), len(columns))
		}
	}

	sample := opts.inferRows()
	if sample > len(records) {
		sample = len(records)
	}

	schema := make(table.Schema, len(columns))
	cols := make([]table.Column, len(columns))
	for j, name := range columns {
		typ := inferColumn(records[:sample], j)
		col, err := convertColumn(records, j, typ)
		if err != nil {
			return nil, qerr.New(qerr.KindParse, "column %q: %v", name, err)
		}
		schema[j] = table.Field{Name: name, Type: typ}
		cols[j] = col
	}

	t, err := table.New(schema, cols)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindParse, err)
	}
	return t, nil
}

// normalizeHeader lower-cases and trims header names. Blank names become
// column_<n> (1-based); duplicates after normalization are rejected.
func normalizeHeader(header []string) ([]string, error) {
	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if seen[name] {
			return nil, qerr.New(qerr.KindParse, "duplicate column name %q in header", name)
		}
		seen[name] = true
		columns[i] = name
	}
	return columns, nil
}

// cell returns field j of rec as read and whether it is non-null. Only
// empty and missing trailing fields are nulls; surrounding whitespace is
// part of a string value.
func cell(rec []string, j int) (string, bool) {
	if j >= len(rec) {
		return "", false
	}
	return rec[j], rec[j] != ""
}

// scalar returns field j trimmed for numeric and boolean parsing.
func scalar(rec []string, j int) (string, bool) {
	s, ok := cell(rec, j)
	return strings.TrimSpace(s), ok
}

func inferColumn(records [][]string, j int) table.ValueType {
	isInt, isFloat, isBool := true, true, true
	seen := false
	for _, rec := range records {
		s, ok := scalar(rec, j)
		if !ok {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, ok := parseFloat(s); !ok {
				isFloat = false
			}
		}
		if isBool {
			if _, ok := parseBool(s); !ok {
				isBool = false
			}
		}
		if !isInt && !isFloat && !isBool {
			return table.TypeString
		}
	}
	switch {
	case !seen:
		return table.TypeString
	case isInt:
		return table.TypeInt
	case isFloat:
		return table.TypeFloat
	case isBool:
		return table.TypeBool
	default:
		return table.TypeString
	}
}

// parseFloat accepts finite decimal numbers only; "NaN" and "Inf" stay text.
func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

func convertColumn(records [][]string, j int, typ table.ValueType) (table.Column, error) {
	n := len(records)
	var nulls []bool
	markNull := func(i int) {
		if nulls == nil {
			nulls = make([]bool, n)
		}
		nulls[i] = true
	}
	bad := func(i int, s string) error {
		return fmt.Errorf("row %d: value %q is not a valid %s (type inferred from the first rows)", i+1, s, typ)
	}

	switch typ {
	case table.TypeInt:
		data := make([]int64, n)
		for i, rec := range records {
			s, ok := scalar(rec, j)
			if !ok {
				markNull(i)
				continue
			}
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, bad(i, s)
			}
			data[i] = v
		}
		return &table.IntColumn{Data: data, Nulls: nulls}, nil
	case table.TypeFloat:
		data := make([]float64, n)
		for i, rec := range records {
			s, ok := scalar(rec, j)
			if !ok {
				markNull(i)
				continue
			}
			v, ok := parseFloat(s)
			if !ok {
				return nil, bad(i, s)
			}
			data[i] = v
		}
		return &table.FloatColumn{Data: data, Nulls: nulls}, nil
	case table.TypeBool:
		data := make([]bool, n)
		for i, rec := range records {
			s, ok := scalar(rec, j)
			if !ok {
				markNull(i)
				continue
			}
			v, ok := parseBool(s)
			if !ok {
				return nil, bad(i, s)
			}
			data[i] = v
		}
		return &table.BoolColumn{Data: data, Nulls: nulls}, nil
	default:
		data := make([]string, n)
		for i, rec := range records {
			s, ok := cell(rec, j)
			if !ok {
				markNull(i)
				continue
			}
			data[i] = s
		}
		return &table.StringColumn{Data: data, Nulls: nulls}, nil
	}
}
