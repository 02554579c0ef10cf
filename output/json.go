// Package output encodes pipeline results: the JSON table response, CSV
// text and XLSX workbooks.
package output

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/razeghi71/dqserve/qerr"
	"github.com/razeghi71/dqserve/table"
)

// QueryResponse is a table in JSON form. Every row has exactly one value
// per column, positionally aligned; null cells are explicit nulls.
type QueryResponse struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// FromTable converts t to a QueryResponse. Cells become int64, float64,
// bool, string or nil. A NaN or infinite float fails the conversion.
func FromTable(t *table.Table) (*QueryResponse, error) {
	resp := &QueryResponse{
		Columns: t.Columns(),
		Rows:    make([][]any, t.NumRows()),
	}
	for i := range resp.Rows {
		resp.Rows[i] = make([]any, t.NumCols())
	}

	for j := 0; j < t.NumCols(); j++ {
		switch col := t.Column(j).(type) {
		case *table.IntColumn:
			for i, v := range col.Data {
				if !col.IsNull(i) {
					resp.Rows[i][j] = v
				}
			}
		case *table.FloatColumn:
			for i, v := range col.Data {
				if col.IsNull(i) {
					continue
				}
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, qerr.New(qerr.KindSerialization,
						"column %q row %d: cannot encode non-finite float %v", t.Field(j).Name, i, v)
				}
				resp.Rows[i][j] = v
			}
		case *table.BoolColumn:
			for i, v := range col.Data {
				if !col.IsNull(i) {
					resp.Rows[i][j] = v
				}
			}
		case *table.StringColumn:
			for i, v := range col.Data {
				if !col.IsNull(i) {
					resp.Rows[i][j] = v
				}
			}
		}
	}
	return resp, nil
}

// MarshalJSON writes the response with whole floats keeping a ".0", so a
// float column never reads as an integer one.
func (r QueryResponse) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	cols, err := json.Marshal(r.Columns)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`{"columns":`)
	buf.Write(cols)
	buf.WriteString(`,"rows":`)
	if r.Rows == nil {
		buf.WriteString("null}")
		return buf.Bytes(), nil
	}
	buf.WriteByte('[')
	for i, row := range r.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		for j, v := range row {
			if j > 0 {
				buf.WriteByte(',')
			}
			cell, err := jsonCell(v)
			if err != nil {
				return nil, err
			}
			buf.Write(cell)
		}
		buf.WriteByte(']')
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

func jsonCell(v any) ([]byte, error) {
	if f, ok := v.(float64); ok {
		return formatFloat(f)
	}
	return json.Marshal(v)
}

// formatFloat renders f as encoding/json does, adding ".0" to whole
// numbers written without a fraction or exponent.
func formatFloat(f float64) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	if !strings.ContainsAny(string(b), ".eE") {
		b = append(b, ".0"...)
	}
	return b, nil
}
