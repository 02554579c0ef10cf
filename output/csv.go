package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// EncodeCSV renders resp as CSV text. See WriteCSV.
func EncodeCSV(resp *QueryResponse) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, resp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV writes a header line of column names joined by commas, then one
// line per row. Strings are quoted only when they contain a comma, a quote
// or a newline; nulls are empty; numbers render as they do in JSON. Every
// line ends with "\n".
func WriteCSV(w io.Writer, resp *QueryResponse) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(strings.Join(resp.Columns, ","))
	bw.WriteByte('\n')

	for i, row := range resp.Rows {
		if len(row) != len(resp.Columns) {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(resp.Columns))
		}
		for j, v := range row {
			if j > 0 {
				bw.WriteByte(',')
			}
			cell, err := csvCell(v)
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", i, resp.Columns[j], err)
			}
			bw.WriteString(cell)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func csvCell(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		if strings.ContainsAny(val, ",\"\n") {
			return `"` + strings.ReplaceAll(val, `"`, `""`) + `"`, nil
		}
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		b, err := formatFloat(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case int64, int, json.Number:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported cell type %T", v)
	}
}
