package loader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	goavro "github.com/linkedin/goavro/v2"
	"github.com/parquet-go/parquet-go"

	"github.com/razeghi71/dqserve/qerr"
	"github.com/razeghi71/dqserve/table"
)

// recordSet accumulates self-describing records (JSON, Avro, Parquet) in
// column order of first appearance.
type recordSet struct {
	columns []string
	index   map[string]int
	rows    []map[int]table.Value
}

func newRecordSet(columns []string) *recordSet {
	rs := &recordSet{index: make(map[string]int)}
	for _, c := range columns {
		rs.column(c)
	}
	return rs
}

func (rs *recordSet) column(name string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	if i, ok := rs.index[name]; ok {
		return i
	}
	i := len(rs.columns)
	rs.columns = append(rs.columns, name)
	rs.index[name] = i
	return i
}

func (rs *recordSet) table() (*table.Table, error) {
	schema := make(table.Schema, len(rs.columns))
	cols := make([]table.Column, len(rs.columns))
	for j, name := range rs.columns {
		vals := make([]table.Value, len(rs.rows))
		for i, row := range rs.rows {
			if v, ok := row[j]; ok {
				vals[i] = v
			}
		}
		typ := table.InferType(vals)
		if typ == table.TypeString {
			vals = table.Stringify(vals)
		}
		col, err := table.NewColumn(typ, vals)
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

func parseJSON(data []byte) (*table.Table, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, qerr.New(qerr.KindParse, "cannot parse JSON: %v", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, qerr.New(qerr.KindParse, "cannot parse JSON: expected array of objects")
	}

	rs := newRecordSet(nil)
	for dec.More() {
		if err := readObject(dec, rs); err != nil {
			return nil, qerr.New(qerr.KindParse, "record %d: %v", len(rs.rows)+1, err)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, qerr.New(qerr.KindParse, "cannot parse JSON: %v", err)
	}
	return rs.table()
}

func parseJSONL(data []byte) (*table.Table, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	rs := newRecordSet(nil)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		if err := readObject(dec, rs); err != nil {
			return nil, qerr.New(qerr.KindParse, "invalid JSON on line %d: %v", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, qerr.Wrap(qerr.KindParse, err)
	}
	return rs.table()
}

// readObject reads one JSON object, keeping key order so column order is
// deterministic.
func readObject(dec *json.Decoder, rs *recordSet) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	row := make(map[int]table.Value)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		row[rs.column(key)] = jsonValue(v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	rs.rows = append(rs.rows, row)
	return nil
}

func jsonValue(v any) table.Value {
	switch val := v.(type) {
	case nil:
		return table.Null()
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return table.IntVal(i)
		}
		if f, err := val.Float64(); err == nil {
			return table.FloatVal(f)
		}
		return table.StrVal(val.String())
	case string:
		return table.StrVal(val)
	case bool:
		return table.BoolVal(val)
	default:
		// Nested objects and arrays are kept as their JSON text.
		b, _ := json.Marshal(val)
		return table.StrVal(string(b))
	}
}

func parseAvro(data []byte) (*table.Table, error) {
	ocfr, err := goavro.NewOCFReader(bytes.NewReader(data))
	if err != nil {
		return nil, qerr.New(qerr.KindParse, "cannot read Avro OCF: %v", err)
	}

	var schemaDef struct {
		Fields []struct {
			Name string `json:"name"`
		} `json:"fields"`
	}
	if err := json.Unmarshal([]byte(ocfr.Codec().Schema()), &schemaDef); err != nil {
		return nil, qerr.New(qerr.KindParse, "cannot parse Avro schema: %v", err)
	}
	names := make([]string, len(schemaDef.Fields))
	for i, f := range schemaDef.Fields {
		names[i] = f.Name
	}
	rs := newRecordSet(names)

	for ocfr.Scan() {
		datum, err := ocfr.Read()
		if err != nil {
			return nil, qerr.New(qerr.KindParse, "error reading Avro record: %v", err)
		}
		rec, ok := datum.(map[string]any)
		if !ok {
			return nil, qerr.New(qerr.KindParse, "unexpected Avro record type %T", datum)
		}
		row := make(map[int]table.Value, len(names))
		for _, name := range names {
			row[rs.column(name)] = nativeValue(rec[name])
		}
		rs.rows = append(rs.rows, row)
	}
	if err := ocfr.Err(); err != nil {
		return nil, qerr.New(qerr.KindParse, "error reading Avro file: %v", err)
	}
	return rs.table()
}

func parseParquet(data []byte) (*table.Table, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, qerr.New(qerr.KindParse, "failed to open parquet file: %v", err)
	}

	fields := f.Schema().Fields()
	names := make([]string, len(fields))
	for i, field := range fields {
		names[i] = field.Name()
	}
	rs := newRecordSet(names)

	reader := parquet.NewReader(f)
	defer func() { _ = reader.Close() }()
	for {
		rec := make(map[string]any)
		if err := reader.Read(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, qerr.New(qerr.KindParse, "failed to read parquet row: %v", err)
		}
		row := make(map[int]table.Value, len(names))
		for _, name := range names {
			row[rs.column(name)] = nativeValue(rec[name])
		}
		rs.rows = append(rs.rows, row)
	}
	return rs.table()
}

// nativeValue converts a decoded Avro or Parquet value to a cell.
func nativeValue(v any) table.Value {
	if v == nil {
		return table.Null()
	}
	switch val := v.(type) {
	case int:
		return table.IntVal(int64(val))
	case int32:
		return table.IntVal(int64(val))
	case int64:
		return table.IntVal(val)
	case float32:
		return table.FloatVal(float64(val))
	case float64:
		return table.FloatVal(val)
	case string:
		return table.StrVal(val)
	case bool:
		return table.BoolVal(val)
	case []byte:
		return table.StrVal(string(val))
	case time.Time:
		return table.StrVal(val.UTC().Format(time.RFC3339Nano))
	case map[string]any:
		// Avro unions decode as {"type": value}.
		for _, inner := range val {
			return nativeValue(inner)
		}
		return table.Null()
	default:
		return table.StrVal(fmt.Sprintf("%v", val))
	}
}
