package loader

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	goavro "github.com/linkedin/goavro/v2"
	"github.com/parquet-go/parquet-go"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"

	"github.com/razeghi71/dqserve/qerr"
	"github.com/razeghi71/dqserve/table"
)

const salesCSV = "Id,Name,Amount\n1,a,10.5\n2,b,20.0\n3,c,\n"

func mustParseCSV(t *testing.T, input string) *table.Table {
	t.Helper()
	tbl, err := ParseCSV([]byte(input), DefaultOptions())
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	return tbl
}

func expectSchema(t *testing.T, tbl *table.Table, want table.Schema) {
	t.Helper()
	got := tbl.Schema()
	if len(got) != len(want) {
		t.Fatalf("expected schema %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("field %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestParseCSVHeaderNormalization(t *testing.T) {
	tbl := mustParseCSV(t, salesCSV)
	expectSchema(t, tbl, table.Schema{
		{Name: "id", Type: table.TypeInt},
		{Name: "name", Type: table.TypeString},
		{Name: "amount", Type: table.TypeFloat},
	})
	if tbl.NumRows() != 3 {
		t.Fatalf("expected 3 rows, got %d", tbl.NumRows())
	}
	if !tbl.Get(2, "amount").IsNull() {
		t.Errorf("expected empty amount to be null")
	}
	if tbl.Get(1, "amount").Float != 20 {
		t.Errorf("expected 20.0, got %v", tbl.Get(1, "amount"))
	}
}

func TestParseCSVInference(t *testing.T) {
	tbl := mustParseCSV(t, "a,b,c,d,e\n1,1.5,true,x,\n-2,3,FALSE,1,\n")
	expectSchema(t, tbl, table.Schema{
		{Name: "a", Type: table.TypeInt},
		{Name: "b", Type: table.TypeFloat},
		{Name: "c", Type: table.TypeBool},
		{Name: "d", Type: table.TypeString},
		{Name: "e", Type: table.TypeString},
	})
	if tbl.Get(1, "c").Bool {
		t.Errorf("expected FALSE to parse as false")
	}
	if !tbl.Get(0, "e").IsNull() {
		t.Errorf("all-empty column should hold nulls")
	}
}

func TestParseCSVNaNStaysText(t *testing.T) {
	tbl := mustParseCSV(t, "v\nNaN\nInf\n")
	if tbl.Field(0).Type != table.TypeString {
		t.Errorf("expected NaN/Inf column to be string, got %s", tbl.Field(0).Type)
	}
}

func TestParseCSVInferenceSampleWindow(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("v\n")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&sb, "%d\n", i)
	}
	sb.WriteString("oops\n")

	_, err := ParseCSV([]byte(sb.String()), Options{InferRows: 5})
	if !qerr.Is(err, qerr.KindParse) {
		t.Fatalf("expected parse error for value outside the sample, got %v", err)
	}

	tbl, err := ParseCSV([]byte(sb.String()), Options{InferRows: 6})
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Field(0).Type != table.TypeString {
		t.Errorf("expected string once the bad value is sampled, got %s", tbl.Field(0).Type)
	}
}

func TestParseCSVRaggedRows(t *testing.T) {
	tbl := mustParseCSV(t, "a,b,c\n1,2,3\n4\n")
	if tbl.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", tbl.NumRows())
	}
	if !tbl.Get(1, "b").IsNull() || !tbl.Get(1, "c").IsNull() {
		t.Errorf("short row should be padded with nulls, got %v", tbl.Row(1))
	}

	_, err := ParseCSV([]byte("a,b\n1,2,3\n"), DefaultOptions())
	if !qerr.Is(err, qerr.KindParse) {
		t.Fatalf("expected parse error for long row, got %v", err)
	}
}

func TestParseCSVErrors(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"invalid utf8":   "a,b\n\xff\xfe,1\n",
		"bare quote":     "a,b\n1,\"x\"y\n",
		"duplicate name": "A,a\n1,2\n",
	}
	for name, input := range cases {
		_, err := ParseCSV([]byte(input), DefaultOptions())
		if !qerr.Is(err, qerr.KindParse) {
			t.Errorf("%s: expected parse error, got %v", name, err)
		}
	}
}

func TestParseCSVHeaderOnly(t *testing.T) {
	tbl := mustParseCSV(t, "\xEF\xBB\xBFX,Y\n")
	if tbl.NumRows() != 0 {
		t.Errorf("expected no rows, got %d", tbl.NumRows())
	}
	expectSchema(t, tbl, table.Schema{
		{Name: "x", Type: table.TypeString},
		{Name: "y", Type: table.TypeString},
	})
}

func TestParseCSVQuotedFields(t *testing.T) {
	tbl := mustParseCSV(t, "name,note\n\"Smith, J\",\"say \"\"hi\"\"\"\n")
	if got := tbl.Get(0, "name").Str; got != "Smith, J" {
		t.Errorf("unexpected name %q", got)
	}
	if got := tbl.Get(0, "note").Str; got != `say "hi"` {
		t.Errorf("unexpected note %q", got)
	}
}

func TestParseCSVKeepsStringWhitespace(t *testing.T) {
	tbl := mustParseCSV(t, "id,note\n 1 ,  padded  \n2,\" quoted \"\n3,   \n4,\n")
	if tbl.Field(0).Type != table.TypeInt {
		t.Fatalf("expected padded integers to infer as int, got %s", tbl.Field(0).Type)
	}
	if got := tbl.Get(0, "id").Int; got != 1 {
		t.Errorf("expected id 1, got %d", got)
	}
	want := []string{"  padded  ", " quoted ", "   "}
	for i, w := range want {
		v := tbl.Get(i, "note")
		if v.IsNull() || v.Str != w {
			t.Errorf("row %d: expected %q, got %v", i, w, v)
		}
	}
	if !tbl.Get(3, "note").IsNull() {
		t.Errorf("expected empty field to be null")
	}
}

func TestLoadDispatch(t *testing.T) {
	if _, err := Load("data.txt", []byte("a\n1\n"), DefaultOptions()); !qerr.Is(err, qerr.KindParse) {
		t.Errorf("expected parse error for unsupported extension, got %v", err)
	}
	tbl, err := Load("DATA.CSV", []byte(salesCSV), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if tbl.NumRows() != 3 {
		t.Errorf("expected 3 rows, got %d", tbl.NumRows())
	}
}

func TestLoadGzipAndXZ(t *testing.T) {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte(salesCSV))
	zw.Close()

	tbl, err := Load("sales.csv.gz", gz.Bytes(), DefaultOptions())
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if tbl.NumRows() != 3 {
		t.Errorf("gzip: expected 3 rows, got %d", tbl.NumRows())
	}

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	if err != nil {
		t.Fatal(err)
	}
	xw.Write([]byte(salesCSV))
	xw.Close()

	tbl, err = Load("sales.csv.xz", xzBuf.Bytes(), DefaultOptions())
	if err != nil {
		t.Fatalf("xz: %v", err)
	}
	if tbl.NumRows() != 3 {
		t.Errorf("xz: expected 3 rows, got %d", tbl.NumRows())
	}
}

func TestLoadInflatedSizeLimit(t *testing.T) {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte("v\n"))
	zw.Write(bytes.Repeat([]byte("0\n"), 1<<16))
	zw.Close()

	_, err := Load("zeros.csv.gz", gz.Bytes(), Options{MaxInflatedBytes: 1 << 10})
	if !qerr.Is(err, qerr.KindParse) || !strings.Contains(err.Error(), "limit") {
		t.Fatalf("expected parse error over the inflate limit, got %v", err)
	}

	tbl, err := Load("zeros.csv.gz", gz.Bytes(), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if tbl.NumRows() != 1<<16 {
		t.Errorf("expected %d rows, got %d", 1<<16, tbl.NumRows())
	}

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	if err != nil {
		t.Fatal(err)
	}
	xw.Write(bytes.Repeat([]byte("a"), 4096))
	xw.Close()
	if _, err := Decompress(xzBuf.Bytes(), 4095); err == nil {
		t.Error("expected xz output over the limit to fail")
	}
	if out, err := Decompress(xzBuf.Bytes(), 4096); err != nil || len(out) != 4096 {
		t.Errorf("expected exactly-at-limit xz output to pass, got %d bytes, %v", len(out), err)
	}
}

func TestLoadJSONKeepsKeyOrder(t *testing.T) {
	input := `[{"Zeta": 1, "alpha": "x", "mid": 1.5}, {"alpha": "y", "zeta": 2, "extra": true}]`
	tbl, err := Load("rows.json", []byte(input), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	expectSchema(t, tbl, table.Schema{
		{Name: "zeta", Type: table.TypeInt},
		{Name: "alpha", Type: table.TypeString},
		{Name: "mid", Type: table.TypeFloat},
		{Name: "extra", Type: table.TypeBool},
	})
	if !tbl.Get(1, "mid").IsNull() || !tbl.Get(0, "extra").IsNull() {
		t.Errorf("missing keys should be null")
	}
}

func TestLoadJSONL(t *testing.T) {
	input := "{\"a\": 1, \"b\": \"x\"}\n\n{\"a\": 2.5, \"b\": 3}\n"
	tbl, err := Load("rows.jsonl", []byte(input), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	expectSchema(t, tbl, table.Schema{
		{Name: "a", Type: table.TypeFloat},
		{Name: "b", Type: table.TypeString},
	})
	if got := tbl.Get(1, "b").Str; got != "3" {
		t.Errorf("mixed column should be stringified, got %q", got)
	}

	if _, err := Load("rows.jsonl", []byte("{\"a\": 1}\nnot json\n"), DefaultOptions()); !qerr.Is(err, qerr.KindParse) {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestLoadAvro(t *testing.T) {
	codec, err := goavro.NewCodec(`{
		"type": "record", "name": "Sale",
		"fields": [
			{"name": "Id", "type": "long"},
			{"name": "Name", "type": "string"},
			{"name": "Amount", "type": "double"}
		]
	}`)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: &buf, Codec: codec})
	if err != nil {
		t.Fatal(err)
	}
	err = w.Append([]any{
		map[string]any{"Id": int64(1), "Name": "a", "Amount": 10.5},
		map[string]any{"Id": int64(2), "Name": "b", "Amount": 20.0},
	})
	if err != nil {
		t.Fatal(err)
	}

	tbl, err := Load("sales.avro", buf.Bytes(), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	expectSchema(t, tbl, table.Schema{
		{Name: "id", Type: table.TypeInt},
		{Name: "name", Type: table.TypeString},
		{Name: "amount", Type: table.TypeFloat},
	})
	if tbl.Get(1, "amount").Float != 20 {
		t.Errorf("unexpected amount %v", tbl.Get(1, "amount"))
	}
}

type parquetSale struct {
	ID     int64   `parquet:"id"`
	Name   string  `parquet:"name"`
	Amount float64 `parquet:"amount"`
}

func TestLoadParquet(t *testing.T) {
	var buf bytes.Buffer
	w := parquet.NewWriter(&buf)
	for _, s := range []parquetSale{{1, "a", 10.5}, {2, "b", 20}, {3, "c", 7.25}} {
		if err := w.Write(s); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	tbl, err := Load("sales.parquet", buf.Bytes(), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if tbl.NumRows() != 3 {
		t.Fatalf("expected 3 rows, got %d", tbl.NumRows())
	}
	if tbl.Get(2, "name").Str != "c" || tbl.Get(0, "id").Int != 1 {
		t.Errorf("unexpected contents: %s", tbl)
	}

	if _, err := Load("bad.parquet", []byte("not parquet"), DefaultOptions()); !qerr.Is(err, qerr.KindParse) {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestLoadXLSX(t *testing.T) {
	f := excelize.NewFile()
	f.SetSheetRow("Sheet1", "A1", &[]any{"Id", "Name", "Amount"})
	f.SetSheetRow("Sheet1", "A2", &[]any{1, "a", 10.5})
	f.SetSheetRow("Sheet1", "A3", &[]any{2, "b"})
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	tbl, err := Load("sales.xlsx", buf.Bytes(), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	expectSchema(t, tbl, table.Schema{
		{Name: "id", Type: table.TypeInt},
		{Name: "name", Type: table.TypeString},
		{Name: "amount", Type: table.TypeFloat},
	})
	if !tbl.Get(1, "amount").IsNull() {
		t.Errorf("missing trailing cell should be null")
	}
}
