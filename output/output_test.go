package output

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/razeghi71/dqserve/qerr"
	"github.com/razeghi71/dqserve/table"
)

func salesTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.FromRows(table.Schema{
		{Name: "id", Type: table.TypeInt},
		{Name: "name", Type: table.TypeString},
		{Name: "amount", Type: table.TypeFloat},
		{Name: "paid", Type: table.TypeBool},
	}, [][]table.Value{
		{table.IntVal(1), table.StrVal("a"), table.FloatVal(10.5), table.BoolVal(true)},
		{table.IntVal(2), table.StrVal("b"), table.FloatVal(20.0), table.BoolVal(false)},
		{table.IntVal(3), table.StrVal("c"), table.Null(), table.Null()},
	})
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestFromTableJSON(t *testing.T) {
	resp, err := FromTable(salesTable(t))
	if err != nil {
		t.Fatal(err)
	}
	got, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"columns":["id","name","amount","paid"],"rows":[[1,"a",10.5,true],[2,"b",20.0,false],[3,"c",null,null]]}`
	if string(got) != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestFloatsKeepFraction(t *testing.T) {
	cases := map[float64]string{
		20:    "20.0",
		-3:    "-3.0",
		0:     "0.0",
		0.5:   "0.5",
		1e21:  "1e+21",
		1e-7:  "1e-7",
		123.4: "123.4",
	}
	for f, want := range cases {
		resp := &QueryResponse{Columns: []string{"v"}, Rows: [][]any{{f}}}
		got, err := json.Marshal(resp)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != `{"columns":["v"],"rows":[[`+want+`]]}` {
			t.Errorf("%v: unexpected JSON %s", f, got)
		}
		csv, err := EncodeCSV(resp)
		if err != nil {
			t.Fatal(err)
		}
		if string(csv) != "v\n"+want+"\n" {
			t.Errorf("%v: unexpected CSV %q", f, csv)
		}
	}
}

func TestFromTableEmpty(t *testing.T) {
	tbl, _ := table.FromRows(table.Schema{{Name: "x", Type: table.TypeInt}}, nil)
	resp, err := FromTable(tbl)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := json.Marshal(resp)
	if string(got) != `{"columns":["x"],"rows":[]}` {
		t.Errorf("unexpected encoding %s", got)
	}
}

func TestFromTableNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		tbl, _ := table.FromRows(table.Schema{{Name: "ratio", Type: table.TypeFloat}},
			[][]table.Value{{table.FloatVal(1)}, {table.FloatVal(v)}})
		_, err := FromTable(tbl)
		if !qerr.Is(err, qerr.KindSerialization) {
			t.Errorf("%v: expected serialization error, got %v", v, err)
			continue
		}
		if !strings.Contains(err.Error(), `"ratio"`) {
			t.Errorf("error should name the column: %v", err)
		}
	}
}

func TestEncodeCSV(t *testing.T) {
	resp, err := FromTable(salesTable(t))
	if err != nil {
		t.Fatal(err)
	}
	got, err := EncodeCSV(resp)
	if err != nil {
		t.Fatal(err)
	}
	want := "id,name,amount,paid\n1,a,10.5,true\n2,b,20.0,false\n3,c,,\n"
	if string(got) != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestEncodeCSVQuoting(t *testing.T) {
	resp := &QueryResponse{
		Columns: []string{"a,b", "note"},
		Rows: [][]any{
			{"plain", "has,comma"},
			{`say "hi"`, "two\nlines"},
			{" padded ", ""},
		},
	}
	got, err := EncodeCSV(resp)
	if err != nil {
		t.Fatal(err)
	}
	want := "a,b,note\nplain,\"has,comma\"\n\"say \"\"hi\"\"\",\"two\nlines\"\n padded ,\n"
	if string(got) != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestEncodeCSVNumbersMatchJSON(t *testing.T) {
	resp := &QueryResponse{
		Columns: []string{"n"},
		Rows:    [][]any{{int64(-7)}, {1e21}, {0.000001}, {123456789.125}},
	}
	got, err := EncodeCSV(resp)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(got), "\n"), "\n")[1:]
	for i, row := range resp.Rows {
		b, _ := json.Marshal(row[0])
		if lines[i] != string(b) {
			t.Errorf("row %d: CSV %q differs from JSON %q", i, lines[i], b)
		}
	}
}

func TestEncodeCSVHeaderOnly(t *testing.T) {
	got, err := EncodeCSV(&QueryResponse{Columns: []string{"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "a,b\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestWriteCSVRowWidthMismatch(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, &QueryResponse{Columns: []string{"a", "b"}, Rows: [][]any{{"x"}}})
	if err == nil {
		t.Fatal("expected error for short row")
	}
}

func TestEncodeXLSX(t *testing.T) {
	resp, err := FromTable(salesTable(t))
	if err != nil {
		t.Fatal(err)
	}
	data, err := EncodeXLSX(resp)
	if err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != SheetName {
		t.Fatalf("unexpected sheets %v", sheets)
	}
	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "id,name,amount,paid" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "1" || rows[1][1] != "a" || rows[1][2] != "10.5" {
		t.Errorf("unexpected first row %v", rows[1])
	}
	if v, _ := f.GetCellValue(SheetName, "C4"); v != "" {
		t.Errorf("null cell should be empty, got %q", v)
	}
}
