package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/razeghi71/dqserve/auth"
)

const salesCSV = "Name,City,Amount\nAlice,NY,10\nBob,LA,20\nCarol,NY,30\n"

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

func TestQueryCSV(t *testing.T) {
	path := writeFile(t, "sales.csv", salesCSV)
	out, err := runCLI(t, "", "-q", "group city agg sum(amount) as total | sort total desc", "-format", "csv", path)
	if err != nil {
		t.Fatal(err)
	}
	if out != "city,total\nNY,40\nLA,20\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestSalesFixture(t *testing.T) {
	out, err := runCLI(t, "", "-q", "filter paid == true | group region agg sum(units) as units", "-format", "csv",
		filepath.Join("..", "..", "testdata", "sales.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if out != "region,units\nnorth,6\neast,0\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestQueryOpsFromStdin(t *testing.T) {
	path := writeFile(t, "sales.csv", salesCSV)
	ops := `[{"type":"Filter","column":"city","operator":"Eq","value":"LA"},{"type":"Select","columns":["name"]}]`
	out, err := runCLI(t, ops, "-ops", "-", "-format", "json", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"Bob"`) || strings.Contains(out, `"Alice"`) {
		t.Errorf("unexpected output %q", out)
	}
}

func TestTableOutput(t *testing.T) {
	path := writeFile(t, "sales.csv", salesCSV)
	out, err := runCLI(t, "", "-q", "limit 1", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"name", "city", "amount", "Alice", "NY", "10"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in table output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Bob") {
		t.Errorf("limit not applied:\n%s", out)
	}
}

func TestDescribeFlag(t *testing.T) {
	path := writeFile(t, "sales.csv", salesCSV)
	out, err := runCLI(t, "", "-describe", "-format", "csv", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "describe,name,city,amount\ncount,") {
		t.Errorf("unexpected describe output %q", out)
	}
}

func TestExplain(t *testing.T) {
	out, err := runCLI(t, "", "-explain", "-q", "limit 3")
	if err != nil {
		t.Fatal(err)
	}
	if out != "0: Limit 3\n" {
		t.Errorf("unexpected explain output %q", out)
	}
}

func TestOutputFile(t *testing.T) {
	path := writeFile(t, "sales.csv", salesCSV)
	outPath := filepath.Join(t.TempDir(), "out.xlsx")
	if _, err := runCLI(t, "", "-format", "xlsx", "-o", outPath, path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Error("expected a zip-based xlsx file")
	}
}

func TestCLIErrors(t *testing.T) {
	path := writeFile(t, "sales.csv", salesCSV)
	cases := [][]string{
		{},
		{"-q", "limit 1", "-ops", "x.json", path},
		{"-q", "filter", path},
		{"-format", "yaml", path},
		{"-q", "select nope", path},
		{filepath.Join(t.TempDir(), "missing.csv")},
		{"token"},
	}
	for _, args := range cases {
		if _, err := runCLI(t, "", args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestToken(t *testing.T) {
	out, err := runCLI(t, "", "token", "-secret", "s3cret", "-sub", "user-9", "-email", "x@example.com")
	if err != nil {
		t.Fatal(err)
	}
	v, _ := auth.NewVerifier("s3cret")
	id, err := v.Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatal(err)
	}
	if id.UserID != "user-9" || id.Email != "x@example.com" {
		t.Errorf("unexpected identity %+v", id)
	}
}
