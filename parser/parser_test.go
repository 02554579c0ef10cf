package parser

import (
	"encoding/json"
	"testing"

	"github.com/razeghi71/dqserve/ast"
)

func TestParseSimple(t *testing.T) {
	ops, err := Parse("limit 10")
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(ops))
	}
	limit, ok := ops[0].(*ast.Limit)
	if !ok {
		t.Fatalf("expected Limit, got %T", ops[0])
	}
	if limit.Count != 10 {
		t.Errorf("expected 10, got %d", limit.Count)
	}
}

func TestParseEmpty(t *testing.T) {
	ops, err := Parse("   ")
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 0 {
		t.Errorf("expected empty pipeline, got %d ops", len(ops))
	}
}

func TestParsePipeline(t *testing.T) {
	ops, err := Parse("filter age > 20 | select name, age | sort age desc | limit 5")
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 4 {
		t.Fatalf("expected 4 ops, got %d", len(ops))
	}
	if _, ok := ops[0].(*ast.Filter); !ok {
		t.Errorf("op[0]: expected Filter, got %T", ops[0])
	}
	if _, ok := ops[1].(*ast.Select); !ok {
		t.Errorf("op[1]: expected Select, got %T", ops[1])
	}
	sort, ok := ops[2].(*ast.Sort)
	if !ok || sort.Column != "age" || sort.Ascending {
		t.Errorf("op[2]: unexpected %#v", ops[2])
	}
	if _, ok := ops[3].(*ast.Limit); !ok {
		t.Errorf("op[3]: expected Limit, got %T", ops[3])
	}
}

func TestParseFilter(t *testing.T) {
	cases := []struct {
		input string
		want  ast.Filter
	}{
		{`filter amount > 15`, ast.Filter{Column: "amount", Operator: ast.Gt, Value: "15"}},
		{`filter amount >= 1.5`, ast.Filter{Column: "amount", Operator: ast.Ge, Value: "1.5"}},
		{`filter amount < -2`, ast.Filter{Column: "amount", Operator: ast.Lt, Value: "-2"}},
		{`filter city == "New York"`, ast.Filter{Column: "city", Operator: ast.Eq, Value: "New York"}},
		{`filter city = NY`, ast.Filter{Column: "city", Operator: ast.Eq, Value: "NY"}},
		{`filter city != 'LA'`, ast.Filter{Column: "city", Operator: ast.Ne, Value: "LA"}},
		{`filter age <= 30`, ast.Filter{Column: "age", Operator: ast.Le, Value: "30"}},
		{`filter name contains "an"`, ast.Filter{Column: "name", Operator: ast.Contains, Value: "an"}},
		{"filter `unit.price` > 3", ast.Filter{Column: "unit.price", Operator: ast.Gt, Value: "3"}},
		{`filter active == true`, ast.Filter{Column: "active", Operator: ast.Eq, Value: "true"}},
	}
	for _, c := range cases {
		ops, err := Parse(c.input)
		if err != nil {
			t.Errorf("%s: %v", c.input, err)
			continue
		}
		f, ok := ops[0].(*ast.Filter)
		if !ok {
			t.Errorf("%s: expected Filter, got %T", c.input, ops[0])
			continue
		}
		if *f != c.want {
			t.Errorf("%s: expected %+v, got %+v", c.input, c.want, *f)
		}
	}
}

func TestParseGroup(t *testing.T) {
	ops, err := Parse("group city, active agg sum(age) as total, count(name), AVG(age)")
	if err != nil {
		t.Fatal(err)
	}
	g := ops[0].(*ast.GroupBy)
	if len(g.Columns) != 2 || g.Columns[0] != "city" || g.Columns[1] != "active" {
		t.Errorf("unexpected group columns %v", g.Columns)
	}
	if len(g.Aggregations) != 3 {
		t.Fatalf("expected 3 aggregations, got %d", len(g.Aggregations))
	}
	names := []string{"total", "count(name)", "avg(age)"}
	funcs := []ast.AggFunc{ast.Sum, ast.Count, ast.Avg}
	for i, a := range g.Aggregations {
		if a.OutputName() != names[i] || a.Function != funcs[i] {
			t.Errorf("aggregation %d: expected %s %s, got %s %s", i, funcs[i], names[i], a.Function, a.OutputName())
		}
	}
}

func TestParseSortDefaultsAscending(t *testing.T) {
	ops, err := Parse("sort `first name`")
	if err != nil {
		t.Fatal(err)
	}
	s := ops[0].(*ast.Sort)
	if s.Column != "first name" || !s.Ascending {
		t.Errorf("unexpected sort %+v", s)
	}
}

func TestParseTransform(t *testing.T) {
	ops, err := Parse("transform amount * 1.2 as gross | transform qty - 1")
	if err != nil {
		t.Fatal(err)
	}
	tr := ops[0].(*ast.Transform)
	want := ast.Transform{Column: "amount", Operation: ast.Multiply, Value: 1.2, Alias: "gross"}
	if *tr != want {
		t.Errorf("expected %+v, got %+v", want, *tr)
	}
	tr = ops[1].(*ast.Transform)
	want = ast.Transform{Column: "qty", Operation: ast.Subtract, Value: 1, Alias: "qty"}
	if *tr != want {
		t.Errorf("expected %+v, got %+v", want, *tr)
	}
}

func TestParseMatchesJSON(t *testing.T) {
	ops, err := Parse("filter amount > 15 | group name agg sum(amount)")
	if err != nil {
		t.Fatal(err)
	}
	got, err := json.Marshal(ops)
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"column":"amount","operator":"Gt","type":"Filter","value":"15"},` +
		`{"aggregations":[{"function":"Sum","column":"amount"}],"columns":["name"],"type":"GroupBy"}]`
	if string(got) != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"select",
		"filter amount",
		"filter amount > ",
		"filter amount ~ 3",
		"group city",
		"group city agg",
		"group city agg median(x)",
		"group city agg sum(x",
		"sort",
		"limit",
		"limit many",
		"transform amount ^ 2",
		"transform amount * x",
		"explode col",
		"limit 1 limit 2",
		"limit 1 |",
	}
	for _, input := range bad {
		if _, err := Parse(input); err == nil {
			t.Errorf("%q: expected error", input)
		}
	}
}
