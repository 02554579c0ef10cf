package ast

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/razeghi71/dqserve/qerr"
)

const samplePipeline = `[
	{"type": "Filter", "column": "amount", "operator": "Gt", "value": "15"},
	{"type": "GroupBy", "columns": ["name"], "aggregations": [
		{"function": "Sum", "column": "amount"},
		{"function": "Count", "column": "id", "alias": "n"}
	]},
	{"type": "Sort", "column": "n", "ascending": false},
	{"type": "Limit", "count": 5},
	{"type": "Transform", "column": "n", "operation": "Multiply", "value": 2.5, "alias": "scaled"},
	{"type": "Select", "columns": ["name", "scaled"]}
]`

func TestDecodePipeline(t *testing.T) {
	var p Pipeline
	if err := json.Unmarshal([]byte(samplePipeline), &p); err != nil {
		t.Fatal(err)
	}
	if len(p) != 6 {
		t.Fatalf("expected 6 operations, got %d", len(p))
	}

	f, ok := p[0].(*Filter)
	if !ok {
		t.Fatalf("expected *Filter, got %T", p[0])
	}
	if f.Column != "amount" || f.Operator != Gt || f.Value != "15" {
		t.Errorf("unexpected filter %+v", f)
	}

	g := p[1].(*GroupBy)
	if g.Aggregations[0].OutputName() != "sum(amount)" {
		t.Errorf("expected default name sum(amount), got %q", g.Aggregations[0].OutputName())
	}
	if g.Aggregations[1].OutputName() != "n" {
		t.Errorf("expected alias n, got %q", g.Aggregations[1].OutputName())
	}

	if s := p[2].(*Sort); s.Ascending {
		t.Errorf("expected descending sort")
	}
	if l := p[3].(*Limit); l.Count != 5 {
		t.Errorf("expected limit 5, got %d", l.Count)
	}
	if tr := p[4].(*Transform); tr.Operation != Multiply || tr.Value != 2.5 || tr.Alias != "scaled" {
		t.Errorf("unexpected transform %+v", tr)
	}
}

func TestPipelineRoundTrip(t *testing.T) {
	var p Pipeline
	if err := json.Unmarshal([]byte(samplePipeline), &p); err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var again Pipeline
	if err := json.Unmarshal(b, &again); err != nil {
		t.Fatalf("re-decode of %s: %v", b, err)
	}
	b2, _ := json.Marshal(again)
	if string(b) != string(b2) {
		t.Errorf("encoding is not stable:\n%s\n%s", b, b2)
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := map[string]string{
		"unknown type":     `[{"type": "Join"}]`,
		"missing type":     `[{"columns": ["a"]}]`,
		"unknown operator": `[{"type": "Filter", "column": "a", "operator": "Like", "value": "x"}]`,
		"unknown function": `[{"type": "GroupBy", "columns": ["a"], "aggregations": [{"function": "Median", "column": "b"}]}]`,
		"unknown field":    `[{"type": "Sort", "column": "a", "ascending": true, "nulls": "first"}]`,
		"negative limit":   `[{"type": "Limit", "count": -1}]`,
		"fractional limit": `[{"type": "Limit", "count": 1.5}]`,
		"not an array":     `{"type": "Limit", "count": 1}`,
	}
	for name, input := range cases {
		var p Pipeline
		if err := json.Unmarshal([]byte(input), &p); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestDecodeMissingRequiredFields(t *testing.T) {
	cases := map[string]string{
		"sort without ascending":   `[{"type": "Sort", "column": "id"}]`,
		"filter without value":     `[{"type": "Filter", "column": "id", "operator": "Eq"}]`,
		"filter without operator":  `[{"type": "Filter", "column": "id", "value": "1"}]`,
		"filter with null value":   `[{"type": "Filter", "column": "id", "operator": "Eq", "value": null}]`,
		"limit without count":      `[{"type": "Limit"}]`,
		"select without columns":   `[{"type": "Select"}]`,
		"group without aggs":       `[{"type": "GroupBy", "columns": ["a"]}]`,
		"aggregation without func": `[{"type": "GroupBy", "columns": ["a"], "aggregations": [{"column": "b"}]}]`,
		"transform without alias":  `[{"type": "Transform", "column": "a", "operation": "Add", "value": 1}]`,
		"transform without value":  `[{"type": "Transform", "column": "a", "operation": "Add", "alias": "b"}]`,
	}
	for name, input := range cases {
		var p Pipeline
		err := json.Unmarshal([]byte(input), &p)
		if !qerr.Is(err, qerr.KindInvalidQuery) {
			t.Errorf("%s: expected invalid query error, got %v", name, err)
			continue
		}
		if !strings.Contains(err.Error(), "missing required field") {
			t.Errorf("%s: expected missing field message, got %v", name, err)
		}
	}
}

func TestDecodeErrorsAreInvalidQuery(t *testing.T) {
	var p Pipeline
	err := json.Unmarshal([]byte(`[{"type": "Explode"}]`), &p)
	if !qerr.Is(err, qerr.KindInvalidQuery) {
		t.Errorf("expected invalid query error, got %v", err)
	}
}

func TestDecodeErrorNamesOperationIndex(t *testing.T) {
	var p Pipeline
	err := json.Unmarshal([]byte(`[{"type":"Limit","count":1},{"type":"Nope"}]`), &p)
	if err == nil || !strings.Contains(err.Error(), "operation 1") {
		t.Errorf("expected error naming operation 1, got %v", err)
	}
}
