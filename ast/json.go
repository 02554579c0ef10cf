package ast

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/razeghi71/dqserve/qerr"
)

// requiredFields lists the keys every operation object must carry. A null
// value counts as missing.
var requiredFields = map[string][]string{
	"Select":    {"columns"},
	"Filter":    {"column", "operator", "value"},
	"GroupBy":   {"columns", "aggregations"},
	"Sort":      {"column", "ascending"},
	"Limit":     {"count"},
	"Transform": {"column", "operation", "value", "alias"},
}

var requiredAggregationFields = []string{"function", "column"}

// UnmarshalJSON decodes a JSON array of operations tagged by "type":
//
//	[{"type":"Filter","column":"amount","operator":"Gt","value":"15"}, ...]
//
// Unknown tags, unknown or missing fields and invalid enum names are
// KindInvalidQuery errors.
func (p *Pipeline) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return &qerr.Error{Kind: qerr.KindInvalidQuery, Op: qerr.NoOp, Msg: "operations must be an array", Err: err}
	}
	ops := make(Pipeline, 0, len(raws))
	for i, raw := range raws {
		op, err := DecodeOp(raw)
		if err != nil {
			return &qerr.Error{Kind: qerr.KindInvalidQuery, Op: i, Msg: err.Error(), Err: err}
		}
		ops = append(ops, op)
	}
	*p = ops
	return nil
}

// MarshalJSON encodes the pipeline in the same tagged form.
func (p Pipeline) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, len(p))
	for i, op := range p {
		b, err := EncodeOp(op)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		out[i] = b
	}
	return json.Marshal(out)
}

// DecodeOp decodes one tagged operation object.
func DecodeOp(raw []byte) (Op, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("operation must be an object: %w", err)
	}
	tagRaw, ok := fields["type"]
	if !ok {
		return nil, fmt.Errorf("missing \"type\" field")
	}
	var tag string
	if err := json.Unmarshal(tagRaw, &tag); err != nil {
		return nil, fmt.Errorf("\"type\" must be a string: %w", err)
	}
	delete(fields, "type")

	var op Op
	switch tag {
	case "Select":
		op = &Select{}
	case "Filter":
		op = &Filter{}
	case "GroupBy":
		op = &GroupBy{}
	case "Sort":
		op = &Sort{}
	case "Limit":
		op = &Limit{}
	case "Transform":
		op = &Transform{}
	default:
		return nil, fmt.Errorf("unknown operation type %q", tag)
	}

	if err := checkRequired(tag, fields, requiredFields[tag]); err != nil {
		return nil, err
	}
	if tag == "GroupBy" {
		var aggs []map[string]json.RawMessage
		// A malformed list is reported by the typed decode below.
		if json.Unmarshal(fields["aggregations"], &aggs) == nil {
			for i, agg := range aggs {
				if err := checkRequired(fmt.Sprintf("GroupBy: aggregation %d", i), agg, requiredAggregationFields); err != nil {
					return nil, err
				}
			}
		}
	}

	body, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(op); err != nil {
		return nil, fmt.Errorf("%s: %w", tag, err)
	}

	if l, ok := op.(*Limit); ok && l.Count < 0 {
		return nil, fmt.Errorf("Limit: count must be non-negative, got %d", l.Count)
	}
	return op, nil
}

func checkRequired(what string, fields map[string]json.RawMessage, keys []string) error {
	for _, key := range keys {
		v, ok := fields[key]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return fmt.Errorf("%s: missing required field %q", what, key)
		}
	}
	return nil
}

// EncodeOp encodes one operation with its "type" tag.
func EncodeOp(op Op) ([]byte, error) {
	body, err := json.Marshal(op)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, err := json.Marshal(op.Name())
	if err != nil {
		return nil, err
	}
	fields["type"] = tag
	return json.Marshal(fields)
}
