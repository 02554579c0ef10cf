package ast

// Op represents a single operation in the pipeline. The set of operations
// is closed; the executor switches over the concrete types.
type Op interface {
	opNode()
	// Name returns the wire tag of the operation.
	Name() string
}

// Pipeline is an ordered list of operations.
type Pipeline []Op

// Select projects onto exactly the named columns, in order.
type Select struct {
	Columns []string `json:"columns"`
}

// Filter keeps the rows whose column satisfies Operator against Value.
type Filter struct {
	Column   string         `json:"column"`
	Operator FilterOperator `json:"operator"`
	Value    string         `json:"value"`
}

// GroupBy partitions rows by Columns and computes one row per group.
type GroupBy struct {
	Columns      []string      `json:"columns"`
	Aggregations []Aggregation `json:"aggregations"`
}

// Sort orders rows by one column. Nulls always come last.
type Sort struct {
	Column    string `json:"column"`
	Ascending bool   `json:"ascending"`
}

// Limit keeps the first Count rows.
type Limit struct {
	Count int `json:"count"`
}

// Transform applies Operation between Column and Value and stores the
// result under Alias.
type Transform struct {
	Column    string             `json:"column"`
	Operation TransformOperation `json:"operation"`
	Value     float64            `json:"value"`
	Alias     string             `json:"alias"`
}

func (*Select) opNode()    {}
func (*Filter) opNode()    {}
func (*GroupBy) opNode()   {}
func (*Sort) opNode()      {}
func (*Limit) opNode()     {}
func (*Transform) opNode() {}

func (*Select) Name() string    { return "Select" }
func (*Filter) Name() string    { return "Filter" }
func (*GroupBy) Name() string   { return "GroupBy" }
func (*Sort) Name() string      { return "Sort" }
func (*Limit) Name() string     { return "Limit" }
func (*Transform) Name() string { return "Transform" }

// Aggregation is a (function, column, optional alias) triple used by GroupBy.
type Aggregation struct {
	Function AggFunc `json:"function"`
	Column   string  `json:"column"`
	Alias    *string `json:"alias,omitempty"`
}

// OutputName returns the alias, or "<func>(<column>)" when there is none.
func (a Aggregation) OutputName() string {
	if a.Alias != nil && *a.Alias != "" {
		return *a.Alias
	}
	return a.Function.lower() + "(" + a.Column + ")"
}

// Alias is a convenience for building Aggregation literals.
func Alias(s string) *string {
	return &s
}
