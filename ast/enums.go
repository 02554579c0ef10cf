package ast

import (
	"fmt"
	"strings"
)

// FilterOperator is the comparison used by Filter.
type FilterOperator int

const (
	Eq FilterOperator = iota
	Ne
	Gt
	Ge
	Lt
	Le
	Contains
)

var filterOperatorNames = []string{"Eq", "Ne", "Gt", "Ge", "Lt", "Le", "Contains"}

func (o FilterOperator) String() string {
	if int(o) >= 0 && int(o) < len(filterOperatorNames) {
		return filterOperatorNames[o]
	}
	return fmt.Sprintf("FilterOperator(%d)", int(o))
}

func (o FilterOperator) MarshalText() ([]byte, error) {
	if int(o) < 0 || int(o) >= len(filterOperatorNames) {
		return nil, fmt.Errorf("unknown filter operator %d", int(o))
	}
	return []byte(o.String()), nil
}

func (o *FilterOperator) UnmarshalText(b []byte) error {
	i, err := lookup(filterOperatorNames, string(b), "filter operator")
	if err != nil {
		return err
	}
	*o = FilterOperator(i)
	return nil
}

// AggFunc is an aggregation function used by GroupBy.
type AggFunc int

const (
	Sum AggFunc = iota
	Avg
	Max
	Min
	Count
)

var aggFuncNames = []string{"Sum", "Avg", "Max", "Min", "Count"}

func (f AggFunc) String() string {
	if int(f) >= 0 && int(f) < len(aggFuncNames) {
		return aggFuncNames[f]
	}
	return fmt.Sprintf("AggFunc(%d)", int(f))
}

func (f AggFunc) lower() string {
	return strings.ToLower(f.String())
}

func (f AggFunc) MarshalText() ([]byte, error) {
	if int(f) < 0 || int(f) >= len(aggFuncNames) {
		return nil, fmt.Errorf("unknown aggregation function %d", int(f))
	}
	return []byte(f.String()), nil
}

func (f *AggFunc) UnmarshalText(b []byte) error {
	i, err := lookup(aggFuncNames, string(b), "aggregation function")
	if err != nil {
		return err
	}
	*f = AggFunc(i)
	return nil
}

// TransformOperation is the arithmetic applied by Transform.
type TransformOperation int

const (
	Multiply TransformOperation = iota
	Divide
	Add
	Subtract
)

var transformOperationNames = []string{"Multiply", "Divide", "Add", "Subtract"}

func (o TransformOperation) String() string {
	if int(o) >= 0 && int(o) < len(transformOperationNames) {
		return transformOperationNames[o]
	}
	return fmt.Sprintf("TransformOperation(%d)", int(o))
}

func (o TransformOperation) MarshalText() ([]byte, error) {
	if int(o) < 0 || int(o) >= len(transformOperationNames) {
		return nil, fmt.Errorf("unknown transform operation %d", int(o))
	}
	return []byte(o.String()), nil
}

func (o *TransformOperation) UnmarshalText(b []byte) error {
	i, err := lookup(transformOperationNames, string(b), "transform operation")
	if err != nil {
		return err
	}
	*o = TransformOperation(i)
	return nil
}

func lookup(names []string, s, what string) (int, error) {
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q (expected one of %s)", what, s, strings.Join(names, ", "))
}
