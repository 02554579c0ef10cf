package engine

import (
	"math"
	"sort"

	"github.com/razeghi71/dqserve/ast"
	"github.com/razeghi71/dqserve/qerr"
	"github.com/razeghi71/dqserve/table"
)

var describeStats = []string{"count", "null_count", "mean", "std", "min", "max", "median"}

// Describe summarises every column of t. The result has a "describe"
// column naming the statistic, then one column per input column: float
// for numeric inputs, string otherwise. Mean, std (sample) and median are
// null for non-numeric columns.
func Describe(t *table.Table) (*table.Table, error) {
	schema := table.Schema{{Name: "describe", Type: table.TypeString}}
	stats := make([]table.Value, len(describeStats))
	for i, s := range describeStats {
		stats[i] = table.StrVal(s)
	}
	first, err := table.NewColumn(table.TypeString, stats)
	if err != nil {
		return nil, err
	}
	cols := []table.Column{first}

	rows := make([]int, t.NumRows())
	for i := range rows {
		rows[i] = i
	}

	for i := 0; i < t.NumCols(); i++ {
		field := t.Field(i)
		col := t.Column(i)
		if field.Name == "describe" {
			return nil, qerr.New(qerr.KindInvalidQuery, "cannot describe a table with a column named %q", field.Name)
		}

		vals := make([]table.Value, 0, len(describeStats))
		for _, fn := range []ast.AggFunc{ast.Count, ast.Min, ast.Max, ast.Avg} {
			v, err := (&AggregateExpr{Func: fn}).Reduce(col, rows)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		count, lo, hi, mean := vals[0], vals[1], vals[2], vals[3]
		nulls := table.IntVal(int64(table.NullCount(col)))

		typ := table.TypeString
		if field.Type.IsNumeric() {
			typ = table.TypeFloat
			xs := floats(col)
			vals = []table.Value{count, nulls, mean, stddev(xs), lo, hi, median(xs)}
		} else {
			vals = table.Stringify([]table.Value{count, nulls, table.Null(), table.Null(), lo, hi, table.Null()})
		}

		c, err := table.NewColumn(typ, vals)
		if err != nil {
			return nil, qerr.Wrap(qerr.KindQueryExecution, err)
		}
		schema = append(schema, field)
		schema[len(schema)-1].Type = typ
		cols = append(cols, c)
	}

	result, err := table.New(schema, cols)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindQueryExecution, err)
	}
	return result, nil
}

// floats returns the non-null cells of a numeric column.
func floats(col table.Column) []float64 {
	xs := make([]float64, 0, col.Len())
	for r := 0; r < col.Len(); r++ {
		if f, ok := col.Value(r).AsFloat(); ok {
			xs = append(xs, f)
		}
	}
	return xs
}

// stddev is the sample standard deviation; null below two values.
func stddev(xs []float64) table.Value {
	if len(xs) < 2 {
		return table.Null()
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return table.FloatVal(math.Sqrt(ss / float64(len(xs)-1)))
}

func median(xs []float64) table.Value {
	if len(xs) == 0 {
		return table.Null()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return table.FloatVal(sorted[mid])
	}
	return table.FloatVal((sorted[mid-1] + sorted[mid]) / 2)
}
