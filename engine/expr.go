package engine

import (
	"math"
	"strconv"
	"strings"

	"github.com/razeghi71/dqserve/ast"
	"github.com/razeghi71/dqserve/qerr"
	"github.com/razeghi71/dqserve/table"
)

// Expr is a column expression evaluated against a whole table. The result
// has one cell per input row, except for aggregates which reduce to one.
type Expr interface {
	Eval(t *table.Table) (table.Column, error)
	String() string
}

// ColumnRef references a column by its literal name.
type ColumnRef struct {
	Name string
}

// Col builds a reference to the named column. Names are never split on
// dots or treated as operators; they always resolve literally.
func Col(name string) *ColumnRef {
	return &ColumnRef{Name: name}
}

// Index resolves the column in t.
func (c *ColumnRef) Index(t *table.Table) (int, error) {
	idx := t.ColIndex(c.Name)
	if idx < 0 {
		return -1, qerr.ColumnNotFound(c.Name)
	}
	return idx, nil
}

func (c *ColumnRef) Eval(t *table.Table) (table.Column, error) {
	idx, err := c.Index(t)
	if err != nil {
		return nil, err
	}
	return t.Column(idx), nil
}

func (c *ColumnRef) String() string {
	return quoteIdent(c.Name)
}

// quoteIdent renders names containing '.', ' ' or '-' as a quoted
// identifier.
func quoteIdent(name string) string {
	if !strings.ContainsAny(name, ". -\"") {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Literal is a constant broadcast to every row.
type Literal struct {
	Value table.Value
}

// Lit wraps a value in a Literal.
func Lit(v table.Value) *Literal {
	return &Literal{Value: v}
}

func (l *Literal) Eval(t *table.Table) (table.Column, error) {
	vals := make([]table.Value, t.NumRows())
	for i := range vals {
		vals[i] = l.Value
	}
	typ := l.Value.Type
	if typ == table.TypeNull {
		typ = table.TypeString
	}
	return table.NewColumn(typ, vals)
}

func (l *Literal) String() string {
	switch l.Value.Type {
	case table.TypeString:
		return "'" + strings.ReplaceAll(l.Value.Str, "'", "''") + "'"
	default:
		return l.Value.AsString()
	}
}

// Comparison compares every cell of Left with a literal. The comparison is
// numeric when the literal is a number and textual otherwise. Null cells
// never match.
type Comparison struct {
	Left  Expr
	Op    ast.FilterOperator
	Right *Literal
}

func (c *Comparison) Eval(t *table.Table) (table.Column, error) {
	col, err := c.Left.Eval(t)
	if err != nil {
		return nil, err
	}
	n := col.Len()
	out := make([]bool, n)

	if want, ok := c.Right.Value.AsFloat(); ok {
		switch col := col.(type) {
		case *table.IntColumn:
			for i := 0; i < n; i++ {
				out[i] = !col.IsNull(i) && cmpResult(c.Op, compareFloat(float64(col.Data[i]), want))
			}
		case *table.FloatColumn:
			for i := 0; i < n; i++ {
				out[i] = !col.IsNull(i) && cmpResult(c.Op, compareFloat(col.Data[i], want))
			}
		case *table.StringColumn:
			for i := 0; i < n; i++ {
				if col.IsNull(i) {
					continue
				}
				if f, ok := parseNumber(col.Data[i]); ok {
					out[i] = cmpResult(c.Op, compareFloat(f, want))
				}
			}
		case *table.BoolColumn:
			return nil, qerr.New(qerr.KindType, "cannot compare bool column %s with number %s", c.Left, c.Right)
		}
		return &table.BoolColumn{Data: out}, nil
	}

	want := c.Right.Value.AsString()
	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			continue
		}
		out[i] = cmpResult(c.Op, strings.Compare(col.Value(i).AsString(), want))
	}
	return &table.BoolColumn{Data: out}, nil
}

func (c *Comparison) String() string {
	return c.Left.String() + " " + opSymbol(c.Op) + " " + c.Right.String()
}

// ContainsExpr is a case-sensitive substring test on a string column.
type ContainsExpr struct {
	Left   Expr
	Substr string
}

func (c *ContainsExpr) Eval(t *table.Table) (table.Column, error) {
	col, err := c.Left.Eval(t)
	if err != nil {
		return nil, err
	}
	sc, ok := col.(*table.StringColumn)
	if !ok {
		return nil, qerr.New(qerr.KindType, "Contains requires a string column, %s is %s", c.Left, col.Type())
	}
	out := make([]bool, sc.Len())
	for i, s := range sc.Data {
		out[i] = !sc.IsNull(i) && strings.Contains(s, c.Substr)
	}
	return &table.BoolColumn{Data: out}, nil
}

func (c *ContainsExpr) String() string {
	return c.Left.String() + " CONTAINS " + Lit(table.StrVal(c.Substr)).String()
}

// Arithmetic combines two numeric expressions elementwise into a float
// column. A null operand or a zero divisor gives a null cell.
type Arithmetic struct {
	Left  Expr
	Op    ast.TransformOperation
	Right Expr
}

func (a *Arithmetic) Eval(t *table.Table) (table.Column, error) {
	left, err := a.Left.Eval(t)
	if err != nil {
		return nil, err
	}
	right, err := a.Right.Eval(t)
	if err != nil {
		return nil, err
	}
	for _, side := range []struct {
		expr Expr
		col  table.Column
	}{{a.Left, left}, {a.Right, right}} {
		if !side.col.Type().IsNumeric() {
			return nil, qerr.New(qerr.KindType, "%s requires a numeric column, %s is %s", a.Op, side.expr, side.col.Type())
		}
	}

	n := left.Len()
	data := make([]float64, n)
	var nulls []bool
	setNull := func(i int) {
		if nulls == nil {
			nulls = make([]bool, n)
		}
		nulls[i] = true
	}
	for i := 0; i < n; i++ {
		l, lok := left.Value(i).AsFloat()
		r, rok := right.Value(i).AsFloat()
		if !lok || !rok {
			setNull(i)
			continue
		}
		switch a.Op {
		case ast.Multiply:
			data[i] = l * r
		case ast.Divide:
			if r == 0 {
				setNull(i)
				continue
			}
			data[i] = l / r
		case ast.Add:
			data[i] = l + r
		case ast.Subtract:
			data[i] = l - r
		default:
			return nil, qerr.New(qerr.KindInvalidQuery, "unknown transform operation %s", a.Op)
		}
	}
	return &table.FloatColumn{Data: data, Nulls: nulls}, nil
}

func (a *Arithmetic) String() string {
	sym := map[ast.TransformOperation]string{
		ast.Multiply: "*",
		ast.Divide:   "/",
		ast.Add:      "+",
		ast.Subtract: "-",
	}[a.Op]
	return a.Left.String() + " " + sym + " " + a.Right.String()
}

// AggregateExpr reduces a column to one value per group. Null cells are
// ignored by every function.
type AggregateExpr struct {
	Func  ast.AggFunc
	Arg   Expr
	Alias string
}

// ResultType returns the type produced when aggregating a column of type in.
func (a *AggregateExpr) ResultType(in table.ValueType) (table.ValueType, error) {
	switch a.Func {
	case ast.Sum:
		if !in.IsNumeric() {
			return 0, qerr.New(qerr.KindType, "Sum requires a numeric column, %s is %s", a.Arg, in)
		}
		return in, nil
	case ast.Avg:
		if !in.IsNumeric() {
			return 0, qerr.New(qerr.KindType, "Avg requires a numeric column, %s is %s", a.Arg, in)
		}
		return table.TypeFloat, nil
	case ast.Min, ast.Max:
		return in, nil
	case ast.Count:
		return table.TypeInt, nil
	default:
		return 0, qerr.New(qerr.KindInvalidQuery, "unknown aggregation function %s", a.Func)
	}
}

// Reduce aggregates the given rows of col. An integer Sum that does not
// fit in int64 is a KindQueryExecution error.
func (a *AggregateExpr) Reduce(col table.Column, rows []int) (table.Value, error) {
	switch a.Func {
	case ast.Count:
		n := 0
		for _, r := range rows {
			if !col.IsNull(r) {
				n++
			}
		}
		return table.IntVal(int64(n)), nil
	case ast.Sum:
		switch col := col.(type) {
		case *table.IntColumn:
			var sum int64
			for _, r := range rows {
				if col.IsNull(r) {
					continue
				}
				v := col.Data[r]
				next := sum + v
				if (v > 0 && next < sum) || (v < 0 && next > sum) {
					return table.Value{}, qerr.New(qerr.KindQueryExecution, "integer overflow in %s", a)
				}
				sum = next
			}
			return table.IntVal(sum), nil
		case *table.FloatColumn:
			var sum float64
			for _, r := range rows {
				if !col.IsNull(r) {
					sum += col.Data[r]
				}
			}
			return table.FloatVal(sum), nil
		}
		return table.Null(), nil
	case ast.Avg:
		var sum float64
		n := 0
		for _, r := range rows {
			if f, ok := col.Value(r).AsFloat(); ok {
				sum += f
				n++
			}
		}
		if n == 0 {
			return table.Null(), nil
		}
		return table.FloatVal(sum / float64(n)), nil
	case ast.Min, ast.Max:
		best := table.Null()
		for _, r := range rows {
			v := col.Value(r)
			if v.IsNull() {
				continue
			}
			if best.IsNull() {
				best = v
				continue
			}
			cmp := compareValues(v, best)
			if (a.Func == ast.Min && cmp < 0) || (a.Func == ast.Max && cmp > 0) {
				best = v
			}
		}
		return best, nil
	}
	return table.Null(), nil
}

// Eval aggregates the whole table into a single-cell column.
func (a *AggregateExpr) Eval(t *table.Table) (table.Column, error) {
	col, err := a.Arg.Eval(t)
	if err != nil {
		return nil, err
	}
	typ, err := a.ResultType(col.Type())
	if err != nil {
		return nil, err
	}
	rows := make([]int, col.Len())
	for i := range rows {
		rows[i] = i
	}
	v, err := a.Reduce(col, rows)
	if err != nil {
		return nil, err
	}
	return table.NewColumn(typ, []table.Value{v})
}

func (a *AggregateExpr) String() string {
	s := strings.ToLower(a.Func.String()) + "(" + a.Arg.String() + ")"
	if a.Alias != "" {
		s += " AS " + quoteIdent(a.Alias)
	}
	return s
}

// BuildFilter turns a Filter's (column, operator, value) into a predicate
// producing a bool column. The value is a number if it parses as one.
func BuildFilter(column string, op ast.FilterOperator, value string) (Expr, error) {
	if op == ast.Contains {
		return &ContainsExpr{Left: Col(column), Substr: value}, nil
	}
	if opSymbol(op) == "" {
		return nil, qerr.New(qerr.KindInvalidQuery, "unknown filter operator %s", op)
	}
	lit := Lit(table.StrVal(value))
	if f, ok := parseNumber(value); ok {
		lit = Lit(table.FloatVal(f))
	}
	return &Comparison{Left: Col(column), Op: op, Right: lit}, nil
}

// BuildAggregation turns an Aggregation into an aggregate expression
// named by its output column.
func BuildAggregation(agg ast.Aggregation) *AggregateExpr {
	return &AggregateExpr{Func: agg.Function, Arg: Col(agg.Column), Alias: agg.OutputName()}
}

// BuildTransform builds `column <op> value`.
func BuildTransform(column string, op ast.TransformOperation, value float64) Expr {
	return &Arithmetic{Left: Col(column), Op: op, Right: Lit(table.FloatVal(value))}
}

// parseNumber accepts finite numbers only, so "NaN" and "Inf" compare as
// text.
func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func opSymbol(op ast.FilterOperator) string {
	switch op {
	case ast.Eq:
		return "="
	case ast.Ne:
		return "!="
	case ast.Gt:
		return ">"
	case ast.Ge:
		return ">="
	case ast.Lt:
		return "<"
	case ast.Le:
		return "<="
	}
	return ""
}

func cmpResult(op ast.FilterOperator, cmp int) bool {
	switch op {
	case ast.Eq:
		return cmp == 0
	case ast.Ne:
		return cmp != 0
	case ast.Lt:
		return cmp < 0
	case ast.Gt:
		return cmp > 0
	case ast.Le:
		return cmp <= 0
	case ast.Ge:
		return cmp >= 0
	}
	return false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareValues orders two non-null values of the same column: numbers
// numerically, strings bytewise, false before true.
func compareValues(a, b table.Value) int {
	if af, ok := a.AsFloat(); ok {
		if bf, ok := b.AsFloat(); ok {
			return compareFloat(af, bf)
		}
	}
	if a.Type == table.TypeBool && b.Type == table.TypeBool {
		switch {
		case a.Bool == b.Bool:
			return 0
		case !a.Bool:
			return -1
		}
		return 1
	}
	return strings.Compare(a.AsString(), b.AsString())
}
