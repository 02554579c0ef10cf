package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/razeghi71/dqserve/ast"
	"github.com/razeghi71/dqserve/qerr"
	"github.com/razeghi71/dqserve/table"
)

// Execute runs a full pipeline on the given input table. Operations are
// applied in order; the first failure aborts the run and is reported with
// the index of the failing operation.
func Execute(input *table.Table, ops ast.Pipeline) (*table.Table, error) {
	return NewSession("", input, nil).Run(ops)
}

// Session is the execution context of one request: the table it loaded
// and the logger it reports to. Sessions share nothing.
type Session struct {
	Name   string
	Table  *table.Table
	Logger *slog.Logger
}

// NewSession creates a session over t. A nil logger discards output.
func NewSession(name string, t *table.Table, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{Name: name, Table: t, Logger: logger}
}

// Run applies ops to the session table and returns the derived table.
// The session table itself is left unchanged.
func (s *Session) Run(ops ast.Pipeline) (*table.Table, error) {
	if s.Table == nil {
		return nil, qerr.New(qerr.KindQueryExecution, "no table loaded")
	}
	current := s.Table
	for i, op := range ops {
		next, err := execOp(op, current)
		if err != nil {
			s.Logger.Debug("operation failed", "table", s.Name, "op_index", i, "error", err)
			return nil, qerr.AtOp(i, err)
		}
		s.Logger.Debug("operation applied",
			"table", s.Name,
			"op_index", i,
			"op", op.Name(),
			"rows", next.NumRows(),
			"columns", next.NumCols(),
		)
		current = next
	}
	return current, nil
}

func execOp(op ast.Op, t *table.Table) (*table.Table, error) {
	switch o := op.(type) {
	case *ast.Select:
		return execSelect(o, t)
	case *ast.Filter:
		return execFilter(o, t)
	case *ast.GroupBy:
		return execGroupBy(o, t)
	case *ast.Sort:
		return execSort(o, t)
	case *ast.Limit:
		return execLimit(o, t)
	case *ast.Transform:
		return execTransform(o, t)
	case nil:
		return nil, qerr.New(qerr.KindInvalidQuery, "missing operation")
	default:
		return nil, qerr.New(qerr.KindInvalidQuery, "unknown operation type %T", op)
	}
}

func resolve(t *table.Table, names []string, what string) ([]int, error) {
	indices := make([]int, len(names))
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		if seen[name] {
			return nil, qerr.New(qerr.KindInvalidQuery, "%s: column %q listed more than once", what, name)
		}
		seen[name] = true
		idx, err := Col(name).Index(t)
		if err != nil {
			return nil, err
		}
		indices[i] = idx
	}
	return indices, nil
}

func execSelect(o *ast.Select, t *table.Table) (*table.Table, error) {
	if len(o.Columns) == 0 {
		return nil, qerr.New(qerr.KindInvalidQuery, "Select requires at least one column")
	}
	indices, err := resolve(t, o.Columns, "Select")
	if err != nil {
		return nil, err
	}
	return t.Project(indices), nil
}

func execFilter(o *ast.Filter, t *table.Table) (*table.Table, error) {
	pred, err := BuildFilter(o.Column, o.Operator, o.Value)
	if err != nil {
		return nil, err
	}
	col, err := pred.Eval(t)
	if err != nil {
		return nil, err
	}
	mask, ok := col.(*table.BoolColumn)
	if !ok {
		return nil, qerr.New(qerr.KindQueryExecution, "predicate %s did not produce booleans", pred)
	}

	var rows []int
	for i, keep := range mask.Data {
		if keep && !mask.IsNull(i) {
			rows = append(rows, i)
		}
	}
	return t.Take(rows), nil
}

func execGroupBy(o *ast.GroupBy, t *table.Table) (*table.Table, error) {
	if len(o.Columns) == 0 {
		return nil, qerr.New(qerr.KindInvalidQuery, "GroupBy requires at least one column to group by")
	}
	if len(o.Aggregations) == 0 {
		return nil, qerr.New(qerr.KindInvalidQuery, "GroupBy requires at least one aggregation function")
	}
	groupIndices, err := resolve(t, o.Columns, "GroupBy")
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool, len(o.Columns)+len(o.Aggregations))
	for _, c := range o.Columns {
		names[c] = true
	}
	aggs := make([]*AggregateExpr, len(o.Aggregations))
	args := make([]table.Column, len(o.Aggregations))
	types := make([]table.ValueType, len(o.Aggregations))
	for i, a := range o.Aggregations {
		agg := BuildAggregation(a)
		if names[agg.Alias] {
			return nil, qerr.New(qerr.KindInvalidQuery, "GroupBy output column %q is defined more than once", agg.Alias)
		}
		names[agg.Alias] = true

		col, err := agg.Arg.Eval(t)
		if err != nil {
			return nil, err
		}
		typ, err := agg.ResultType(col.Type())
		if err != nil {
			return nil, err
		}
		aggs[i], args[i], types[i] = agg, col, typ
	}

	// Groups keep the order in which their key first appears.
	type groupEntry struct {
		first int
		rows  []int
	}
	var groups []groupEntry
	keyMap := make(map[string]int)

	var key strings.Builder
	for r := 0; r < t.NumRows(); r++ {
		key.Reset()
		for _, idx := range groupIndices {
			writeKey(&key, t.Column(idx).Value(r))
		}
		gi, exists := keyMap[key.String()]
		if !exists {
			gi = len(groups)
			groups = append(groups, groupEntry{first: r})
			keyMap[key.String()] = gi
		}
		groups[gi].rows = append(groups[gi].rows, r)
	}

	firsts := make([]int, len(groups))
	for i, g := range groups {
		firsts[i] = g.first
	}

	schema := make(table.Schema, 0, len(groupIndices)+len(aggs))
	cols := make([]table.Column, 0, len(groupIndices)+len(aggs))
	for _, idx := range groupIndices {
		schema = append(schema, t.Field(idx))
		cols = append(cols, t.Column(idx).Take(firsts))
	}
	for i, agg := range aggs {
		vals := make([]table.Value, len(groups))
		for gi, g := range groups {
			v, err := agg.Reduce(args[i], g.rows)
			if err != nil {
				return nil, err
			}
			vals[gi] = v
		}
		col, err := table.NewColumn(types[i], vals)
		if err != nil {
			return nil, qerr.Wrap(qerr.KindQueryExecution, err)
		}
		schema = append(schema, table.Field{Name: agg.Alias, Type: types[i]})
		cols = append(cols, col)
	}

	result, err := table.New(schema, cols)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindQueryExecution, err)
	}
	return result, nil
}

// writeKey appends a typed, length-prefixed encoding of v so that distinct
// values (including null and the string "null") never collide.
func writeKey(b *strings.Builder, v table.Value) {
	s := ""
	if !v.IsNull() {
		s = v.AsString()
	}
	b.WriteString(strconv.Itoa(int(v.Type)))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

func execSort(o *ast.Sort, t *table.Table) (*table.Table, error) {
	col, err := Col(o.Column).Eval(t)
	if err != nil {
		return nil, err
	}

	order := make([]int, t.NumRows())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		// Nulls sort last regardless of direction.
		an, bn := col.IsNull(a), col.IsNull(b)
		if an || bn {
			return !an && bn
		}
		cmp := compareValues(col.Value(a), col.Value(b))
		if o.Ascending {
			return cmp < 0
		}
		return cmp > 0
	})
	return t.Take(order), nil
}

func execLimit(o *ast.Limit, t *table.Table) (*table.Table, error) {
	if o.Count < 0 {
		return nil, qerr.New(qerr.KindInvalidQuery, "Limit count must be non-negative, got %d", o.Count)
	}
	return t.Slice(o.Count), nil
}

func execTransform(o *ast.Transform, t *table.Table) (*table.Table, error) {
	if o.Alias == "" {
		return nil, qerr.New(qerr.KindInvalidQuery, "Transform requires an alias")
	}
	expr := BuildTransform(o.Column, o.Operation, o.Value)
	col, err := expr.Eval(t)
	if err != nil {
		return nil, err
	}
	result, err := t.WithColumn(o.Alias, col)
	if err != nil {
		return nil, qerr.New(qerr.KindQueryExecution, "transform %s: %v", expr, err)
	}
	return result, nil
}

// Explain renders a pipeline as one expression per line, for logs and the
// CLI.
func Explain(ops ast.Pipeline) string {
	var sb strings.Builder
	for i, op := range ops {
		fmt.Fprintf(&sb, "%d: %s", i, op.Name())
		switch o := op.(type) {
		case *ast.Select:
			cols := make([]string, len(o.Columns))
			for j, c := range o.Columns {
				cols[j] = Col(c).String()
			}
			sb.WriteString(" " + strings.Join(cols, ", "))
		case *ast.Filter:
			if pred, err := BuildFilter(o.Column, o.Operator, o.Value); err == nil {
				sb.WriteString(" " + pred.String())
			}
		case *ast.GroupBy:
			cols := make([]string, len(o.Columns))
			for j, c := range o.Columns {
				cols[j] = Col(c).String()
			}
			aggs := make([]string, len(o.Aggregations))
			for j, a := range o.Aggregations {
				aggs[j] = BuildAggregation(a).String()
			}
			sb.WriteString(" " + strings.Join(cols, ", ") + " AGG " + strings.Join(aggs, ", "))
		case *ast.Sort:
			dir := "DESC"
			if o.Ascending {
				dir = "ASC"
			}
			sb.WriteString(" " + Col(o.Column).String() + " " + dir)
		case *ast.Limit:
			sb.WriteString(" " + strconv.Itoa(o.Count))
		case *ast.Transform:
			sb.WriteString(" " + BuildTransform(o.Column, o.Operation, o.Value).String() + " AS " + quoteIdent(o.Alias))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
