package table

import "fmt"

// Column is the storage of one table column. The set of implementations is
// closed: *IntColumn, *FloatColumn, *BoolColumn and *StringColumn. Callers
// that need the raw slices switch on the concrete type.
//
// Columns are never modified after construction, so tables may share them.
type Column interface {
	Type() ValueType
	Len() int
	IsNull(i int) bool
	Value(i int) Value
	// Take gathers the given row positions into a new column.
	Take(rows []int) Column
	column()
}

// IntColumn holds 64-bit integers. Nulls[i] marks a null cell; a nil Nulls
// slice means the column has no nulls.
type IntColumn struct {
	Data  []int64
	Nulls []bool
}

// FloatColumn holds 64-bit floats.
type FloatColumn struct {
	Data  []float64
	Nulls []bool
}

// BoolColumn holds booleans.
type BoolColumn struct {
	Data  []bool
	Nulls []bool
}

// StringColumn holds strings.
type StringColumn struct {
	Data  []string
	Nulls []bool
}

func (*IntColumn) column()    {}
func (*FloatColumn) column()  {}
func (*BoolColumn) column()   {}
func (*StringColumn) column() {}

func (c *IntColumn) Type() ValueType    { return TypeInt }
func (c *FloatColumn) Type() ValueType  { return TypeFloat }
func (c *BoolColumn) Type() ValueType   { return TypeBool }
func (c *StringColumn) Type() ValueType { return TypeString }

func (c *IntColumn) Len() int    { return len(c.Data) }
func (c *FloatColumn) Len() int  { return len(c.Data) }
func (c *BoolColumn) Len() int   { return len(c.Data) }
func (c *StringColumn) Len() int { return len(c.Data) }

func isNull(nulls []bool, i int) bool {
	return nulls != nil && nulls[i]
}

func (c *IntColumn) IsNull(i int) bool    { return isNull(c.Nulls, i) }
func (c *FloatColumn) IsNull(i int) bool  { return isNull(c.Nulls, i) }
func (c *BoolColumn) IsNull(i int) bool   { return isNull(c.Nulls, i) }
func (c *StringColumn) IsNull(i int) bool { return isNull(c.Nulls, i) }

func (c *IntColumn) Value(i int) Value {
	if c.IsNull(i) {
		return Null()
	}
	return IntVal(c.Data[i])
}

func (c *FloatColumn) Value(i int) Value {
	if c.IsNull(i) {
		return Null()
	}
	return FloatVal(c.Data[i])
}

func (c *BoolColumn) Value(i int) Value {
	if c.IsNull(i) {
		return Null()
	}
	return BoolVal(c.Data[i])
}

func (c *StringColumn) Value(i int) Value {
	if c.IsNull(i) {
		return Null()
	}
	return StrVal(c.Data[i])
}

func takeNulls(nulls []bool, rows []int) []bool {
	if nulls == nil {
		return nil
	}
	out := make([]bool, len(rows))
	for i, r := range rows {
		out[i] = nulls[r]
	}
	return out
}

func (c *IntColumn) Take(rows []int) Column {
	data := make([]int64, len(rows))
	for i, r := range rows {
		data[i] = c.Data[r]
	}
	return &IntColumn{Data: data, Nulls: takeNulls(c.Nulls, rows)}
}

func (c *FloatColumn) Take(rows []int) Column {
	data := make([]float64, len(rows))
	for i, r := range rows {
		data[i] = c.Data[r]
	}
	return &FloatColumn{Data: data, Nulls: takeNulls(c.Nulls, rows)}
}

func (c *BoolColumn) Take(rows []int) Column {
	data := make([]bool, len(rows))
	for i, r := range rows {
		data[i] = c.Data[r]
	}
	return &BoolColumn{Data: data, Nulls: takeNulls(c.Nulls, rows)}
}

func (c *StringColumn) Take(rows []int) Column {
	data := make([]string, len(rows))
	for i, r := range rows {
		data[i] = c.Data[r]
	}
	return &StringColumn{Data: data, Nulls: takeNulls(c.Nulls, rows)}
}

// NullCount returns the number of null cells in c.
func NullCount(c Column) int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			n++
		}
	}
	return n
}

// NewColumn builds a column of the given type from values. Null values
// become null cells; integer values are accepted by a float column. Any
// other type mismatch is an error.
func NewColumn(typ ValueType, vals []Value) (Column, error) {
	var nulls []bool
	markNull := func(i int) {
		if nulls == nil {
			nulls = make([]bool, len(vals))
		}
		nulls[i] = true
	}
	mismatch := func(i int, v Value) error {
		return fmt.Errorf("row %d: cannot store %s value %q in %s column", i, v.Type, v.AsString(), typ)
	}

	switch typ {
	case TypeInt:
		data := make([]int64, len(vals))
		for i, v := range vals {
			switch v.Type {
			case TypeNull:
				markNull(i)
			case TypeInt:
				data[i] = v.Int
			default:
				return nil, mismatch(i, v)
			}
		}
		return &IntColumn{Data: data, Nulls: nulls}, nil
	case TypeFloat:
		data := make([]float64, len(vals))
		for i, v := range vals {
			switch v.Type {
			case TypeNull:
				markNull(i)
			case TypeInt:
				data[i] = float64(v.Int)
			case TypeFloat:
				data[i] = v.Float
			default:
				return nil, mismatch(i, v)
			}
		}
		return &FloatColumn{Data: data, Nulls: nulls}, nil
	case TypeBool:
		data := make([]bool, len(vals))
		for i, v := range vals {
			switch v.Type {
			case TypeNull:
				markNull(i)
			case TypeBool:
				data[i] = v.Bool
			default:
				return nil, mismatch(i, v)
			}
		}
		return &BoolColumn{Data: data, Nulls: nulls}, nil
	case TypeString:
		data := make([]string, len(vals))
		for i, v := range vals {
			switch v.Type {
			case TypeNull:
				markNull(i)
			case TypeString:
				data[i] = v.Str
			default:
				return nil, mismatch(i, v)
			}
		}
		return &StringColumn{Data: data, Nulls: nulls}, nil
	default:
		return nil, fmt.Errorf("unsupported column type %s", typ)
	}
}

// InferType returns the narrowest column type able to hold every non-null
// value: all ints -> Int, ints and floats -> Float, all bools -> Bool, all
// strings -> String. Any other mix, or no non-null value, yields String.
func InferType(vals []Value) ValueType {
	typ := TypeNull
	for _, v := range vals {
		switch {
		case v.Type == TypeNull:
			continue
		case typ == TypeNull:
			typ = v.Type
		case typ == v.Type:
		case typ.IsNumeric() && v.Type.IsNumeric():
			typ = TypeFloat
		default:
			return TypeString
		}
	}
	if typ == TypeNull {
		return TypeString
	}
	return typ
}

// Stringify converts every non-null value to its text form, for columns
// whose values do not share a type.
func Stringify(vals []Value) []Value {
	out := make([]Value, len(vals))
	for i, v := range vals {
		if v.IsNull() || v.Type == TypeString {
			out[i] = v
			continue
		}
		out[i] = StrVal(v.AsString())
	}
	return out
}
