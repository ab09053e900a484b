package Expr

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
)

// ToFieldExpr resolves name against schema into a typed column reference.
func ToFieldExpr(name string, schema *arrow.Schema) (*ColumnResolve, error) {
	idx := schema.FieldIndices(name)
	if len(idx) == 0 {
		return nil, ErrUnknownColumn(name)
	}
	return &ColumnResolve{Name: name, Type: schema.Field(idx[0]).Type}, nil
}

// InferType returns the output type of e when evaluated against schema.
func InferType(e Expression, schema *arrow.Schema) (arrow.DataType, error) {
	switch ex := e.(type) {
	case *LiteralResolve:
		return ex.Type, nil
	case *ColumnResolve:
		f, err := ToFieldExpr(ex.Name, schema)
		if err != nil {
			return nil, err
		}
		return f.Type, nil
	case *CastExpr:
		return ex.TargetType, nil
	case *NullCheckExpr:
		if _, err := InferType(ex.Expr, schema); err != nil {
			return nil, err
		}
		return arrow.FixedWidthTypes.Boolean, nil
	case *BinaryExpr:
		lt, err := InferType(ex.Left, schema)
		if err != nil {
			return nil, err
		}
		rt, err := InferType(ex.Right, schema)
		if err != nil {
			return nil, err
		}
		switch {
		case ex.Op.isArithmetic():
			if !isNumeric(lt) || !isNumeric(rt) {
				return nil, fmt.Errorf("arithmetic %s needs numeric operands, got %s and %s", ex.Op, lt, rt)
			}
			return widerNumeric(lt, rt), nil
		case ex.Op.isLogical():
			if lt.ID() != arrow.BOOL || rt.ID() != arrow.BOOL {
				return nil, fmt.Errorf("%s needs boolean operands, got %s and %s", ex.Op, lt, rt)
			}
			return arrow.FixedWidthTypes.Boolean, nil
		default:
			if !arrow.TypeEqual(lt, rt) && !(isNumeric(lt) && isNumeric(rt)) {
				return nil, ErrCantCompareDifferentTypes(lt, rt)
			}
			return arrow.FixedWidthTypes.Boolean, nil
		}
	}
	return nil, ErrUnsupportedExpression(e.String())
}

// Bind resolves columns against schema and inserts the casts needed for the
// operands of every binary expression to share a type. The result is ready for
// EvalExpression.
func Bind(e Expression, schema *arrow.Schema) (Expression, error) {
	switch ex := e.(type) {
	case *ColumnResolve:
		return ToFieldExpr(ex.Name, schema)
	case *LiteralResolve:
		return ex, nil
	case *CastExpr:
		inner, err := Bind(ex.Expr, schema)
		if err != nil {
			return nil, err
		}
		return &CastExpr{Expr: inner, TargetType: ex.TargetType}, nil
	case *NullCheckExpr:
		inner, err := Bind(ex.Expr, schema)
		if err != nil {
			return nil, err
		}
		return &NullCheckExpr{Expr: inner, Not: ex.Not}, nil
	case *BinaryExpr:
		left, err := Bind(ex.Left, schema)
		if err != nil {
			return nil, err
		}
		right, err := Bind(ex.Right, schema)
		if err != nil {
			return nil, err
		}
		lt, err := InferType(left, schema)
		if err != nil {
			return nil, err
		}
		rt, err := InferType(right, schema)
		if err != nil {
			return nil, err
		}
		// literals adopt the column's type when the value fits
		if lit, ok := right.(*LiteralResolve); ok && !arrow.TypeEqual(lt, rt) && isNumeric(lt) {
			if v, ok := convertNumeric(lit.Value, lt); ok {
				right, rt = &LiteralResolve{Type: lt, Value: v}, lt
			}
		}
		if lit, ok := left.(*LiteralResolve); ok && !arrow.TypeEqual(lt, rt) && isNumeric(rt) {
			if v, ok := convertNumeric(lit.Value, rt); ok {
				left, lt = &LiteralResolve{Type: rt, Value: v}, rt
			}
		}
		if !arrow.TypeEqual(lt, rt) && isNumeric(lt) && isNumeric(rt) {
			target := widerNumeric(lt, rt)
			left = coerce(left, lt, target)
			right = coerce(right, rt, target)
		}
		out := &BinaryExpr{Left: left, Op: ex.Op, Right: right}
		if _, err := InferType(out, schema); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, ErrUnsupportedExpression(e.String())
}

// coerce converts literals in place and wraps anything else in a cast.
func coerce(e Expression, from, to arrow.DataType) Expression {
	if arrow.TypeEqual(from, to) {
		return e
	}
	if lit, ok := e.(*LiteralResolve); ok {
		if v, ok := convertNumeric(lit.Value, to); ok {
			return &LiteralResolve{Type: to, Value: v}
		}
	}
	return &CastExpr{Expr: e, TargetType: to}
}

func convertNumeric(v any, to arrow.DataType) (any, bool) {
	var f float64
	switch x := v.(type) {
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case float32:
		f = float64(x)
	case float64:
		f = x
	default:
		return nil, false
	}
	switch to.ID() {
	case arrow.INT32:
		return int32(f), float64(int32(f)) == f
	case arrow.INT64:
		return int64(f), float64(int64(f)) == f
	case arrow.FLOAT32:
		return float32(f), true
	case arrow.FLOAT64:
		return f, true
	}
	return nil, false
}

func isNumeric(t arrow.DataType) bool {
	switch t.ID() {
	case arrow.INT32, arrow.INT64, arrow.FLOAT32, arrow.FLOAT64:
		return true
	}
	return false
}

// widerNumeric orders int32 < int64 < float32 < float64, except that any float
// mixed with int64 widens to float64.
func widerNumeric(a, b arrow.DataType) arrow.DataType {
	rank := func(t arrow.DataType) int {
		switch t.ID() {
		case arrow.INT32:
			return 0
		case arrow.INT64:
			return 1
		case arrow.FLOAT32:
			return 2
		}
		return 3
	}
	if arrow.TypeEqual(a, b) {
		return a
	}
	if (a.ID() == arrow.INT64 || b.ID() == arrow.INT64) && (a.ID() == arrow.FLOAT32 || b.ID() == arrow.FLOAT32) {
		return arrow.PrimitiveTypes.Float64
	}
	if rank(a) >= rank(b) {
		return a
	}
	return b
}
