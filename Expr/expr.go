package Expr

import (
	"context"
	"fmt"

	"split-harness-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/compute"
	"github.com/apache/arrow/go/v17/arrow/scalar"
)

var (
	ErrUnsupportedExpression = func(info string) error {
		return fmt.Errorf("unsupported expression passed to EvalExpression: %s", info)
	}
	ErrUnknownColumn = func(name string) error {
		return fmt.Errorf("unknown column %q", name)
	}
	ErrCantCompareDifferentTypes = func(leftType, rightType arrow.DataType) error {
		return fmt.Errorf("cannot compare different data types: %s and %s", leftType, rightType)
	}
)

type binaryOperator int

const (
	// arithmetic
	Addition       binaryOperator = 1
	Subtraction    binaryOperator = 2
	Multiplication binaryOperator = 3
	Division       binaryOperator = 4
	// comparison
	Equal              binaryOperator = 6
	NotEqual           binaryOperator = 7
	LessThan           binaryOperator = 8
	LessThanOrEqual    binaryOperator = 9
	GreaterThan        binaryOperator = 10
	GreaterThanOrEqual binaryOperator = 11
	// logical
	And binaryOperator = 12
	Or  binaryOperator = 13
)

var opSymbols = map[binaryOperator]string{
	Addition:           "+",
	Subtraction:        "-",
	Multiplication:     "*",
	Division:           "/",
	Equal:              "=",
	NotEqual:           "!=",
	LessThan:           "<",
	LessThanOrEqual:    "<=",
	GreaterThan:        ">",
	GreaterThanOrEqual: ">=",
	And:                "AND",
	Or:                 "OR",
}

var comparisonFunctions = map[binaryOperator]string{
	Equal:              "equal",
	NotEqual:           "not_equal",
	LessThan:           "less",
	LessThanOrEqual:    "less_equal",
	GreaterThan:        "greater",
	GreaterThanOrEqual: "greater_equal",
	And:                "and_kleene",
	Or:                 "or_kleene",
}

func (op binaryOperator) String() string {
	if s, ok := opSymbols[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(op))
}

func (op binaryOperator) isArithmetic() bool {
	return op >= Addition && op <= Division
}

func (op binaryOperator) isLogical() bool {
	return op == And || op == Or
}

var (
	_ = (Expression)(&ColumnResolve{})
	_ = (Expression)(&LiteralResolve{})
	_ = (Expression)(&BinaryExpr{})
	_ = (Expression)(&CastExpr{})
	_ = (Expression)(&NullCheckExpr{})
)

// Expression is a node of a scalar expression tree evaluated against a batch.
type Expression interface {
	ExprNode()
	fmt.Stringer
}

// ColumnResolve references a column by name. Type is set once the column has
// been resolved against a schema.
type ColumnResolve struct {
	Name string
	Type arrow.DataType
}

func (c *ColumnResolve) ExprNode()      {}
func (c *ColumnResolve) String() string { return c.Name }

type LiteralResolve struct {
	Type  arrow.DataType
	Value any
}

func (l *LiteralResolve) ExprNode() {}
func (l *LiteralResolve) String() string {
	if s, ok := l.Value.(string); ok {
		return fmt.Sprintf("'%s'", s)
	}
	return fmt.Sprintf("%v", l.Value)
}

type BinaryExpr struct {
	Left  Expression
	Op    binaryOperator
	Right Expression
}

func (b *BinaryExpr) ExprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

type CastExpr struct {
	Expr       Expression
	TargetType arrow.DataType
}

func (c *CastExpr) ExprNode() {}
func (c *CastExpr) String() string {
	return fmt.Sprintf("CAST(%s AS %s)", c.Expr, c.TargetType)
}

// NullCheckExpr is IS NULL, or IS NOT NULL when Not is set.
type NullCheckExpr struct {
	Expr Expression
	Not  bool
}

func (n *NullCheckExpr) ExprNode() {}
func (n *NullCheckExpr) String() string {
	if n.Not {
		return fmt.Sprintf("(%s IS NOT NULL)", n.Expr)
	}
	return fmt.Sprintf("(%s IS NULL)", n.Expr)
}

func NewColumnResolve(name string) *ColumnResolve {
	return &ColumnResolve{Name: name}
}

func NewLiteralResolve(t arrow.DataType, v any) *LiteralResolve {
	return &LiteralResolve{Type: t, Value: v}
}

func NewBinaryExpr(left Expression, op binaryOperator, right Expression) *BinaryExpr {
	return &BinaryExpr{Left: left, Op: op, Right: right}
}

// EvalExpression evaluates expr over every row of batch. The returned array is
// owned by the caller. Allocations come from compute.GetAllocator(ctx).
func EvalExpression(ctx context.Context, expr Expression, batch *operators.RecordBatch) (arrow.Array, error) {
	switch e := expr.(type) {
	case *ColumnResolve:
		return evalColumn(e, batch)
	case *LiteralResolve:
		return evalLiteral(ctx, e, batch)
	case *BinaryExpr:
		return evalBinary(ctx, e, batch)
	case *CastExpr:
		return evalCast(ctx, e, batch)
	case *NullCheckExpr:
		return evalNullCheck(ctx, e, batch)
	default:
		return nil, ErrUnsupportedExpression(expr.String())
	}
}

func evalColumn(c *ColumnResolve, batch *operators.RecordBatch) (arrow.Array, error) {
	idx := batch.Schema.FieldIndices(c.Name)
	if len(idx) == 0 {
		return nil, ErrUnknownColumn(c.Name)
	}
	col := batch.Columns[idx[0]]
	col.Retain()
	return col, nil
}

func evalLiteral(ctx context.Context, l *LiteralResolve, batch *operators.RecordBatch) (arrow.Array, error) {
	sc, err := literalScalar(l)
	if err != nil {
		return nil, err
	}
	return scalar.MakeArrayFromScalar(sc, int(batch.RowCount), compute.GetAllocator(ctx))
}

func literalScalar(l *LiteralResolve) (scalar.Scalar, error) {
	switch l.Type.ID() {
	case arrow.BOOL:
		return scalar.NewBooleanScalar(l.Value.(bool)), nil
	case arrow.INT32:
		return scalar.NewInt32Scalar(l.Value.(int32)), nil
	case arrow.INT64:
		return scalar.NewInt64Scalar(l.Value.(int64)), nil
	case arrow.FLOAT32:
		return scalar.NewFloat32Scalar(l.Value.(float32)), nil
	case arrow.FLOAT64:
		return scalar.NewFloat64Scalar(l.Value.(float64)), nil
	case arrow.STRING:
		return scalar.NewStringScalar(l.Value.(string)), nil
	case arrow.NULL:
		return scalar.MakeNullScalar(arrow.Null), nil
	}
	return nil, ErrUnsupportedExpression(fmt.Sprintf("literal of type %s", l.Type))
}

func evalBinary(ctx context.Context, b *BinaryExpr, batch *operators.RecordBatch) (arrow.Array, error) {
	leftArr, err := EvalExpression(ctx, b.Left, batch)
	if err != nil {
		return nil, err
	}
	defer leftArr.Release()
	rightArr, err := EvalExpression(ctx, b.Right, batch)
	if err != nil {
		return nil, err
	}
	defer rightArr.Release()

	left, right := compute.NewDatum(leftArr), compute.NewDatum(rightArr)
	defer left.Release()
	defer right.Release()

	var out compute.Datum
	opt := compute.ArithmeticOptions{}
	switch b.Op {
	case Addition:
		out, err = compute.Add(ctx, opt, left, right)
	case Subtraction:
		out, err = compute.Subtract(ctx, opt, left, right)
	case Multiplication:
		out, err = compute.Multiply(ctx, opt, left, right)
	case Division:
		out, err = compute.Divide(ctx, opt, left, right)
	default:
		fn, ok := comparisonFunctions[b.Op]
		if !ok {
			return nil, ErrUnsupportedExpression(b.String())
		}
		if !arrow.TypeEqual(leftArr.DataType(), rightArr.DataType()) {
			return nil, ErrCantCompareDifferentTypes(leftArr.DataType(), rightArr.DataType())
		}
		out, err = compute.CallFunction(ctx, fn, nil, left, right)
	}
	if err != nil {
		return nil, err
	}
	return unpackDatum(out)
}

func evalCast(ctx context.Context, c *CastExpr, batch *operators.RecordBatch) (arrow.Array, error) {
	arr, err := EvalExpression(ctx, c.Expr, batch)
	if err != nil {
		return nil, err
	}
	defer arr.Release()
	return compute.CastArray(ctx, arr, compute.SafeCastOptions(c.TargetType))
}

func evalNullCheck(ctx context.Context, n *NullCheckExpr, batch *operators.RecordBatch) (arrow.Array, error) {
	arr, err := EvalExpression(ctx, n.Expr, batch)
	if err != nil {
		return nil, err
	}
	defer arr.Release()
	b := array.NewBooleanBuilder(compute.GetAllocator(ctx))
	defer b.Release()
	b.Reserve(arr.Len())
	for i := 0; i < arr.Len(); i++ {
		b.UnsafeAppend(arr.IsNull(i) != n.Not)
	}
	return b.NewArray(), nil
}

func unpackDatum(d compute.Datum) (arrow.Array, error) {
	defer d.Release()
	ad, ok := d.(*compute.ArrayDatum)
	if !ok {
		return nil, fmt.Errorf("expected array datum, got %s", d.Kind())
	}
	return ad.MakeArray(), nil
}
