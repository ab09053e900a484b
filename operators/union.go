package operators

import (
	"errors"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
)

var (
	_ = (Operator)(&UnionExec{})
)

// UnionExec concatenates its inputs in order: every batch of the first input,
// then every batch of the second, and so on.
type UnionExec struct {
	inputs []Operator
	schema *arrow.Schema
	cur    int
}

func NewUnionExec(inputs ...Operator) (*UnionExec, error) {
	if len(inputs) == 0 {
		return nil, errors.New("union needs at least one input")
	}
	schema := inputs[0].Schema()
	for _, in := range inputs[1:] {
		if !in.Schema().Equal(schema) {
			return nil, ErrInvalidSchema("union inputs must share one schema")
		}
	}
	return &UnionExec{inputs: inputs, schema: schema}, nil
}

func (u *UnionExec) Next(n uint16) (*RecordBatch, error) {
	for u.cur < len(u.inputs) {
		rb, err := u.inputs[u.cur].Next(n)
		if errors.Is(err, io.EOF) {
			u.cur++
			continue
		}
		return rb, err
	}
	return nil, io.EOF
}

func (u *UnionExec) Schema() *arrow.Schema {
	return u.schema
}

func (u *UnionExec) Close() error {
	var errs []error
	for _, in := range u.inputs {
		errs = append(errs, in.Close())
	}
	return errors.Join(errs...)
}
