package plan

import (
	"fmt"
	"strconv"
	"strings"

	"split-harness-go/Expr"
	"split-harness-go/operators"
	"split-harness-go/operators/aggr"

	"github.com/apache/arrow/go/v17/arrow"
)

// IDGenerator hands out sequential node ids. Share one between builders that
// contribute to the same tree so ids stay unique.
type IDGenerator struct {
	next int
}

func (g *IDGenerator) Next() NodeID {
	id := NodeID(strconv.Itoa(g.next))
	g.next++
	return id
}

// Builder assembles a plan bottom-up. The first error sticks; Plan reports it.
//
//	root, err := plan.NewBuilder(nil).
//		TableScan("t", schema).
//		Filter("id > 2").
//		Limit(10).
//		Plan()
type Builder struct {
	ids  *IDGenerator
	node Node
	err  error
}

func NewBuilder(ids *IDGenerator) *Builder {
	if ids == nil {
		ids = &IDGenerator{}
	}
	return &Builder{ids: ids}
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) needSource(op string) bool {
	if b.err != nil {
		return false
	}
	if b.node == nil {
		b.fail(ErrInvalidPlan(op + " needs a source node"))
		return false
	}
	return true
}

func (b *Builder) TableScan(table string, schema *arrow.Schema) *Builder {
	if b.err != nil {
		return b
	}
	if b.node != nil {
		return b.fail(ErrInvalidPlan("table scan must be a leaf"))
	}
	b.node = &TableScanNode{
		baseNode: baseNode{id: b.ids.Next(), output: schema},
		Table:    table,
	}
	return b
}

// Values adds a leaf producing batches. All batches must share a schema.
func (b *Builder) Values(batches ...*operators.RecordBatch) *Builder {
	if b.err != nil {
		return b
	}
	if b.node != nil {
		return b.fail(ErrInvalidPlan("values must be a leaf"))
	}
	if len(batches) == 0 {
		return b.fail(ErrInvalidPlan("values needs at least one batch"))
	}
	schema := batches[0].Schema
	for _, batch := range batches[1:] {
		if !batch.Schema.Equal(schema) {
			return b.fail(ErrInvalidPlan("values batches have different schemas"))
		}
	}
	b.node = &ValuesNode{
		baseNode: baseNode{id: b.ids.Next(), output: schema},
		Batches:  batches,
	}
	return b
}

func (b *Builder) Exchange(schema *arrow.Schema) *Builder {
	if b.err != nil {
		return b
	}
	if b.node != nil {
		return b.fail(ErrInvalidPlan("exchange must be a leaf"))
	}
	b.node = &ExchangeNode{baseNode: baseNode{id: b.ids.Next(), output: schema}}
	return b
}

// Filter parses predicate against the current output type.
func (b *Builder) Filter(predicate string) *Builder {
	if !b.needSource("filter") {
		return b
	}
	expr, err := Expr.ParseExpr(predicate, b.node.OutputType())
	if err != nil {
		return b.fail(err)
	}
	return b.FilterExpr(expr)
}

func (b *Builder) FilterExpr(predicate Expr.Expression) *Builder {
	if !b.needSource("filter") {
		return b
	}
	t, err := Expr.InferType(predicate, b.node.OutputType())
	if err != nil {
		return b.fail(err)
	}
	if t.ID() != arrow.BOOL {
		return b.fail(ErrInvalidPlan(fmt.Sprintf("filter predicate %s has type %s", predicate, t)))
	}
	b.node = &FilterNode{
		baseNode:  baseNode{id: b.ids.Next(), sources: []Node{b.node}, output: b.node.OutputType()},
		Predicate: predicate,
	}
	return b
}

func (b *Builder) Project(columns ...string) *Builder {
	if !b.needSource("project") {
		return b
	}
	if len(columns) == 0 {
		return b.fail(ErrInvalidPlan("project needs at least one column"))
	}
	in := b.node.OutputType()
	fields := make([]arrow.Field, 0, len(columns))
	for _, name := range columns {
		idx := in.FieldIndices(name)
		if len(idx) == 0 {
			return b.fail(Expr.ErrUnknownColumn(name))
		}
		fields = append(fields, in.Field(idx[0]))
	}
	b.node = &ProjectNode{
		baseNode: baseNode{id: b.ids.Next(), sources: []Node{b.node}, output: arrow.NewSchema(fields, nil)},
		Columns:  columns,
	}
	return b
}

func (b *Builder) Limit(count uint64) *Builder {
	if !b.needSource("limit") {
		return b
	}
	b.node = &LimitNode{
		baseNode: baseNode{id: b.ids.Next(), sources: []Node{b.node}, output: b.node.OutputType()},
		Count:    count,
	}
	return b
}

// OrderBy sorts by keys of the form "column [ASC|DESC] [NULLS FIRST|LAST]".
// Keys are ascending with nulls last by default.
func (b *Builder) OrderBy(keys ...string) *Builder {
	if !b.needSource("order by") {
		return b
	}
	parsed := make([]aggr.SortKey, len(keys))
	for i, k := range keys {
		sk, err := parseSortKey(k)
		if err != nil {
			return b.fail(err)
		}
		parsed[i] = sk
	}
	return b.OrderByKeys(parsed...)
}

func parseSortKey(text string) (aggr.SortKey, error) {
	words := strings.Fields(strings.ToUpper(text))
	if len(words) == 0 {
		return aggr.SortKey{}, ErrInvalidPlan("empty sort key")
	}
	key := aggr.SortKey{Expr: Expr.NewColumnResolve(strings.Fields(text)[0]), Ascending: true}
	rest := words[1:]
	if len(rest) > 0 && (rest[0] == "ASC" || rest[0] == "DESC") {
		key.Ascending = rest[0] == "ASC"
		rest = rest[1:]
	}
	switch strings.Join(rest, " ") {
	case "":
	case "NULLS FIRST":
		key.NullsFirst = true
	case "NULLS LAST":
	default:
		return aggr.SortKey{}, ErrInvalidPlan(fmt.Sprintf("bad sort key %q", text))
	}
	return key, nil
}

func (b *Builder) OrderByKeys(keys ...aggr.SortKey) *Builder {
	if !b.needSource("order by") {
		return b
	}
	if len(keys) == 0 {
		return b.fail(ErrInvalidPlan("order by needs at least one key"))
	}
	for _, k := range keys {
		if _, err := Expr.InferType(k.Expr, b.node.OutputType()); err != nil {
			return b.fail(err)
		}
	}
	b.node = &OrderByNode{
		baseNode: baseNode{id: b.ids.Next(), sources: []Node{b.node}, output: b.node.OutputType()},
		Keys:     keys,
	}
	return b
}

// Aggregate computes global aggregates over the current node.
func (b *Builder) Aggregate(aggs ...aggr.Aggregate) *Builder {
	if !b.needSource("aggregate") {
		return b
	}
	if len(aggs) == 0 {
		return b.fail(ErrInvalidPlan("aggregate needs at least one aggregate"))
	}
	for _, a := range aggs {
		if _, err := Expr.InferType(a.Child, b.node.OutputType()); err != nil {
			return b.fail(err)
		}
	}
	b.node = &AggregationNode{
		baseNode:   baseNode{id: b.ids.Next(), sources: []Node{b.node}, output: aggr.AggregateSchema(aggs)},
		Aggregates: aggs,
	}
	return b
}

// Union combines the current node with the given sources. All sources must
// share the current output type.
func (b *Builder) Union(others ...Node) *Builder {
	if !b.needSource("union") {
		return b
	}
	sources := append([]Node{b.node}, others...)
	schema := b.node.OutputType()
	for _, s := range others {
		if !s.OutputType().Equal(schema) {
			return b.fail(ErrInvalidPlan(fmt.Sprintf("union source %s has a different output type", s.ID())))
		}
	}
	b.node = &UnionNode{baseNode: baseNode{id: b.ids.Next(), sources: sources, output: schema}}
	return b
}

// Node returns the current node, or nil after an error.
func (b *Builder) Node() Node {
	if b.err != nil {
		return nil
	}
	return b.node
}

func (b *Builder) Plan() (Node, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.node == nil {
		return nil, ErrInvalidPlan("empty plan")
	}
	return b.node, nil
}

// NodeID returns the id of the current node.
func (b *Builder) NodeID() NodeID {
	if b.node == nil {
		return ""
	}
	return b.node.ID()
}
