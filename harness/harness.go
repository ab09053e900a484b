package harness

import (
	"context"
	"fmt"

	"split-harness-go/Expr"
	"split-harness-go/cache"
	"split-harness-go/config"
	"split-harness-go/exec"
	"split-harness-go/operators"
	"split-harness-go/plan"
	"split-harness-go/reference"
	"split-harness-go/util/log"

	"github.com/apache/arrow/go/v17/arrow"
)

/*
The harness package drives plans through an executing task for tests. A
Harness is a fixture: SetUp installs the cache backend the test asked for,
TearDown reverts it. In between, GetResults runs a plan and returns its merged
output and AssertQuery additionally checks that output against a reference
query evaluated by an embedded SQL engine.

Fixtures that share a cache.Provider toggle its active backend and must not
run in parallel.
*/

////////////////////////////////////////////////////////////////////////////////

type Harness struct {
	// UseAsyncCache selects the bounded cache in SetUp. Set it before SetUp.
	UseAsyncCache bool
	// CacheCapacity is used the first time the provider's bounded cache is
	// created.
	CacheCapacity uint64

	provider  *cache.Provider
	reference *reference.Runner
	refDriver string
	refDSN    string
}

// New returns a fixture configured from the global config. provider is shared
// by every fixture of the process.
func New(provider *cache.Provider) *Harness {
	cfg := config.GetConfig()
	return &Harness{
		UseAsyncCache: cfg.Cache.EnableAsyncCache,
		CacheCapacity: cfg.Cache.CapacityBytes,
		provider:      provider,
		refDriver:     cfg.Reference.Driver,
		refDSN:        cfg.Reference.DSN,
	}
}

func (h *Harness) SetUp(ctx context.Context) error {
	if h.UseAsyncCache {
		h.provider.EnableBoundedCache(ctx, h.CacheCapacity)
	} else {
		h.provider.Disable()
	}
	runner, err := reference.NewRunner(h.refDriver, h.refDSN)
	if err != nil {
		h.provider.Disable()
		return err
	}
	h.reference = runner
	log.Debugw(ctx, "harness set up", "backend", h.provider.Active().Name())
	return nil
}

func (h *Harness) TearDown() error {
	h.provider.Disable()
	if h.reference == nil {
		return nil
	}
	err := h.reference.Close()
	h.reference = nil
	return err
}

func (h *Harness) Provider() *cache.Provider {
	return h.provider
}

// Reference returns the runner opened by SetUp.
func (h *Harness) Reference() *reference.Runner {
	return h.reference
}

// CreateTable loads batches into the reference database as table name.
func (h *Harness) CreateTable(ctx context.Context, name string, batches ...*operators.RecordBatch) error {
	if h.reference == nil {
		return fmt.Errorf("harness is not set up")
	}
	return h.reference.CreateTable(ctx, name, batches...)
}

// Params returns cursor parameters for root on the fixture's cache.
func (h *Harness) Params(root plan.Node) CursorParameters {
	return CursorParameters{Plan: root, Cache: h.provider}
}

// GetResults runs a plan that needs no splits.
func (h *Harness) GetResults(ctx context.Context, root plan.Node) (*operators.RecordBatch, error) {
	return h.GetResultsWithSupplier(ctx, h.Params(root), nil)
}

// GetResultsWithSplits routes splits to the only leaf of root.
func (h *Harness) GetResultsWithSplits(ctx context.Context, root plan.Node, splits []exec.Split) (*operators.RecordBatch, error) {
	m, err := SplitsForOnlyLeaf(root, splits)
	if err != nil {
		return nil, err
	}
	return h.GetResultsWithSplitMap(ctx, root, m)
}

func (h *Harness) GetResultsWithSplitMap(ctx context.Context, root plan.Node, splits SplitMap) (*operators.RecordBatch, error) {
	return h.GetResultsWithSupplier(ctx, h.Params(root), NewPendingSplits(splits))
}

func (h *Harness) GetResultsWithParams(ctx context.Context, params CursorParameters) (*operators.RecordBatch, error) {
	return h.GetResultsWithSupplier(ctx, params, nil)
}

// GetResultsWithSupplier drains a cursor and merges its batches into one
// batch allocated from the active cache backend.
func (h *Harness) GetResultsWithSupplier(ctx context.Context, params CursorParameters, supplier SplitSupplier) (*operators.RecordBatch, error) {
	_, merged, err := h.run(ctx, params, supplier)
	return merged, err
}

func (h *Harness) run(ctx context.Context, params CursorParameters, supplier SplitSupplier) (*exec.Task, *operators.RecordBatch, error) {
	if params.Cache == nil {
		params.Cache = h.provider
	}
	task, batches, err := ReadCursor(ctx, params, supplier)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()
	merged, err := MergeBatches(params.Plan.OutputType(), batches, task.Backend().Allocator())
	if err != nil {
		return nil, nil, err
	}
	return task, merged, nil
}

// AssertQuery runs root with splits routed to its only leaf and compares the
// output with referenceQuery. A nil sortingKeys requires the same row order.
func (h *Harness) AssertQuery(ctx context.Context, root plan.Node, splits []exec.Split, referenceQuery string, sortingKeys []int) (*exec.Task, error) {
	m, err := SplitsForOnlyLeaf(root, splits)
	if err != nil {
		return nil, err
	}
	return h.AssertQueryMap(ctx, root, m, referenceQuery, sortingKeys)
}

// AssertQueryConnectorSplits is AssertQuery for splits of no group.
func (h *Harness) AssertQueryConnectorSplits(ctx context.Context, root plan.Node, connectorSplits []exec.ConnectorSplit, referenceQuery string, sortingKeys []int) (*exec.Task, error) {
	return h.AssertQuery(ctx, root, UngroupedSplits(connectorSplits...), referenceQuery, sortingKeys)
}

func (h *Harness) AssertQueryMap(ctx context.Context, root plan.Node, splits SplitMap, referenceQuery string, sortingKeys []int) (*exec.Task, error) {
	return h.AssertQueryParams(ctx, h.Params(root), NewPendingSplits(splits), referenceQuery, sortingKeys)
}

// AssertQueryParams returns the finished task when the plan output matches
// the reference result.
func (h *Harness) AssertQueryParams(ctx context.Context, params CursorParameters, supplier SplitSupplier, referenceQuery string, sortingKeys []int) (*exec.Task, error) {
	if h.reference == nil {
		return nil, fmt.Errorf("harness is not set up")
	}
	task, actual, err := h.run(ctx, params, supplier)
	if err != nil {
		return nil, err
	}
	defer actual.Release()
	expected, err := h.reference.Execute(ctx, referenceQuery, params.Plan.OutputType())
	if err != nil {
		return nil, err
	}
	defer expected.Release()
	if err := reference.AssertResults(expected, actual, sortingKeys); err != nil {
		return nil, err
	}
	return task, nil
}

// ToFieldExpr resolves name against schema as a typed column reference.
func ToFieldExpr(name string, schema *arrow.Schema) (*Expr.ColumnResolve, error) {
	return Expr.ToFieldExpr(name, schema)
}

// ParseExpr parses text and types it against schema.
func ParseExpr(text string, schema *arrow.Schema) (Expr.Expression, error) {
	return Expr.ParseExpr(text, schema)
}
