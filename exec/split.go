package exec

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"split-harness-go/cache"
	"split-harness-go/exchange"
	"split-harness-go/operators"
	"split-harness-go/operators/source"
	"split-harness-go/storage"

	"github.com/apache/arrow/go/v17/arrow"
)

// UngroupedGroupID marks a split that belongs to no split group.
const UngroupedGroupID = -1

// SplitContext is what a connector split needs to open its data.
type SplitContext struct {
	// output type of the consuming plan node
	Schema    *arrow.Schema
	Backend   cache.Backend
	BatchSize uint16
}

// ConnectorSplit is one unit of input data. Open returns an operator over it;
// the scan closes the operator once it is exhausted.
type ConnectorSplit interface {
	Open(ctx context.Context, sc SplitContext) (operators.Operator, error)
	String() string
}

// Split pairs connector data with the split group it belongs to.
type Split struct {
	Connector ConnectorSplit
	GroupID   int
}

// NewSplit wraps c as an ungrouped split.
func NewSplit(c ConnectorSplit) Split {
	return Split{Connector: c, GroupID: UngroupedGroupID}
}

// NewGroupedSplit wraps c as a split of the given group.
func NewGroupedSplit(c ConnectorSplit, groupID int) Split {
	return Split{Connector: c, GroupID: groupID}
}

func (s Split) String() string {
	if s.GroupID == UngroupedGroupID {
		return s.Connector.String()
	}
	return fmt.Sprintf("%s@group%d", s.Connector, s.GroupID)
}

// MemorySplit serves batches that are already in memory. The batches stay
// owned by the caller.
type MemorySplit struct {
	Batches []*operators.RecordBatch
}

func NewMemorySplit(batches ...*operators.RecordBatch) *MemorySplit {
	return &MemorySplit{Batches: batches}
}

func (m *MemorySplit) Open(_ context.Context, _ SplitContext) (operators.Operator, error) {
	if len(m.Batches) == 0 {
		return source.NewValuesSource(nil, nil)
	}
	return source.NewValuesSource(m.Batches[0].Schema, m.Batches)
}

func (m *MemorySplit) String() string {
	var rows uint64
	for _, b := range m.Batches {
		rows += b.RowCount
	}
	return fmt.Sprintf("memory(%d batches, %d rows)", len(m.Batches), rows)
}

type FileFormat int

const (
	FormatCSV FileFormat = iota
	FormatParquet
)

func (f FileFormat) String() string {
	if f == FormatParquet {
		return "parquet"
	}
	return "csv"
}

// FormatFromKey guesses the format from the key's extension.
func FormatFromKey(key string) FileFormat {
	if strings.HasSuffix(strings.ToLower(key), ".parquet") {
		return FormatParquet
	}
	return FormatCSV
}

// FileSplit reads one CSV or parquet object from a store. The object bytes are
// loaded through the task's cache backend, so a bounded cache serves repeated
// reads of the same object from memory.
type FileSplit struct {
	Store  storage.Store
	Key    string
	Format FileFormat
}

func NewFileSplit(store storage.Store, key string) *FileSplit {
	return &FileSplit{Store: store, Key: key, Format: FormatFromKey(key)}
}

func (f *FileSplit) cacheKey() string {
	return f.Store.Name() + ":" + f.Key
}

func (f *FileSplit) Open(ctx context.Context, sc SplitContext) (operators.Operator, error) {
	data, err := sc.Backend.Load(ctx, f.cacheKey(), func(ctx context.Context) ([]byte, error) {
		return storage.ReadAll(ctx, f.Store, f.Key)
	})
	if err != nil {
		return nil, err
	}
	mem := sc.Backend.Allocator()
	switch f.Format {
	case FormatParquet:
		var columns []string
		if sc.Schema != nil {
			for _, field := range sc.Schema.Fields() {
				columns = append(columns, field.Name)
			}
		}
		return source.NewParquetSource(ctx, mem, bytes.NewReader(data), int64(sc.BatchSize), columns...)
	default:
		if sc.Schema == nil {
			return source.NewCSVSource(mem, bytes.NewReader(data))
		}
		return source.NewCSVSourceWithSchema(mem, bytes.NewReader(data), sc.Schema)
	}
}

func (f *FileSplit) String() string {
	return fmt.Sprintf("%s(%s:%s)", f.Format, f.Store.Name(), f.Key)
}

// ExchangeSplit reads the output of a task registered with a remote exchange
// server.
type ExchangeSplit struct {
	Client *exchange.Client
	TaskID string
}

func NewExchangeSplit(client *exchange.Client, taskID string) *ExchangeSplit {
	return &ExchangeSplit{Client: client, TaskID: taskID}
}

func (e *ExchangeSplit) Open(ctx context.Context, sc SplitContext) (operators.Operator, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := e.Client.Fetch(ctx, e.TaskID, sc.Backend.Allocator())
	if err != nil {
		cancel()
		return nil, err
	}
	return &exchangeSource{stream: stream, schema: sc.Schema, cancel: cancel}, nil
}

func (e *ExchangeSplit) String() string {
	return "exchange(" + e.TaskID + ")"
}

type exchangeSource struct {
	stream *exchange.Stream
	schema *arrow.Schema
	cancel context.CancelFunc
}

func (s *exchangeSource) Next(uint16) (*operators.RecordBatch, error) {
	return s.stream.Next()
}

func (s *exchangeSource) Schema() *arrow.Schema { return s.schema }

func (s *exchangeSource) Close() error {
	s.cancel()
	return nil
}
