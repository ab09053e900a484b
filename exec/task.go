package exec

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"split-harness-go/cache"
	"split-harness-go/config"
	"split-harness-go/operators"
	"split-harness-go/plan"
	"split-harness-go/util/log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

/*
A Task executes one plan. Its driver goroutine starts with the task and pulls
batches from the root operator into a bounded output channel, so a slow reader
applies backpressure to the pipeline. Scans block until splits are added for
their node or the node is closed with NoMoreSplits.

Next, AddSplit and NoMoreSplits may be called from different goroutines. Close
cancels the driver, waits for it to exit and releases every buffered batch.
*/

type TaskState int32

const (
	TaskRunning TaskState = iota
	TaskFinished
	TaskFailed
	TaskCanceled
)

func (s TaskState) String() string {
	switch s {
	case TaskRunning:
		return "running"
	case TaskFinished:
		return "finished"
	case TaskFailed:
		return "failed"
	case TaskCanceled:
		return "canceled"
	}
	return "unknown"
}

type TaskStats struct {
	OutputBatches int64
	OutputRows    int64
	SplitsAdded   int64
	SplitsRead    int64
}

type taskOptions struct {
	id              string
	backend         cache.Backend
	batchSize       uint16
	bufferedBatches int
}

type Option func(*taskOptions)

// WithCache runs the task on backend instead of the passthrough backend.
func WithCache(backend cache.Backend) Option {
	return func(o *taskOptions) { o.backend = backend }
}

// WithBatchSize sets the rows requested from the root operator per pull.
func WithBatchSize(n uint16) Option {
	return func(o *taskOptions) { o.batchSize = n }
}

// WithBufferedBatches sets how many output batches may wait for the reader.
func WithBufferedBatches(n int) Option {
	return func(o *taskOptions) { o.bufferedBatches = n }
}

// WithTaskID sets the task id. Tasks get a random uuid by default.
func WithTaskID(id string) Option {
	return func(o *taskOptions) { o.id = id }
}

func defaultTaskOptions() taskOptions {
	cfg := config.GetConfig().Cursor
	batch := cfg.BatchSize
	if batch <= 0 || batch > int(^uint16(0)) {
		batch = 1024
	}
	return taskOptions{
		id:              uuid.NewString(),
		backend:         cache.Passthrough(),
		batchSize:       uint16(batch),
		bufferedBatches: cfg.BufferedBatches,
	}
}

type Task struct {
	opts    taskOptions
	backend cache.Backend
	root    operators.Operator
	queues  map[plan.NodeID]*splitQueue

	cancel context.CancelFunc
	out    chan *operators.RecordBatch
	done   chan struct{}

	state   atomic.Int32
	err     error // set before done is closed
	stopped atomic.Bool

	closeOnce sync.Once
	closeErr  error

	outputBatches atomic.Int64
	outputRows    atomic.Int64
	splitsAdded   atomic.Int64
	splitsRead    atomic.Int64
}

// NewTask compiles root and starts executing it. The task runs until its
// output is exhausted, it fails, or ctx is canceled.
func NewTask(ctx context.Context, root plan.Node, opts ...Option) (*Task, error) {
	if root == nil {
		return nil, plan.ErrInvalidPlan("nil plan")
	}
	o := defaultTaskOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.backend == nil {
		o.backend = cache.Passthrough()
	}
	if o.batchSize == 0 {
		o.batchSize = 1024
	}
	if o.bufferedBatches < 0 {
		o.bufferedBatches = 0
	}
	ctx = log.AddTags(ctx, "task", o.id)

	t := &Task{
		opts:    o,
		backend: o.backend,
		queues:  make(map[plan.NodeID]*splitQueue),
		out:     make(chan *operators.RecordBatch, o.bufferedBatches),
		done:    make(chan struct{}),
	}
	for _, consumer := range plan.SplitConsumers(root) {
		t.queues[consumer.ID()] = newSplitQueue()
	}

	ctx, t.cancel = context.WithCancel(ctx)
	rootOp, err := t.compile(ctx, root)
	if err != nil {
		t.cancel()
		return nil, err
	}
	t.root = rootOp

	log.Infow(ctx, "task started", "plan", root.String(), "backend", o.backend.Name())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.drive(gctx)
	})
	go func() {
		t.finish(ctx, g.Wait())
	}()
	return t, nil
}

func (t *Task) drive(ctx context.Context) error {
	for {
		rb, err := t.root.Next(t.opts.batchSize)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if rb.RowCount == 0 {
			rb.Release()
			continue
		}
		select {
		case t.out <- rb:
			t.outputBatches.Add(1)
			t.outputRows.Add(int64(rb.RowCount))
		case <-ctx.Done():
			rb.Release()
			return ctx.Err()
		}
	}
}

func (t *Task) finish(ctx context.Context, err error) {
	switch {
	case err == nil:
		t.state.Store(int32(TaskFinished))
		log.Infow(ctx, "task finished", "batches", t.outputBatches.Load(), "rows", t.outputRows.Load())
	case t.stopped.Load():
		t.state.Store(int32(TaskCanceled))
		t.err = ErrTaskCanceled
		log.Infow(ctx, "task canceled")
	default:
		t.state.Store(int32(TaskFailed))
		t.err = &ExecutorFailure{TaskID: t.opts.id, Err: err}
		log.Errorw(ctx, "task failed", "error", err)
	}
	close(t.out)
	close(t.done)
}

func (t *Task) ID() string { return t.opts.id }

func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

// Backend is the cache backend the task allocates from.
func (t *Task) Backend() cache.Backend { return t.backend }

func (t *Task) Stats() TaskStats {
	return TaskStats{
		OutputBatches: t.outputBatches.Load(),
		OutputRows:    t.outputRows.Load(),
		SplitsAdded:   t.splitsAdded.Load(),
		SplitsRead:    t.splitsRead.Load(),
	}
}

// AddSplit queues split for the split consuming node id.
func (t *Task) AddSplit(id plan.NodeID, split Split) error {
	q, ok := t.queues[id]
	if !ok {
		return &UnknownOrClosedNodeError{NodeID: id, Reason: "unknown"}
	}
	if !q.add(split) {
		return &UnknownOrClosedNodeError{NodeID: id, Reason: "closed"}
	}
	t.splitsAdded.Add(1)
	return nil
}

// NoMoreSplits closes the input of node id. Closing a node twice is a no-op.
func (t *Task) NoMoreSplits(id plan.NodeID) error {
	q, ok := t.queues[id]
	if !ok {
		return &UnknownOrClosedNodeError{NodeID: id, Reason: "unknown"}
	}
	q.close()
	return nil
}

// SplitNodes returns the ids of the nodes that accept splits.
func (t *Task) SplitNodes() []plan.NodeID {
	ids := make([]plan.NodeID, 0, len(t.queues))
	for id := range t.queues {
		ids = append(ids, id)
	}
	return ids
}

// Next blocks until the task produces a batch, finishes (io.EOF), fails
// (*ExecutorFailure) or ctx is done. The caller owns the returned batch.
func (t *Task) Next(ctx context.Context) (*operators.RecordBatch, error) {
	select {
	case rb, ok := <-t.out:
		if ok {
			return rb, nil
		}
		if t.err != nil {
			return nil, t.err
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the driver has exited.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel stops the driver without waiting for it.
func (t *Task) Cancel() {
	t.stopped.Store(true)
	t.cancel()
}

// Close cancels the task, waits for the driver to exit, releases undelivered
// batches and closes the operator tree. It is safe to call more than once.
func (t *Task) Close() error {
	t.closeOnce.Do(func() {
		if t.State() == TaskRunning {
			t.Cancel()
		}
		<-t.done
		for rb := range t.out {
			rb.Release()
		}
		t.closeErr = t.root.Close()
		t.cancel()
	})
	return t.closeErr
}
