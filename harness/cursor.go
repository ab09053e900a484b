package harness

import (
	"context"
	"errors"
	"io"

	"split-harness-go/cache"
	"split-harness-go/exec"
	"split-harness-go/operators"
	"split-harness-go/plan"
)

// CursorParameters configures the task behind a cursor.
type CursorParameters struct {
	Plan plan.Node
	// Cache supplies the active backend. Nil runs on the passthrough backend.
	Cache *cache.Provider
	// zero values fall back to the cursor section of the config
	BatchSize       uint16
	BufferedBatches int
	TaskID          string
}

func (p CursorParameters) taskOptions() []exec.Option {
	var opts []exec.Option
	if p.Cache != nil {
		opts = append(opts, exec.WithCache(p.Cache.Active()))
	}
	if p.BatchSize > 0 {
		opts = append(opts, exec.WithBatchSize(p.BatchSize))
	}
	if p.BufferedBatches > 0 {
		opts = append(opts, exec.WithBufferedBatches(p.BufferedBatches))
	}
	if p.TaskID != "" {
		opts = append(opts, exec.WithTaskID(p.TaskID))
	}
	return opts
}

// TaskCursor is a blocking pull iterator over one executing task. Its first
// Next hands the task its splits. Close must always be called; it is safe to
// call more than once.
type TaskCursor struct {
	task     *exec.Task
	supplier SplitSupplier
	supplied bool
	closed   bool
	// set when split delivery failed; the task is canceled and every later
	// Next returns it
	deliverErr error
}

// OpenCursor creates the task for params. No splits are delivered until the
// first Next. supplier may be nil when the plan needs no splits or the caller
// adds them to Task directly.
func OpenCursor(ctx context.Context, params CursorParameters, supplier SplitSupplier) (*TaskCursor, error) {
	task, err := exec.NewTask(ctx, params.Plan, params.taskOptions()...)
	if err != nil {
		return nil, err
	}
	return &TaskCursor{task: task, supplier: supplier}, nil
}

// Task returns the task behind the cursor.
func (c *TaskCursor) Task() *exec.Task {
	return c.task
}

// Next blocks until the task yields a batch. It returns io.EOF once the output
// is exhausted and *exec.ExecutorFailure if the task failed. ctx bounds only
// this wait; the task keeps running if it expires. A failed split delivery
// cancels the task and its error is returned from every later Next.
func (c *TaskCursor) Next(ctx context.Context) (*operators.RecordBatch, error) {
	if c.deliverErr != nil {
		return nil, c.deliverErr
	}
	if !c.supplied {
		c.supplied = true
		if c.supplier != nil {
			if err := c.supplier.Deliver(c.task); err != nil {
				c.deliverErr = err
				c.task.Cancel()
				return nil, err
			}
		}
	}
	return c.task.Next(ctx)
}

// Close stops the task if it is still running and releases its resources.
func (c *TaskCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.task.Close()
}

// ReadCursor drains a cursor over params. On success it returns the finished
// task and every batch in yield order; the caller owns the batches. On failure
// any batches read so far are released and only the error is returned. The
// cursor is closed on every path.
func ReadCursor(ctx context.Context, params CursorParameters, supplier SplitSupplier) (task *exec.Task, batches []*operators.RecordBatch, err error) {
	cursor, err := OpenCursor(ctx, params, supplier)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if closeErr := cursor.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			for _, b := range batches {
				b.Release()
			}
			task, batches = nil, nil
		}
	}()
	for {
		rb, err := cursor.Next(ctx)
		if errors.Is(err, io.EOF) {
			return cursor.Task(), batches, nil
		}
		if err != nil {
			return nil, batches, err
		}
		batches = append(batches, rb)
	}
}
