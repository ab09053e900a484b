package exec

import (
	"errors"
	"fmt"

	"split-harness-go/plan"
)

var (
	// ErrUnknownOrClosedNode is matched by UnknownOrClosedNodeError.
	ErrUnknownOrClosedNode = errors.New("unknown or closed plan node")
	// ErrTaskCanceled is returned by Next after Cancel or Close.
	ErrTaskCanceled = errors.New("task canceled")
)

// UnknownOrClosedNodeError is returned when a split is routed to a node that is
// not a split consuming node of the task's plan, or to one whose input was
// already closed with NoMoreSplits.
type UnknownOrClosedNodeError struct {
	NodeID plan.NodeID
	Reason string // "unknown" or "closed"
}

func (e *UnknownOrClosedNodeError) Error() string {
	return fmt.Sprintf("cannot route split to plan node %q: %s", e.NodeID, e.Reason)
}

func (e *UnknownOrClosedNodeError) Is(target error) bool {
	return target == ErrUnknownOrClosedNode
}

// ExecutorFailure wraps the error that stopped a task.
type ExecutorFailure struct {
	TaskID string
	Err    error
}

func (e *ExecutorFailure) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.TaskID, e.Err)
}

func (e *ExecutorFailure) Unwrap() error {
	return e.Err
}
