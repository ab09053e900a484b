package plan

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAmbiguousRouting is matched by MultipleLeavesError.
var ErrAmbiguousRouting = errors.New("ambiguous split routing")

// MultipleLeavesError is returned when splits must be routed to the only leaf
// of a plan but the walk from the root meets a node with several sources.
type MultipleLeavesError struct {
	At      NodeID
	Sources []NodeID
}

func (e *MultipleLeavesError) Error() string {
	ids := make([]string, len(e.Sources))
	for i, id := range e.Sources {
		ids[i] = string(id)
	}
	return fmt.Sprintf(
		"plan node %s has %d sources (%s); supply an explicit split map",
		e.At, len(e.Sources), strings.Join(ids, ", "),
	)
}

func (e *MultipleLeavesError) Is(target error) bool {
	return target == ErrAmbiguousRouting
}

var (
	ErrInvalidPlan = func(info string) error {
		return fmt.Errorf("invalid plan: %s", info)
	}
)
