package cache

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLabel is matched by every UnknownLabelError.
var ErrUnknownLabel = errors.New("unknown label")

// UnknownLabelError reports a label absent from the descriptor table.
type UnknownLabelError struct {
	Label string
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnknownLabel, e.Label)
}

func (e *UnknownLabelError) Is(target error) bool { return target == ErrUnknownLabel }

// CycleError reports a dependency cycle in the descriptor table. Path starts
// and ends with the same label.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}
