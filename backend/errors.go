package backend

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOutOfMemory marks resource exhaustion during model load or inference.
// The caller may retry with a smaller working size or fewer steps.
var ErrOutOfMemory = errors.New("out of memory")

// InferenceError is any other model execution failure. It aborts the
// current run; there is no safe fallback mid-sequence.
type InferenceError struct {
	Op  string
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed during %s: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// oomMarkers are substrings the runtime reports when an allocation fails.
// The native error surface is string-typed, so classification is textual.
var oomMarkers = []string{
	"out of memory",
	"bad_alloc",
	"not enough memory",
	"failed to allocate",
	"cudamalloc",
}

// Classify wraps a runtime failure into the error taxonomy: memory
// exhaustion is reported as ErrOutOfMemory, everything else as an
// InferenceError for the given operation.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range oomMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%s: %w: %v", op, ErrOutOfMemory, err)
		}
	}
	return &InferenceError{Op: op, Err: err}
}
