package engine

import (
	"errors"
	"fmt"
)

// ErrAllLanesExhausted is returned when a deep search has no healthy lane left
// to run on.
var ErrAllLanesExhausted = errors.New("all execution lanes exhausted")

// ErrSuperseded is returned when a newer query from the same caller replaced
// an in-flight deep search; its results are discarded.
var ErrSuperseded = errors.New("query superseded by a newer one")

// EmbeddingError reports a failed query embedding. The fast path cannot
// produce a meaningful partial answer without one, so the whole query fails.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string { return fmt.Sprintf("embed query: %v", e.Err) }

func (e *EmbeddingError) Unwrap() error { return e.Err }
