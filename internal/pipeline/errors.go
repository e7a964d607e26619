package pipeline

import (
	"errors"
	"fmt"
)

// GraphError is a programming error in the pipeline graph or its caches.
// Unlike domain errors it is never turned into a status; it fails the
// future it occurs in and reaches the consumer.
type GraphError struct {
	// Code identifies the error category.
	Code GraphErrorCode

	// Message is a human-readable description.
	Message string

	// Node names the node that detected the error.
	Node string

	// Details contains additional context.
	Details map[string]string
}

// GraphErrorCode categorizes graph errors.
type GraphErrorCode string

const (
	// ErrCodeCycleDetected indicates that linking a node would make it depend on itself.
	ErrCodeCycleDetected GraphErrorCode = "CYCLE_DETECTED"

	// ErrCodeCacheRace indicates that a cache reached a state its
	// bookkeeping rules out, e.g. an invalidation that missed an evaluation.
	ErrCodeCacheRace GraphErrorCode = "CACHE_RACE"
)

// Error implements the error interface.
func (e *GraphError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.Node)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCycleError returns true if the error is a cycle detection error.
// Uses errors.As to handle wrapped errors.
func IsCycleError(err error) bool {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Code == ErrCodeCycleDetected
	}
	return false
}

// IsCacheRaceError returns true if the error reports broken cache bookkeeping.
func IsCacheRaceError(err error) bool {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Code == ErrCodeCacheRace
	}
	return false
}

// NewCycleError creates a GraphError for a link that would close a cycle.
func NewCycleError(node, input string) *GraphError {
	return &GraphError{
		Code:    ErrCodeCycleDetected,
		Message: "input would make the node depend on itself",
		Node:    node,
		Details: map[string]string{"input": input},
	}
}

// NewCacheRaceError creates a GraphError for an evaluation whose
// invalidation history does not match the cache.
func NewCacheRaceError(node string, generation int64, expected, seen uint64) *GraphError {
	return &GraphError{
		Code:    ErrCodeCacheRace,
		Message: "evaluation missed an invalidation of its cache",
		Node:    node,
		Details: map[string]string{
			"generation": fmt.Sprintf("%d", generation),
			"expected":   fmt.Sprintf("%d", expected),
			"seen":       fmt.Sprintf("%d", seen),
		},
	}
}
