package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/flowsync/internal/attrstore"
)

// EntityConversionError records the failure of a single section instance.
// It never propagates past the instance boundary; the engines collect it in
// their Result instead.
type EntityConversionError struct {
	Section  string
	Instance string
	// Op is "extract" or "write".
	Op  string
	Err error
}

func (e *EntityConversionError) Error() string {
	if e.Instance == "" {
		return fmt.Sprintf("%s section '%s': %v", e.Op, e.Section, e.Err)
	}
	return fmt.Sprintf("%s section '%s' instance '%s': %v", e.Op, e.Section, e.Instance, e.Err)
}

func (e *EntityConversionError) Unwrap() error {
	return e.Err
}

// OrderingViolationError reports that a freshly inserted row did not end up
// at the position it was inserted at, which would break the index alignment
// of parallel collections.
type OrderingViolationError struct {
	Path  string
	Index int
	Want  string
	Got   string
}

func (e *OrderingViolationError) Error() string {
	return fmt.Sprintf("ordering violation under '%s': row %d labeled '%s', expected '%s'", e.Path, e.Index, e.Got, e.Want)
}

// IsFatal reports whether err must abort the whole run rather than a single
// instance: a lost store connection or a cancelled context.
func IsFatal(err error) bool {
	return errors.Is(err, attrstore.ErrConnectionLost) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Result is the outcome of converting one section.
type Result struct {
	Section string
	// Value is the extracted section value. Unused by writes.
	Value any
	// Instances counts the top-level instances that were processed.
	Instances int
	Failures  []*EntityConversionError
}

// Failed reports whether any instance failed.
func (r *Result) Failed() bool {
	return len(r.Failures) > 0
}
