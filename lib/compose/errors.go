// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package compose

import (
	"errors"
	"fmt"
)

// The two fault kinds every operation can surface. An execution fault
// means an external action was attempted and failed, or an internal
// invariant was violated. An invocation fault means the request itself
// was malformed or refers to a resource that cannot exist in the
// requested shape (absent user account, owner ID outside every
// declared range). The reconciler converts both into a failed Outcome
// at the operation boundary; neither escapes to callers.
var (
	ErrExecution  = errors.New("execution fault")
	ErrInvocation = errors.New("invocation fault")
)

// Executionf wraps a formatted message as an execution fault.
func Executionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrExecution, fmt.Sprintf(format, args...))
}

// Invocationf wraps a formatted message as an invocation fault.
func Invocationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvocation, fmt.Sprintf(format, args...))
}
