// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package state

// Result classifies how an operation ended.
type Result int

const (
	// ResultUnknown means the operation did not run to completion
	// against reality: evaluation mode predicted a change without
	// applying it.
	ResultUnknown Result = iota

	// ResultSuccess means the target state was reached by applying a
	// change.
	ResultSuccess

	// ResultAlreadySatisfied means reality already matched the target
	// and no action was taken.
	ResultAlreadySatisfied

	// ResultFailed means the operation faulted or did not converge
	// within its timeout.
	ResultFailed
)

// String returns the wire spelling of the result.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultAlreadySatisfied:
		return "already-satisfied"
	case ResultFailed:
		return "failed-to-converge"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler for JSON output.
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Outcome is the uniform return of every lifecycle operation.
type Outcome struct {
	// Name is the resource the operation targeted: the project
	// reference, unit name, or account name.
	Name string `json:"name"`

	// Changed reports whether a change was applied (or, in evaluation
	// mode, would be). Timeouts and faults reset it to false so
	// callers never record a change that did not durably happen.
	Changed bool `json:"changed"`

	// Result classifies the ending.
	Result Result `json:"result"`

	// Comment is the human-readable account of what happened.
	Comment string `json:"comment"`

	// Changes records the applied (or predicted) transitions, keyed by
	// verb ("started", "removed", ...).
	Changes map[string]string `json:"changes,omitempty"`
}

func satisfied(name, comment string) Outcome {
	return Outcome{Name: name, Result: ResultAlreadySatisfied, Comment: comment}
}

func predicted(name, comment, verb string) Outcome {
	return Outcome{
		Name:    name,
		Changed: true,
		Result:  ResultUnknown,
		Comment: comment,
		Changes: map[string]string{verb: name},
	}
}

func succeeded(name, comment, verb string) Outcome {
	return Outcome{
		Name:    name,
		Changed: true,
		Result:  ResultSuccess,
		Comment: comment,
		Changes: map[string]string{verb: name},
	}
}

// failed is the terminal outcome for faults and verification
// timeouts. Changes are deliberately dropped: a timed-out operation
// must not report partial success.
func failed(name, comment string) Outcome {
	return Outcome{Name: name, Result: ResultFailed, Comment: comment}
}
