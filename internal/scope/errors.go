package scope

import (
	"fmt"
	"strings"
)

// InvalidStateError reports structural misuse of a scope, such as joining
// twice or forking after join.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("scope: %s: %s", e.Op, e.Reason)
}

// AggregateError is returned by [Scope.Result] when every child of a
// ShutdownOnSuccess scope failed. Causes appear in completion order.
type AggregateError struct {
	Causes []error
}

func (e *AggregateError) Error() string {
	if len(e.Causes) == 0 {
		return "all subtasks failed"
	}
	msgs := make([]string, len(e.Causes))
	for i, cause := range e.Causes {
		msgs[i] = cause.Error()
	}
	return fmt.Sprintf("all %d subtasks failed: %s", len(e.Causes), strings.Join(msgs, "; "))
}

func (e *AggregateError) Unwrap() []error {
	return e.Causes
}
