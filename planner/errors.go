package planner

import (
	"fmt"

	"github.com/oskarb/kepler/types"
)

// DataError means the assembled problem instance is unusable: a missing
// or misaligned input column, or stale price data. The run aborts and
// the previous schedule stays in place.
type DataError struct {
	Code   types.IssueCode
	Column string
	Reason string
}

func (e *DataError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("input data error in column %q: %s", e.Column, e.Reason)
	}
	return fmt.Sprintf("input data error: %s", e.Reason)
}

// ConfigError means the configuration would corrupt the solver's bounds.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Reason
}

// InfeasibleError means no feasible schedule exists even after the full
// relaxation ladder was tried.
type InfeasibleError struct {
	Err error
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("planning infeasible: %v", e.Err)
}

func (e *InfeasibleError) Unwrap() error { return e.Err }

// TransientError wraps an external fetch failure that was retried and
// may still succeed on a later run.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }
