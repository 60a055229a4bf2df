package backend

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// TargetError is the failure of one backend within a logical write.
type TargetError struct {
	Target Target
	Err    error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("%s: %v", e.Target, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

// PartialWriteFailure reports a write that reached some targets but not
// others. Under best_effort it is returned as a warning inside WriteResult;
// under fail_fast it is the returned error. It unwraps to every target error.
type PartialWriteFailure struct {
	Op           string
	DepositionID string
	MessageID    string
	Succeeded    []Target
	Failed       []Target
	// Skipped lists targets that were not attempted after a fail_fast stop.
	Skipped []Target

	err error
}

func (e *PartialWriteFailure) add(t Target, err error) {
	e.Failed = append(e.Failed, t)
	e.err = multierr.Append(e.err, &TargetError{Target: t, Err: err})
}

func (e *PartialWriteFailure) Error() string {
	return fmt.Sprintf("partial write: %s %s: succeeded [%s], failed [%s]: %v",
		e.Op, e.MessageID, joinTargets(e.Succeeded), joinTargets(e.Failed), e.err)
}

func (e *PartialWriteFailure) Unwrap() []error {
	return multierr.Errors(e.err)
}

// Errors returns the per-target failures in write order.
func (e *PartialWriteFailure) Errors() []*TargetError {
	var out []*TargetError
	for _, err := range multierr.Errors(e.err) {
		if te, ok := err.(*TargetError); ok {
			out = append(out, te)
		}
	}
	return out
}

func joinTargets(ts []Target) string {
	return strings.Join(targetNames(ts), ",")
}

func targetNames(ts []Target) []string {
	s := make([]string, len(ts))
	for i, t := range ts {
		s[i] = string(t)
	}
	return s
}
