package pipeline

import (
	"fmt"
	"time"
)

// ConfigurationError reports an invalid or missing construction option. It is
// fatal at build time: [New] and stage constructors refuse to produce a
// half-configured component.
type ConfigurationError struct {
	// Field names the offending option.
	Field string

	// Reason describes what is wrong with it.
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("pipeline: invalid configuration: %s: %s", e.Field, e.Reason)
}

// StateError reports an illegal state transition, such as operating on a
// torn-down session. The failing operation is aborted and the pipeline
// continues.
type StateError struct {
	// Op is the operation that was attempted.
	Op string

	// State describes the state the component was in.
	State string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("pipeline: %s: illegal in state %s", e.Op, e.State)
}

// ResourceTimeoutError reports a bounded lock acquisition that exceeded its
// wait bound. The attempt is treated as a skipped cycle, never as a fatal
// condition: no state was mutated and a later attempt may succeed.
type ResourceTimeoutError struct {
	// Resource names the contended lock ("hardware" or "session").
	Resource string

	// Timeout is the wait bound that elapsed.
	Timeout time.Duration
}

func (e *ResourceTimeoutError) Error() string {
	return fmt.Sprintf("pipeline: timed out acquiring %s lock after %s", e.Resource, e.Timeout)
}
