package sim

import "fmt"

// InitializationError reports that building or resetting a collaborator
// failed. The controller is left uninitialized and no partial state is
// visible; the caller may retry Initialize.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialization failed: %v", e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// StepError reports a collaborator failure inside a mutating operation.
// The last committed state stays visible; the runner stops auto-stepping
// and the operation is not retried.
type StepError struct {
	Phase string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step failed during %s: %v", e.Phase, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// UserError reports a command issued in a state that forbids it, e.g.
// Step or DestroyNow before Initialize. Nothing is mutated and the caller
// may retry once the precondition holds.
type UserError struct {
	Op     string
	Reason string
}

func (e *UserError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}
