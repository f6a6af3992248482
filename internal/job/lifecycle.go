package job

import (
	"errors"
	"fmt"
)

// Sentinel errors for the job state machine and manager operations.
// These can be used with errors.Is() for error checking.
var (
	// ErrInvalidStatus indicates a status outside the defined lifecycle states.
	ErrInvalidStatus = errors.New("invalid job status")

	// ErrInvalidTransition indicates a transition the state machine forbids.
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrTerminalStateImmutable indicates a mutating operation on a job that
	// already reached completed, failed, or cancelled.
	ErrTerminalStateImmutable = errors.New("terminal job state is immutable")

	// ErrJobNotFound indicates an operation on a job id that does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrUnknownShop indicates a shop type with no registered transformer.
	ErrUnknownShop = errors.New("unknown shop type")

	// ErrInvalidBatchSize indicates a batch size outside [1, 10000].
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrInvalidReason indicates a cancellation reason outside 1..500 chars.
	ErrInvalidReason = errors.New("invalid cancellation reason")

	// ErrTooManyActiveJobs indicates the configured concurrent-job cap is hit.
	ErrTooManyActiveJobs = errors.New("too many active jobs")

	// ErrManagerClosed indicates the manager is shutting down and no longer
	// starts pipelines.
	ErrManagerClosed = errors.New("job manager is closed")
)

// ValidateStateTransition validates one job status transition.
//
// Valid transitions:
//   - pending → {running, cancelled}
//   - running → {completed, failed, cancelled}
//   - terminal → same state (idempotent)
//
// Invalid transitions:
//   - terminal states never change to a different state
//   - pending → {completed, failed} (a job must run before it can finish)
//   - running → pending (cannot go backwards)
func ValidateStateTransition(from, to Status) error {
	if !from.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, from)
	}

	if !to.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}

	// Terminal states can only transition to themselves (idempotent)
	if from.IsTerminal() {
		if from != to {
			return fmt.Errorf("%w: %s → %s", ErrTerminalStateImmutable, from, to)
		}

		return nil
	}

	valid := map[Status]map[Status]bool{
		StatusPending: {
			StatusRunning:   true,
			StatusCancelled: true,
		},
		StatusRunning: {
			StatusCompleted: true,
			StatusFailed:    true,
			StatusCancelled: true,
		},
	}

	if !valid[from][to] {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}

	return nil
}
