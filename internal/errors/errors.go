// Package errors classifies the failure modes a rally can encounter
// and wraps them with enough context (iteration number, kind)
// for the Orchestrator to decide whether to terminate or continue.
package errors

import (
	"errors"
	"fmt"
)

// Re-export the handful of stdlib helpers the rest of the codebase
// reaches for, so callers only ever import this package for error
// handling.
var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Join   = errors.Join
	Unwrap = errors.Unwrap
)

// Kind classifies a rally failure.
type Kind string

const (
	// AgentFailure: capability returned an error. Unrecoverable.
	AgentFailure Kind = "agent_failure"
	// Timeout: wall-clock expired on an agent call. Unrecoverable.
	Timeout Kind = "timeout"
	// PersistenceWarning: session/history write failed. Recoverable.
	PersistenceWarning Kind = "persistence_warning"
	// PostFailure: forge post failed. Recoverable (Approve rejections
	// retry as Comment; everything else just logs).
	PostFailure Kind = "post_failure"
	// PermissionBlocked: the shell safety validator rejected a
	// granted action. Treated as AgentFailure for the iteration.
	PermissionBlocked Kind = "permission_blocked"
	// AbortedByUser: explicit Abort or closed command channel while
	// waiting. Terminates cleanly, not an error state.
	AbortedByUser Kind = "aborted_by_user"
	// InvalidCommand: a command arrived that doesn't apply in the
	// current state. Logged and discarded, never surfaced upward.
	InvalidCommand Kind = "invalid_command"
)

// fatal holds the kinds that terminate the rally via the Error state.
var fatal = map[Kind]bool{
	AgentFailure:      true,
	Timeout:           true,
	PermissionBlocked: true,
}

// RallyError is the concrete error type produced throughout the
// orchestrator and its collaborators.
type RallyError struct {
	Kind      Kind
	Iteration int
	Message   string
	Err       error
}

func (e *RallyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (iteration %d): %s: %v", e.Kind, e.Iteration, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (iteration %d): %s", e.Kind, e.Iteration, e.Message)
}

func (e *RallyError) Unwrap() error { return e.Err }

// IsFatal reports whether this error's kind should terminate the
// rally via the Error state rather than being logged and continued.
func (e *RallyError) IsFatal() bool { return fatal[e.Kind] }

// Newf builds a RallyError of the given kind with a formatted message.
func Newf(kind Kind, iteration int, format string, args ...any) *RallyError {
	return &RallyError{Kind: kind, Iteration: iteration, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a RallyError of the given kind wrapping err.
func Wrap(kind Kind, iteration int, message string, err error) *RallyError {
	return &RallyError{Kind: kind, Iteration: iteration, Message: message, Err: err}
}
