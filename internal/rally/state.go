// Package rally holds the rally state machine and the per-iteration
// context passed to agents.
package rally

import "fmt"

// State is one label of the rally state machine.
type State string

const (
	Initializing               State = "initializing"
	ReviewerReviewing          State = "reviewer_reviewing"
	RevieweeFix                State = "reviewee_fix"
	WaitingForClarification    State = "waiting_for_clarification"
	WaitingForPermission       State = "waiting_for_permission"
	WaitingForPostConfirmation State = "waiting_for_post_confirmation"
	Completed                  State = "completed"
	Aborted                    State = "aborted"
	Error                      State = "error"
)

// terminal holds the set of states from which no further transition
// is legal.
var terminal = map[State]bool{
	Completed: true,
	Aborted:   true,
	Error:     true,
}

// transitions enumerates the legal source -> sink edges.
var transitions = map[State]map[State]bool{
	Initializing: {
		ReviewerReviewing: true,
	},
	ReviewerReviewing: {
		WaitingForPostConfirmation: true,
		RevieweeFix:                true,
		Completed:                  true,
		Error:                      true,
	},
	WaitingForPostConfirmation: {
		// The sink of a wait is whatever state preceded it; callers
		// pass that concrete state and CanTransition treats any
		// active state plus Aborted as legal here.
		Aborted: true,
	},
	RevieweeFix: {
		WaitingForClarification:    true,
		WaitingForPermission:       true,
		WaitingForPostConfirmation: true,
		Error:                      true,
	},
	WaitingForClarification: {
		RevieweeFix: true,
		Aborted:     true,
		Error:       true,
	},
	WaitingForPermission: {
		RevieweeFix: true,
		Aborted:     true,
		Error:       true,
	},
}

// IsTerminal reports whether s is one of {Completed, Aborted, Error}.
func (s State) IsTerminal() bool { return terminal[s] }

// IsActive is the complement of IsTerminal.
func (s State) IsActive() bool { return !terminal[s] }

// IsFinished is an alias kept for readability at call sites that read
// more naturally asking "is this rally finished".
func (s State) IsFinished() bool { return s.IsTerminal() }

// CanTransition reports whether moving from s to next is legal.
// Any active state may transition to Aborted regardless of the table
// above (explicit user Abort is always honored).
func (s State) CanTransition(next State) bool {
	if s.IsTerminal() {
		return false
	}
	if next == Aborted {
		return true
	}
	if s == WaitingForPostConfirmation {
		return next.IsActive()
	}
	return transitions[s][next]
}

// ErrIllegalTransition describes a transition that CanTransition
// rejects. RallySession.UpdateState applies any transition without
// checking and does not return it.
type ErrIllegalTransition struct {
	From, To State
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal rally state transition: %s -> %s", e.From, e.To)
}
