// Package reviewee holds the Reviewee agent role's output types.
package reviewee

// Status is the Reviewee's terminal disposition for one invocation.
type Status string

const (
	Completed          Status = "completed"
	NeedsClarification Status = "needs_clarification"
	NeedsPermission    Status = "needs_permission"
	Error              Status = "error"
)

// PermissionRequest is carried by a NeedsPermission output: the
// action string the Reviewee wants to run, and its stated reason.
type PermissionRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// Output is the Reviewee agent's structured output for one invocation.
// At most one of Question, Permission, or ErrorDetail is populated,
// matching Status; a Completed output carries none of them. The json tags double as the wire schema the
// Reviewee prompt asks the agent to answer in.
type Output struct {
	Status        Status   `json:"status"`
	Summary       string   `json:"summary"`
	ModifiedFiles []string `json:"modified_files,omitempty"`

	Question    string             `json:"question,omitempty"`     // set when Status == NeedsClarification
	Permission  *PermissionRequest `json:"permission,omitempty"`   // set when Status == NeedsPermission
	ErrorDetail string             `json:"error_detail,omitempty"` // set when Status == Error
}

// Valid reports whether Output carries the payload its Status
// requires: a question for NeedsClarification, an action/reason pair
// for NeedsPermission, a detail string for Error.
func (o *Output) Valid() bool {
	switch o.Status {
	case NeedsClarification:
		return o.Question != ""
	case NeedsPermission:
		return o.Permission != nil && o.Permission.Action != "" && o.Permission.Reason != ""
	case Error:
		return o.ErrorDetail != ""
	default:
		return true
	}
}
