package rally

// ResultKind discriminates the variant carried by a Result.
type ResultKind string

const (
	ResultApproved             ResultKind = "approved"
	ResultMaxIterationsReached ResultKind = "max_iterations_reached"
	ResultAborted              ResultKind = "aborted"
	ResultError                ResultKind = "error"
)

// Result is the terminal summary returned by the Orchestrator's Run.
// Exactly the fields relevant to Kind are meaningful; the others are
// zero.
type Result struct {
	Kind      ResultKind
	Iteration int
	Summary   string // Approved
	Reason    string // Aborted
	Err       error  // Error
}

// Approved builds an Approved result.
func Approved(iteration int, summary string) Result {
	return Result{Kind: ResultApproved, Iteration: iteration, Summary: summary}
}

// MaxIterationsReached builds a MaxIterationsReached result.
func MaxIterationsReached(iteration int) Result {
	return Result{Kind: ResultMaxIterationsReached, Iteration: iteration}
}

// AbortedResult builds an Aborted result.
func AbortedResult(iteration int, reason string) Result {
	return Result{Kind: ResultAborted, Iteration: iteration, Reason: reason}
}

// ErrorResult builds an Error result.
func ErrorResult(iteration int, err error) Result {
	return Result{Kind: ResultError, Iteration: iteration, Err: err}
}
