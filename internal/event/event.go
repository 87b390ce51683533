// Package event defines the RallyEvent/OrchestratorCommand types
// exchanged between the orchestrator and its caller (CLI, or any
// future embedder) over a pair of single-producer/single-consumer
// channels.
package event

import (
	"time"

	"github.com/octorus/octorus/internal/rally"
	"github.com/octorus/octorus/internal/review"
	"github.com/octorus/octorus/internal/reviewee"
)

// Event is the interface every RallyEvent variant satisfies.
// Convention: "category.action" (e.g. "state.changed", "agent.thinking"),
// except the single-word "log" and "error" types.
type Event interface {
	EventType() string
	Timestamp() time.Time
}

// baseEvent provides the common EventType/Timestamp fields. Embed it
// in concrete event types to satisfy Event.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// StateChangedEvent reports a rally state transition.
type StateChangedEvent struct {
	baseEvent
	State rally.State
}

func NewStateChangedEvent(state rally.State) StateChangedEvent {
	return StateChangedEvent{baseEvent: newBaseEvent("state.changed"), State: state}
}

// IterationStartedEvent reports the start of a new rally iteration.
type IterationStartedEvent struct {
	baseEvent
	Iteration int
}

func NewIterationStartedEvent(iteration int) IterationStartedEvent {
	return IterationStartedEvent{baseEvent: newBaseEvent("iteration.started"), Iteration: iteration}
}

// ReviewCompletedEvent carries a finished Reviewer invocation's output.
type ReviewCompletedEvent struct {
	baseEvent
	Output review.Output
}

func NewReviewCompletedEvent(output review.Output) ReviewCompletedEvent {
	return ReviewCompletedEvent{baseEvent: newBaseEvent("review.completed"), Output: output}
}

// FixCompletedEvent carries a finished Reviewee invocation's output.
type FixCompletedEvent struct {
	baseEvent
	Output reviewee.Output
}

func NewFixCompletedEvent(output reviewee.Output) FixCompletedEvent {
	return FixCompletedEvent{baseEvent: newBaseEvent("fix.completed"), Output: output}
}

// ClarificationNeededEvent reports that the Reviewee asked a question
// and the rally is now WaitingForClarification.
type ClarificationNeededEvent struct {
	baseEvent
	Question string
}

func NewClarificationNeededEvent(question string) ClarificationNeededEvent {
	return ClarificationNeededEvent{baseEvent: newBaseEvent("clarification.needed"), Question: question}
}

// PermissionNeededEvent reports that the Reviewee requested permission
// for action (with reason) and the rally is now WaitingForPermission.
type PermissionNeededEvent struct {
	baseEvent
	Action string
	Reason string
}

func NewPermissionNeededEvent(action, reason string) PermissionNeededEvent {
	return PermissionNeededEvent{baseEvent: newBaseEvent("permission.needed"), Action: action, Reason: reason}
}

// ReviewPostInfo is the payload of a ReviewPostConfirmNeededEvent.
type ReviewPostInfo struct {
	Action       string
	Summary      string
	CommentCount int
}

// ReviewPostConfirmNeededEvent reports that a review is ready to post
// and (AutoPost disabled) awaits a PostConfirmResponse.
type ReviewPostConfirmNeededEvent struct {
	baseEvent
	Info ReviewPostInfo
}

func NewReviewPostConfirmNeededEvent(info ReviewPostInfo) ReviewPostConfirmNeededEvent {
	return ReviewPostConfirmNeededEvent{baseEvent: newBaseEvent("review.post_confirm_needed"), Info: info}
}

// FixPostInfo is the payload of a FixPostConfirmNeededEvent.
type FixPostInfo struct {
	Summary       string
	ModifiedFiles []string
}

// FixPostConfirmNeededEvent reports that a fix summary is ready to
// post and (AutoPost disabled) awaits a PostConfirmResponse.
type FixPostConfirmNeededEvent struct {
	baseEvent
	Info FixPostInfo
}

func NewFixPostConfirmNeededEvent(info FixPostInfo) FixPostConfirmNeededEvent {
	return FixPostConfirmNeededEvent{baseEvent: newBaseEvent("fix.post_confirm_needed"), Info: info}
}

// ApprovedEvent reports that the Reviewer approved and the rally is
// about to complete.
type ApprovedEvent struct {
	baseEvent
	Summary string
}

func NewApprovedEvent(summary string) ApprovedEvent {
	return ApprovedEvent{baseEvent: newBaseEvent("rally.approved"), Summary: summary}
}

// LogEvent carries a free-form diagnostic message (persistence
// warnings, discarded out-of-turn commands, and the like).
type LogEvent struct {
	baseEvent
	Message string
}

func NewLogEvent(message string) LogEvent {
	return LogEvent{baseEvent: newBaseEvent("log"), Message: message}
}

// ErrorEvent carries a fatal error message immediately before the
// rally transitions to rally.Error.
type ErrorEvent struct {
	baseEvent
	Message string
}

func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{baseEvent: newBaseEvent("error"), Message: message}
}

// Streaming trace events, forwarded from an agent backend via
// SetEventSender while a single RunReviewer/RunReviewee/Continue* call
// is in flight. These are purely informational; the orchestrator loop
// does not act on them.

// AgentThinkingEvent carries an agent's intermediate reasoning text.
type AgentThinkingEvent struct {
	baseEvent
	Content string
}

func NewAgentThinkingEvent(content string) AgentThinkingEvent {
	return AgentThinkingEvent{baseEvent: newBaseEvent("agent.thinking"), Content: content}
}

// AgentToolUseEvent reports an agent invoking a tool mid-call.
type AgentToolUseEvent struct {
	baseEvent
	ToolName     string
	InputSummary string
}

func NewAgentToolUseEvent(toolName, inputSummary string) AgentToolUseEvent {
	return AgentToolUseEvent{baseEvent: newBaseEvent("agent.tool_use"), ToolName: toolName, InputSummary: inputSummary}
}

// AgentToolResultEvent reports a tool call's result summary.
type AgentToolResultEvent struct {
	baseEvent
	ToolName      string
	ResultSummary string
}

func NewAgentToolResultEvent(toolName, resultSummary string) AgentToolResultEvent {
	return AgentToolResultEvent{baseEvent: newBaseEvent("agent.tool_result"), ToolName: toolName, ResultSummary: resultSummary}
}

// AgentTextEvent carries an agent's streamed text output.
type AgentTextEvent struct {
	baseEvent
	Text string
}

func NewAgentTextEvent(text string) AgentTextEvent {
	return AgentTextEvent{baseEvent: newBaseEvent("agent.text"), Text: text}
}

// Command is the interface every OrchestratorCommand variant
// satisfies. It exists so WaitForCommand can type-switch on a single
// channel element type.
type Command interface {
	Kind() string
}

// ClarificationResponseCommand answers a ClarificationNeededEvent.
type ClarificationResponseCommand struct {
	Answer string
}

func (ClarificationResponseCommand) Kind() string { return "clarification_response" }

// SkipClarificationCommand tells the rally to proceed without an
// answer, letting the Reviewee use its best judgment.
type SkipClarificationCommand struct{}

func (SkipClarificationCommand) Kind() string { return "skip_clarification" }

// PermissionResponseCommand answers a PermissionNeededEvent.
type PermissionResponseCommand struct {
	Approved bool
}

func (PermissionResponseCommand) Kind() string { return "permission_response" }

// PostConfirmResponseCommand answers a Review/FixPostConfirmNeeded
// event.
type PostConfirmResponseCommand struct {
	Approved bool
}

func (PostConfirmResponseCommand) Kind() string { return "post_confirm_response" }

// AbortCommand requests that the rally stop entirely at the next
// suspension point.
type AbortCommand struct{}

func (AbortCommand) Kind() string { return "abort" }
