package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/octorus/octorus/internal/event"
	"github.com/octorus/octorus/internal/rally"
	"github.com/octorus/octorus/internal/review"
	"github.com/octorus/octorus/internal/reviewee"
)

// Agent is the capability interface any backend implements.
// The Orchestrator calls RunReviewer/RunReviewee once per iteration
// and ContinueReviewer/ContinueReviewee for clarification/permission
// follow-ups within the same iteration.
type Agent interface {
	// RunReviewer starts a fresh Reviewer conversation with prompt and
	// returns its structured verdict.
	RunReviewer(ctx context.Context, prompt string, rctx *rally.Context) (review.Output, error)

	// RunReviewee starts a fresh Reviewee conversation with prompt and
	// returns its structured outcome.
	RunReviewee(ctx context.Context, prompt string, rctx *rally.Context) (reviewee.Output, error)

	// ContinueReviewer continues the most recent Reviewer conversation
	// (e.g. passing on the user's answer to a clarification question).
	ContinueReviewer(ctx context.Context, prompt string) (review.Output, error)

	// ContinueReviewee continues the most recent Reviewee conversation
	// (e.g. a clarification answer or a permission decision).
	ContinueReviewee(ctx context.Context, prompt string) (reviewee.Output, error)

	// AddRevieweeAllowedTool records a newly granted capability for
	// subsequent Reviewee invocations in this rally.
	AddRevieweeAllowedTool(action string)

	// SetEventSender injects the event channel used for best-effort
	// agent-trace events (Thinking/ToolUse/ToolResult/Text).
	SetEventSender(sender event.Sender)
}

// conversation tracks one role's (Reviewer's or Reviewee's) running
// state across a rally. When the backend supports explicit session
// IDs (Claude), continuation uses a real --resume; otherwise
// (Codex) continuation re-prompts with the accumulated transcript,
// since there is no session ID to resume until the process has
// already exited and reported one.
type conversation struct {
	sessionID  string
	workingDir string
	started    bool
	transcript strings.Builder
}

func (c *conversation) record(prompt, response string) {
	if c.transcript.Len() > 0 {
		c.transcript.WriteString("\n\n")
	}
	fmt.Fprintf(&c.transcript, "--- prompt ---\n%s\n--- response ---\n%s", prompt, response)
}

// CLIAgent implements Agent by shelling out to a Backend CLI once per
// turn.
type CLIAgent struct {
	backend Backend

	reviewer conversation
	reviewee conversation

	allowedTools []string
	sender       event.Sender
}

// NewCLIAgent constructs a CLIAgent around backend.
func NewCLIAgent(backend Backend) *CLIAgent {
	return &CLIAgent{backend: backend}
}

func (a *CLIAgent) SetEventSender(sender event.Sender) {
	a.sender = sender
}

func (a *CLIAgent) AddRevieweeAllowedTool(action string) {
	a.allowedTools = append(a.allowedTools, action)
}

func (a *CLIAgent) revieweeToolsNote() string {
	if len(a.allowedTools) == 0 {
		return ""
	}
	return "Additional tools granted this session: " + strings.Join(a.allowedTools, ", ") + "\n\n"
}

func (a *CLIAgent) runFresh(ctx context.Context, conv *conversation, workingDir, prompt string) (string, error) {
	opts := RunOptions{}
	if a.backend.SupportsExplicitSessionID() {
		conv.sessionID = generateSessionID()
		opts.SessionID = conv.sessionID
	}
	conv.workingDir = workingDir
	raw, err := runOneShot(ctx, a.backend, workingDir, prompt, opts)
	conv.started = true
	if err != nil {
		return "", err
	}
	conv.record(prompt, raw)
	a.emitText(raw)
	return raw, nil
}

// runContinuation re-enters conv, which must have already been
// started by runFresh; it reuses the working directory the
// conversation started in so a Reviewee's follow-up edits land in the
// same working tree as its first invocation.
func (a *CLIAgent) runContinuation(ctx context.Context, conv *conversation, prompt string) (string, error) {
	if !conv.started {
		return a.runFresh(ctx, conv, conv.workingDir, prompt)
	}

	opts := RunOptions{}
	effectivePrompt := prompt
	if a.backend.SupportsExplicitSessionID() && conv.sessionID != "" {
		opts.SessionID = conv.sessionID
		opts.Resume = true
	} else {
		effectivePrompt = conv.transcript.String() + "\n\n--- continue ---\n" + prompt
	}

	raw, err := runOneShot(ctx, a.backend, conv.workingDir, effectivePrompt, opts)
	if err != nil {
		return "", err
	}
	conv.record(prompt, raw)
	a.emitText(raw)
	return raw, nil
}

func (a *CLIAgent) emitText(text string) {
	a.sender.Send(event.NewAgentTextEvent(text))
}

func (a *CLIAgent) RunReviewer(ctx context.Context, prompt string, rctx *rally.Context) (review.Output, error) {
	raw, err := a.runFresh(ctx, &a.reviewer, rctx.WorkingDir, prompt)
	if err != nil {
		return review.Output{}, fmt.Errorf("run reviewer: %w", err)
	}
	return parseReviewOutput(raw)
}

func (a *CLIAgent) ContinueReviewer(ctx context.Context, prompt string) (review.Output, error) {
	raw, err := a.runContinuation(ctx, &a.reviewer, prompt)
	if err != nil {
		return review.Output{}, fmt.Errorf("continue reviewer: %w", err)
	}
	return parseReviewOutput(raw)
}

func (a *CLIAgent) RunReviewee(ctx context.Context, prompt string, rctx *rally.Context) (reviewee.Output, error) {
	prompt = a.revieweeToolsNote() + prompt
	raw, err := a.runFresh(ctx, &a.reviewee, rctx.WorkingDir, prompt)
	if err != nil {
		return reviewee.Output{}, fmt.Errorf("run reviewee: %w", err)
	}
	return parseRevieweeOutput(raw)
}

func (a *CLIAgent) ContinueReviewee(ctx context.Context, prompt string) (reviewee.Output, error) {
	prompt = a.revieweeToolsNote() + prompt
	raw, err := a.runContinuation(ctx, &a.reviewee, prompt)
	if err != nil {
		return reviewee.Output{}, fmt.Errorf("continue reviewee: %w", err)
	}
	return parseRevieweeOutput(raw)
}

func parseReviewOutput(raw string) (review.Output, error) {
	var out review.Output
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return review.Output{}, fmt.Errorf("parse reviewer response as JSON: %w\nresponse: %s", err, raw)
	}
	return out, nil
}

func parseRevieweeOutput(raw string) (reviewee.Output, error) {
	var out reviewee.Output
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return reviewee.Output{}, fmt.Errorf("parse reviewee response as JSON: %w\nresponse: %s", err, raw)
	}
	return out, nil
}
