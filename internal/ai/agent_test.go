package ai

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/octorus/octorus/internal/event"
	"github.com/octorus/octorus/internal/rally"
	"github.com/octorus/octorus/internal/reviewee"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend ignores the prompt file's contents and echoes a fixed
// response, so agent_test.go exercises CLIAgent's plumbing (session
// tracking, transcript fallback, JSON parsing) without invoking a
// real claude/codex binary.
type fakeBackend struct {
	name           BackendName
	explicitSessID bool
	response       string
	calls          []RunOptions
}

func (f *fakeBackend) Name() BackendName               { return f.name }
func (f *fakeBackend) SupportsExplicitSessionID() bool { return f.explicitSessID }
func (f *fakeBackend) BuildCommand(opts RunOptions) (string, error) {
	if opts.PromptFile == "" {
		return "", fmt.Errorf("prompt file required")
	}
	f.calls = append(f.calls, opts)
	return fmt.Sprintf("printf '%%s' %q", f.response), nil
}

func TestCLIAgent_RunReviewer_ParsesOutput(t *testing.T) {
	backend := &fakeBackend{
		name:           BackendClaude,
		explicitSessID: true,
		response:       `{"action":"approve","summary":"looks good"}`,
	}
	agent := NewCLIAgent(backend)

	out, err := agent.RunReviewer(context.Background(), "review this diff", &rally.Context{})
	require.NoError(t, err)
	assert.EqualValues(t, "approve", out.Action)
	assert.Equal(t, "looks good", out.Summary)

	require.Len(t, backend.calls, 1)
	assert.NotEmpty(t, backend.calls[0].SessionID)
	assert.False(t, backend.calls[0].Resume)
}

func TestCLIAgent_ContinueReviewer_ResumesSessionWhenSupported(t *testing.T) {
	backend := &fakeBackend{
		name:           BackendClaude,
		explicitSessID: true,
		response:       `{"action":"request_changes","summary":"still missing a test"}`,
	}
	agent := NewCLIAgent(backend)

	_, err := agent.RunReviewer(context.Background(), "initial review", &rally.Context{})
	require.NoError(t, err)

	out, err := agent.ContinueReviewer(context.Background(), "here's the updated diff")
	require.NoError(t, err)
	assert.EqualValues(t, "request_changes", out.Action)

	require.Len(t, backend.calls, 2)
	assert.True(t, backend.calls[1].Resume)
	assert.Equal(t, backend.calls[0].SessionID, backend.calls[1].SessionID)
}

func TestCLIAgent_ContinueReviewee_FallsBackToTranscriptWithoutExplicitSessions(t *testing.T) {
	backend := &fakeBackend{
		name:           BackendCodex,
		explicitSessID: false,
		response:       `{"status":"completed","summary":"fixed it"}`,
	}
	agent := NewCLIAgent(backend)

	_, err := agent.RunReviewee(context.Background(), "fix this", &rally.Context{})
	require.NoError(t, err)

	out, err := agent.ContinueReviewee(context.Background(), "one more thing")
	require.NoError(t, err)
	assert.Equal(t, reviewee.Completed, out.Status)

	require.Len(t, backend.calls, 2)
	assert.Empty(t, backend.calls[1].SessionID)
	assert.False(t, backend.calls[1].Resume)
}

func TestCLIAgent_AddRevieweeAllowedTool_PrependsNoteToPrompt(t *testing.T) {
	backend := &fakeBackend{
		name:     BackendClaude,
		response: `{"status":"completed","summary":"done"}`,
	}
	agent := NewCLIAgent(backend)
	agent.AddRevieweeAllowedTool("Bash(npm test:*)")

	_, err := agent.RunReviewee(context.Background(), "go fix it", &rally.Context{})
	require.NoError(t, err)
	assert.Contains(t, agent.reviewee.transcript.String(), "Bash(npm test:*)")
}

func TestCLIAgent_EmitsAgentTextEvent(t *testing.T) {
	backend := &fakeBackend{response: `{"action":"approve","summary":"ok"}`}
	agent := NewCLIAgent(backend)

	ch := make(chan event.Event, 4)
	agent.SetEventSender(event.NewSender(ch))

	_, err := agent.RunReviewer(context.Background(), "review", &rally.Context{})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		textEv, ok := ev.(event.AgentTextEvent)
		require.True(t, ok)
		assert.Contains(t, textEv.Text, "approve")
	case <-time.After(time.Second):
		t.Fatal("expected an AgentTextEvent")
	}
}

func TestCLIAgent_RunReviewer_SurfacesBackendError(t *testing.T) {
	agent := NewCLIAgent(&erroringBackend{})
	_, err := agent.RunReviewer(context.Background(), "review", &rally.Context{})
	require.Error(t, err)
}

type erroringBackend struct{}

func (erroringBackend) Name() BackendName               { return "broken" }
func (erroringBackend) SupportsExplicitSessionID() bool { return false }
func (erroringBackend) BuildCommand(RunOptions) (string, error) {
	return "", fmt.Errorf("boom")
}
