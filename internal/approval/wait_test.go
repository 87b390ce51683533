package approval

import (
	"context"
	"testing"
	"time"

	"github.com/octorus/octorus/internal/event"
	"github.com/octorus/octorus/internal/rally"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForCommand_AcceptsLegalCommand(t *testing.T) {
	commands := make(chan event.Command, 1)
	commands <- event.PermissionResponseCommand{Approved: true}

	got, err := WaitForCommand(context.Background(), commands, event.Sender{}, rally.WaitingForPermission)
	require.NoError(t, err)
	assert.Equal(t, event.PermissionResponseCommand{Approved: true}, got)
}

func TestWaitForCommand_AbortAlwaysLegal(t *testing.T) {
	commands := make(chan event.Command, 1)
	commands <- event.AbortCommand{}

	got, err := WaitForCommand(context.Background(), commands, event.Sender{}, rally.WaitingForClarification)
	require.NoError(t, err)
	assert.Equal(t, event.AbortCommand{}, got)
}

func TestWaitForCommand_DiscardsIllegalCommandThenAcceptsNext(t *testing.T) {
	commands := make(chan event.Command, 2)
	// A PermissionResponse while waiting for a clarification answer is
	// stale/illegal and must be discarded, not returned.
	commands <- event.PermissionResponseCommand{Approved: true}
	commands <- event.ClarificationResponseCommand{Answer: "use option B"}

	events := event.NewChannel(4)
	got, err := WaitForCommand(context.Background(), commands, event.NewSender(events), rally.WaitingForClarification)
	require.NoError(t, err)
	assert.Equal(t, event.ClarificationResponseCommand{Answer: "use option B"}, got)

	select {
	case ev := <-events:
		logEv, ok := ev.(event.LogEvent)
		require.True(t, ok)
		assert.Contains(t, logEv.Message, "discarding")
	default:
		t.Fatal("expected a Log event for the discarded command")
	}
}

func TestWaitForCommand_ClosedChannelIsImplicitAbort(t *testing.T) {
	commands := make(chan event.Command)
	close(commands)

	got, err := WaitForCommand(context.Background(), commands, event.Sender{}, rally.WaitingForPermission)
	require.NoError(t, err)
	assert.Equal(t, event.AbortCommand{}, got)
}

func TestWaitForCommand_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	commands := make(chan event.Command)
	_, err := WaitForCommand(ctx, commands, event.Sender{}, rally.WaitingForPermission)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForCommand_SkipClarificationLegal(t *testing.T) {
	commands := make(chan event.Command, 1)
	commands <- event.SkipClarificationCommand{}

	got, err := WaitForCommand(context.Background(), commands, event.Sender{}, rally.WaitingForClarification)
	require.NoError(t, err)
	assert.Equal(t, event.SkipClarificationCommand{}, got)
}
