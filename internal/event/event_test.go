package event

import (
	"testing"

	"github.com/octorus/octorus/internal/rally"
	"github.com/stretchr/testify/assert"
)

func TestStateChangedEvent(t *testing.T) {
	ev := NewStateChangedEvent(rally.ReviewerReviewing)
	assert.Equal(t, "state.changed", ev.EventType())
	assert.Equal(t, rally.ReviewerReviewing, ev.State)
	assert.False(t, ev.Timestamp().IsZero())
}

func TestSender_NonBlockingDropsWhenFull(t *testing.T) {
	ch := NewChannel(1)
	sender := NewSender(ch)

	assert.True(t, sender.Send(NewLogEvent("first")))
	// Channel is now full (capacity 1); the second send must not block
	// and must report that it was dropped.
	assert.False(t, sender.Send(NewLogEvent("second")))

	got := <-ch
	assert.Equal(t, "first", got.(LogEvent).Message)
}

func TestSender_NilSenderDiscardsSilently(t *testing.T) {
	var s Sender
	assert.False(t, s.Send(NewLogEvent("dropped")))
}

func TestCommands_TypeSwitch(t *testing.T) {
	cmds := []Command{
		ClarificationResponseCommand{Answer: "yes"},
		SkipClarificationCommand{},
		PermissionResponseCommand{Approved: true},
		PostConfirmResponseCommand{Approved: false},
		AbortCommand{},
	}
	var kinds []string
	for _, c := range cmds {
		switch v := c.(type) {
		case ClarificationResponseCommand:
			kinds = append(kinds, "clarification:"+v.Answer)
		case SkipClarificationCommand:
			kinds = append(kinds, "skip")
		case PermissionResponseCommand:
			kinds = append(kinds, "permission")
		case PostConfirmResponseCommand:
			kinds = append(kinds, "post_confirm")
		case AbortCommand:
			kinds = append(kinds, "abort")
		}
	}
	assert.Equal(t, []string{"clarification:yes", "skip", "permission", "post_confirm", "abort"}, kinds)
}
