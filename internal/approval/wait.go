package approval

import (
	"context"
	"fmt"

	"github.com/octorus/octorus/internal/event"
	"github.com/octorus/octorus/internal/rally"
)

// legalCommands maps each Waiting* state to the command types that
// resolve it. AbortCommand is always legal and is not listed.
var legalCommands = map[rally.State]map[string]bool{
	rally.WaitingForClarification: {
		"clarification_response": true,
		"skip_clarification":     true,
	},
	rally.WaitingForPermission: {
		"permission_response": true,
	},
	rally.WaitingForPostConfirmation: {
		"post_confirm_response": true,
	},
}

// WaitForCommand blocks until a command legal for state arrives on
// commands, the context is canceled, or commands is closed.
//
// Any command not legal for state (including a stale response to a
// state the rally has already left) is discarded with a Log event on
// events and the wait continues. AbortCommand is always legal. A
// closed commands channel is treated as an implicit AbortCommand,
// since no further input can ever arrive.
func WaitForCommand(ctx context.Context, commands <-chan event.Command, events event.Sender, state rally.State) (event.Command, error) {
	allowed := legalCommands[state]

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case cmd, ok := <-commands:
			if !ok {
				return event.AbortCommand{}, nil
			}
			kind := cmd.Kind()
			if kind == "abort" || allowed[kind] {
				return cmd, nil
			}
			events.Send(event.NewLogEvent(fmt.Sprintf(
				"discarding command %q: not legal while waiting in state %q", kind, state)))
		}
	}
}
