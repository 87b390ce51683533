// Package approval provides the single WaitForCommand suspension
// point the orchestrator uses for each of the rally's Waiting* states.
//
// Unlike a multi-task approval queue, a rally has exactly one
// outstanding decision at a time: the orchestrator blocks on the
// command channel, accepts the first command that is legal for the
// current state, and discards anything else with a diagnostic log
// event rather than queuing it.
//
// # Usage
//
//	cmd, err := approval.WaitForCommand(ctx, commands, events, rally.WaitingForPermission)
//	switch c := cmd.(type) {
//	case event.PermissionResponseCommand:
//		...
//	}
package approval
