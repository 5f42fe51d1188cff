// Package thread drives assistant runs on a remote conversation thread.
//
// # Thread
//
// Thread wraps a remote thread id that is created lazily on first use:
//
//	th := thread.NewThread(svc, "", logger)
//	id, err := th.EnsureCreated(ctx)
//
// Once set, the id only changes through Adopt.
//
// # Engine
//
// Engine executes one turn for one assistant:
//
//	start run -> poll (queued / in_progress / cancelling)
//	          -> requires_action: classify and dispatch tool calls, resume polling
//	          -> completed: read the newest assistant message
//	          -> failed: ErrRunFailed with the remote message
//	          -> cancelled: start a fresh run, at most MaxAttempts runs in total
//
// Polling waits PollInterval between reads through a Sleeper so tests can run
// without real time passing. Every wait honours context cancellation.
//
// # Tool calls
//
// A requires_action batch is classified into Actions, in remote order:
//
//   - ToolInvocation: dispatched through the tools.Registry with the overlay
//     applied. All outputs of a batch are submitted together once every call
//     succeeded; the first failure aborts the batch and nothing is submitted.
//   - Delegation: the reserved callAssistant tool. The current run is
//     cancelled and the turn is handed to the Delegator on the same thread.
//     Its result is the result of the turn.
//
// Calls already answered for a run are skipped, so a stale requires_action
// read never executes a tool twice.
//
// # Errors
//
//   - ErrRunFailed: the remote run failed or ended without completing
//   - ErrRetryExceeded: too many runs were cancelled remotely
//   - ErrDelegation: a handoff could not complete
//   - ErrNoReply: the run completed without an assistant message
package thread
