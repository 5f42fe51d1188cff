// Package remote defines the collaborator surface parley needs from a remote
// assistant service.
//
// # Overview
//
// The conversation core never talks to a concrete API. It depends on two
// narrow interfaces:
//
//   - Threads: create and inspect threads, post messages, start, poll,
//     cancel and resume runs, and list messages newest first.
//   - Assistants: provision, inspect and delete assistants.
//
// Service combines both. The production implementation lives in the
// openaiapi subpackage; tests use the in-memory Fake in this package.
//
// # Runs
//
// A Run is a snapshot of a remote execution. Its Status walks:
//
//	queued -> in_progress -> requires_action -> queued -> ... -> completed
//	                      \-> failed | cancelled | expired | incomplete
//
// A run in requires_action carries the ToolCalls the assistant wants
// answered. The caller answers with SubmitToolOutputs, one ToolOutput per
// call id.
//
// # Errors
//
//   - ErrMissingCredential: no API key was configured
//   - ErrNotFound: the referenced assistant, thread or run does not exist
package remote
