// Package agent wraps remote assistants as conversational participants.
//
// # Overview
//
// An Agent is a remote assistant id plus the local state needed to run its
// turns: a tool registry, a fixed-argument overlay and a run engine. Agents
// are either provisioned (Create) or wrap an id that already exists (New):
//
//	a, err := agent.Create(ctx, svc, agent.Definition{
//	    Name:         "Translator",
//	    Instructions: "Translate everything into English.",
//	    Model:        "gpt-4o",
//	}, agent.WithTools(reg))
//
//	b := agent.New(svc, "asst_abc123", agent.WithTools(reg))
//
// Deleting the remote assistant is explicit (Delete) and never happens
// implicitly when an Agent value is dropped.
//
// # Identity
//
// ResolveName returns the display name, fetching it once and caching it for
// the lifetime of the Agent. A provisioned Agent starts with the name it was
// created with.
//
// # Turns
//
// Converse runs one turn:
//
//  1. Create the thread if threadID is empty
//  2. Post the message (skipped when empty)
//  3. Run the engine until the run settles
//
// The Outcome always carries the thread id. Err is set exactly when no text
// was produced; it is never returned separately so a turn error can be
// recorded alongside partial state.
//
// # Directory
//
// Directory is the roster of known agents. It is the delegation target
// resolver for every agent it holds: a callAssistant request for an unknown
// id wraps that id with the directory's default options. Nested delegation
// is capped by MaxDepth.
//
// # Errors
//
//   - ErrProvisioning: the remote service rejected create or delete
//   - ErrNotFound: the assistant id no longer resolves
//   - ErrDelegationDepth: too many nested handoffs
//   - a missing credential surfaces as ErrProvisioning wrapping remote.ErrMissingCredential
package agent
