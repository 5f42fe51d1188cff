// Package tools holds the named local capabilities an assistant may invoke
// mid-turn.
//
// # Registry
//
// A Registry maps tool names to handlers. Handlers receive the decoded JSON
// arguments of a call and return any JSON-encodable value; the value is
// rendered as 2-space indented JSON before it is submitted back to the run.
//
//	reg := tools.NewRegistry()
//	reg.Register(tools.Tool{Name: "cat", Handler: cat})
//	out, err := reg.Invoke(ctx, "cat", `{"filePath":"go.mod"}`, overlay)
//
// # Overlay
//
// An Overlay pins argument values per tool. Overlay entries are merged into
// the remote-supplied arguments and win on conflict:
//
//	overlay := tools.Overlay{"getAuthorInfo": {"name": "rhyizm"}}
//
// # Delegation
//
// The name callAssistant is reserved. A call to it is a request to hand the
// turn to another assistant and is never dispatched through the registry.
// DelegationDefinition publishes its schema so provisioned assistants can
// request it.
//
// # Builtins
//
// Builtins returns cat and tree, both confined to a root directory.
package tools
