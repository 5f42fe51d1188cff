// ABOUTME: Tests for the agent directory as delegation target resolver
// ABOUTME: Covers handoff responder identity, unknown-id wrapping and depth limits

package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/remote"
	"github.com/2389/parley/internal/thread"
	"github.com/2389/parley/internal/tools"
)

func delegateCall(target string) remote.RunStep {
	return remote.RunStep{Status: remote.RunRequiresAction, ToolCalls: []remote.ToolCall{
		{ID: "call_" + target, Name: tools.DelegateToolName, Arguments: `{"assistantId":"` + target + `"}`},
	}}
}

func TestDirectory_DelegationResponderIsTarget(t *testing.T) {
	f := remote.NewFake()
	f.AddAssistant("asst_main", "Main")
	f.AddAssistant("asst_translator", "Translator")
	f.Script("asst_main", delegateCall("asst_translator"))
	f.Reply("asst_translator", "I have fought cerebrospinal fluid leak syndrome for five years.")

	dir := NewDirectory(f, 0, nil, noSleep())
	main := dir.Wrap("asst_main")

	out := main.Converse(context.Background(), "translate this", "")
	require.NoError(t, out.Err)
	assert.True(t, out.Delegated)
	assert.Equal(t, "asst_translator", out.ResponderID)
	assert.NotEqual(t, "asst_main", out.ResponderID)
	assert.Contains(t, out.Text, "five years")

	started := f.Started()
	require.Len(t, started, 2)
	assert.Equal(t, started[0].ThreadID, started[1].ThreadID, "handoff stays on the same thread")
	assert.Equal(t, []string{started[0].ID}, f.Cancelled())
	assert.Equal(t, started[1].ID, out.RunID)

	// unknown target was wrapped and is now known
	_, ok := dir.Get("asst_translator")
	assert.True(t, ok)
}

func TestDirectory_DelegationToMissingAssistant(t *testing.T) {
	f := remote.NewFake()
	f.AddAssistant("asst_main", "Main")
	f.Script("asst_main", delegateCall("asst_ghost"))

	dir := NewDirectory(f, 0, nil, noSleep())
	out := dir.Wrap("asst_main").Converse(context.Background(), "hi", "")

	assert.ErrorIs(t, out.Err, thread.ErrDelegation)
	assert.ErrorIs(t, out.Err, remote.ErrNotFound)
	assert.Empty(t, out.Text)
}

func TestDirectory_DepthLimit(t *testing.T) {
	f := remote.NewFake()
	f.AddAssistant("asst_a", "A")
	f.AddAssistant("asst_b", "B")
	// A and B keep handing the turn to each other
	for i := 0; i < 5; i++ {
		f.Script("asst_a", delegateCall("asst_b"))
		f.Script("asst_b", delegateCall("asst_a"))
	}

	dir := NewDirectory(f, 2, nil, noSleep())
	out := dir.Wrap("asst_a").Converse(context.Background(), "ping", "")

	assert.ErrorIs(t, out.Err, ErrDelegationDepth)
	assert.ErrorIs(t, out.Err, thread.ErrDelegation)
	assert.Len(t, f.Started(), 3, "a, b, a; the third handoff is refused")
}

func TestDirectory_ResolveName(t *testing.T) {
	f := remote.NewFake()
	f.AddAssistant("asst_x", "Xavier")
	dir := NewDirectory(f, 0, nil)

	name, err := dir.ResolveName(context.Background(), "asst_x")
	require.NoError(t, err)
	assert.Equal(t, "Xavier", name)

	_, err = dir.ResolveName(context.Background(), "asst_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectory_List(t *testing.T) {
	dir := NewDirectory(remote.NewFake(), 0, nil)
	dir.Wrap("b")
	dir.Wrap("a")
	dir.Add(New(remote.NewFake(), "c"))

	ids := []string{}
	for _, a := range dir.List() {
		ids = append(ids, a.ID())
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	dir.Remove("b")
	_, ok := dir.Get("b")
	assert.False(t, ok)
}
