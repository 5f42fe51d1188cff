// ABOUTME: Tests for lazy thread creation, adoption and reply lookup
// ABOUTME: Also covers classification of requires_action batches

package thread

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/remote"
	"github.com/2389/parley/internal/tools"
)

func TestThread_EnsureCreatedIsLazyAndStable(t *testing.T) {
	f := remote.NewFake()
	th := NewThread(f, "", nil)
	assert.Equal(t, "", th.ID())

	id, err := th.EnsureCreated(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "thread1", id)

	again, err := th.EnsureCreated(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, again, "second call must not create another thread")
}

func TestThread_EnsureCreatedError(t *testing.T) {
	f := remote.NewFake()
	f.FailOn("CreateThread", remote.ErrMissingCredential)
	th := NewThread(f, "", nil)

	_, err := th.EnsureCreated(context.Background())
	assert.ErrorIs(t, err, remote.ErrMissingCredential)
	assert.Equal(t, "", th.ID())
}

func TestThread_Adopt(t *testing.T) {
	th := NewThread(remote.NewFake(), "thread_a", nil)

	th.Adopt("")
	assert.Equal(t, "thread_a", th.ID())

	th.Adopt("thread_b")
	assert.Equal(t, "thread_b", th.ID())
}

func TestThread_PostSkipsEmptyContent(t *testing.T) {
	f := remote.NewFake()
	th := NewThread(f, "", nil)

	require.NoError(t, th.Post(context.Background(), ""))
	assert.Equal(t, "thread1", th.ID(), "posting creates the thread")
	assert.Empty(t, f.Messages("thread1"))

	require.NoError(t, th.Post(context.Background(), "hello"))
	msgs := f.Messages("thread1")
	require.Len(t, msgs, 1)
	assert.Equal(t, remote.RoleUser, msgs[0].Role)
}

func TestThread_Retrieve(t *testing.T) {
	f := remote.NewFake()

	_, err := NewThread(f, "", nil).Retrieve(context.Background())
	assert.ErrorIs(t, err, ErrNoThread)

	f.AddThread("thread_x")
	got, err := NewThread(f, "thread_x", nil).Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "thread_x", got.ID)

	_, err = NewThread(f, "thread_gone", nil).Retrieve(context.Background())
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestThread_LatestReply(t *testing.T) {
	ctx := context.Background()
	f := remote.NewFake()
	f.AddThread("t")
	f.AddAssistant("a", "A")
	f.Reply("a", "first answer")

	th := NewThread(f, "t", nil)
	_, err := th.LatestReply(ctx)
	assert.ErrorIs(t, err, ErrNoReply)

	e := NewEngine(f, EngineConfig{Sleeper: SleeperFunc(func(context.Context, time.Duration) error { return nil })}, nil)
	_, err = e.Run(ctx, "t", "a")
	require.NoError(t, err)
	require.NoError(t, th.Post(ctx, "a newer user message"))

	msg, err := th.LatestReply(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first answer", msg.Text, "user messages are skipped")
}

func TestClassify(t *testing.T) {
	actions, err := Classify([]remote.ToolCall{
		{ID: "c1", Name: "cat", Arguments: `{"filePath":"a"}`},
		{ID: "c2", Name: tools.DelegateToolName, Arguments: `{"assistantId":" asst_b "}`},
	})
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, ToolInvocation{CallID: "c1", Name: "cat", Arguments: `{"filePath":"a"}`}, actions[0])
	assert.Equal(t, Delegation{CallID: "c2", Target: "asst_b"}, actions[1])
}

func TestClassify_MalformedDelegation(t *testing.T) {
	for _, args := range []string{`{}`, `{"assistantId":42}`, `{"assistantId":""}`, `not json`} {
		_, err := Classify([]remote.ToolCall{{ID: "c", Name: tools.DelegateToolName, Arguments: args}})
		assert.True(t, errors.Is(err, ErrDelegation), "args %s", args)
	}
}
