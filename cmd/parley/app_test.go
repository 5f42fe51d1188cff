// ABOUTME: Tests for CLI wiring: provisioning, agent resolution, sessions and flag parsing
// ABOUTME: Runs against the remote fake and the in-memory store

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/remote"
	"github.com/2389/parley/internal/session"
	"github.com/2389/parley/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("remember the milk"), 0644))

	return &config.Config{
		Engine: config.EngineConfig{PollInterval: time.Millisecond, MaxAttempts: 3, MaxDelegationDepth: 2},
		Tools:  config.ToolsConfig{Root: root},
		Agents: []config.AgentConfig{
			{Key: "host", ID: "asst_host", Name: "Host", Avatar: "host.png"},
			{Key: "guest", Name: "Guest", Model: "gpt-4o-mini", Tools: []string{"cat"}, Delegation: true,
				Arguments: map[string]map[string]any{"cat": {"filePath": "notes.txt"}}},
		},
		Session: config.SessionConfig{Topic: "hello", Roster: []string{"host", "guest"}},
	}
}

func newTestApp(t *testing.T) (*app, *remote.Fake, *store.MockStore) {
	t.Helper()
	color.NoColor = true
	f := remote.NewFake()
	f.AddAssistant("asst_host", "Host")
	st := store.NewMockStore()
	a, err := newApp(testConfig(t), f, st, nil)
	require.NoError(t, err)
	return a, f, st
}

func TestProvision(t *testing.T) {
	a, _, st := newTestApp(t)
	ctx := context.Background()

	results, err := a.provision(ctx, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "guest", results[0].Key)
	assert.Equal(t, "asst1", results[0].AssistantID)
	assert.True(t, results[0].Created)

	rec, err := st.GetAgent(ctx, "guest")
	require.NoError(t, err)
	assert.Equal(t, "asst1", rec.AssistantID)
	assert.Equal(t, "gpt-4o-mini", rec.Model)

	// second run finds the record and creates nothing
	results, err = a.provision(ctx, []string{"guest", "host"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Created)
	assert.False(t, results[1].Created)
	assert.Equal(t, "asst_host", results[1].AssistantID)

	name, err := a.dir.ResolveName(ctx, "asst1")
	require.NoError(t, err)
	assert.Equal(t, "Guest", name)
}

func TestProvision_UnknownKey(t *testing.T) {
	a, _, _ := newTestApp(t)
	_, err := a.provision(context.Background(), []string{"nobody"})
	assert.ErrorContains(t, err, "no agent configured")
}

func TestDeprovision(t *testing.T) {
	a, f, st := newTestApp(t)
	ctx := context.Background()

	_, err := a.provision(ctx, nil)
	require.NoError(t, err)

	id, err := a.deprovision(ctx, "guest")
	require.NoError(t, err)
	assert.Equal(t, "asst1", id)
	assert.Equal(t, []string{"asst1"}, f.Deleted())

	_, err = st.GetAgent(ctx, "guest")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = a.deprovision(ctx, "guest")
	assert.ErrorIs(t, err, errNotProvisioned)
}

func TestResolve_Unprovisioned(t *testing.T) {
	a, _, _ := newTestApp(t)
	_, err := a.resolve(context.Background(), "guest")
	assert.ErrorIs(t, err, errNotProvisioned)

	// loadAll skips it instead of failing
	require.NoError(t, a.loadAll(context.Background()))
	_, ok := a.dir.Get("asst_host")
	assert.True(t, ok)
}

func TestResolve_UnknownTool(t *testing.T) {
	a, _, _ := newTestApp(t)
	a.cfg.Agents[0].Tools = []string{"rm"}
	_, err := a.resolve(context.Background(), "host")
	assert.Error(t, err)
}

func TestChatTurnUsesOverlay(t *testing.T) {
	a, f, _ := newTestApp(t)
	ctx := context.Background()
	_, err := a.provision(ctx, nil)
	require.NoError(t, err)

	f.Script("asst1",
		remote.RunStep{Status: remote.RunRequiresAction, ToolCalls: []remote.ToolCall{
			{ID: "call_1", Name: "cat", Arguments: `{"filePath":"../../etc/passwd"}`},
		}},
		remote.RunStep{Status: remote.RunCompleted, Reply: "you should buy milk"},
	)

	var out bytes.Buffer
	require.NoError(t, runChat(ctx, a, []string{"guest", "what", "did", "I", "forget?"}, &out))
	assert.Contains(t, out.String(), "you should buy milk")

	subs := f.Submissions()
	require.Len(t, subs, 1)
	assert.Contains(t, subs[0].Outputs[0].Output, "remember the milk")
}

func TestChatTurnLayersSharedArguments(t *testing.T) {
	a, f, _ := newTestApp(t)
	ctx := context.Background()
	// the shared entry points elsewhere; the guest's own filePath wins
	a.cfg.Tools.Arguments = map[string]map[string]any{"cat": {"filePath": "missing.txt"}}
	_, err := a.provision(ctx, nil)
	require.NoError(t, err)

	f.Script("asst1",
		remote.RunStep{Status: remote.RunRequiresAction, ToolCalls: []remote.ToolCall{
			{ID: "call_1", Name: "cat", Arguments: `{}`},
		}},
		remote.RunStep{Status: remote.RunCompleted, Reply: "done"},
	)
	var out bytes.Buffer
	require.NoError(t, runChat(ctx, a, []string{"guest", "read it"}, &out))
	subs := f.Submissions()
	require.Len(t, subs, 1)
	assert.Contains(t, subs[0].Outputs[0].Output, "remember the milk")

	// an agent with no arguments of its own gets the shared ones
	a.cfg.Tools.Arguments = map[string]map[string]any{"cat": {"filePath": "notes.txt"}}
	a.cfg.Agents[0].Tools = []string{"cat"}
	f.Script("asst_host",
		remote.RunStep{Status: remote.RunRequiresAction, ToolCalls: []remote.ToolCall{
			{ID: "call_2", Name: "cat", Arguments: `{"filePath":"other.txt"}`},
		}},
		remote.RunStep{Status: remote.RunCompleted, Reply: "done"},
	)
	require.NoError(t, runChat(ctx, a, []string{"host", "read it"}, &out))
	subs = f.Submissions()
	require.Len(t, subs, 2)
	assert.Contains(t, subs[1].Outputs[0].Output, "remember the milk")
}

func TestSessionCommand(t *testing.T) {
	a, f, _ := newTestApp(t)
	ctx := context.Background()
	_, err := a.provision(ctx, nil)
	require.NoError(t, err)

	f.Reply("asst_host", "welcome")
	f.Reply("asst1", "thanks")
	f.Reply("asst_host", "how are you?")

	var out bytes.Buffer
	require.NoError(t, runSessionCmd(ctx, a, []string{"--limit", "3", "--chunk=2", "--topic", "greetings"}, &out))

	text := out.String()
	assert.Contains(t, text, "Host\nwelcome")
	assert.Contains(t, text, "Guest\nthanks")
	assert.Contains(t, text, "how are you?")
	assert.Contains(t, text, "status completed messages 3 thread thread1")
	assert.Less(t, strings.Index(text, "welcome"), strings.Index(text, "thanks"))

	// every turn ran on the one shared thread, seeded with the topic
	msgs := f.Messages("thread1")
	require.NotEmpty(t, msgs)
	assert.Equal(t, "greetings", msgs[0].Text)
	for _, r := range f.Started() {
		assert.Equal(t, "thread1", r.ThreadID)
	}
}

func TestSessionCommand_TurnFailure(t *testing.T) {
	a, f, _ := newTestApp(t)
	ctx := context.Background()
	_, err := a.provision(ctx, nil)
	require.NoError(t, err)

	f.Reply("asst_host", "welcome")
	f.Script("asst1", remote.RunStep{Status: remote.RunFailed, LastError: "rate limited"})

	var out bytes.Buffer
	err = runSessionCmd(ctx, a, []string{"--limit", "4"}, &out)
	assert.ErrorIs(t, err, session.ErrTurnFailed)
	assert.Contains(t, out.String(), "welcome")
	assert.Contains(t, out.String(), "status error messages 1")
}

func TestRunSession_Chunks(t *testing.T) {
	a, f, _ := newTestApp(t)
	ctx := context.Background()
	f.AddAssistant("asst_other", "Other")
	for i := 0; i < 3; i++ {
		f.Reply("asst_host", "h")
		f.Reply("asst_other", "o")
	}

	s := session.New([]session.Participant{a.dir.Wrap("asst_host"), a.dir.Wrap("asst_other")})
	require.NoError(t, runSession(ctx, s, 5, 2))
	assert.Len(t, s.Transcript(), 5)
	assert.Equal(t, session.StatusCompleted, s.Status())
	assert.Len(t, f.Started(), 5)
}

func TestChatCommand_ContinuesThread(t *testing.T) {
	a, f, _ := newTestApp(t)
	ctx := context.Background()
	f.Reply("asst_host", "first")
	f.Reply("asst_host", "second")

	var out bytes.Buffer
	require.NoError(t, runChat(ctx, a, []string{"host", "hi"}, &out))
	assert.Contains(t, out.String(), "thread=thread1")

	out.Reset()
	require.NoError(t, runChat(ctx, a, []string{"--thread", "thread1", "host", "again"}, &out))
	assert.Contains(t, out.String(), "second")
	assert.Contains(t, out.String(), "thread=thread1")

	err := runChat(ctx, a, []string{"host"}, &out)
	assert.ErrorContains(t, err, "usage: parley chat")
}

func TestSessionCommand_BadFlags(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	assert.Error(t, runSessionCmd(ctx, a, []string{"--bogus", "1"}, &bytes.Buffer{}))
	assert.Error(t, runSessionCmd(ctx, a, []string{"--limit"}, &bytes.Buffer{}))
	assert.Error(t, runSessionCmd(ctx, a, []string{"--limit", "x"}, &bytes.Buffer{}))
	assert.ErrorContains(t, runSessionCmd(ctx, a, []string{"--limit", "-3"}, &bytes.Buffer{}), "non-negative")
	assert.ErrorContains(t, runSessionCmd(ctx, a, []string{"extra"}, &bytes.Buffer{}), "unexpected argument")
}

func TestModerateCommand_RejectsBadThreshold(t *testing.T) {
	t.Setenv("PARLEY_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	err := runModerate(context.Background(), []string{"--threshold", "2", "hello"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "between 0 and 1")

	err = runModerate(context.Background(), []string{"--threshold", "0.5"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "usage: parley moderate")
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("PARLEY_CONFIG", "/tmp/custom.yaml")
	assert.Equal(t, "/tmp/custom.yaml", getConfigPath())

	t.Setenv("PARLEY_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "parley", "parley.yaml"), getConfigPath())
}

func TestRunInit_WritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parley.yaml")
	toolsRoot := t.TempDir()
	t.Setenv("OPENAI_API_KEY", "sk-init")

	answers := strings.Join([]string{
		path,        // config path
		"",          // api key default
		"",          // base url
		"Ada",       // first agent
		"Grace H",   // second agent
		"",          // model default
		"Compilers", // topic
		toolsRoot,   // tools root
		"debug",     // log level
		"json",      // log format
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, runInit(bufio.NewReader(strings.NewReader(answers)), &out))
	assert.Contains(t, out.String(), "Config written to "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-init", cfg.OpenAI.APIKey)
	assert.Equal(t, []string{"ada", "grace-h"}, cfg.Session.Roster)
	assert.Equal(t, "Compilers", cfg.Session.Topic)
	assert.Equal(t, "gpt-4o-mini", cfg.Agents[0].Model)
	assert.Equal(t, []string{"cat", "tree"}, cfg.Agents[1].Tools)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, filepath.Join(dir, "parley.db"), cfg.Database.Path)
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "test", entry["component"])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
