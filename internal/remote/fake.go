// ABOUTME: In-memory scripted implementation of Service for tests
// ABOUTME: Runs replay a per-assistant queue of RunStep observations on each GetRun

package remote

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RunStep is one scripted observation of a run, returned by successive GetRun calls.
type RunStep struct {
	Status    RunStatus
	ToolCalls []ToolCall
	LastError string
	// Reply is appended to the thread as an assistant message when Status is completed.
	Reply string
}

// Submission records a SubmitToolOutputs call.
type Submission struct {
	ThreadID string
	RunID    string
	Outputs  []ToolOutput
}

type fakeRun struct {
	run       Run
	steps     []RunStep
	cursor    int
	cancelled bool
	replied   bool
}

// Fake is an in-memory Service. Each StartRun pops the next script queued for
// the assistant with Script or Reply; starting a run with no script queued fails.
type Fake struct {
	mu         sync.Mutex
	counters   map[string]int
	assistants map[string]*Assistant
	threads    map[string]*Thread
	messages   map[string][]Message // oldest first
	runs       map[string]*fakeRun
	scripts    map[string][][]RunStep
	errs       map[string]error

	started     []Run
	submissions []Submission
	cancelled   []string
	deleted     []string
	getAsst     int
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{
		counters:   make(map[string]int),
		assistants: make(map[string]*Assistant),
		threads:    make(map[string]*Thread),
		messages:   make(map[string][]Message),
		runs:       make(map[string]*fakeRun),
		scripts:    make(map[string][][]RunStep),
		errs:       make(map[string]error),
	}
}

// AddAssistant registers an existing assistant.
func (f *Fake) AddAssistant(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assistants[id] = &Assistant{ID: id, Name: name, Model: "fake-model"}
}

// AddThread registers an existing thread.
func (f *Fake) AddThread(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads[id] = &Thread{ID: id, CreatedAt: time.Unix(0, 0)}
}

// Script queues the observations for the next run of assistantID.
func (f *Fake) Script(assistantID string, steps ...RunStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[assistantID] = append(f.scripts[assistantID], steps)
}

// Reply queues a run that passes through in_progress and completes with text.
func (f *Fake) Reply(assistantID, text string) {
	f.Script(assistantID,
		RunStep{Status: RunInProgress},
		RunStep{Status: RunCompleted, Reply: text},
	)
}

// FailOn makes every call to the named method return err. A nil err clears it.
func (f *Fake) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, method)
		return
	}
	f.errs[method] = err
}

// Started returns the runs started so far, as they were at creation.
func (f *Fake) Started() []Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Run(nil), f.started...)
}

// Submissions returns every SubmitToolOutputs call.
func (f *Fake) Submissions() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Submission(nil), f.submissions...)
}

// Cancelled returns the ids of cancelled runs.
func (f *Fake) Cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

// Deleted returns the ids of deleted assistants.
func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// AssistantLookups counts GetAssistant calls.
func (f *Fake) AssistantLookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getAsst
}

// Messages returns the thread's messages oldest first.
func (f *Fake) Messages(threadID string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages[threadID]...)
}

func (f *Fake) nextID(prefix string) string {
	f.counters[prefix]++
	return fmt.Sprintf("%s%d", prefix, f.counters[prefix])
}

func (f *Fake) failure(method string) error {
	return f.errs[method]
}

// CreateThread implements Threads.
func (f *Fake) CreateThread(_ context.Context) (*Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateThread"); err != nil {
		return nil, err
	}
	t := &Thread{ID: f.nextID("thread"), CreatedAt: time.Unix(int64(len(f.threads)), 0)}
	f.threads[t.ID] = t
	cp := *t
	return &cp, nil
}

// GetThread implements Threads.
func (f *Fake) GetThread(_ context.Context, threadID string) (*Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetThread"); err != nil {
		return nil, err
	}
	t, ok := f.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

// PostMessage implements Threads.
func (f *Fake) PostMessage(_ context.Context, threadID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("PostMessage"); err != nil {
		return err
	}
	if _, ok := f.threads[threadID]; !ok {
		return fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	f.appendMessage(Message{ThreadID: threadID, Role: RoleUser, Text: content})
	return nil
}

func (f *Fake) appendMessage(m Message) {
	m.ID = f.nextID("msg")
	m.CreatedAt = time.Unix(int64(f.counters["msg"]), 0)
	f.messages[m.ThreadID] = append(f.messages[m.ThreadID], m)
}

// StartRun implements Threads.
func (f *Fake) StartRun(_ context.Context, threadID, assistantID string) (*Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("StartRun"); err != nil {
		return nil, err
	}
	if _, ok := f.threads[threadID]; !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	if _, ok := f.assistants[assistantID]; !ok {
		return nil, fmt.Errorf("assistant %s: %w", assistantID, ErrNotFound)
	}
	queue := f.scripts[assistantID]
	if len(queue) == 0 {
		return nil, fmt.Errorf("fake: no run scripted for assistant %s", assistantID)
	}
	f.scripts[assistantID] = queue[1:]

	fr := &fakeRun{
		run: Run{
			ID:          f.nextID("run"),
			ThreadID:    threadID,
			AssistantID: assistantID,
			Status:      RunQueued,
		},
		steps: queue[0],
	}
	f.runs[fr.run.ID] = fr
	f.started = append(f.started, fr.run)
	return fr.snapshot(), nil
}

func (fr *fakeRun) snapshot() *Run {
	cp := fr.run
	cp.ToolCalls = append([]ToolCall(nil), fr.run.ToolCalls...)
	return &cp
}

func (f *Fake) lookupRun(threadID, runID string) (*fakeRun, error) {
	fr, ok := f.runs[runID]
	if !ok || fr.run.ThreadID != threadID {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return fr, nil
}

// GetRun implements Threads. Each call advances the run one scripted step; the
// last step repeats once the script is exhausted.
func (f *Fake) GetRun(_ context.Context, threadID, runID string) (*Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetRun"); err != nil {
		return nil, err
	}
	fr, err := f.lookupRun(threadID, runID)
	if err != nil {
		return nil, err
	}
	if fr.cancelled {
		fr.run.Status = RunCancelled
		fr.run.ToolCalls = nil
		return fr.snapshot(), nil
	}
	if len(fr.steps) == 0 {
		return fr.snapshot(), nil
	}

	step := fr.steps[len(fr.steps)-1]
	if fr.cursor < len(fr.steps) {
		step = fr.steps[fr.cursor]
		fr.cursor++
	}
	fr.run.Status = step.Status
	fr.run.ToolCalls = step.ToolCalls
	fr.run.LastError = step.LastError
	if step.Status == RunCompleted && step.Reply != "" && !fr.replied {
		fr.replied = true
		f.appendMessage(Message{
			ThreadID:    threadID,
			RunID:       runID,
			AssistantID: fr.run.AssistantID,
			Role:        RoleAssistant,
			Text:        step.Reply,
		})
	}
	return fr.snapshot(), nil
}

// CancelRun implements Threads. The run reports cancelling now and cancelled
// on the next GetRun.
func (f *Fake) CancelRun(_ context.Context, threadID, runID string) (*Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CancelRun"); err != nil {
		return nil, err
	}
	fr, err := f.lookupRun(threadID, runID)
	if err != nil {
		return nil, err
	}
	fr.cancelled = true
	fr.run.Status = RunCancelling
	fr.run.ToolCalls = nil
	f.cancelled = append(f.cancelled, runID)
	return fr.snapshot(), nil
}

// SubmitToolOutputs implements Threads.
func (f *Fake) SubmitToolOutputs(_ context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("SubmitToolOutputs"); err != nil {
		return nil, err
	}
	fr, err := f.lookupRun(threadID, runID)
	if err != nil {
		return nil, err
	}
	f.submissions = append(f.submissions, Submission{
		ThreadID: threadID,
		RunID:    runID,
		Outputs:  append([]ToolOutput(nil), outputs...),
	})
	fr.run.Status = RunQueued
	fr.run.ToolCalls = nil
	return fr.snapshot(), nil
}

// ListMessages implements Threads.
func (f *Fake) ListMessages(_ context.Context, threadID string, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ListMessages"); err != nil {
		return nil, err
	}
	if _, ok := f.threads[threadID]; !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	msgs := f.messages[threadID]
	out := make([]Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, msgs[i])
	}
	return out, nil
}

// CreateAssistant implements Assistants.
func (f *Fake) CreateAssistant(_ context.Context, def AssistantDefinition) (*Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateAssistant"); err != nil {
		return nil, err
	}
	a := &Assistant{ID: f.nextID("asst"), Name: def.Name, Model: def.Model}
	f.assistants[a.ID] = a
	cp := *a
	return &cp, nil
}

// GetAssistant implements Assistants.
func (f *Fake) GetAssistant(_ context.Context, assistantID string) (*Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getAsst++
	if err := f.failure("GetAssistant"); err != nil {
		return nil, err
	}
	a, ok := f.assistants[assistantID]
	if !ok {
		return nil, fmt.Errorf("assistant %s: %w", assistantID, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

// DeleteAssistant implements Assistants.
func (f *Fake) DeleteAssistant(_ context.Context, assistantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("DeleteAssistant"); err != nil {
		return err
	}
	if _, ok := f.assistants[assistantID]; !ok {
		return fmt.Errorf("assistant %s: %w", assistantID, ErrNotFound)
	}
	delete(f.assistants, assistantID)
	f.deleted = append(f.deleted, assistantID)
	return nil
}

var _ Service = (*Fake)(nil)
