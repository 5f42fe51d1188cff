// ABOUTME: Collaborator interfaces and value types for the remote assistant service
// ABOUTME: Threads/Assistants are the only surface the conversation core depends on

package remote

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMissingCredential is returned when no API key is available.
	ErrMissingCredential = errors.New("remote credential is not set")

	// ErrNotFound is returned when a remote resource does not exist.
	ErrNotFound = errors.New("remote resource not found")
)

// RunStatus is the remote state token of a run.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunCancelling     RunStatus = "cancelling"
	RunRequiresAction RunStatus = "requires_action"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunIncomplete     RunStatus = "incomplete"
	RunExpired        RunStatus = "expired"
)

// Pending reports whether the run is still moving on its own and should be polled.
func (s RunStatus) Pending() bool {
	return s == RunQueued || s == RunInProgress || s == RunCancelling
}

// Terminal reports whether no further transition is possible.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunIncomplete, RunExpired:
		return true
	}
	return false
}

// ToolCall is a single function invocation requested by a run.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON object
}

// ToolOutput answers one ToolCall.
type ToolOutput struct {
	CallID string
	Output string
}

// Run is a snapshot of a remote execution.
type Run struct {
	ID          string
	ThreadID    string
	AssistantID string
	Status      RunStatus
	ToolCalls   []ToolCall // populated only in requires_action
	LastError   string
}

// Thread is a remote conversation container.
type Thread struct {
	ID        string
	CreatedAt time.Time
}

// Message roles as reported by the remote service.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a remote thread.
type Message struct {
	ID          string
	ThreadID    string
	RunID       string
	AssistantID string
	Role        string
	Text        string
	CreatedAt   time.Time
}

// Assistant is a provisioned remote agent.
type Assistant struct {
	ID    string
	Name  string
	Model string
}

// FunctionDefinition describes a callable tool to the remote service.
type FunctionDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// AssistantDefinition is everything needed to provision an assistant.
type AssistantDefinition struct {
	Name         string
	Description  string
	Instructions string
	Model        string
	Temperature  *float64
	TopP         *float64
	Tools        []FunctionDefinition
	Metadata     map[string]string
}

// Threads is the thread and run surface of the remote service.
type Threads interface {
	CreateThread(ctx context.Context) (*Thread, error)
	GetThread(ctx context.Context, threadID string) (*Thread, error)
	PostMessage(ctx context.Context, threadID, content string) error
	StartRun(ctx context.Context, threadID, assistantID string) (*Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)
	CancelRun(ctx context.Context, threadID, runID string) (*Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error)
	// ListMessages returns up to limit messages, newest first.
	ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error)
}

// Assistants is the provisioning surface of the remote service.
type Assistants interface {
	CreateAssistant(ctx context.Context, def AssistantDefinition) (*Assistant, error)
	GetAssistant(ctx context.Context, assistantID string) (*Assistant, error)
	DeleteAssistant(ctx context.Context, assistantID string) error
}

// Service is the full remote surface.
type Service interface {
	Threads
	Assistants
}
