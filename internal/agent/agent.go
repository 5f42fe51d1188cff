// ABOUTME: Agent wraps a remote assistant id with tools, overlay and a run engine
// ABOUTME: Provides provisioning, cached name resolution and the Converse turn operation

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/parley/internal/remote"
	"github.com/2389/parley/internal/thread"
	"github.com/2389/parley/internal/tools"
)

// Agent errors.
var (
	ErrProvisioning = errors.New("assistant provisioning failed")
	ErrNotFound     = errors.New("assistant not found")
)

// Definition describes an assistant to provision.
type Definition struct {
	Name         string
	Description  string
	Instructions string
	Model        string
	Temperature  *float64
	TopP         *float64
	Metadata     map[string]string
	// Delegation publishes the callAssistant tool so the assistant can hand off turns.
	Delegation bool
}

// Outcome is the result of one Converse call.
type Outcome struct {
	ThreadID    string
	RunID       string
	RunState    remote.RunStatus
	ResponderID string
	Text        string
	Delegated   bool
	Err         error
}

// Agent is safe for concurrent use; concurrent turns on one thread are not.
type Agent struct {
	id        string
	svc       remote.Service
	registry  *tools.Registry
	overlay   tools.Overlay
	delegator thread.Delegator
	engineCfg thread.EngineConfig
	avatar    string
	engine    *thread.Engine
	logger    *slog.Logger

	mu   sync.Mutex
	name string
}

// Option configures an Agent.
type Option func(*Agent)

// WithTools sets the tool registry.
func WithTools(reg *tools.Registry) Option {
	return func(a *Agent) { a.registry = reg }
}

// WithOverlay sets the fixed-argument overlay.
func WithOverlay(o tools.Overlay) Option {
	return func(a *Agent) { a.overlay = o }
}

// WithDelegator sets the resolver for callAssistant handoffs.
func WithDelegator(d thread.Delegator) Option {
	return func(a *Agent) { a.delegator = d }
}

// WithEngineConfig sets polling and retry behaviour. Tools, Overlay and
// Delegator in cfg are ignored in favour of the agent's own.
func WithEngineConfig(cfg thread.EngineConfig) Option {
	return func(a *Agent) { a.engineCfg = cfg }
}

// WithName seeds the cached display name.
func WithName(name string) Option {
	return func(a *Agent) { a.name = name }
}

// WithAvatar sets the profile image reference shown next to this agent's messages.
func WithAvatar(ref string) Option {
	return func(a *Agent) { a.avatar = ref }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// New wraps an existing assistant id. No remote call is made.
func New(svc remote.Service, id string, opts ...Option) *Agent {
	a := &Agent{id: id, svc: svc}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("component", "agent", "agent_id", id)

	cfg := a.engineCfg
	cfg.Tools = a.registry
	cfg.Overlay = a.overlay
	cfg.Delegator = a.delegator
	a.engine = thread.NewEngine(svc, cfg, a.logger)
	return a
}

// Create provisions a remote assistant from def and wraps it. Tool schemas
// come from the registry set with WithTools.
func Create(ctx context.Context, svc remote.Service, def Definition, opts ...Option) (*Agent, error) {
	probe := &Agent{}
	for _, opt := range opts {
		opt(probe)
	}

	remoteDef := remote.AssistantDefinition{
		Name:         def.Name,
		Description:  def.Description,
		Instructions: def.Instructions,
		Model:        def.Model,
		Temperature:  def.Temperature,
		TopP:         def.TopP,
		Metadata:     def.Metadata,
	}
	if probe.registry != nil {
		remoteDef.Tools = probe.registry.Definitions()
	}
	if def.Delegation {
		remoteDef.Tools = append(remoteDef.Tools, tools.DelegationDefinition())
	}

	created, err := svc.CreateAssistant(ctx, remoteDef)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvisioning, err)
	}

	name := created.Name
	if name == "" {
		name = def.Name
	}
	opts = append(append([]Option(nil), opts...), WithName(name))
	return New(svc, created.ID, opts...), nil
}

// Delete removes the remote assistant. Deleting an id twice fails.
func Delete(ctx context.Context, svc remote.Assistants, id string) error {
	if err := svc.DeleteAssistant(ctx, id); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrProvisioning, id, err)
	}
	return nil
}

// ID returns the remote assistant id.
func (a *Agent) ID() string { return a.id }

// Avatar returns the profile image reference, if any.
func (a *Agent) Avatar() string { return a.avatar }

// ResolveName returns the cached display name, fetching it on first use.
func (a *Agent) ResolveName(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.name != "" {
		return a.name, nil
	}

	asst, err := a.svc.GetAssistant(ctx, a.id)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, a.id)
		}
		return "", fmt.Errorf("resolving name of %s: %w", a.id, err)
	}
	a.name = asst.Name
	return a.name, nil
}

// Converse runs one turn on threadID, creating a thread when it is empty.
// An empty message runs the assistant without posting anything.
func (a *Agent) Converse(ctx context.Context, message, threadID string) Outcome {
	th := thread.NewThread(a.svc, threadID, a.logger)

	if err := th.Post(ctx, message); err != nil {
		return Outcome{ThreadID: th.ID(), Err: err}
	}
	id := th.ID()

	res, err := a.engine.Run(ctx, id, a.id)
	out := Outcome{
		ThreadID:    id,
		RunID:       res.RunID,
		RunState:    res.State,
		ResponderID: res.ResponderID,
		Text:        res.Text,
		Delegated:   res.Delegated,
	}
	if res.ThreadID != "" {
		th.Adopt(res.ThreadID)
		out.ThreadID = th.ID()
	}
	if err != nil {
		a.logger.Warn("turn failed", "thread_id", id, "error", err)
		out.Text = ""
		out.Err = err
		return out
	}
	if out.ResponderID == "" {
		out.ResponderID = a.id
	}

	a.logger.Debug("turn completed",
		"thread_id", out.ThreadID,
		"run_id", out.RunID,
		"responder", out.ResponderID,
		"delegated", out.Delegated,
	)
	return out
}
