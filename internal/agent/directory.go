// ABOUTME: Roster of known agents that resolves delegation targets and display names
// ABOUTME: Unknown ids are wrapped with default options; nesting depth is capped per turn

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/2389/parley/internal/remote"
	"github.com/2389/parley/internal/thread"
)

// ErrDelegationDepth is returned when handoffs nest deeper than the directory allows.
var ErrDelegationDepth = errors.New("delegation depth exceeded")

// DefaultMaxDepth bounds nested handoffs within one turn.
const DefaultMaxDepth = 3

type depthKey struct{}

func depthFrom(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// Directory holds the agents taking part in a conversation.
type Directory struct {
	svc      remote.Service
	defaults []Option
	maxDepth int
	base     *slog.Logger
	logger   *slog.Logger

	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewDirectory creates an empty directory. defaults configure agents that are
// wrapped on demand for unknown delegation targets.
func NewDirectory(svc remote.Service, maxDepth int, logger *slog.Logger, defaults ...Option) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Directory{
		svc:      svc,
		defaults: defaults,
		maxDepth: maxDepth,
		base:     logger,
		logger:   logger.With("component", "directory"),
		agents:   make(map[string]*Agent),
	}
}

// Wrap builds an agent for id that delegates through this directory and adds it.
func (d *Directory) Wrap(id string, opts ...Option) *Agent {
	all := make([]Option, 0, len(d.defaults)+len(opts)+2)
	all = append(all, WithLogger(d.base))
	all = append(all, d.defaults...)
	all = append(all, opts...)
	all = append(all, WithDelegator(d))
	a := New(d.svc, id, all...)
	d.Add(a)
	return a
}

// Add registers an agent, replacing any agent with the same id.
func (d *Directory) Add(a *Agent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[a.ID()] = a
}

// Remove drops an agent from the directory.
func (d *Directory) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.agents, id)
}

// Get returns a registered agent.
func (d *Directory) Get(id string) (*Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.agents[id]
	return a, ok
}

// Resolve returns the registered agent or wraps id with the default options.
func (d *Directory) Resolve(id string) *Agent {
	if a, ok := d.Get(id); ok {
		return a
	}
	d.logger.Debug("wrapping unknown assistant", "agent_id", id)
	return d.Wrap(id)
}

// List returns the registered agents sorted by id.
func (d *Directory) List() []*Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Agent, 0, len(d.agents))
	for _, a := range d.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// ResolveName returns the display name of any assistant id.
func (d *Directory) ResolveName(ctx context.Context, id string) (string, error) {
	return d.Resolve(id).ResolveName(ctx)
}

// Delegate implements thread.Delegator: it runs a contentless turn for
// targetID on threadID.
func (d *Directory) Delegate(ctx context.Context, targetID, threadID string) (thread.Result, error) {
	depth := depthFrom(ctx)
	if depth >= d.maxDepth {
		return thread.Result{}, fmt.Errorf("%w: limit %d", ErrDelegationDepth, d.maxDepth)
	}
	ctx = context.WithValue(ctx, depthKey{}, depth+1)

	d.logger.Info("handing off turn", "target", targetID, "thread_id", threadID, "depth", depth+1)
	out := d.Resolve(targetID).Converse(ctx, "", threadID)
	if out.Err != nil {
		return thread.Result{}, out.Err
	}
	return thread.Result{
		ThreadID:    out.ThreadID,
		RunID:       out.RunID,
		State:       out.RunState,
		ResponderID: out.ResponderID,
		Text:        out.Text,
		Delegated:   out.Delegated,
	}, nil
}

var _ thread.Delegator = (*Directory)(nil)
