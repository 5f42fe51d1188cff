// ABOUTME: Tool registry mapping names to handlers with overlay-aware invocation
// ABOUTME: Results are rendered as indented JSON for submission to the remote run

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/2389/parley/internal/remote"
)

// Registry errors.
var (
	ErrUnknownTool       = errors.New("unknown tool")
	ErrToolExecution     = errors.New("tool execution failed")
	ErrToolNameEmpty     = errors.New("tool name is empty")
	ErrNilHandler        = errors.New("tool handler is nil")
	ErrReservedName      = errors.New("tool name is reserved")
	ErrInvalidArguments  = errors.New("invalid tool arguments")
	ErrToolAlreadyExists = errors.New("tool already registered")
)

// Handler executes one tool call.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a registered capability.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema of the arguments object
	Handler     Handler
}

// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry pre-populated with tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name)
	switch {
	case name == "":
		return ErrToolNameEmpty
	case name == DelegateToolName:
		return fmt.Errorf("%w: %s", ErrReservedName, name)
	case t.Handler == nil:
		return fmt.Errorf("%w: %s", ErrNilHandler, name)
	}
	t.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyExists, name)
	}
	r.tools[name] = t
	return nil
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return Tool{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subset returns a registry holding only the named tools.
func (r *Registry) Subset(names []string) (*Registry, error) {
	sub := &Registry{tools: make(map[string]Tool, len(names))}
	for _, name := range names {
		t, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
		}
		sub.tools[name] = t
	}
	return sub, nil
}

// Definitions describes every registered tool for provisioning, sorted by name.
func (r *Registry) Definitions() []remote.FunctionDefinition {
	names := r.Names()
	defs := make([]remote.FunctionDefinition, 0, len(names))
	for _, name := range names {
		t, _ := r.Lookup(name)
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs = append(defs, remote.FunctionDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	return defs
}

// Invoke runs the named tool with rawArgs merged under the tool's overlay
// entries and returns the result as indented JSON.
func (r *Registry) Invoke(ctx context.Context, name, rawArgs string, overlay Overlay) (string, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	merged, err := overlay.Apply(name, rawArgs)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", name, err)
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(merged), &args); err != nil {
		return "", fmt.Errorf("tool %s: %w: %v", name, ErrInvalidArguments, err)
	}

	result, err := t.Handler(ctx, args)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrToolExecution, name, err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: %s: encoding result: %w", ErrToolExecution, name, err)
	}
	return string(out), nil
}
